package j1939

/*------------------------------------------------------------------
 *
 * Purpose:	The application boundary: a set of optional callbacks a
 *		Node invokes as frames and messages move through it.
 *
 *---------------------------------------------------------------*/

// Callbacks is the capability set an application registers on a Node.
// Every field is optional; a nil callback is simply skipped.
type Callbacks struct {
	// Filter decides whether an incoming frame should be accepted for
	// further processing. When nil, DefaultFilter is used.
	Filter func(selfAddress uint8, id Identifier) bool

	// Decode is invoked for every accepted short (single-frame)
	// message and every message the transport protocol reassembles.
	Decode func(msg *Message)

	// Sending is invoked after the Port has accepted a frame.
	Sending func(f Frame)

	// Missing is invoked when the Port refused a frame (its transmit
	// mailbox was full, or the write failed) and the frame was dropped.
	Missing func(f Frame)

	// Reading is invoked for every frame dequeued from the Port,
	// before filtering.
	Reading func(f Frame)

	// Timeout is invoked when an in-progress transport-protocol
	// session gives up waiting on a peer. partial is the session's
	// buffer: the whole outgoing message on the sending side, or the
	// reassembly buffer (filled up to the last accepted packet) on the
	// receiving side.
	Timeout func(partial *Message)

	// Aborted is invoked when a locally requested abort (Node.AbortSend)
	// has sent its ABORT frame. An ABORT received from the peer resets
	// the session without invoking it.
	Aborted func(reason uint8)
}

// DefaultFilter implements the software address filter: PDU2
// (broadcast) identifiers are always accepted; PDU1 (peer-directed)
// identifiers are accepted only when addressed to selfAddress or to
// the global address.
func DefaultFilter(selfAddress uint8, id Identifier) bool {
	if id.IsPDU2() {
		return true
	}
	dest := id.PDUSpecific()
	return dest == selfAddress || dest == AddressGlobal
}
