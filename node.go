package j1939

import (
	"fmt"
	"sync"
)

/*------------------------------------------------------------------
 *
 * Purpose:	A single J1939 node: an address on the bus, a bounded
 *		transmit queue, one transport-protocol session, and the
 *		callback set an application hangs its behavior off of.
 *
 * Description:	One mutex-guarded queue per endpoint rather than a
 *		shared channel-based pipeline, since the dispatcher drains
 *		the queue from a single goroutine on a tick and application
 *		goroutines only ever enqueue.
 *
 *---------------------------------------------------------------*/

// Node is one addressable endpoint on the bus.
type Node struct {
	Name        string
	selfAddress uint8

	mu      sync.Mutex
	txQueue []*Message

	txCapacity int
	session    Session
	callbacks  Callbacks
}

// NewNode constructs a Node with the given name, address and transmit
// queue capacity. txCapacity must be positive.
func NewNode(name string, selfAddress uint8, txCapacity int, callbacks Callbacks) (*Node, error) {
	if txCapacity <= 0 {
		return nil, fmt.Errorf("j1939: tx_fifo must be positive, got %d", txCapacity)
	}
	return &Node{
		Name:        name,
		selfAddress: selfAddress,
		txCapacity:  txCapacity,
		callbacks:   callbacks,
	}, nil
}

// SelfAddress returns the node's current source address.
func (n *Node) SelfAddress() uint8 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.selfAddress
}

// SetSelfAddress updates the node's source address, for use after
// address-claim arbitration completes (arbitration itself is out of
// scope for this engine).
func (n *Node) SetSelfAddress(addr uint8) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.selfAddress = addr
}

// ProtocolStatus reports whether the node's transport-protocol session
// is idle or busy.
func (n *Node) ProtocolStatus() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.session.ProtocolStatus()
}

// SessionState reports the node's transport-protocol session state,
// for instrumentation.
func (n *Node) SessionState() SessionState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.session.State()
}

// AllSessionStates lists every SessionState value, for callers (such
// as j1939metrics) that need to zero out a one-hot gauge over the
// full state set.
func AllSessionStates() []SessionState {
	return []SessionState{
		StateReady, StateCMAbortTX, StateCMBamTX, StateCMRTSTX,
		StateCMCTSTX, StateCMCTSRX, StateCMAckTX, StateCMAckRX,
		StateDTBamTX, StateDTBamRX, StateDTCMDTTX, StateDTCMDTRX,
	}
}

// Send enqueues msg for transmission. It returns ErrTooLarge if msg
// exceeds MaxMessageLength, ErrBusy if the node's transport-protocol
// session is not READY, or ErrPortFull if the transmit queue is
// already at capacity.
func (n *Node) Send(msg *Message) error {
	if msg.Length > MaxMessageLength {
		return ErrTooLarge
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.session.State() != StateReady {
		return ErrBusy
	}

	if len(n.txQueue) >= n.txCapacity {
		return ErrPortFull
	}

	n.txQueue = append(n.txQueue, msg.Copy())
	return nil
}

// AbortSend cancels the node's in-progress transport-protocol
// transmission or reception, if any.
func (n *Node) AbortSend(reason uint8) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.session.Abort(reason)
}

// tick drives the node forward by one dispatcher iteration: it starts
// a new transmission if the session is idle and a message is queued,
// advances any in-progress session, and returns a frame to send (if
// any), plus whichever event resulted. A queued message's source
// address is coerced to the node's current selfAddress here, at the
// moment it actually begins transmission, rather than at Send time, so
// a SetSelfAddress call after address-claim arbitration is honored
// even for messages already sitting in the queue.
func (n *Node) tick(now uint64) (*Frame, Event) {
	n.mu.Lock()

	if n.session.State() == StateReady {
		if msg := n.popLocked(); msg != nil {
			msg.ID = msg.ID.WithSourceAddress(n.selfAddress)
			if msg.IsShort() {
				n.mu.Unlock()
				f := msg.Frame()
				return &f, Event{}
			}
			n.session.TransmitManager(msg)
		}
	}

	frame, ev := n.session.Advance(now)
	n.mu.Unlock()

	n.dispatchEvent(ev)
	return frame, ev
}

// popLocked pops the oldest queued message; caller must hold n.mu.
func (n *Node) popLocked() *Message {
	if len(n.txQueue) == 0 {
		return nil
	}
	msg := n.txQueue[0]
	n.txQueue = n.txQueue[1:]
	return msg
}

// handleFrame routes one received frame to the node's session (for
// TP.CM/TP.DT traffic) or decodes it directly (short messages).
func (n *Node) handleFrame(now uint64, f Frame) {
	if n.callbacks.Reading != nil {
		n.callbacks.Reading(f)
	}

	filter := n.callbacks.Filter
	if filter == nil {
		filter = DefaultFilter
	}
	self := n.SelfAddress()
	if !filter(self, f.ID) {
		return
	}

	if IsTransportProtocolPGN(f.ID.PGN()) {
		n.mu.Lock()
		ev := n.session.HandleFrame(self, now, f)
		n.mu.Unlock()
		n.dispatchEvent(ev)
		return
	}

	msg := &Message{ID: f.ID, Length: int(f.Length), Payload: append([]byte(nil), f.Data[:f.Length]...)}
	if n.callbacks.Decode != nil {
		n.callbacks.Decode(msg)
	}
}

func (n *Node) dispatchEvent(ev Event) {
	switch ev.Kind {
	case EventReceived:
		if n.callbacks.Decode != nil {
			n.callbacks.Decode(ev.Message)
		}
	case EventTimeout:
		if n.callbacks.Timeout != nil {
			n.callbacks.Timeout(ev.Message)
		}
	case EventAborted:
		if n.callbacks.Aborted != nil {
			n.callbacks.Aborted(ev.Reason)
		}
	case EventSent, EventNone:
	}
}

// notifySending reports a frame the Port has accepted. The dispatcher
// calls this only after a successful AddTx, never after notifyMissing
// for the same frame.
func (n *Node) notifySending(f Frame) {
	if n.callbacks.Sending != nil {
		n.callbacks.Sending(f)
	}
}

// notifyMissing reports a frame the Port refused (no room, or a failed
// write).
func (n *Node) notifyMissing(f Frame) {
	if n.callbacks.Missing != nil {
		n.callbacks.Missing(f)
	}
}
