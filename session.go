package j1939

/*------------------------------------------------------------------
 *
 * Purpose:	The transport-protocol session: the state machine that
 *		fragments a long message into TP.DT packets (or
 *		reassembles one from them), coordinated by TP.CM
 *		(RTS/CTS/ACK/BAM/ABORT) frames.
 *
 * Description:	One session lives on each Node. It is advanced in two
 *		ways: Advance is called once per dispatcher tick and may
 *		produce a frame to transmit; HandleFrame is called for
 *		every received TP.CM/TP.DT frame and may complete the
 *		transfer.
 *
 *		COMPLETE_TX and COMPLETE_RX, named in SAE J1939-21's
 *		state diagram, are never left as an observable resting
 *		state here: the call that would produce one instead
 *		resolves it immediately (delivers the message, frees the
 *		buffer, returns to READY) within the same Advance or
 *		HandleFrame invocation. This rules out a COMPLETE state
 *		persisting across calls with a buffer that has already
 *		been freed.
 *
 *---------------------------------------------------------------*/

// Timing parameters per SAE J1939-21 5.10.2.4, in milliseconds.
const (
	TimeoutTR           = 200
	TimeoutTH           = 500
	TimeoutT1           = 750
	TimeoutT2           = 1250
	TimeoutT3           = 1250
	TimeoutT4           = 1050
	BAMTxInterval       = 50
)

// SessionState names a state of the transport-protocol machine.
type SessionState int

const (
	StateReady SessionState = iota
	StateCMAbortTX
	StateCMBamTX
	StateCMRTSTX
	StateCMCTSTX
	StateCMCTSRX
	StateCMAckTX
	StateCMAckRX
	StateDTBamTX
	StateDTBamRX
	StateDTCMDTTX
	StateDTCMDTRX
)

func (s SessionState) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateCMAbortTX:
		return "CM_ABORT_TX"
	case StateCMBamTX:
		return "CM_BAM_TX"
	case StateCMRTSTX:
		return "CM_RTS_TX"
	case StateCMCTSTX:
		return "CM_CTS_TX"
	case StateCMCTSRX:
		return "CM_CTS_RX"
	case StateCMAckTX:
		return "CM_ACK_TX"
	case StateCMAckRX:
		return "CM_ACK_RX"
	case StateDTBamTX:
		return "DT_BAM_TX"
	case StateDTBamRX:
		return "DT_BAM_RX"
	case StateDTCMDTTX:
		return "DT_CMDT_TX"
	case StateDTCMDTRX:
		return "DT_CMDT_RX"
	default:
		return "UNKNOWN"
	}
}

// EventKind classifies what a Session call produced for its caller to
// react to (typically by invoking a Node callback).
type EventKind int

const (
	// EventNone indicates nothing of note happened this call.
	EventNone EventKind = iota
	// EventReceived indicates a message finished reassembly.
	EventReceived
	// EventSent indicates an outgoing message finished transmission
	// (BAM fire-and-forget completion, or CMDT ACK received).
	EventSent
	// EventTimeout indicates the session gave up waiting on a peer;
	// Message is the in-progress buffer at the time of the timeout.
	EventTimeout
	// EventAborted indicates a locally-initiated abort completed.
	EventAborted
)

// Event reports the outcome of an Advance or HandleFrame call.
type Event struct {
	Kind    EventKind
	Message *Message
	Reason  uint8
}

// Session is the per-node transport-protocol state machine. The zero
// value is a session in state READY, ready to use.
type Session struct {
	state            SessionState
	buffer           *Message
	totalPackets     uint8
	packetsCount     uint8
	responsePackets  uint8
	abortReason      uint8
	lastActivityTick uint64
	// receiving is true when buffer holds an in-progress reassembly
	// (its identifier's source address is the peer, not us), false
	// when buffer holds an outgoing message we originated.
	receiving bool
}

// State reports the session's current state.
func (s *Session) State() SessionState {
	return s.state
}

// ProtocolStatus reports StatusOK when the session is idle and
// StatusBusy otherwise, matching the public get_protocol_status API.
func (s *Session) ProtocolStatus() Status {
	if s.state == StateReady {
		return StatusOK
	}
	return StatusBusy
}

func (s *Session) reset() {
	*s = Session{}
}

// TransmitManager begins transmission of msg, which must already carry
// its source address. It returns ErrBusy if a session is already in
// progress, or ErrTooLarge if msg exceeds MaxMessageLength. Callers
// must not call this for messages of 8 bytes or fewer; those travel
// directly over the short path.
func (s *Session) TransmitManager(msg *Message) error {
	if s.state != StateReady {
		return ErrBusy
	}
	if msg.Length > MaxMessageLength {
		return ErrTooLarge
	}

	s.buffer = msg.Copy()
	s.totalPackets = totalPacketsFor(s.buffer.Length)
	s.packetsCount = 0
	s.receiving = false

	if s.buffer.ID.IsPDU2() {
		s.state = StateCMBamTX
	} else {
		s.state = StateCMRTSTX
	}
	return nil
}

// Abort requests cancellation of the in-progress session. It returns
// ErrNoSession if the session is already READY.
func (s *Session) Abort(reason uint8) error {
	if s.state == StateReady {
		return ErrNoSession
	}
	s.abortReason = reason
	s.state = StateCMAbortTX
	return nil
}

// Advance drives the transmit side of the state machine forward by one
// dispatcher tick. It returns a frame to enqueue when one is produced.
func (s *Session) Advance(now uint64) (frame *Frame, ev Event) {
	switch s.state {
	case StateReady:
		return nil, Event{}

	case StateCMBamTX:
		f := Frame{ID: s.buffer.ID.WithPGN(PGNTPCM).WithDestination(AddressGlobal), Length: 8}
		f.Data = buildBAMPayload(uint16(s.buffer.Length), s.totalPackets, s.buffer.ID.PGN())
		s.state = StateDTBamTX
		s.lastActivityTick = now
		return &f, Event{}

	case StateCMRTSTX:
		f := Frame{ID: s.buffer.ID.WithPGN(PGNTPCM), Length: 8}
		f.Data = buildRTSPayload(uint16(s.buffer.Length), s.totalPackets, s.buffer.ID.PGN())
		s.state = StateCMCTSRX
		s.lastActivityTick = now
		return &f, Event{}

	case StateDTBamTX:
		if now-s.lastActivityTick < BAMTxInterval {
			return nil, Event{}
		}
		f := s.emitDT(s.buffer.ID.WithPGN(PGNTPCM).WithDestination(AddressGlobal))
		s.lastActivityTick = now
		if s.packetsCount == s.totalPackets {
			msg := s.buffer
			s.reset()
			return &f, Event{Kind: EventSent, Message: msg}
		}
		return &f, Event{}

	case StateCMCTSRX:
		if now-s.lastActivityTick >= TimeoutT3 {
			msg := s.buffer
			s.reset()
			return nil, Event{Kind: EventTimeout, Message: msg}
		}
		return nil, Event{}

	case StateDTCMDTTX:
		if s.responsePackets == 0 {
			// A CTS granting zero packets leaves nothing to emit; bound
			// the wait the same as every other state expecting a peer
			// response, so a misbehaving peer can't wedge the session.
			if now-s.lastActivityTick >= TimeoutT3 {
				msg := s.buffer
				s.reset()
				return nil, Event{Kind: EventTimeout, Message: msg}
			}
			return nil, Event{}
		}
		f := s.emitDT(s.buffer.ID)
		s.responsePackets--
		s.lastActivityTick = now
		if s.packetsCount == s.totalPackets {
			s.state = StateCMAckRX
			return &f, Event{}
		}
		if s.responsePackets == 0 {
			s.state = StateCMCTSRX
		}
		return &f, Event{}

	case StateCMAckRX:
		if now-s.lastActivityTick >= TimeoutT3 {
			msg := s.buffer
			s.reset()
			return nil, Event{Kind: EventTimeout, Message: msg}
		}
		return nil, Event{}

	case StateCMCTSTX:
		if now-s.lastActivityTick >= TimeoutTR {
			msg := s.buffer
			s.reset()
			return nil, Event{Kind: EventTimeout, Message: msg}
		}
		remaining := s.totalPackets - s.packetsCount
		grant := uint8(CTSResponseLimit)
		if remaining < grant {
			grant = remaining
		}
		f := Frame{ID: s.responseIdentifier(), Length: 8}
		f.Data = buildCTSPayload(grant, s.packetsCount+1, s.buffer.ID.PGN())
		s.responsePackets = grant
		s.state = StateDTCMDTRX
		s.lastActivityTick = now
		return &f, Event{}

	case StateCMAckTX:
		if now-s.lastActivityTick >= TimeoutTR {
			msg := s.buffer
			s.reset()
			return nil, Event{Kind: EventTimeout, Message: msg}
		}
		f := Frame{ID: s.responseIdentifier(), Length: 8}
		f.Data = buildACKPayload(uint16(s.buffer.Length), s.totalPackets, s.buffer.ID.PGN())
		msg := s.buffer
		s.reset()
		return &f, Event{Kind: EventReceived, Message: msg}

	case StateDTBamRX:
		if now-s.lastActivityTick >= TimeoutT1 {
			msg := s.buffer
			s.reset()
			return nil, Event{Kind: EventTimeout, Message: msg}
		}
		return nil, Event{}

	case StateDTCMDTRX:
		if now-s.lastActivityTick >= TimeoutT3 {
			msg := s.buffer
			s.reset()
			return nil, Event{Kind: EventTimeout, Message: msg}
		}
		return nil, Event{}

	case StateCMAbortTX:
		var id Identifier
		switch {
		case s.receiving:
			id = s.responseIdentifier()
		case s.buffer.ID.IsPDU2():
			id = s.buffer.ID.WithPGN(PGNTPCM).WithDestination(AddressGlobal)
		default:
			id = s.buffer.ID.WithPGN(PGNTPCM)
		}
		f := Frame{ID: id, Length: 8}
		f.Data = buildAbortPayload(s.abortReason, s.buffer.ID.PGN())
		reason := s.abortReason
		msg := s.buffer
		s.reset()
		return &f, Event{Kind: EventAborted, Message: msg, Reason: reason}

	default:
		return nil, Event{}
	}
}

// emitDT builds the next DT frame (packetsCount+1) for the buffered
// message and advances packetsCount. id carries the destination
// (global for BAM, the peer for CMDT).
func (s *Session) emitDT(id Identifier) Frame {
	s.packetsCount++
	idTPDT := id.WithPGN(PGNTPDT)
	return buildDTFrame(idTPDT, s.buffer, s.totalPackets, s.packetsCount)
}

// responseIdentifier builds the identifier for a TP.CM frame sent back
// to the peer that is the source of the buffered (receive-side)
// message: source and destination addresses are swapped relative to
// the buffer's identifier, which was reconstructed with the peer as
// SourceAddress and this node as Destination.
func (s *Session) responseIdentifier() Identifier {
	peer := s.buffer.ID.SourceAddress()
	self := s.buffer.ID.Destination()
	id := s.buffer.ID.WithPGN(PGNTPCM).WithSourceAddress(self)
	return id.WithDestination(peer)
}

// HandleFrame processes one received TP.CM or TP.DT frame. selfAddress
// is this node's own address, needed to address CTS/ACK responses and
// to fill the destination field of a reassembled peer-directed
// message.
func (s *Session) HandleFrame(selfAddress uint8, now uint64, f Frame) Event {
	pgn := f.ID.PGN()
	switch pgn {
	case PGNTPDT:
		return s.handleDT(now, f)
	case PGNTPCM:
		return s.handleCM(selfAddress, now, f)
	default:
		return Event{}
	}
}

func (s *Session) handleCM(selfAddress uint8, now uint64, f Frame) Event {
	switch f.Data[0] {
	case controlBAM:
		return s.handleBAM(selfAddress, now, f)
	case controlRTS:
		return s.handleRTS(selfAddress, now, f)
	case controlCTS:
		return s.handleCTS(now, f)
	case controlACK:
		return s.handleACK(f)
	case controlAbort:
		return s.handleAbort(f)
	default:
		return Event{}
	}
}

func (s *Session) handleBAM(selfAddress uint8, now uint64, f Frame) Event {
	if s.state != StateReady {
		return Event{}
	}
	rts := parseRTSLike(f.Data)
	id := reconstructIdentifier(f.ID.Priority(), f.ID.SourceAddress(), rts.pgn, selfAddress)
	msg, err := NewMessage(id, int(rts.size), nil)
	if err != nil {
		return Event{}
	}
	s.buffer = msg
	s.totalPackets = rts.totalPackets
	s.packetsCount = 0
	s.receiving = true
	s.state = StateDTBamRX
	s.lastActivityTick = now
	return Event{}
}

func (s *Session) handleRTS(selfAddress uint8, now uint64, f Frame) Event {
	if s.state != StateReady {
		return Event{}
	}
	rts := parseRTSLike(f.Data)
	id := reconstructIdentifier(f.ID.Priority(), f.ID.SourceAddress(), rts.pgn, selfAddress)
	msg, err := NewMessage(id, int(rts.size), nil)
	if err != nil {
		return Event{}
	}
	s.buffer = msg
	s.totalPackets = rts.totalPackets
	s.packetsCount = 0
	s.receiving = true
	s.state = StateCMCTSTX
	s.lastActivityTick = now
	return Event{}
}

func (s *Session) handleCTS(now uint64, f Frame) Event {
	if s.state != StateCMCTSRX {
		return Event{}
	}
	cts := parseCTS(f.Data)
	if cts.pgn != s.buffer.ID.PGN() || cts.nextSequence != s.packetsCount+1 {
		return Event{}
	}
	remaining := s.totalPackets - s.packetsCount
	granted := cts.responsePackets
	if granted > remaining {
		granted = remaining
	}
	s.responsePackets = granted
	s.state = StateDTCMDTTX
	s.lastActivityTick = now
	return Event{}
}

func (s *Session) handleACK(f Frame) Event {
	if s.state != StateCMAckRX {
		return Event{}
	}
	ack := parseRTSLike(f.Data)
	if int(ack.size) != s.buffer.Length || ack.totalPackets != s.totalPackets || ack.pgn != s.buffer.ID.PGN() {
		return Event{}
	}
	msg := s.buffer
	s.reset()
	return Event{Kind: EventSent, Message: msg}
}

func (s *Session) handleAbort(f Frame) Event {
	if s.state == StateReady {
		return Event{}
	}
	abort := parseAbort(f.Data)
	if s.buffer == nil || abort.pgn != s.buffer.ID.PGN() {
		return Event{}
	}
	s.reset()
	return Event{}
}

func (s *Session) handleDT(now uint64, f Frame) Event {
	if s.state != StateDTBamRX && s.state != StateDTCMDTRX {
		return Event{}
	}

	seq := f.Data[0]
	if seq != s.packetsCount+1 {
		// Out-of-order packet: discard silently, leave the buffer as is.
		return Event{}
	}

	section := PayloadPerDT
	last := seq == s.totalPackets
	if last {
		section = lastSectionFor(s.buffer.Length)
	}
	offset := byteOffsetFor(seq)
	copy(s.buffer.Payload[offset:offset+section], f.Data[1:1+section])
	s.packetsCount = seq
	s.lastActivityTick = now

	if !last {
		if s.state == StateDTCMDTRX {
			s.responsePackets--
			if s.responsePackets == 0 {
				s.state = StateCMCTSTX
			}
		}
		return Event{}
	}

	switch s.state {
	case StateDTBamRX:
		msg := s.buffer
		s.reset()
		return Event{Kind: EventReceived, Message: msg}
	case StateDTCMDTRX:
		s.state = StateCMAckTX
		return Event{}
	default:
		return Event{}
	}
}
