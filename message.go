package j1939

import "fmt"

/*------------------------------------------------------------------
 *
 * Purpose:	Owned variable-length application message, and the
 *		fixed 8-byte CAN frame used to carry it on the wire.
 *
 *---------------------------------------------------------------*/

// MaxMessageLength is the largest payload the transport protocol can
// carry: 255 data-transfer packets of 7 payload bytes each.
const MaxMessageLength = 255 * PayloadPerDT

// Frame is a single 8-byte CAN data frame.
type Frame struct {
	ID     Identifier
	Length uint8
	Data   [8]byte
}

func (f Frame) String() string {
	return fmt.Sprintf("Frame{ID: %#08x, Len: %d, Data: % x}", uint32(f.ID), f.Length, f.Data[:f.Length])
}

// Message is an application-level payload of 0-1785 bytes associated
// with a J1939 identifier. Payloads of 8 bytes or fewer travel as a
// single Frame; longer payloads require the transport protocol.
type Message struct {
	ID      Identifier
	Length  int
	Payload []byte
}

// NewMessage builds a Message, copying payload if given or zero-filling
// otherwise. It returns ErrTooLarge if length exceeds MaxMessageLength.
func NewMessage(id Identifier, length int, payload []byte) (*Message, error) {
	if length < 0 || length > MaxMessageLength {
		return nil, fmt.Errorf("%w: length %d exceeds max %d", ErrTooLarge, length, MaxMessageLength)
	}

	buf := make([]byte, length)
	if payload != nil {
		copy(buf, payload)
	}

	return &Message{ID: id, Length: length, Payload: buf}, nil
}

// Copy returns a deep copy of the message.
func (m *Message) Copy() *Message {
	if m == nil {
		return nil
	}
	cp := &Message{ID: m.ID, Length: m.Length, Payload: make([]byte, len(m.Payload))}
	copy(cp.Payload, m.Payload)
	return cp
}

// IsShort reports whether the message fits in a single CAN frame.
func (m *Message) IsShort() bool {
	return m.Length <= 8
}

// Frame renders a short message (Length <= 8) as a single CAN frame.
// It panics if the message requires the transport protocol; callers
// must check IsShort first.
func (m *Message) Frame() Frame {
	if !m.IsShort() {
		panic("j1939: Frame called on a message requiring the transport protocol")
	}
	f := Frame{ID: m.ID, Length: uint8(m.Length)}
	copy(f.Data[:], m.Payload)
	return f
}
