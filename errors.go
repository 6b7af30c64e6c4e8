package j1939

import "errors"

// Sentinel errors for conditions the application is expected to check
// for with errors.Is: a small named set rather than ad-hoc string
// errors.
var (
	// ErrTooLarge is returned when a message exceeds MaxMessageLength.
	ErrTooLarge = errors.New("j1939: message exceeds maximum length")

	// ErrBusy is returned by Send when the node's transport-protocol
	// session is not READY.
	ErrBusy = errors.New("j1939: transport protocol session busy")

	// ErrPortFull is returned by Send when the node's transmit queue is
	// already at capacity. A frame the port itself refuses is reported
	// through the Missing callback instead.
	ErrPortFull = errors.New("j1939: port transmit mailbox full")

	// ErrUnknownSession names the condition of a received connection
	// management frame that matches no in-progress transfer.
	// Session.HandleFrame ignores such frames and does not return it.
	ErrUnknownSession = errors.New("j1939: no matching transport protocol session")

	// ErrNoSession is returned when an operation requiring an active
	// transport-protocol session is attempted while none is in
	// progress.
	ErrNoSession = errors.New("j1939: no transport protocol session in progress")
)

// Status is the taxonomy of outcomes the engine reports. Only OK,
// Error, Busy and Timeout are meant to be exposed to application code.
// Blocked is what a Port reports for a refused or empty mailbox.
// Transmit and Received complete the taxonomy but are not produced by
// this package: the session state machine reports its outcomes to the
// node through Event values.
type Status int

const (
	StatusOK Status = iota
	StatusError
	StatusBusy
	StatusTimeout
	// StatusBlocked reports that the port had no room and the frame
	// was not accepted.
	StatusBlocked
	// StatusTransmit names the outcome of a session producing a frame
	// to enqueue; nothing in this package returns it.
	StatusTransmit
	// StatusReceived names the outcome of a session completing
	// reassembly of an incoming message; nothing in this package
	// returns it.
	StatusReceived
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusError:
		return "ERROR"
	case StatusBusy:
		return "BUSY"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusBlocked:
		return "BLOCKED"
	case StatusTransmit:
		return "TRANSMIT"
	case StatusReceived:
		return "RECEIVED"
	default:
		return "UNKNOWN"
	}
}
