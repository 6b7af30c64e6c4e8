package j1939

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNodeRejectsNonPositiveTxFIFO(t *testing.T) {
	_, err := NewNode("A", 0x00, 0, Callbacks{})
	assert.Error(t, err)

	_, err = NewNode("A", 0x00, -1, Callbacks{})
	assert.Error(t, err)
}

func TestNodeSendRejectsOversizedMessage(t *testing.T) {
	n, err := NewNode("A", 0x00, 4, Callbacks{})
	require.NoError(t, err)

	msg, err := NewMessage(Identifier(0x18F00400), MaxMessageLength, nil)
	require.NoError(t, err)
	msg.Length = MaxMessageLength + 1

	assert.ErrorIs(t, n.Send(msg), ErrTooLarge)
}

func TestNodeSendReturnsErrPortFullWhenQueueSaturated(t *testing.T) {
	n, err := NewNode("A", 0x00, 2, Callbacks{})
	require.NoError(t, err)

	id := Identifier(0x18F00400)
	msg, err := NewMessage(id, 4, []byte{1, 2, 3, 4})
	require.NoError(t, err)

	require.NoError(t, n.Send(msg))
	require.NoError(t, n.Send(msg))
	assert.ErrorIs(t, n.Send(msg), ErrPortFull)
}

func TestNodeTickDrainsQueueAsSpaceFrees(t *testing.T) {
	n, err := NewNode("A", 0x00, 1, Callbacks{})
	require.NoError(t, err)

	id := Identifier(0x18F00400)
	msg, err := NewMessage(id, 4, []byte{1, 2, 3, 4})
	require.NoError(t, err)

	require.NoError(t, n.Send(msg))
	assert.ErrorIs(t, n.Send(msg), ErrPortFull)

	frame, ev := n.tick(0)
	require.NotNil(t, frame)
	assert.Equal(t, EventNone, ev.Kind)

	require.NoError(t, n.Send(msg))
}

func TestNodeAbortSendWithoutSessionReturnsErrNoSession(t *testing.T) {
	n, err := NewNode("A", 0x00, 4, Callbacks{})
	require.NoError(t, err)

	assert.ErrorIs(t, n.AbortSend(0x02), ErrNoSession)
}

func TestNodeAbortSendFiresAbortedCallback(t *testing.T) {
	var reason uint8
	var fired bool
	n, err := NewNode("A", 0x00, 4, Callbacks{
		Aborted: func(r uint8) { fired = true; reason = r },
	})
	require.NoError(t, err)

	id := Identifier(0x18F00400) // PDU2, long enough to require the session
	payload := make([]byte, 16)
	msg, err := NewMessage(id, 16, payload)
	require.NoError(t, err)
	require.NoError(t, n.Send(msg))

	// First tick starts the BAM session; the queued message leaves
	// txQueue and the session becomes busy.
	_, _ = n.tick(0)
	require.Equal(t, StatusBusy, n.ProtocolStatus())

	require.NoError(t, n.AbortSend(0x02))
	_, ev := n.tick(10)

	assert.Equal(t, EventAborted, ev.Kind)
	assert.True(t, fired)
	assert.Equal(t, uint8(0x02), reason)
	assert.Equal(t, StatusOK, n.ProtocolStatus())
}

func TestNodeMissingCallbackFiresWhenPortBlocked(t *testing.T) {
	var missing []Frame
	var sent []Frame
	n, err := NewNode("A", 0x00, 4, Callbacks{
		Missing: func(f Frame) { missing = append(missing, f) },
		Sending: func(f Frame) { sent = append(sent, f) },
	})
	require.NoError(t, err)

	id := Identifier(0x18F00400)
	msg, err := NewMessage(id, 4, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	require.NoError(t, n.Send(msg))

	d := NewDispatcher(&blockingPort{})
	d.Register(n)
	d.TaskHandler(0)

	require.Len(t, missing, 1)
	assert.Empty(t, sent, "a frame the port rejected must not also report as sent")
}

func TestNodeSendingCallbackFiresOnlyAfterPortAccepts(t *testing.T) {
	var missing, sent []Frame
	n, err := NewNode("A", 0x00, 4, Callbacks{
		Missing: func(f Frame) { missing = append(missing, f) },
		Sending: func(f Frame) { sent = append(sent, f) },
	})
	require.NoError(t, err)

	id := Identifier(0x18F00400)
	msg, err := NewMessage(id, 4, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	require.NoError(t, n.Send(msg))

	d := NewDispatcher(&acceptingPort{})
	d.Register(n)
	d.TaskHandler(0)

	require.Len(t, sent, 1)
	assert.Empty(t, missing)
}

func TestNodeTickCoercesQueuedMessageSourceAddress(t *testing.T) {
	n, err := NewNode("A", 0x05, 4, Callbacks{})
	require.NoError(t, err)

	// The message is built with a stale source address, as if queued
	// before an address-claim changed the node's own address.
	id := NewIdentifier(6, 0, 0, 0xE0, 0x23, 0x7F)
	msg, err := NewMessage(id, 4, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	require.NoError(t, n.Send(msg))

	frame, _ := n.tick(0)
	require.NotNil(t, frame)
	assert.Equal(t, uint8(0x05), frame.ID.SourceAddress())
}

func TestNodeTickCoercesLongMessageSourceAddressBeforeTransmitManager(t *testing.T) {
	n, err := NewNode("A", 0x05, 4, Callbacks{})
	require.NoError(t, err)

	id := NewIdentifier(6, 0, 0, 0xF0, 0x04, 0x7F) // PDU2, stale source
	msg, err := NewMessage(id, 16, make([]byte, 16))
	require.NoError(t, err)
	require.NoError(t, n.Send(msg))

	_, _ = n.tick(0)
	assert.Equal(t, StateDTBamTX, n.SessionState())

	frame, _ := n.tick(BAMTxInterval)
	require.NotNil(t, frame)
	assert.Equal(t, uint8(0x05), frame.ID.SourceAddress())
}

// blockingPort is a j1939.Port whose mailbox is always full, for
// exercising the dispatcher's Missing-callback path without pulling in
// the virtualbus package (which itself imports this one).
type blockingPort struct{}

func (*blockingPort) Init() error            { return nil }
func (*blockingPort) Deinit() error          { return nil }
func (*blockingPort) TxFreeLevel() uint32    { return 0 }
func (*blockingPort) RxFillLevel() uint32    { return 0 }
func (*blockingPort) AddTx(Frame) Status     { return StatusBlocked }
func (*blockingPort) GetRx() (Frame, Status) { return Frame{}, StatusBlocked }
func (*blockingPort) GetTick() uint64        { return 0 }

// acceptingPort is a j1939.Port whose mailbox always has room, the
// counterpart to blockingPort for exercising the Sending-callback path.
type acceptingPort struct{}

func (*acceptingPort) Init() error            { return nil }
func (*acceptingPort) Deinit() error          { return nil }
func (*acceptingPort) TxFreeLevel() uint32    { return ^uint32(0) }
func (*acceptingPort) RxFillLevel() uint32    { return 0 }
func (*acceptingPort) AddTx(Frame) Status     { return StatusOK }
func (*acceptingPort) GetRx() (Frame, Status) { return Frame{}, StatusBlocked }
func (*acceptingPort) GetTick() uint64        { return 0 }
