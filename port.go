package j1939

/*------------------------------------------------------------------
 *
 * Purpose:	The boundary between the transport-protocol engine and
 *		whatever actually moves frames: a virtual bus for tests,
 *		a SocketCAN interface, an SLCAN serial adapter, or a
 *		vendor HAL. The engine only ever calls these methods; it
 *		never blocks waiting on one.
 *
 *---------------------------------------------------------------*/

// Port is the trait the engine uses to talk to a CAN transport. All
// methods must be non-blocking: TX/RX operate against bounded mailboxes
// and report fill/free levels rather than waiting.
type Port interface {
	// Init prepares the port for use.
	Init() error
	// Deinit tears the port down, releasing any resources.
	Deinit() error

	// TxFreeLevel returns the number of empty slots in the transmit
	// mailbox.
	TxFreeLevel() uint32
	// RxFillLevel returns the number of frames queued for receipt.
	RxFillLevel() uint32

	// AddTx enqueues one frame for transmission. It returns
	// StatusBlocked if the mailbox is full.
	AddTx(frame Frame) Status
	// GetRx dequeues one received frame. It returns StatusBlocked if
	// none is queued.
	GetRx() (Frame, Status)

	// GetTick returns a monotonically increasing millisecond counter.
	GetTick() uint64
}
