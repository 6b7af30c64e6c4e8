package j1939

import "sync"

/*------------------------------------------------------------------
 *
 * Purpose:	The registry of live nodes sharing one Port, and the
 *		periodic task that drives them: advance each node's
 *		session and hand the Port at most one frame per node
 *		(from the session or the transmit queue), then drain the
 *		Port's receive mailbox and route each frame to every
 *		registered node (a CAN bus is a broadcast medium; every
 *		listener sees every frame).
 *
 * Description:	A frame a node produces is only reported to the
 *		Sending callback once AddTx has actually accepted it;
 *		a rejected frame fires Missing instead. The two are
 *		mutually exclusive for a given frame.
 *
 *---------------------------------------------------------------*/

// Dispatcher owns one Port and the set of Nodes that share it.
type Dispatcher struct {
	port Port

	mu    sync.Mutex
	nodes []*Node
}

// NewDispatcher builds a Dispatcher over port. The caller is
// responsible for calling Init on port before the first TaskHandler
// call, and Deinit when done.
func NewDispatcher(port Port) *Dispatcher {
	return &Dispatcher{port: port}
}

// Register adds a node to the dispatcher. A node must be registered
// before its messages will ever reach the wire or its callbacks ever
// fire.
func (d *Dispatcher) Register(n *Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nodes = append(d.nodes, n)
}

// Unregister removes a node from the dispatcher; it becomes inert.
func (d *Dispatcher) Unregister(n *Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, existing := range d.nodes {
		if existing == n {
			d.nodes = append(d.nodes[:i], d.nodes[i+1:]...)
			return
		}
	}
}

// Nodes returns a snapshot of the currently registered nodes.
func (d *Dispatcher) Nodes() []*Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Node, len(d.nodes))
	copy(out, d.nodes)
	return out
}

// TaskHandler runs one iteration of the dispatch loop: advance every
// node's transmit side, passing at most one frame per node to the
// port, and drain the port's receive mailbox. Frames still queued on a
// node wait for later calls. now is the current tick, typically from
// the port's own GetTick.
func (d *Dispatcher) TaskHandler(now uint64) {
	nodes := d.Nodes()

	for _, n := range nodes {
		frame, _ := n.tick(now)
		if frame == nil {
			continue
		}
		if st := d.port.AddTx(*frame); st == StatusOK {
			n.notifySending(*frame)
		} else {
			n.notifyMissing(*frame)
		}
	}

	for d.port.RxFillLevel() > 0 {
		f, st := d.port.GetRx()
		if st == StatusBlocked {
			break
		}
		for _, n := range nodes {
			n.handleFrame(now, f)
		}
	}
}
