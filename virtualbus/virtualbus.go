// Package virtualbus provides an in-memory j1939.Port implementation
// for tests and simulation: every frame added by one Bus handle is
// delivered immediately to every other handle sharing the same Bus,
// with no simulated arbitration delay. A handle whose receive mailbox
// is at capacity drops the frame.
package virtualbus

import (
	"sync"

	"github.com/vantage-iot/j1939"
)

/*------------------------------------------------------------------
 *
 * Purpose:	An immediate-delivery CAN bus stand-in: a
 *		mutex-protected transmit queue generalized to a broadcast
 *		medium shared by many endpoints rather than one queue per
 *		channel. Frames are lost only when a receiving endpoint's
 *		bounded mailbox is full.
 *
 *---------------------------------------------------------------*/

// Bus is the shared medium. Its zero value is ready to use.
type Bus struct {
	mu      sync.Mutex
	tick    uint64
	members []*Port
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// AdvanceTick bumps the bus's shared tick counter, read by every
// Port's GetTick. The bus never reads the wall clock; its time moves
// only when the caller (such as the demo harness) calls this.
func (b *Bus) AdvanceTick(delta uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tick += delta
}

func (b *Bus) now() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tick
}

func (b *Bus) broadcast(from *Port, f j1939.Frame) {
	b.mu.Lock()
	members := make([]*Port, len(b.members))
	copy(members, b.members)
	b.mu.Unlock()

	for _, m := range members {
		if m == from {
			continue
		}
		m.deliver(f)
	}
}

func (b *Bus) join(p *Port) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.members = append(b.members, p)
}

func (b *Bus) leave(p *Port) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, m := range b.members {
		if m == p {
			b.members = append(b.members[:i], b.members[i+1:]...)
			return
		}
	}
}

// Port is one endpoint's handle onto a Bus. It implements j1939.Port.
type Port struct {
	bus      *Bus
	capacity int

	mu    sync.Mutex
	rx    []j1939.Frame
	open  bool
}

// NewPort attaches a new Port to bus with the given receive mailbox
// capacity. Frames delivered past capacity are dropped, mirroring a
// real controller's overrun behavior.
func NewPort(bus *Bus, rxCapacity int) *Port {
	return &Port{bus: bus, capacity: rxCapacity}
}

func (p *Port) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = true
	p.bus.join(p)
	return nil
}

func (p *Port) Deinit() error {
	p.mu.Lock()
	p.open = false
	p.mu.Unlock()
	p.bus.leave(p)
	return nil
}

func (p *Port) TxFreeLevel() uint32 {
	return ^uint32(0) // unbounded: broadcast delivery happens synchronously
}

func (p *Port) RxFillLevel() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return uint32(len(p.rx))
}

func (p *Port) AddTx(f j1939.Frame) j1939.Status {
	p.mu.Lock()
	if !p.open {
		p.mu.Unlock()
		return j1939.StatusError
	}
	p.mu.Unlock()
	p.bus.broadcast(p, f)
	return j1939.StatusOK
}

func (p *Port) GetRx() (j1939.Frame, j1939.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.rx) == 0 {
		return j1939.Frame{}, j1939.StatusBlocked
	}
	f := p.rx[0]
	p.rx = p.rx[1:]
	return f, j1939.StatusOK
}

func (p *Port) GetTick() uint64 {
	return p.bus.now()
}

func (p *Port) deliver(f j1939.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.capacity > 0 && len(p.rx) >= p.capacity {
		return
	}
	p.rx = append(p.rx, f)
}
