// Command j1939-demo drives a small in-process (or real) bus from a
// YAML topology file: it brings up the configured nodes, sends one
// short and one long message from the first node, and logs every
// frame and transport-protocol event it sees until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
	"github.com/pkg/term"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/vantage-iot/j1939"
	"github.com/vantage-iot/j1939/config"
	"github.com/vantage-iot/j1939/j1939metrics"
	"github.com/vantage-iot/j1939/serialcan"
	"github.com/vantage-iot/j1939/socketcan"
	"github.com/vantage-iot/j1939/virtualbus"
)

/*------------------------------------------------------------------
 *
 * Purpose:	A runnable demonstration harness: parse flags, load a
 *		configuration file, bring up a transport and a set of
 *		nodes, and drive a dispatch loop until the user interrupts
 *		it.
 *
 *---------------------------------------------------------------*/

func main() {
	var (
		configPath      = pflag.StringP("config", "c", "", "path to the topology YAML file")
		tick            = pflag.Duration("tick", 20*time.Millisecond, "dispatcher tick interval")
		verbose         = pflag.BoolP("verbose", "v", false, "enable debug logging")
		timestampFormat = pflag.StringP("timestamp-format", "T", "", "strftime format string to prefix received-message log lines with")
	)
	pflag.Parse()

	var stamp func() string
	if *timestampFormat != "" {
		if _, err := strftime.Format(*timestampFormat, time.Now()); err != nil {
			fmt.Fprintf(os.Stderr, "j1939-demo: bad --timestamp-format: %v\n", err)
			os.Exit(1)
		}
		format := *timestampFormat
		stamp = func() string {
			s, _ := strftime.Format(format, time.Now())
			return s
		}
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	})
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	if *configPath == "" {
		logger.Fatal("missing required flag", "flag", "--config")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("loading configuration", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := newHarness(cfg, logger, stamp)
	if err != nil {
		logger.Fatal("building harness", "err", err)
	}
	defer h.shutdown()

	if err := h.sendDemoMessages(); err != nil {
		logger.Fatal("sending demo messages", "err", err)
	}

	h.run(ctx, *tick)
}

// link pairs one j1939.Port with the Dispatcher that owns it, and the
// function (if any) that advances the port's clock, so the run loop can
// advance every link by the same elapsed time each iteration without
// caring whether the underlying port is virtual or real.
type link struct {
	name       string
	port       j1939.Port
	dispatcher *j1939.Dispatcher
	node       *j1939.Node
	metrics    *j1939metrics.Metrics
	advances   func(elapsedMillis uint64) // nil for ports with their own wall clock
}

type harness struct {
	logger   *log.Logger
	registry *prometheus.Registry
	bus      *virtualbus.Bus
	links    []*link
	stamp    func() string // nil unless --timestamp-format was given
}

func newHarness(cfg *config.Config, logger *log.Logger, stamp func() string) (*harness, error) {
	h := &harness{logger: logger, registry: prometheus.NewRegistry(), stamp: stamp}

	switch cfg.Bus {
	case config.BusVirtual:
		h.bus = virtualbus.NewBus()
		for _, nc := range cfg.Nodes {
			port := virtualbus.NewPort(h.bus, 256)
			if err := h.attach(nc, port, func(elapsed uint64) { h.bus.AdvanceTick(elapsed) }); err != nil {
				return nil, err
			}
		}

	case config.BusSocketCAN:
		port, err := socketcan.Open(cfg.Interface)
		if err != nil {
			return nil, fmt.Errorf("opening socketcan interface %s: %w", cfg.Interface, err)
		}
		if err := port.Init(); err != nil {
			return nil, fmt.Errorf("initializing socketcan interface %s: %w", cfg.Interface, err)
		}
		if err := h.attachShared(cfg.Nodes, port, nil); err != nil {
			return nil, err
		}

	case config.BusSerial:
		tty, err := term.Open(cfg.Interface, term.RawMode)
		if err != nil {
			return nil, fmt.Errorf("opening serial interface %s: %w", cfg.Interface, err)
		}
		if cfg.Baud != 0 {
			if err := tty.SetSpeed(cfg.Baud); err != nil {
				return nil, fmt.Errorf("setting baud rate on %s: %w", cfg.Interface, err)
			}
		}
		port := serialcan.New(tty, 256, func() uint64 { return uint64(time.Now().UnixMilli()) })
		if err := port.Init(); err != nil {
			return nil, fmt.Errorf("initializing serial interface %s: %w", cfg.Interface, err)
		}
		if err := h.attachShared(cfg.Nodes, port, nil); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unsupported bus kind %q", cfg.Bus)
	}

	return h, nil
}

// attach registers one node on its own dedicated port and dispatcher,
// the shape a virtual bus needs to let each configured node stand in
// for a separate physical ECU sharing the medium.
func (h *harness) attach(nc config.NodeConfig, port j1939.Port, advances func(uint64)) error {
	if err := port.Init(); err != nil {
		return fmt.Errorf("initializing port for node %s: %w", nc.Name, err)
	}

	m := j1939metrics.New(h.registry, nc.Name)
	node, err := j1939.NewNode(nc.Name, uint8(nc.Address), nc.TxFIFO, m.Wrap(h.callbacksFor(nc.Name)))
	if err != nil {
		return fmt.Errorf("creating node %s: %w", nc.Name, err)
	}

	dispatcher := j1939.NewDispatcher(port)
	dispatcher.Register(node)

	h.links = append(h.links, &link{
		name: nc.Name, port: port, dispatcher: dispatcher, node: node, metrics: m, advances: advances,
	})
	return nil
}

// attachShared registers every configured node onto one physical port
// shared between them, the shape a real SocketCAN or SLCAN interface
// needs: there is exactly one wire, and every node listens on it.
func (h *harness) attachShared(nodes []config.NodeConfig, port j1939.Port, advances func(uint64)) error {
	dispatcher := j1939.NewDispatcher(port)

	for _, nc := range nodes {
		m := j1939metrics.New(h.registry, nc.Name)
		node, err := j1939.NewNode(nc.Name, uint8(nc.Address), nc.TxFIFO, m.Wrap(h.callbacksFor(nc.Name)))
		if err != nil {
			return fmt.Errorf("creating node %s: %w", nc.Name, err)
		}
		dispatcher.Register(node)
		h.links = append(h.links, &link{name: nc.Name, port: port, dispatcher: dispatcher, node: node, metrics: m})
	}

	if len(h.links) > 0 {
		h.links[len(h.links)-1].advances = advances
	}
	return nil
}

func (h *harness) callbacksFor(nodeName string) j1939.Callbacks {
	logger := h.logger.With("node", nodeName)
	return j1939.Callbacks{
		Decode: func(msg *j1939.Message) {
			prefix := ""
			if h.stamp != nil {
				prefix = "[" + h.stamp() + "] "
			}
			logger.Info(prefix+"message received", "pgn", fmt.Sprintf("%#06x", msg.ID.PGN()), "length", msg.Length)
		},
		Sending: func(f j1939.Frame) {
			logger.Debug("frame sent", "frame", f.String())
		},
		Reading: func(f j1939.Frame) {
			logger.Debug("frame read", "frame", f.String())
		},
		Missing: func(f j1939.Frame) {
			logger.Warn("frame dropped: port full", "frame", f.String())
		},
		Timeout: func(partial *j1939.Message) {
			logger.Warn("transport protocol session timed out", "pgn", fmt.Sprintf("%#06x", partial.ID.PGN()))
		},
		Aborted: func(reason uint8) {
			logger.Warn("transport protocol session aborted", "reason", reason)
		},
	}
}

// sendDemoMessages queues a short peer-directed message and a long
// broadcast message from the first configured node, exercising the
// short-frame path and the BAM fragmentation path without waiting for
// the dispatch loop to start.
func (h *harness) sendDemoMessages() error {
	if len(h.links) == 0 {
		return fmt.Errorf("no nodes configured")
	}
	sender := h.links[0].node
	self := sender.SelfAddress()

	short := j1939.NewIdentifier(6, 0, 0, 0xDA, 0xFF, self)
	shortMsg, err := j1939.NewMessage(short, 4, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	if err != nil {
		return fmt.Errorf("building short message: %w", err)
	}
	if err := sender.Send(shortMsg); err != nil {
		return fmt.Errorf("queuing short message: %w", err)
	}

	broadcast := j1939.NewIdentifier(6, 0, 1, 0xFE, 0x00, self)
	payload := make([]byte, 40)
	for i := range payload {
		payload[i] = byte(i)
	}
	longMsg, err := j1939.NewMessage(broadcast, len(payload), payload)
	if err != nil {
		return fmt.Errorf("building broadcast message: %w", err)
	}
	if err := sender.Send(longMsg); err != nil {
		return fmt.Errorf("queuing broadcast message: %w", err)
	}

	h.logger.Info("queued demo messages", "node", sender.Name, "short_pgn", fmt.Sprintf("%#06x", short.PGN()), "long_pgn", fmt.Sprintf("%#06x", broadcast.PGN()))
	return nil
}

// run drives every dispatcher's TaskHandler on tick boundaries until
// ctx is cancelled.
func (h *harness) run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	elapsed := uint64(tick.Milliseconds())
	if elapsed == 0 {
		elapsed = 1
	}

	h.logger.Info("dispatch loop started", "tick", tick)
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("shutting down")
			return
		case <-ticker.C:
			for _, l := range h.links {
				if l.advances != nil {
					l.advances(elapsed)
				}
				now := l.port.GetTick()
				l.dispatcher.TaskHandler(now)
				l.metrics.SetSessionState(l.node.SessionState(), j1939.AllSessionStates())
			}
		}
	}
}

func (h *harness) shutdown() {
	seen := make(map[j1939.Port]bool)
	for _, l := range h.links {
		if seen[l.port] {
			continue
		}
		seen[l.port] = true
		if err := l.port.Deinit(); err != nil {
			h.logger.Warn("closing port", "port", l.name, "err", err)
		}
	}
}
