// Package j1939metrics exposes Prometheus instrumentation for the
// engine's frame and transport-protocol session activity, wired in as
// an optional decorator so the core engine carries no metrics
// dependency of its own.
package j1939metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vantage-iot/j1939"
)

/*------------------------------------------------------------------
 *
 * Purpose:	Count frames and transport-protocol session outcomes.
 *
 * Description:	Grounded on the shared use of
 *		github.com/prometheus/client_golang across the retrieval
 *		pack's socket- and filesystem-service examples: a small
 *		set of counters and a gauge, registered against a
 *		caller-supplied registry rather than the global default
 *		one, so a single process can run more than one engine
 *		instance without metric name collisions.
 *
 *---------------------------------------------------------------*/

// Metrics holds the collectors this package registers.
type Metrics struct {
	FramesTX      prometheus.Counter
	FramesRX      prometheus.Counter
	SessionsTotal *prometheus.CounterVec
	SessionState  *prometheus.GaugeVec
}

// New creates and registers the collectors against reg. nodeName
// labels the per-node session-state gauge.
func New(reg prometheus.Registerer, nodeName string) *Metrics {
	m := &Metrics{
		FramesTX: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "j1939_frames_tx_total",
			Help:        "CAN frames transmitted.",
			ConstLabels: prometheus.Labels{"node": nodeName},
		}),
		FramesRX: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "j1939_frames_rx_total",
			Help:        "CAN frames received.",
			ConstLabels: prometheus.Labels{"node": nodeName},
		}),
		SessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "j1939_tp_sessions_total",
			Help:        "Transport protocol sessions by outcome.",
			ConstLabels: prometheus.Labels{"node": nodeName},
		}, []string{"outcome"}),
		SessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "j1939_tp_session_state",
			Help:        "1 for the transport protocol session's current state, 0 otherwise.",
			ConstLabels: prometheus.Labels{"node": nodeName},
		}, []string{"state"}),
	}

	reg.MustRegister(m.FramesTX, m.FramesRX, m.SessionsTotal, m.SessionState)
	return m
}

// Wrap returns a j1939.Callbacks that layers m's instrumentation over
// base, calling through to any callback base already defines.
func (m *Metrics) Wrap(base j1939.Callbacks) j1939.Callbacks {
	wrapped := base

	innerReading := base.Reading
	wrapped.Reading = func(f j1939.Frame) {
		m.FramesRX.Inc()
		if innerReading != nil {
			innerReading(f)
		}
	}

	innerSending := base.Sending
	wrapped.Sending = func(f j1939.Frame) {
		m.FramesTX.Inc()
		if innerSending != nil {
			innerSending(f)
		}
	}

	innerDecode := base.Decode
	wrapped.Decode = func(msg *j1939.Message) {
		if !msg.IsShort() {
			m.SessionsTotal.WithLabelValues("complete").Inc()
		}
		if innerDecode != nil {
			innerDecode(msg)
		}
	}

	innerTimeout := base.Timeout
	wrapped.Timeout = func(partial *j1939.Message) {
		m.SessionsTotal.WithLabelValues("timeout").Inc()
		if innerTimeout != nil {
			innerTimeout(partial)
		}
	}

	innerAborted := base.Aborted
	wrapped.Aborted = func(reason uint8) {
		m.SessionsTotal.WithLabelValues("abort").Inc()
		if innerAborted != nil {
			innerAborted(reason)
		}
	}

	return wrapped
}

// SetSessionState records the node's current transport-protocol
// session state as a one-hot gauge vector, zeroing every other known
// state.
func (m *Metrics) SetSessionState(current j1939.SessionState, all []j1939.SessionState) {
	for _, s := range all {
		value := 0.0
		if s == current {
			value = 1.0
		}
		m.SessionState.WithLabelValues(s.String()).Set(value)
	}
}
