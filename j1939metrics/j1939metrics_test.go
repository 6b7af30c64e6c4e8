package j1939metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantage-iot/j1939"
)

func TestWrapCountsFramesAndChainsBaseCallback(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "test-node")

	var decodedCount int
	cb := m.Wrap(j1939.Callbacks{
		Decode: func(msg *j1939.Message) { decodedCount++ },
	})

	cb.Reading(j1939.Frame{})
	cb.Reading(j1939.Frame{})
	cb.Sending(j1939.Frame{})

	msg := &j1939.Message{}
	cb.Decode(msg)

	assert.Equal(t, float64(2), testCounterValue(t, m.FramesRX))
	assert.Equal(t, float64(1), testCounterValue(t, m.FramesTX))
	assert.Equal(t, 1, decodedCount)
}

func TestSetSessionStateIsOneHot(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "test-node")

	m.SetSessionState(j1939.StateCMCTSTX, j1939.AllSessionStates())

	active, err := m.SessionState.GetMetricWithLabelValues(j1939.StateCMCTSTX.String())
	require.NoError(t, err)
	assert.Equal(t, float64(1), testGaugeValue(t, active))

	idle, err := m.SessionState.GetMetricWithLabelValues(j1939.StateReady.String())
	require.NoError(t, err)
	assert.Equal(t, float64(0), testGaugeValue(t, idle))
}

func testCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	require.NoError(t, c.Write(&metric))
	return metric.GetCounter().GetValue()
}

func testGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var metric dto.Metric
	require.NoError(t, g.Write(&metric))
	return metric.GetGauge().GetValue()
}
