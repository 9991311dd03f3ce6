package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestSetRunStateIsExclusive(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.SetRunState("running")

	assert.Equal(t, 1.0, gaugeValue(t, m.RunState.WithLabelValues("running")))
	assert.Equal(t, 0.0, gaugeValue(t, m.RunState.WithLabelValues("idle")))

	m.SetRunState("paused")
	assert.Equal(t, 0.0, gaugeValue(t, m.RunState.WithLabelValues("running")))
	assert.Equal(t, 1.0, gaugeValue(t, m.RunState.WithLabelValues("paused")))
}

func TestObserveRingComputesLag(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveRing(1000, 400)
	assert.Equal(t, 600.0, gaugeValue(t, m.FlusherLagRecords))
}
