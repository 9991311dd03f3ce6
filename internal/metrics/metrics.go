// Package metrics registers the daemon's prometheus collectors: ring
// buffer loss counters, archive flusher lag, and RunEngine state. Grounded
// on pyroscope's distributor.go promauto.With(reg).New*(...) idiom and its
// prometheus.WrapRegistererWithPrefix("pyroscope_", reg) namespacing
// pattern in the retrieval pack, adapted to a "daqd_" prefix.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the daemon exposes on /metrics.
type Metrics struct {
	RingRecordsLost prometheus.Counter
	RingBytesLost   prometheus.Counter
	RingWriteHead   prometheus.Gauge
	RingReadTail    prometheus.Gauge

	FlusherLagRecords prometheus.Gauge
	FlusherFlushTotal prometheus.Counter
	FlusherErrorTotal prometheus.Counter

	RunState       *prometheus.GaugeVec
	RunEventsTotal prometheus.Counter

	SDKRefCount prometheus.Gauge
}

// New registers every collector against reg and returns the bundle. reg is
// typically prometheus.DefaultRegisterer in production and a fresh
// prometheus.NewRegistry() in tests to avoid collector-already-registered
// panics across parallel test runs.
func New(reg prometheus.Registerer) *Metrics {
	reg = prometheus.WrapRegistererWithPrefix("daqd_", reg)
	f := promauto.With(reg)

	return &Metrics{
		RingRecordsLost: f.NewCounter(prometheus.CounterOpts{
			Name: "ring_records_lost_total",
			Help: "Records overwritten by the writer before any reader tail advanced past them.",
		}),
		RingBytesLost: f.NewCounter(prometheus.CounterOpts{
			Name: "ring_bytes_lost_total",
			Help: "Bytes overwritten by the writer before any reader tail advanced past them.",
		}),
		RingWriteHead: f.NewGauge(prometheus.GaugeOpts{
			Name: "ring_write_head_bytes",
			Help: "Current ring buffer write head offset.",
		}),
		RingReadTail: f.NewGauge(prometheus.GaugeOpts{
			Name: "ring_read_tail_bytes",
			Help: "Current ring buffer archive read tail offset.",
		}),
		FlusherLagRecords: f.NewGauge(prometheus.GaugeOpts{
			Name: "flusher_lag_bytes",
			Help: "Bytes between the ring write head and the archive flusher's read tail.",
		}),
		FlusherFlushTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "flusher_flush_total",
			Help: "Number of completed flush passes.",
		}),
		FlusherErrorTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "flusher_error_total",
			Help: "Number of flush passes that returned an error.",
		}),
		RunState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "run_state",
			Help: "1 if the RunEngine is currently in the named state, else 0.",
		}, []string{"state"}),
		RunEventsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "run_events_total",
			Help: "Total Event documents emitted across all runs.",
		}),
		SDKRefCount: f.NewGauge(prometheus.GaugeOpts{
			Name: "sdk_ref_count",
			Help: "Current process-wide vendor SDK family reference count.",
		}),
	}
}

// SetRunState zeroes every known state label then sets the active one to 1,
// matching the RunEngine.State() enum (spec.md §4.7).
func (m *Metrics) SetRunState(active string) {
	for _, s := range []string{"idle", "running", "paused", "complete"} {
		v := 0.0
		if s == active {
			v = 1.0
		}
		m.RunState.WithLabelValues(s).Set(v)
	}
}

// ObserveRing updates the ring gauges and flusher lag from a ring buffer's
// write head / read tail pair.
func (m *Metrics) ObserveRing(writeHead, readTail uint64) {
	m.RingWriteHead.Set(float64(writeHead))
	m.RingReadTail.Set(float64(readTail))
	m.FlusherLagRecords.Set(float64(writeHead - readTail))
}
