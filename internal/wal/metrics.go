package wal

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the optional Prometheus instrumentation for a Log.
// Passed in via WithMetrics; a Log with no metrics attached just skips
// every observe call (observeAppend is a no-op on a nil receiver).
type metrics struct {
	appendTotal prometheus.Counter
	tipSeq      prometheus.Gauge
}

// NewMetrics registers the WAL's counters/gauges against reg and returns
// a recorder to pass to WithMetrics. Safe to call once per process; a
// nil reg disables registration (the returned metrics still work, just
// unexported to Prometheus).
func NewMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		appendTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "klingnet_wal_append_total",
			Help: "Total number of entries appended to the WAL (apply, undo, and mark).",
		}),
		tipSeq: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "klingnet_wal_tip_seq",
			Help: "Sequence number of the most recent WAL entry.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.appendTotal, m.tipSeq)
	}
	return m
}

func (m *metrics) observeAppend(seq uint64) {
	if m == nil {
		return
	}
	m.appendTotal.Inc()
	m.tipSeq.Set(float64(seq))
}
