// Package hammetrics wires hammertime's runtime counters into
// Prometheus. Every metric is optional: a nil *Metrics answers every Inc
// call as a no-op (one built with a nil Registerer still counts, it is
// just not registered anywhere), so the
// predictor and flip loops can hold a *Metrics field unconditionally
// without a parallel "metrics enabled" branch at every call site.
package hammetrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the full set of counters/gauges the predictor and flip
// loops report against.
type Metrics struct {
	PredictorLogOps     prometheus.Counter
	PredictorDetections prometheus.Counter
	PredictorFlips      prometheus.Counter

	FlipsTotal      prometheus.Counter
	FlipErrorsTotal prometheus.Counter

	VTLBHits   prometheus.Counter
	VTLBMisses prometheus.Counter

	RingOverflows prometheus.Counter
}

// New registers hammertime's metrics against reg and returns the
// populated set. A nil reg yields unregistered (but still usable)
// metrics, which is convenient for tests that want real counters without
// touching the default registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PredictorLogOps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hammertime_predictor_logops_total",
			Help: "Memory operations observed by the fliptable predictor.",
		}),
		PredictorDetections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hammertime_predictor_detections_total",
			Help: "Hammer patterns (single- or double-sided) detected above threshold.",
		}),
		PredictorFlips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hammertime_predictor_flips_total",
			Help: "Bitflip requests emitted by the predictor.",
		}),
		FlipsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hammertime_flips_total",
			Help: "Bitflips successfully applied by a flip loop.",
		}),
		FlipErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hammertime_flip_errors_total",
			Help: "Bitflips a flip loop failed to apply due to an I/O error.",
		}),
		VTLBHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hammertime_vtlb_hits_total",
			Help: "VTLB Lookup calls answered from a cached generation.",
		}),
		VTLBMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hammertime_vtlb_misses_total",
			Help: "VTLB Lookup calls that fell through to the pagemap reader.",
		}),
		RingOverflows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hammertime_ring_overflows_total",
			Help: "Probe output ring reads where head-cur exceeded the buffer size.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.PredictorLogOps, m.PredictorDetections, m.PredictorFlips,
			m.FlipsTotal, m.FlipErrorsTotal,
			m.VTLBHits, m.VTLBMisses,
			m.RingOverflows,
		)
	}
	return m
}

// inc increments c unless the Metrics set (or the counter itself)
// is absent, so callers can invoke m.IncPredictorLogOps() against a nil
// *Metrics without a guard.
func (m *Metrics) inc(c prometheus.Counter) {
	if m == nil || c == nil {
		return
	}
	c.Inc()
}

func (m *Metrics) IncPredictorLogOps()     { m.inc(m.safe().PredictorLogOps) }
func (m *Metrics) IncPredictorDetections() { m.inc(m.safe().PredictorDetections) }
func (m *Metrics) IncPredictorFlips()      { m.inc(m.safe().PredictorFlips) }
func (m *Metrics) IncFlipsTotal()          { m.inc(m.safe().FlipsTotal) }
func (m *Metrics) IncFlipErrorsTotal()     { m.inc(m.safe().FlipErrorsTotal) }
func (m *Metrics) IncVTLBHits()            { m.inc(m.safe().VTLBHits) }
func (m *Metrics) IncVTLBMisses()          { m.inc(m.safe().VTLBMisses) }
func (m *Metrics) IncRingOverflows()       { m.inc(m.safe().RingOverflows) }

// safe returns m, or a zero-value Metrics (all nil counters, so inc is
// still a no-op) when m itself is nil.
func (m *Metrics) safe() *Metrics {
	if m == nil {
		return &Metrics{}
	}
	return m
}
