package driver

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the driver's request accounting. All fields are optional
// from the correlator's point of view; a nil *Metrics disables collection.
type Metrics struct {
	InFlight             prometheus.Gauge
	DuplicateCompletions prometheus.Counter
	UnknownCompletions   prometheus.Counter
	AbandonedCompletions prometheus.Counter
}

// NewMetrics creates the driver metric set and registers it with reg.
// Pass prometheus.DefaultRegisterer for the process-wide registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "opcua",
			Subsystem: "driver",
			Name:      "requests_in_flight",
			Help:      "Requests dispatched to the engine and not yet completed.",
		}),
		DuplicateCompletions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opcua",
			Subsystem: "driver",
			Name:      "duplicate_completions_total",
			Help:      "Completions delivered for an already-completed request id.",
		}),
		UnknownCompletions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opcua",
			Subsystem: "driver",
			Name:      "unknown_completions_total",
			Help:      "Completions delivered for a request id never registered.",
		}),
		AbandonedCompletions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opcua",
			Subsystem: "driver",
			Name:      "abandoned_completions_total",
			Help:      "Completions discarded because the caller stopped waiting.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.InFlight, m.DuplicateCompletions, m.UnknownCompletions, m.AbandonedCompletions)
	}
	return m
}
