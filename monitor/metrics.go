package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the notification accounting shared by all streams of one
// connection. A nil *Metrics disables collection.
type Metrics struct {
	Delivered     prometheus.Counter
	Lost          prometheus.Counter
	Unrouted      prometheus.Counter
	ActiveStreams prometheus.Gauge
}

// NewMetrics creates the monitor metric set and registers it with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opcua",
			Subsystem: "monitor",
			Name:      "notifications_delivered_total",
			Help:      "Notifications buffered for a consumer.",
		}),
		Lost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opcua",
			Subsystem: "monitor",
			Name:      "notifications_lost_total",
			Help:      "Notifications dropped because a stream buffer was full.",
		}),
		Unrouted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opcua",
			Subsystem: "monitor",
			Name:      "notifications_unrouted_total",
			Help:      "Notifications for an unknown subscription or item.",
		}),
		ActiveStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "opcua",
			Subsystem: "monitor",
			Name:      "active_streams",
			Help:      "Item streams registered with the router.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Delivered, m.Lost, m.Unrouted, m.ActiveStreams)
	}
	return m
}
