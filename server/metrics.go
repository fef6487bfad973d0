package server

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/opcfoundry/opcua-runtime/engine"
)

// registerStatistics exposes the engine's session and channel counters as
// gauges. The engine snapshots its statistics on demand, so these read
// live values at scrape time.
func registerStatistics(reg prometheus.Registerer, eng engine.ServerEngine) {
	gauge := func(name, help string, read func(engine.ServerStatistics) uint32) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "opcua",
			Subsystem: "server",
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(read(eng.Statistics()))
		})
	}
	reg.MustRegister(
		gauge("current_sessions", "Sessions currently active.",
			func(s engine.ServerStatistics) uint32 { return s.CurrentSessions }),
		gauge("cumulated_sessions", "Sessions created since startup.",
			func(s engine.ServerStatistics) uint32 { return s.CumulatedSessions }),
		gauge("rejected_sessions", "Session activations rejected since startup.",
			func(s engine.ServerStatistics) uint32 { return s.RejectedSessions }),
		gauge("session_timeouts", "Sessions closed by timeout since startup.",
			func(s engine.ServerStatistics) uint32 { return s.SessionTimeouts }),
		gauge("current_secure_channels", "Secure channels currently open.",
			func(s engine.ServerStatistics) uint32 { return s.CurrentSecureChannels }),
		gauge("cumulated_secure_channels", "Secure channels opened since startup.",
			func(s engine.ServerStatistics) uint32 { return s.CumulatedSecureChannels }),
	)
}
