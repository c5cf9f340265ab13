// Package metrics exposes the broker's ambient Prometheus instrumentation:
// counters and gauges for connections, registered manipulators, movement
// commands, and lease expiries. These are observability surface only —
// nothing in the core depends on their values.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the broker registers.
type Metrics struct {
	Connections        prometheus.Counter
	ConnectionsRefused prometheus.Counter

	ManipulatorsRegistered prometheus.Gauge

	MovementCommands *prometheus.CounterVec
	MovementDuration *prometheus.HistogramVec

	LeaseExpiries  prometheus.Counter
	EmergencyStops prometheus.Counter
}

// New creates and registers every collector.
func New() *Metrics {
	return &Metrics{
		Connections: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "ephys_link",
			Name:      "session_connections_total",
			Help:      "Total accepted client connections.",
		}),
		ConnectionsRefused: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "ephys_link",
			Name:      "session_connections_refused_total",
			Help:      "Total connection attempts refused because a client was already connected.",
		}),
		ManipulatorsRegistered: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "ephys_link",
			Name:      "manipulators_registered",
			Help:      "Number of currently registered manipulators.",
		}),
		MovementCommands: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ephys_link",
			Name:      "movement_commands_total",
			Help:      "Movement commands processed, labelled by operation and outcome.",
		}, []string{"operation", "outcome"}),
		MovementDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ephys_link",
			Name:      "movement_duration_seconds",
			Help:      "Time spent servicing a movement command, labelled by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		LeaseExpiries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "ephys_link",
			Name:      "write_lease_expiries_total",
			Help:      "Total write leases revoked by their own deadline.",
		}),
		EmergencyStops: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "ephys_link",
			Name:      "emergency_stops_total",
			Help:      "Total emergency-stop triggers observed.",
		}),
	}
}

// RecordConnection records a connect attempt's admission outcome.
func (m *Metrics) RecordConnection(accepted bool) {
	if accepted {
		m.Connections.Inc()
	} else {
		m.ConnectionsRefused.Inc()
	}
}

// RecordMovement records a completed movement command's outcome and
// duration, labelled by operation ("set_position" or "set_depth").
func (m *Metrics) RecordMovement(operation, outcome string, durationSeconds float64) {
	m.MovementCommands.WithLabelValues(operation, outcome).Inc()
	m.MovementDuration.WithLabelValues(operation).Observe(durationSeconds)
}
