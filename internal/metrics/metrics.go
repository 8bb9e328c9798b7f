// Package metrics exposes Prometheus instruments for the room server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Command outcomes.
const (
	OutcomeApplied  = "applied"
	OutcomeRejected = "rejected"
)

// Metrics holds the room server instruments.
type Metrics struct {
	ActiveSessions    prometheus.Gauge
	Rooms             prometheus.Gauge
	Commands          *prometheus.CounterVec
	DroppedDeliveries prometheus.Counter
	HeartbeatTimeouts prometheus.Counter
	DecodeFailures    *prometheus.CounterVec
}

// New registers the instruments on reg. A nil reg uses a private registry,
// which keeps tests from colliding on the default one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	const ns = "vimeet"

	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "active_sessions",
			Help:      "Number of sessions joined to a room",
		}),
		Rooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "rooms",
			Help:      "Number of rooms with at least one member",
		}),
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "commands_total",
			Help:      "Commands processed by the coordinator",
		}, []string{"kind", "outcome"}),
		DroppedDeliveries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "dropped_deliveries_total",
			Help:      "Events dropped because a session outbox was full",
		}),
		HeartbeatTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "heartbeat_timeouts_total",
			Help:      "Sessions dropped for missing ping/pong activity",
		}),
		DecodeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "decode_failures_total",
			Help:      "Inbound text frames that produced no command",
		}, []string{"reason"}),
	}
}
