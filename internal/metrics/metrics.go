package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics makes the best-effort fan-out observable: deliveries are
// never retried, but every attempt and failure is counted.
type Metrics struct {
	DeliveryAttempts prometheus.Counter
	DeliveryFailures prometheus.Counter
	EventsHandled    *prometheus.CounterVec
	SessionsGauge    prometheus.Gauge
	ConnectionsGauge prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		DeliveryAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "lessonsync_delivery_attempts_total",
			Help: "Messages handed to a participant connection.",
		}),
		DeliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "lessonsync_delivery_failures_total",
			Help: "Messages that could not be queued to a participant connection.",
		}),
		EventsHandled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lessonsync_events_handled_total",
			Help: "Inbound client events applied to a session.",
		}, []string{"event_type"}),
		SessionsGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lessonsync_live_sessions",
			Help: "Live sessions currently held in memory.",
		}),
		ConnectionsGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lessonsync_live_connections",
			Help: "Open websocket connections.",
		}),
	}
}
