package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the coordination server.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	SessionsActive    prometheus.Gauge
	EventsTotal       *prometheus.CounterVec
	EventErrors       *prometheus.CounterVec
	BroadcastsTotal   *prometheus.CounterVec
}

// New registers the codeshare metrics with registry. Pass
// prometheus.DefaultRegisterer in production; tests use a private registry so
// repeated construction does not panic on duplicate registration.
func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "codeshare",
			Name:      "connections_active",
			Help:      "Number of open websocket connections",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "codeshare",
			Name:      "sessions_active",
			Help:      "Number of sessions with at least one connected member",
		}),
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codeshare",
			Name:      "events_total",
			Help:      "Total inbound events processed, by event name",
		}, []string{"event"}),
		EventErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codeshare",
			Name:      "event_errors_total",
			Help:      "Total inbound events dropped, by reason",
		}, []string{"reason"}),
		BroadcastsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codeshare",
			Name:      "broadcasts_total",
			Help:      "Total broadcast fan-outs emitted, by event name",
		}, []string{"event"}),
	}
}
