package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the broker's prometheus instruments.
type Metrics struct {
	Endpoints  prometheus.Gauge
	Broadcasts prometheus.Counter
	Intents    *prometheus.CounterVec
	Expired    prometheus.Counter
	Dropped    prometheus.Counter
	Malformed  prometheus.Counter
}

// NewMetrics registers the broker metrics with reg. A nil reg uses a private
// registry so tests can create many brokers.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		Endpoints: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "deskbus",
			Name:      "endpoints_connected",
			Help:      "Endpoints currently connected.",
		}),
		Broadcasts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "deskbus",
			Name:      "broadcasts_total",
			Help:      "Context broadcasts received.",
		}),
		Intents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deskbus",
			Name:      "intents_total",
			Help:      "Raised intents by outcome.",
		}, []string{"outcome"}),
		Expired: f.NewCounter(prometheus.CounterOpts{
			Namespace: "deskbus",
			Name:      "requests_expired_total",
			Help:      "Pending requests that timed out.",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "deskbus",
			Name:      "envelopes_dropped_total",
			Help:      "Envelopes dropped because an endpoint queue was full.",
		}),
		Malformed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "deskbus",
			Name:      "malformed_messages_total",
			Help:      "Messages rejected as malformed.",
		}),
	}
}
