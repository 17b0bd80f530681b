package publisher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for outgoing events.
type Metrics struct {
	PublishFailures *prometheus.CounterVec
}

// NewMetrics registers publisher metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		PublishFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "userprofile_events_publish_failures_total",
			Help: "Messages that could not be handed to the bus, by topic",
		}, []string{"topic"}),
	}
}

// IncPublishFailures counts one failed publish to topic.
func (m *Metrics) IncPublishFailures(topic string) {
	m.PublishFailures.WithLabelValues(topic).Inc()
}
