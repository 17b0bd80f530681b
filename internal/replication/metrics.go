package replication

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for event replication.
type Metrics struct {
	Events *prometheus.CounterVec
}

// NewMetrics registers replication metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Events: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "userprofile_replication_events_total",
			Help: "User lifecycle events consumed, by type and result",
		}, []string{"event_type", "result"}),
	}
}

func (m *Metrics) observe(eventType string, r result) {
	m.Events.WithLabelValues(eventType, string(r)).Inc()
}
