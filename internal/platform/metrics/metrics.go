package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds application level Prometheus metrics.
type Metrics struct {
	UsersCreated prometheus.Counter
	UsersUpdated prometheus.Counter
}

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// New creates and registers the metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		UsersCreated: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "userprofile_users_created_total",
			Help: "Users created through the local API",
		}),
		UsersUpdated: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "userprofile_users_updated_total",
			Help: "Users updated through the local API",
		}),
	}
}

// IncrementUsersCreated increments the users created counter by 1
func (m *Metrics) IncrementUsersCreated() {
	m.UsersCreated.Inc()
}

// IncrementUsersUpdated increments the users updated counter by 1
func (m *Metrics) IncrementUsersUpdated() {
	m.UsersUpdated.Inc()
}
