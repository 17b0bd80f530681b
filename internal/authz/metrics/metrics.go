package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the authorization exchange.
type Metrics struct {
	Decisions     *prometheus.CounterVec
	Duration      prometheus.Histogram
	Pending       prometheus.Gauge
	LateResponses prometheus.Counter
	Malformed     prometheus.Counter
}

// New registers the authorization metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "userprofile_authz_requests_total",
			Help: "Authorization checks by outcome",
		}, []string{"outcome"}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "userprofile_authz_duration_seconds",
			Help:    "Time from publishing an authorization request to its resolution",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		Pending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "userprofile_authz_pending",
			Help: "Authorization requests currently awaiting a reply",
		}),
		LateResponses: factory.NewCounter(prometheus.CounterOpts{
			Name: "userprofile_authz_unmatched_responses_total",
			Help: "Replies discarded because no request was waiting (late, duplicate or foreign)",
		}),
		Malformed: factory.NewCounter(prometheus.CounterOpts{
			Name: "userprofile_authz_malformed_responses_total",
			Help: "Replies that could not be decoded",
		}),
	}
}

// ObserveDecision records one completed authorization check.
func (m *Metrics) ObserveDecision(outcome string, elapsed time.Duration) {
	m.Decisions.WithLabelValues(outcome).Inc()
	m.Duration.Observe(elapsed.Seconds())
}

// SetPending sets the outstanding request gauge.
func (m *Metrics) SetPending(n int) {
	m.Pending.Set(float64(n))
}

// IncUnmatched counts a discarded reply.
func (m *Metrics) IncUnmatched() {
	m.LateResponses.Inc()
}

// IncMalformed counts an undecodable reply.
func (m *Metrics) IncMalformed() {
	m.Malformed.Inc()
}
