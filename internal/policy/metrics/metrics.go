package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the policy engine.
type Metrics struct {
	// Decisions by outcome (allow, deny) and reason code
	DecisionsTotal *prometheus.CounterVec

	// Time spent deciding, including the membership lookup
	DecisionDuration prometheus.Histogram
}

// New registers the policy metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DecisionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taskguard_policy_decisions_total",
			Help: "Total policy decisions by outcome and reason",
		}, []string{"outcome", "reason"}),

		DecisionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskguard_policy_decision_duration_seconds",
			Help:    "Duration of policy decisions including membership resolution",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

// ObserveDecision records one decision and how long it took.
func (m *Metrics) ObserveDecision(outcome, reason string, d time.Duration) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(outcome, reason).Inc()
	m.DecisionDuration.Observe(d.Seconds())
}
