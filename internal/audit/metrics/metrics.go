package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks how many audit records land in the trail and how many are lost.
type Metrics struct {
	RecordsTotal   *prometheus.CounterVec
	FailuresTotal  *prometheus.CounterVec
	ExportsDropped prometheus.Counter
	BreakerOpen    prometheus.Gauge
}

// New registers the audit metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RecordsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taskguard_audit_records_total",
			Help: "Audit records appended to the trail, by category",
		}, []string{"category"}),
		FailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taskguard_audit_record_failures_total",
			Help: "Audit records that could not be persisted, by reason",
		}, []string{"reason"}),
		ExportsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "taskguard_audit_exports_dropped_total",
			Help: "Persisted audit records that were not handed to the export sink",
		}),
		BreakerOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "taskguard_audit_store_breaker_open",
			Help: "1 while the audit store circuit breaker is open",
		}),
	}
}

func (m *Metrics) IncrementRecorded(category string) {
	m.RecordsTotal.WithLabelValues(category).Inc()
}

func (m *Metrics) IncrementFailure(reason string) {
	m.FailuresTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementExportDropped() {
	m.ExportsDropped.Inc()
}

func (m *Metrics) SetBreakerOpen(open bool) {
	if open {
		m.BreakerOpen.Set(1)
		return
	}
	m.BreakerOpen.Set(0)
}
