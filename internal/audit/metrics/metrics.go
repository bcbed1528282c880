package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Recorded         prometheus.Counter
	AnchorFailures   prometheus.Counter
	IntegrityResults *prometheus.CounterVec
	IntegrityRuns    prometheus.Histogram
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Recorded: f.NewCounter(prometheus.CounterOpts{
			Name: "aegis_audit_records_total",
			Help: "Audit records written",
		}),
		AnchorFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "aegis_audit_anchor_failures_total",
			Help: "Audit records whose hash could not be written to the ledger",
		}),
		IntegrityResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_audit_integrity_results_total",
			Help: "Integrity check outcomes per record",
		}, []string{"outcome"}),
		IntegrityRuns: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "aegis_audit_integrity_run_seconds",
			Help:    "Duration of integrity check runs",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncrementRecorded() {
	m.Recorded.Inc()
}

func (m *Metrics) IncrementAnchorFailure() {
	m.AnchorFailures.Inc()
}

func (m *Metrics) IncrementResult(outcome string) {
	m.IntegrityResults.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRun(seconds float64) {
	m.IntegrityRuns.Observe(seconds)
}
