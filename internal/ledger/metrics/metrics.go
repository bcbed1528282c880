package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	EntriesRecorded *prometheus.CounterVec
	DuplicateHashes prometheus.Counter
	AnchorFailures  prometheus.Counter
	ChainBreaks     prometheus.Counter
	WriteDuration   *prometheus.HistogramVec
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EntriesRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_ledger_entries_recorded_total",
			Help: "Ledger entries committed, by kind",
		}, []string{"kind"}),
		DuplicateHashes: f.NewCounter(prometheus.CounterOpts{
			Name: "aegis_ledger_duplicate_hash_total",
			Help: "Rejected hash submissions that already existed",
		}),
		AnchorFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "aegis_ledger_anchor_publish_failures_total",
			Help: "Anchor events that could not be published",
		}),
		ChainBreaks: f.NewCounter(prometheus.CounterOpts{
			Name: "aegis_ledger_chain_breaks_total",
			Help: "Chain verifications that found a broken link",
		}),
		WriteDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aegis_ledger_write_duration_seconds",
			Help:    "Time to commit a ledger entry",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"kind"}),
	}
}

func (m *Metrics) IncrementRecorded(kind string) {
	m.EntriesRecorded.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementDuplicateHash() {
	m.DuplicateHashes.Inc()
}

func (m *Metrics) IncrementAnchorFailure() {
	m.AnchorFailures.Inc()
}

func (m *Metrics) IncrementChainBreak() {
	m.ChainBreaks.Inc()
}

func (m *Metrics) ObserveWrite(kind string, seconds float64) {
	m.WriteDuration.WithLabelValues(kind).Observe(seconds)
}
