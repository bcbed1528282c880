package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	CodesIssued      *prometheus.CounterVec
	Attempts         *prometheus.CounterVec
	DeliveryFailures prometheus.Counter
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CodesIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_verification_codes_issued_total",
			Help: "Verification codes issued, by purpose",
		}, []string{"purpose"}),
		Attempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_verification_attempts_total",
			Help: "Verification attempts, by purpose and outcome",
		}, []string{"purpose", "outcome"}),
		DeliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "aegis_verification_delivery_failures_total",
			Help: "Codes issued but not delivered",
		}),
	}
}

func (m *Metrics) IncrementIssued(purpose string) {
	m.CodesIssued.WithLabelValues(purpose).Inc()
}

func (m *Metrics) IncrementAttempt(purpose, outcome string) {
	m.Attempts.WithLabelValues(purpose, outcome).Inc()
}

func (m *Metrics) IncrementDeliveryFailure() {
	m.DeliveryFailures.Inc()
}
