package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Verifications *prometheus.CounterVec
	Transitions   *prometheus.CounterVec
	Replays       prometheus.Counter
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_mfa_verifications_total",
			Help: "TOTP verifications, by result",
		}, []string{"result"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_mfa_transitions_total",
			Help: "MFA state transitions, by target state",
		}, []string{"state"}),
		Replays: f.NewCounter(prometheus.CounterOpts{
			Name: "aegis_mfa_replays_rejected_total",
			Help: "TOTP codes rejected because their step was already used",
		}),
	}
}

func (m *Metrics) IncrementVerification(result string) {
	m.Verifications.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementTransition(state string) {
	m.Transitions.WithLabelValues(state).Inc()
}

func (m *Metrics) IncrementReplay() {
	m.Replays.Inc()
}
