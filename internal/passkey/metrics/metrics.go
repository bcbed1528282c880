package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SessionsCreated prometheus.Counter
	Transitions     *prometheus.CounterVec
	Registrations   prometheus.Counter
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "aegis_passkey_pairing_sessions_created_total",
			Help: "Cross-device pairing sessions created",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_passkey_pairing_transitions_total",
			Help: "Pairing session transitions, by target state",
		}, []string{"state"}),
		Registrations: f.NewCounter(prometheus.CounterOpts{
			Name: "aegis_passkey_registrations_total",
			Help: "Passkeys registered",
		}),
	}
}

func (m *Metrics) IncrementCreated() {
	m.SessionsCreated.Inc()
}

func (m *Metrics) IncrementTransition(state string) {
	m.Transitions.WithLabelValues(state).Inc()
}

func (m *Metrics) IncrementRegistration() {
	m.Registrations.Inc()
}
