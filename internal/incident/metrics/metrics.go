package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Raised       *prometheus.CounterVec
	Deduplicated prometheus.Counter
	Transitions  *prometheus.CounterVec
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Raised: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_incidents_raised_total",
			Help: "Tamper incidents opened, by severity",
		}, []string{"severity"}),
		Deduplicated: f.NewCounter(prometheus.CounterOpts{
			Name: "aegis_incidents_deduplicated_total",
			Help: "Raise requests folded into an existing open incident",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_incident_transitions_total",
			Help: "Administrative incident actions, by action",
		}, []string{"action"}),
	}
}

func (m *Metrics) IncrementRaised(severity string) {
	m.Raised.WithLabelValues(severity).Inc()
}

func (m *Metrics) IncrementDeduplicated() {
	m.Deduplicated.Inc()
}

func (m *Metrics) IncrementTransition(action string) {
	m.Transitions.WithLabelValues(action).Inc()
}
