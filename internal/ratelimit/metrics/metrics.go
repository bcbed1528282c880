package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RateLimitDenied          *prometheus.CounterVec
	RateLimitAllowed         *prometheus.CounterVec
	RateLimitAuthFailures    prometheus.Counter
	RateLimitAuthLockouts    prometheus.Counter
	RateLimitLockedRejection prometheus.Counter
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers against reg so tests can use a private registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RateLimitDenied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_ratelimit_denied_total",
			Help: "Requests denied by a rate limit policy",
		}, []string{"policy"}),
		RateLimitAllowed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_ratelimit_allowed_total",
			Help: "Requests admitted by a rate limit policy",
		}, []string{"policy"}),
		RateLimitAuthFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "aegis_ratelimit_auth_failures_recorded_total",
			Help: "Total number of credential failures recorded for lockout",
		}),
		RateLimitAuthLockouts: f.NewCounter(prometheus.CounterOpts{
			Name: "aegis_ratelimit_auth_lockouts_total",
			Help: "Total number of lockouts applied",
		}),
		RateLimitLockedRejection: f.NewCounter(prometheus.CounterOpts{
			Name: "aegis_ratelimit_auth_locked_rejections_total",
			Help: "Attempts rejected because the credential was locked",
		}),
	}
}

func (m *Metrics) IncrementDenied(policy string) {
	m.RateLimitDenied.WithLabelValues(policy).Inc()
}

func (m *Metrics) IncrementAllowed(policy string) {
	m.RateLimitAllowed.WithLabelValues(policy).Inc()
}

func (m *Metrics) IncrementAuthFailures() {
	m.RateLimitAuthFailures.Inc()
}

func (m *Metrics) IncrementAuthLockouts() {
	m.RateLimitAuthLockouts.Inc()
}

func (m *Metrics) IncrementLockedRejections() {
	m.RateLimitLockedRejection.Inc()
}
