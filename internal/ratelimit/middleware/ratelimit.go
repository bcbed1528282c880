// Package middleware exposes rate limit policies as request guards.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"aegis/internal/ratelimit/models"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/platform/guard"
	"aegis/pkg/requestcontext"
)

// Limiter evaluates a named policy for an identity.
type Limiter interface {
	Evaluate(ctx context.Context, policy models.Policy, identity string) (*models.RateLimitResult, error)
}

// KeyFunc derives the rate limit identity from a request. An empty result
// skips the limiter.
type KeyFunc func(r *http.Request) string

// BySubjectOrIP keys by the authenticated subject, falling back to the client IP.
func BySubjectOrIP(r *http.Request) string {
	if subject := requestcontext.SubjectID(r.Context()); subject != "" {
		return subject
	}
	return ByIP(r)
}

// ByIP keys by client IP.
func ByIP(r *http.Request) string {
	if ip := requestcontext.ClientIP(r.Context()); ip != "" {
		return "ip:" + ip
	}
	return ""
}

type Middleware struct {
	limiter  Limiter
	logger   *slog.Logger
	disabled bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for local demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func New(limiter Limiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled && logger != nil {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit returns a guard enforcing policy. Limit headers are set on every
// evaluated request; denials carry Retry-After.
func (m *Middleware) RateLimit(policy models.Policy, keyFn KeyFunc) guard.Guard {
	return guard.Func(func(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
		if m.disabled {
			return r, nil
		}
		identity := keyFn(r)
		if identity == "" {
			return r, nil
		}

		result, err := m.limiter.Evaluate(r.Context(), policy, identity)
		if err != nil {
			if m.logger != nil {
				m.logger.ErrorContext(r.Context(), "failed to check rate limit", "error", err, "policy", policy)
			}
			return nil, err
		}

		addRateLimitHeaders(w, result)
		if !result.Allowed {
			return nil, dErrors.WithRetryAfter(dErrors.CodeRateLimited, "too many requests", time.Duration(result.RetryAfter)*time.Second)
		}
		return r, nil
	})
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
