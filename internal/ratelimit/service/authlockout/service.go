package authlockout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"aegis/internal/ratelimit/config"
	"aegis/internal/ratelimit/metrics"
	"aegis/internal/ratelimit/models"
	"aegis/internal/ratelimit/ports"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/requestcontext"
)

// Store is an alias to the shared interface.
type Store = ports.AuthLockoutStore

type Service struct {
	store   Store
	logger  *slog.Logger
	config  *config.AuthLockoutConfig
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithConfig(cfg *config.AuthLockoutConfig) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth lockout store is required")
	}

	defaultCfg := config.DefaultConfig().AuthLockout
	svc := &Service{
		store:  store,
		config: &defaultCfg,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Check returns an AccountLocked error while a lock is in force.
// It runs before any credential comparison.
func (s *Service) Check(ctx context.Context, scope, identifier string) error {
	key := models.NewLockoutKey(scope, identifier).String()
	record, err := s.store.Get(ctx, key)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to get auth lockout record")
	}
	if record == nil {
		return nil
	}

	now := requestcontext.Now(ctx)
	if !record.IsLockedAt(now) {
		return nil
	}
	if s.metrics != nil {
		s.metrics.IncrementLockedRejections()
	}
	return lockedError(*record.LockedUntil, now)
}

// RecordFailure counts one failed attempt and applies the lock once the
// threshold is reached inside the window.
func (s *Service) RecordFailure(ctx context.Context, scope, identifier string) (*models.AuthLockout, error) {
	key := models.NewLockoutKey(scope, identifier).String()
	now := requestcontext.Now(ctx)

	record, err := s.store.RecordFailure(ctx, key, s.config.WindowDuration, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record auth failure")
	}
	if s.metrics != nil {
		s.metrics.IncrementAuthFailures()
	}

	if record.FailureCount >= s.config.MaxFailures && !record.IsLockedAt(now) {
		record.ApplyLock(s.config.LockDuration, now)
		if err := s.store.Update(ctx, record); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to apply auth lockout")
		}
		if s.metrics != nil {
			s.metrics.IncrementAuthLockouts()
		}
		ports.LogAudit(ctx, s.logger, "auth_lockout_triggered",
			"scope", scope,
			"identifier", identifier,
			"failure_count", record.FailureCount,
			"locked_until", record.LockedUntil,
		)
	}
	return record, nil
}

// Clear removes the record after a successful attempt.
func (s *Service) Clear(ctx context.Context, scope, identifier string) error {
	if err := s.store.Clear(ctx, models.NewLockoutKey(scope, identifier).String()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear auth lockout")
	}
	return nil
}

func lockedError(until, now time.Time) error {
	retry := time.Duration(models.RetryAfterSeconds(until, now)) * time.Second
	return dErrors.WithRetryAfter(dErrors.CodeAccountLocked, "account temporarily locked", retry)
}
