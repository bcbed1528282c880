package requestlimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"aegis/internal/ratelimit/config"
	"aegis/internal/ratelimit/metrics"
	"aegis/internal/ratelimit/models"
	"aegis/internal/ratelimit/ports"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/platform/privacy"
	"aegis/pkg/requestcontext"
)

// Type aliases for interfaces from ports package.
type (
	BucketStore       = ports.BucketStore
	ViolationRecorder = ports.ViolationRecorder
)

type Service struct {
	buckets    BucketStore
	violations ViolationRecorder
	logger     *slog.Logger
	config     *config.Config
	metrics    *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithViolationRecorder sets the sink notified on every denial.
func WithViolationRecorder(r ViolationRecorder) Option {
	return func(s *Service) {
		s.violations = r
	}
}

func New(buckets BucketStore, opts ...Option) (*Service, error) {
	if buckets == nil {
		return nil, errors.New("buckets store is required")
	}

	svc := &Service{
		buckets: buckets,
		config:  config.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Allow admits one request for key against an explicit limit.
func (s *Service) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	if key == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "rate limit key is required")
	}
	if limit <= 0 || window <= 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "limit and window must be positive")
	}
	result, err := s.buckets.Allow(ctx, key, limit, window, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check rate limit")
	}
	return result, nil
}

// Evaluate applies a named policy to identity and returns the raw result.
// Unknown policies are denied.
func (s *Service) Evaluate(ctx context.Context, policy models.Policy, identity string) (*models.RateLimitResult, error) {
	limit, ok := s.config.Limit(policy)
	if !ok {
		ports.LogAudit(ctx, s.logger, "rate_limit_config_missing", "policy", policy)
		return nil, dErrors.New(dErrors.CodeInternal, fmt.Sprintf("no limit configured for policy %s", policy))
	}

	now := requestcontext.Now(ctx)
	key := models.NewBucketKey(policy, identity)
	result, err := s.buckets.Allow(ctx, key, limit.Requests, limit.Window, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check rate limit")
	}

	if result.Allowed {
		if s.metrics != nil {
			s.metrics.IncrementAllowed(string(policy))
		}
		return result, nil
	}

	if s.metrics != nil {
		s.metrics.IncrementDenied(string(policy))
	}
	ports.LogAudit(ctx, s.logger, "rate_limit_exceeded",
		"policy", policy,
		"identity", logIdentity(identity),
		"retry_after", result.RetryAfter,
	)
	if s.violations != nil {
		if err := s.violations.RecordViolation(ctx, identity, policy, now); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "failed to record rate limit violation", "error", err, "policy", policy)
		}
	}
	return result, nil
}

// Check applies policy and converts a denial into a RateLimited error that
// carries the retry interval. The message is the same for every identity.
func (s *Service) Check(ctx context.Context, policy models.Policy, identity string) error {
	result, err := s.Evaluate(ctx, policy, identity)
	if err != nil {
		return err
	}
	if !result.Allowed {
		return dErrors.WithRetryAfter(dErrors.CodeRateLimited, "too many requests", time.Duration(result.RetryAfter)*time.Second)
	}
	return nil
}

// Reset clears the bucket for identity under policy.
func (s *Service) Reset(ctx context.Context, policy models.Policy, identity string) error {
	if err := s.buckets.Reset(ctx, models.NewBucketKey(policy, identity)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset rate limit")
	}
	return nil
}

func logIdentity(identity string) string {
	if ip, ok := strings.CutPrefix(identity, "ip:"); ok {
		return "ip:" + privacy.AnonymizeIP(ip)
	}
	return identity
}
