// Package service issues and validates one-time verification codes.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	ledgerModels "aegis/internal/ledger/models"
	"aegis/internal/notify"
	rlModels "aegis/internal/ratelimit/models"
	subjectModels "aegis/internal/subject/models"
	"aegis/internal/verification/metrics"
	"aegis/internal/verification/models"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/email"
	"aegis/pkg/platform/sentinel"
	"aegis/pkg/requestcontext"
)

// Store holds one request per (subject, purpose). Attempt is the atomic
// compare-and-swap used by Verify.
type Store interface {
	Save(ctx context.Context, req *models.Request) error
	Get(ctx context.Context, subjectID string, purpose models.Purpose) (*models.Request, error)
	Delete(ctx context.Context, subjectID string, purpose models.Purpose) error
	Attempt(ctx context.Context, subjectID string, purpose models.Purpose, codeHash string, now time.Time, maxAttempts int) (*models.AttemptResult, error)
}

type RateLimiter interface {
	Check(ctx context.Context, policy rlModels.Policy, identity string) error
}

type Lockout interface {
	Check(ctx context.Context, scope, identifier string) error
	RecordFailure(ctx context.Context, scope, identifier string) (*rlModels.AuthLockout, error)
	Clear(ctx context.Context, scope, identifier string) error
}

type Notifier interface {
	Send(ctx context.Context, msg notify.Message) error
}

type SubjectDirectory interface {
	Get(ctx context.Context, id string) (*subjectModels.Subject, error)
}

type Ledger interface {
	RecordCriticalEvent(ctx context.Context, eventType, subjectID string, details map[string]string) (*ledgerModels.CriticalEvent, error)
}

// ActivityRecorder feeds failed attempts to the suspicious-activity history.
type ActivityRecorder interface {
	RecordFailure(ctx context.Context, subjectID, purpose string, at time.Time) error
}

const (
	EventVerificationConsumed  = "verification_consumed"
	EventVerificationExhausted = "verification_exhausted"
)

type Config struct {
	DefaultTTL  time.Duration
	TTLs        map[models.Purpose]time.Duration
	MaxAttempts int
}

func DefaultConfig() Config {
	return Config{DefaultTTL: 3 * time.Minute, MaxAttempts: 5}
}

func (c Config) ttl(p models.Purpose) time.Duration {
	if ttl, ok := c.TTLs[p]; ok && ttl > 0 {
		return ttl
	}
	return c.DefaultTTL
}

type Service struct {
	store     Store
	limiter   RateLimiter
	lockout   Lockout
	notifier  Notifier
	subjects  SubjectDirectory
	ledger    Ledger
	activity  ActivityRecorder
	logger    *slog.Logger
	metrics   *metrics.Metrics
	config    Config
	generator func() (string, error)
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithConfig(cfg Config) Option {
	return func(s *Service) { s.config = cfg }
}

func WithRateLimiter(l RateLimiter) Option {
	return func(s *Service) { s.limiter = l }
}

func WithLockout(l Lockout) Option {
	return func(s *Service) { s.lockout = l }
}

func WithActivityRecorder(r ActivityRecorder) Option {
	return func(s *Service) { s.activity = r }
}

// WithCodeGenerator replaces the random generator in tests.
func WithCodeGenerator(fn func() (string, error)) Option {
	return func(s *Service) { s.generator = fn }
}

func New(store Store, notifier Notifier, subjects SubjectDirectory, ledger Ledger, opts ...Option) (*Service, error) {
	switch {
	case store == nil:
		return nil, errors.New("verification store is required")
	case notifier == nil:
		return nil, errors.New("notifier is required")
	case subjects == nil:
		return nil, errors.New("subject directory is required")
	case ledger == nil:
		return nil, errors.New("ledger is required")
	}
	svc := &Service{
		store:     store,
		notifier:  notifier,
		subjects:  subjects,
		ledger:    ledger,
		logger:    slog.Default(),
		config:    DefaultConfig(),
		generator: GenerateCode,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// GenerateCode returns a uniformly random 6-digit code, keeping leading zeros.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", models.CodeLength, n.Int64()), nil
}

// Issue creates a fresh code for (subjectID, purpose), superseding any prior
// one, and delivers it. A delivery failure keeps the code active and returns
// the result along with a DeliveryFailed error.
func (s *Service) Issue(ctx context.Context, subjectID string, purpose models.Purpose) (*models.IssueResult, error) {
	subjectID = strings.TrimSpace(subjectID)
	if err := validate(subjectID, purpose); err != nil {
		return nil, err
	}
	if s.limiter != nil {
		if err := s.limiter.Check(ctx, rlModels.PolicyVerification, subjectID); err != nil {
			return nil, err
		}
	}

	subject, err := s.subjects.Get(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "subject not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve subject")
	}
	destination, ok := email.Normalize(subject.Email)
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "subject has no deliverable address")
	}

	code, err := s.generator()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate code")
	}
	now := requestcontext.Now(ctx)
	req := &models.Request{
		SubjectID: subjectID,
		Purpose:   purpose,
		CodeHash:  models.HashCode(code),
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.ttl(purpose)),
	}
	if err := s.store.Save(ctx, req); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save verification request")
	}
	if s.metrics != nil {
		s.metrics.IncrementIssued(string(purpose))
	}

	result := &models.IssueResult{Code: code, ExpiresAt: req.ExpiresAt}
	err = s.notifier.Send(ctx, notify.Message{
		Destination: destination,
		Recipient:   subject.DisplayName,
		Purpose:     string(purpose),
		Code:        code,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncrementDeliveryFailure()
		}
		s.logger.WarnContext(ctx, "verification code delivery failed",
			"error", err,
			"subject_id", subjectID,
			"purpose", purpose,
		)
		return result, dErrors.Wrap(err, dErrors.CodeDeliveryFailed, "code issued but delivery failed")
	}
	return result, nil
}

// Verify consumes the active code for (subjectID, purpose). A lockout is
// checked before any comparison.
func (s *Service) Verify(ctx context.Context, subjectID string, purpose models.Purpose, code string) error {
	subjectID = strings.TrimSpace(subjectID)
	if err := validate(subjectID, purpose); err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	if !wellFormed(code) {
		return dErrors.New(dErrors.CodeValidation, "code must be 6 digits")
	}

	scope := lockoutScope(purpose)
	if s.lockout != nil {
		if err := s.lockout.Check(ctx, scope, subjectID); err != nil {
			return err
		}
	}

	now := requestcontext.Now(ctx)
	res, err := s.store.Attempt(ctx, subjectID, purpose, models.HashCode(code), now, s.config.MaxAttempts)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.observe(purpose, "not_found")
			return dErrors.New(dErrors.CodeNotFound, "no active verification request")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify code")
	}
	s.observe(purpose, string(res.Outcome))

	switch res.Outcome {
	case models.OutcomeConsumed:
		if s.lockout != nil {
			if err := s.lockout.Clear(ctx, scope, subjectID); err != nil {
				s.logger.WarnContext(ctx, "failed to clear lockout", "error", err, "subject_id", subjectID)
			}
		}
		if _, err := s.ledger.RecordCriticalEvent(ctx, EventVerificationConsumed, subjectID, map[string]string{
			"purpose": string(purpose),
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to anchor verification")
		}
		return nil

	case models.OutcomeExpired:
		return dErrors.New(dErrors.CodeExpired, "verification code expired")

	case models.OutcomeAlreadyConsumed:
		return dErrors.New(dErrors.CodeAlreadyConsumed, "verification code already used")

	case models.OutcomeMismatch:
		if err := s.recordFailure(ctx, scope, subjectID, purpose, now); err != nil {
			return err
		}
		remaining := s.config.MaxAttempts - res.Attempts
		return dErrors.New(dErrors.CodeInvalidCode, fmt.Sprintf("invalid code, %d attempts remaining", remaining))

	case models.OutcomeExhausted:
		if err := s.recordFailure(ctx, scope, subjectID, purpose, now); err != nil {
			return err
		}
		if _, err := s.ledger.RecordCriticalEvent(ctx, EventVerificationExhausted, subjectID, map[string]string{
			"purpose":  string(purpose),
			"attempts": fmt.Sprint(res.Attempts),
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to anchor exhausted verification")
		}
		return dErrors.New(dErrors.CodeInvalidCode, "invalid code, request a new code")
	}
	return dErrors.New(dErrors.CodeInternal, "unexpected verification outcome")
}

// Status reports on the active request without changing it.
func (s *Service) Status(ctx context.Context, subjectID string, purpose models.Purpose) (*models.Status, error) {
	if err := validate(subjectID, purpose); err != nil {
		return nil, err
	}
	req, err := s.store.Get(ctx, subjectID, purpose)
	if errors.Is(err, sentinel.ErrNotFound) {
		return &models.Status{}, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to get verification status")
	}
	if req.Consumed || req.IsExpired(requestcontext.Now(ctx)) {
		return &models.Status{}, nil
	}
	return &models.Status{
		Exists:            true,
		ExpiresAt:         req.ExpiresAt,
		AttemptsRemaining: max(s.config.MaxAttempts-req.Attempts, 0),
	}, nil
}

// Invalidate removes the active request, if any.
func (s *Service) Invalidate(ctx context.Context, subjectID string, purpose models.Purpose) error {
	if err := validate(subjectID, purpose); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, subjectID, purpose); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to invalidate verification request")
	}
	return nil
}

func (s *Service) recordFailure(ctx context.Context, scope, subjectID string, purpose models.Purpose, now time.Time) error {
	if s.lockout != nil {
		if _, err := s.lockout.RecordFailure(ctx, scope, subjectID); err != nil {
			return err
		}
	}
	if s.activity != nil {
		if err := s.activity.RecordFailure(ctx, subjectID, string(purpose), now); err != nil {
			s.logger.WarnContext(ctx, "failed to record activity", "error", err, "subject_id", subjectID)
		}
	}
	return nil
}

func (s *Service) observe(purpose models.Purpose, outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementAttempt(string(purpose), outcome)
	}
}

func validate(subjectID string, purpose models.Purpose) error {
	if strings.TrimSpace(subjectID) == "" {
		return dErrors.New(dErrors.CodeValidation, "subjectId is required")
	}
	if !purpose.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown purpose")
	}
	return nil
}

func wellFormed(code string) bool {
	if len(code) != models.CodeLength {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func lockoutScope(p models.Purpose) string {
	return "verify:" + string(p)
}
