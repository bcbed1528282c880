// Package service runs the TOTP lifecycle: setup, verification, disable,
// login challenges and re-enrollment after credential changes.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	ledgerModels "aegis/internal/ledger/models"
	"aegis/internal/mfa/metrics"
	"aegis/internal/mfa/models"
	rlModels "aegis/internal/ratelimit/models"
	subjectModels "aegis/internal/subject/models"
	vModels "aegis/internal/verification/models"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/platform/sentinel"
	"aegis/pkg/requestcontext"
)

type Store interface {
	Get(ctx context.Context, subjectID string) (*models.Credential, error)
	Save(ctx context.Context, cred *models.Credential) error
}

// Sealer encrypts secrets at rest, bound to the owning subject.
type Sealer interface {
	Seal(plaintext []byte, subjectID string) ([]byte, error)
	Open(sealed []byte, subjectID string) ([]byte, error)
}

// Verifier is the one-time code engine used for email fallbacks.
type Verifier interface {
	Issue(ctx context.Context, subjectID string, purpose vModels.Purpose) (*vModels.IssueResult, error)
	Verify(ctx context.Context, subjectID string, purpose vModels.Purpose, code string) error
}

type SubjectDirectory interface {
	Get(ctx context.Context, id string) (*subjectModels.Subject, error)
}

type Ledger interface {
	RecordCriticalEvent(ctx context.Context, eventType, subjectID string, details map[string]string) (*ledgerModels.CriticalEvent, error)
}

type RateLimiter interface {
	Check(ctx context.Context, policy rlModels.Policy, identity string) error
}

const (
	EventMFAEnabled      = "mfa_enabled"
	EventMFADisabled     = "mfa_disabled"
	EventMFAReenrollment = "mfa_reenrollment_required"
)

type Config struct {
	Issuer string
	Period uint
	Skew   uint
}

func DefaultConfig() Config {
	return Config{Issuer: "Aegis", Period: 30, Skew: 1}
}

type Service struct {
	store    Store
	sealer   Sealer
	verifier Verifier
	subjects SubjectDirectory
	ledger   Ledger
	limiter  RateLimiter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	config   Config
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

func New(store Store, sealer Sealer, verifier Verifier, subjects SubjectDirectory, ledger Ledger, opts ...Option) (*Service, error) {
	switch {
	case store == nil:
		return nil, errors.New("mfa store is required")
	case sealer == nil:
		return nil, errors.New("secret sealer is required")
	case verifier == nil:
		return nil, errors.New("verifier is required")
	case subjects == nil:
		return nil, errors.New("subject directory is required")
	case ledger == nil:
		return nil, errors.New("ledger is required")
	}
	svc := &Service{
		store:    store,
		sealer:   sealer,
		verifier: verifier,
		subjects: subjects,
		ledger:   ledger,
		logger:   slog.Default(),
		config:   DefaultConfig(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Setup starts enrollment, or re-enrollment when the enabled credential is
// flagged. The secret is returned once and kept sealed as pending.
func (s *Service) Setup(ctx context.Context, subjectID string) (*models.SetupResult, error) {
	subject, err := s.subject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	cred, err := s.load(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if cred.Enabled && !cred.ReenrollmentRequired {
		return nil, dErrors.New(dErrors.CodeInvalidState, "mfa is already enabled")
	}

	account := subject.Email
	if account == "" {
		account = subjectID
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.config.Issuer,
		AccountName: account,
		Period:      s.config.Period,
		SecretSize:  20,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate totp secret")
	}
	sealed, err := s.sealer.Seal([]byte(key.Secret()), subjectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to seal totp secret")
	}

	cred.PendingSecret = sealed
	cred.UpdatedAt = requestcontext.Now(ctx)
	if err := s.save(ctx, cred); err != nil {
		return nil, err
	}
	if !cred.Enabled {
		s.transition(models.StatePendingSetup)
	}
	s.logger.InfoContext(ctx, "mfa setup started", "subject_id", subjectID, "reenrollment", cred.Enabled)
	return &models.SetupResult{Secret: key.Secret(), URI: key.URL()}, nil
}

// Verify checks a TOTP code. A pending secret is promoted on the first
// valid code; otherwise the code acts as a second factor.
func (s *Service) Verify(ctx context.Context, subjectID, code string) (*models.VerifyResult, error) {
	if err := validateCode(code); err != nil {
		return nil, err
	}
	cred, err := s.load(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	if len(cred.PendingSecret) > 0 {
		// A fresh pending secret has no used steps; the floor of the old
		// secret does not apply to it.
		step, err := s.match(cred, cred.PendingSecret, code, now, 0)
		if err != nil {
			return nil, err
		}
		prev := *cred
		cred.Secret, cred.PendingSecret = cred.PendingSecret, nil
		cred.Enabled = true
		cred.EnabledAt = &now
		cred.DisabledAt = nil
		cred.ReenrollmentRequired = false
		cred.LastUsedStep = step
		cred.UpdatedAt = now
		if err := s.save(ctx, cred); err != nil {
			return nil, err
		}
		if _, err := s.ledger.RecordCriticalEvent(ctx, EventMFAEnabled, subjectID, map[string]string{"method": "totp"}); err != nil {
			s.revert(ctx, &prev, cred.Version)
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to anchor mfa enablement")
		}
		s.transition(models.StateEnabled)
		s.logger.InfoContext(ctx, "mfa enabled", "subject_id", subjectID)
		return &models.VerifyResult{State: models.StateEnabled, Promoted: true}, nil
	}

	if !cred.Enabled {
		return nil, dErrors.New(dErrors.CodeInvalidState, "mfa setup has not been started")
	}
	if err := s.useCode(ctx, cred, code, now); err != nil {
		return nil, err
	}
	return &models.VerifyResult{State: models.StateEnabled}, nil
}

// Disable needs a current TOTP code or a completed mfa_disable email code.
func (s *Service) Disable(ctx context.Context, subjectID string, req models.DisableRequest) error {
	totpCode := strings.TrimSpace(req.TOTPCode)
	emailCode := strings.TrimSpace(req.EmailCode)
	if totpCode == "" && emailCode == "" {
		return dErrors.New(dErrors.CodeValidation, "code or emailCode is required")
	}
	cred, err := s.load(ctx, subjectID)
	if err != nil {
		return err
	}
	if !cred.Enabled {
		return dErrors.New(dErrors.CodeInvalidState, "mfa is not enabled")
	}
	now := requestcontext.Now(ctx)
	prev := *cred

	method := "totp"
	if totpCode != "" {
		if err := validateCode(totpCode); err != nil {
			return err
		}
		step, err := s.match(cred, cred.Secret, totpCode, now, cred.LastUsedStep)
		if err != nil {
			return err
		}
		cred.LastUsedStep = step
	} else {
		method = "email"
		if err := s.verifier.Verify(ctx, subjectID, vModels.PurposeMFADisable, emailCode); err != nil {
			return err
		}
	}

	cred.Enabled = false
	cred.Secret = nil
	cred.PendingSecret = nil
	cred.DisabledAt = &now
	cred.ReenrollmentRequired = false
	cred.UpdatedAt = now
	if err := s.save(ctx, cred); err != nil {
		return err
	}
	if _, err := s.ledger.RecordCriticalEvent(ctx, EventMFADisabled, subjectID, map[string]string{"method": method}); err != nil {
		s.revert(ctx, &prev, cred.Version)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to anchor mfa disablement")
	}
	s.transition(models.StateDisabled)
	s.logger.InfoContext(ctx, "mfa disabled", "subject_id", subjectID, "method", method)
	return nil
}

// Challenge picks the login second factor. Accounts scheduled for deletion
// get an emailed code instead of TOTP.
func (s *Service) Challenge(ctx context.Context, subjectID string) (*models.Challenge, error) {
	subject, err := s.subject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if subject.DeletionScheduled() {
		res, err := s.verifier.Issue(ctx, subjectID, vModels.PurposeLogin)
		if res == nil {
			return nil, err
		}
		return &models.Challenge{Method: models.ChallengeEmailOTP, ExpiresAt: res.ExpiresAt}, err
	}
	cred, err := s.load(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if !cred.Enabled {
		return nil, dErrors.New(dErrors.CodeInvalidState, "mfa is not enabled")
	}
	return &models.Challenge{Method: models.ChallengeTOTP}, nil
}

// VerifyChallenge answers the challenge chosen by Challenge.
func (s *Service) VerifyChallenge(ctx context.Context, subjectID, code string) (models.ChallengeMethod, error) {
	subject, err := s.subject(ctx, subjectID)
	if err != nil {
		return "", err
	}
	if subject.DeletionScheduled() {
		if err := s.verifier.Verify(ctx, subjectID, vModels.PurposeLogin, code); err != nil {
			return models.ChallengeEmailOTP, err
		}
		return models.ChallengeEmailOTP, nil
	}
	if err := validateCode(code); err != nil {
		return models.ChallengeTOTP, err
	}
	cred, err := s.load(ctx, subjectID)
	if err != nil {
		return models.ChallengeTOTP, err
	}
	if !cred.Enabled {
		return models.ChallengeTOTP, dErrors.New(dErrors.CodeInvalidState, "mfa is not enabled")
	}
	return models.ChallengeTOTP, s.useCode(ctx, cred, code, requestcontext.Now(ctx))
}

// CredentialChanged flags an enabled credential for re-enrollment after an
// email or password change. MFA stays enabled.
func (s *Service) CredentialChanged(ctx context.Context, subjectID string, kind models.CredentialChange) (*models.Status, error) {
	if !kind.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "kind must be email or password")
	}
	if s.limiter != nil {
		policy := rlModels.PolicyProfileUpdate
		if kind == models.ChangePassword {
			policy = rlModels.PolicyPasswordChange
		}
		if err := s.limiter.Check(ctx, policy, subjectID); err != nil {
			return nil, err
		}
	}
	cred, err := s.load(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if !cred.Enabled || cred.ReenrollmentRequired {
		return cred.Status(), nil
	}
	prev := *cred
	cred.ReenrollmentRequired = true
	cred.UpdatedAt = requestcontext.Now(ctx)
	if err := s.save(ctx, cred); err != nil {
		return nil, err
	}
	if _, err := s.ledger.RecordCriticalEvent(ctx, EventMFAReenrollment, subjectID, map[string]string{"kind": string(kind)}); err != nil {
		s.revert(ctx, &prev, cred.Version)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to anchor re-enrollment flag")
	}
	s.logger.InfoContext(ctx, "mfa re-enrollment required", "subject_id", subjectID, "kind", kind)
	return cred.Status(), nil
}

func (s *Service) Status(ctx context.Context, subjectID string) (*models.Status, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "subject is required")
	}
	cred, err := s.store.Get(ctx, subjectID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return (*models.Credential)(nil).Status(), nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load mfa credential")
	}
	return cred.Status(), nil
}

func (s *Service) useCode(ctx context.Context, cred *models.Credential, code string, now time.Time) error {
	step, err := s.match(cred, cred.Secret, code, now, cred.LastUsedStep)
	if err != nil {
		return err
	}
	cred.LastUsedStep = step
	cred.UpdatedAt = now
	return s.save(ctx, cred)
}

// match opens the sealed secret and returns the time step the code belongs
// to, rejecting steps at or before lastUsed.
func (s *Service) match(cred *models.Credential, sealed []byte, code string, now time.Time, lastUsed int64) (int64, error) {
	raw, err := s.sealer.Open(sealed, cred.SubjectID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to open totp secret")
	}
	secret := string(raw)
	opts := totp.ValidateOpts{Period: s.config.Period, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1}
	period := time.Duration(s.config.Period) * time.Second
	skew := int(s.config.Skew)

	for offset := -skew; offset <= skew; offset++ {
		at := now.Add(time.Duration(offset) * period)
		expected, err := totp.GenerateCodeCustom(secret, at, opts)
		if err != nil {
			return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute totp code")
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) != 1 {
			continue
		}
		step := at.Unix() / int64(s.config.Period)
		if step <= lastUsed {
			s.observe("replay")
			if s.metrics != nil {
				s.metrics.IncrementReplay()
			}
			return 0, dErrors.New(dErrors.CodeInvalidCode, "code already used")
		}
		s.observe("valid")
		return step, nil
	}
	s.observe("invalid")
	return 0, dErrors.New(dErrors.CodeInvalidCode, "invalid code")
}

func (s *Service) load(ctx context.Context, subjectID string) (*models.Credential, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "subject is required")
	}
	cred, err := s.store.Get(ctx, subjectID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return &models.Credential{SubjectID: subjectID}, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load mfa credential")
	}
	return cred, nil
}

func (s *Service) save(ctx context.Context, cred *models.Credential) error {
	if err := s.store.Save(ctx, cred); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.New(dErrors.CodeConflict, "mfa credential was modified concurrently")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save mfa credential")
	}
	return nil
}

// revert writes prev back over an unanchored save at version.
func (s *Service) revert(ctx context.Context, prev *models.Credential, version int) {
	prev.Version = version
	if err := s.store.Save(ctx, prev); err != nil {
		s.logger.ErrorContext(ctx, "failed to revert unanchored mfa change", "subject_id", prev.SubjectID, "error", err)
	}
}

func (s *Service) subject(ctx context.Context, subjectID string) (*subjectModels.Subject, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "subject is required")
	}
	subject, err := s.subjects.Get(ctx, subjectID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "subject not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve subject")
	}
	return subject, nil
}

func (s *Service) observe(result string) {
	if s.metrics != nil {
		s.metrics.IncrementVerification(result)
	}
}

func (s *Service) transition(state models.State) {
	if s.metrics != nil {
		s.metrics.IncrementTransition(string(state))
	}
}

func validateCode(code string) error {
	if len(code) != 6 {
		return dErrors.New(dErrors.CodeValidation, "code must be 6 digits")
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return dErrors.New(dErrors.CodeValidation, "code must be 6 digits")
		}
	}
	return nil
}
