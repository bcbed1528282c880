// Package service coordinates cross-device passkey pairing. Device A opens a
// session and polls it; Device B runs the WebAuthn assertion and approves or
// denies. All state changes go through the store's compare-and-set.
package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ledgerModels "aegis/internal/ledger/models"
	"aegis/internal/passkey/ceremony"
	"aegis/internal/passkey/metrics"
	"aegis/internal/passkey/models"
	rlModels "aegis/internal/ratelimit/models"
	subjectModels "aegis/internal/subject/models"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/platform/sentinel"
	"aegis/pkg/requestcontext"
)

type PairingStore interface {
	Create(ctx context.Context, sess *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Transition(ctx context.Context, id string, expected models.State, next *models.Session) error
}

// AssertionVerifier runs the discoverable-login half of the ceremony.
type AssertionVerifier interface {
	BeginAssertion(ctx context.Context) (options, session []byte, err error)
	VerifyAssertion(ctx context.Context, session, assertion []byte) (string, error)
}

type Registrar interface {
	BeginRegistration(ctx context.Context, subjectID, name string) (options, session []byte, err error)
	FinishRegistration(ctx context.Context, subjectID string, session, response []byte) (*models.Credential, error)
}

type RateLimiter interface {
	Check(ctx context.Context, policy rlModels.Policy, identity string) error
}

type Ledger interface {
	RecordCriticalEvent(ctx context.Context, eventType, subjectID string, details map[string]string) (*ledgerModels.CriticalEvent, error)
}

type SubjectDirectory interface {
	Get(ctx context.Context, id string) (*subjectModels.Subject, error)
}

const (
	EventPairingApproved   = "passkey_pairing_approved"
	EventPasskeyRegistered = "passkey_registered"

	registrationPrefix = "reg:"
	transitionRetries  = 3
)

type Service struct {
	store     PairingStore
	verifier  AssertionVerifier
	registrar Registrar
	limiter   RateLimiter
	ledger    Ledger
	subjects  SubjectDirectory
	logger    *slog.Logger
	metrics   *metrics.Metrics
	ttl       time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithRateLimiter(l RateLimiter) Option {
	return func(s *Service) { s.limiter = l }
}

// WithRegistrar enables passkey registration for authenticated subjects.
func WithRegistrar(r Registrar) Option {
	return func(s *Service) { s.registrar = r }
}

// WithSubjects supplies account names for registration prompts.
func WithSubjects(d SubjectDirectory) Option {
	return func(s *Service) { s.subjects = d }
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func New(store PairingStore, verifier AssertionVerifier, ledger Ledger, opts ...Option) (*Service, error) {
	switch {
	case store == nil:
		return nil, errors.New("pairing store is required")
	case verifier == nil:
		return nil, errors.New("assertion verifier is required")
	case ledger == nil:
		return nil, errors.New("ledger is required")
	}
	svc := &Service{
		store:    store,
		verifier: verifier,
		ledger:   ledger,
		logger:   slog.Default(),
		ttl:      2 * time.Minute,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CreateSession is called unauthenticated by Device A and is limited per
// client IP.
func (s *Service) CreateSession(ctx context.Context) (*models.Session, error) {
	if s.limiter != nil {
		ip := requestcontext.ClientIP(ctx)
		if ip == "" {
			ip = "unknown"
		}
		if err := s.limiter.Check(ctx, rlModels.PolicyPairing, "ip:"+ip); err != nil {
			return nil, err
		}
	}
	id, err := newSessionID()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate session id")
	}
	now := requestcontext.Now(ctx)
	sess := &models.Session{
		ID:               id,
		State:            models.StatePending,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.ttl),
		DeviceAInitiated: true,
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create pairing session")
	}
	if s.metrics != nil {
		s.metrics.IncrementCreated()
	}
	return sess, nil
}

// BeginAuthentication hands Device B the assertion options. Repeating the
// call while authenticating returns the same options.
func (s *Service) BeginAuthentication(ctx context.Context, id string) (json.RawMessage, error) {
	for range transitionRetries {
		sess, err := s.pairing(ctx, id)
		if err != nil {
			return nil, err
		}
		switch sess.State {
		case models.StateExpired:
			return nil, expiredError()
		case models.StateApproved, models.StateDenied:
			return nil, dErrors.New(dErrors.CodeInvalidState, "pairing session is already finalized")
		case models.StateAuthenticating:
			return json.RawMessage(sess.Options), nil
		}

		options, session, err := s.verifier.BeginAssertion(ctx)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to begin assertion")
		}
		next := *sess
		next.State = models.StateAuthenticating
		next.Options = options
		next.Ceremony = session
		err = s.store.Transition(ctx, id, models.StatePending, &next)
		if errors.Is(err, sentinel.ErrInvalidState) {
			continue
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update pairing session")
		}
		s.transitioned(models.StateAuthenticating)
		return json.RawMessage(options), nil
	}
	return nil, dErrors.New(dErrors.CodeConflict, "pairing session changed concurrently")
}

// Approve validates Device B's assertion and binds the session to the
// authenticated subject. Only the first terminal transition wins.
func (s *Service) Approve(ctx context.Context, id string, assertion []byte) (string, error) {
	sess, err := s.pairing(ctx, id)
	if err != nil {
		return "", err
	}
	switch sess.State {
	case models.StateExpired:
		return "", expiredError()
	case models.StateApproved, models.StateDenied:
		return "", finalizedError()
	case models.StatePending:
		return "", dErrors.New(dErrors.CodeInvalidState, "authentication has not begun")
	}
	if len(assertion) == 0 {
		return "", dErrors.New(dErrors.CodeValidation, "assertion is required")
	}

	userID, err := s.verifier.VerifyAssertion(ctx, sess.Ceremony, assertion)
	if err != nil {
		if errors.Is(err, ceremony.ErrInvalidAssertion) {
			s.logger.WarnContext(ctx, "passkey assertion rejected", "session_id", id, "error", err)
			return "", dErrors.New(dErrors.CodeInvalidAssertion, "assertion could not be verified")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify assertion")
	}
	if requestcontext.Now(ctx).After(sess.ExpiresAt) {
		s.expire(ctx, sess)
		return "", expiredError()
	}

	// The approval claims the terminal transition first but stays hidden
	// from Device A until the ledger has it.
	claimed := *sess
	claimed.State = models.StateApproved
	claimed.ResultUserID = userID
	if err := s.store.Transition(ctx, id, models.StateAuthenticating, &claimed); err != nil {
		return "", s.lostRace(ctx, id, err)
	}

	if _, err := s.ledger.RecordCriticalEvent(ctx, EventPairingApproved, userID, map[string]string{"session_id": id}); err != nil {
		if rerr := s.store.Transition(ctx, id, models.StateApproved, sess); rerr != nil {
			s.logger.ErrorContext(ctx, "failed to release unanchored pairing approval", "session_id", id, "error", rerr)
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to anchor pairing approval")
	}

	approved := claimed
	approved.Ceremony = nil
	approved.Anchored = true
	if err := s.store.Transition(ctx, id, models.StateApproved, &approved); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to publish pairing approval")
	}
	s.transitioned(models.StateApproved)
	s.logger.InfoContext(ctx, "passkey pairing approved", "session_id", id, "subject_id", userID)
	return userID, nil
}

func (s *Service) Deny(ctx context.Context, id string) error {
	for range transitionRetries {
		sess, err := s.pairing(ctx, id)
		if err != nil {
			return err
		}
		switch sess.State {
		case models.StateExpired:
			return expiredError()
		case models.StateApproved, models.StateDenied:
			return finalizedError()
		}
		next := *sess
		next.State = models.StateDenied
		next.Ceremony = nil
		err = s.store.Transition(ctx, id, sess.State, &next)
		if errors.Is(err, sentinel.ErrInvalidState) {
			continue
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update pairing session")
		}
		s.transitioned(models.StateDenied)
		s.logger.InfoContext(ctx, "passkey pairing denied", "session_id", id)
		return nil
	}
	return finalizedError()
}

// Status is what Device A polls. The result user is only visible once
// approved.
func (s *Service) Status(ctx context.Context, id string) (*models.Status, error) {
	sess, err := s.pairing(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.State == models.StateExpired {
		return nil, expiredError()
	}
	if sess.State == models.StateApproved && !sess.Anchored && requestcontext.Now(ctx).After(sess.ExpiresAt) {
		return nil, expiredError()
	}
	return sess.Status(), nil
}

// RegistrationChallenge is returned by BeginRegistration. ID must be echoed
// back to FinishRegistration.
type RegistrationChallenge struct {
	ID        string          `json:"registration_id"`
	Options   json.RawMessage `json:"options"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// BeginRegistration parks the WebAuthn registration ceremony in the pairing
// store so finishing is single-use and bounded by the same TTL.
func (s *Service) BeginRegistration(ctx context.Context, subjectID string) (*RegistrationChallenge, error) {
	if s.registrar == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "passkey registration is not configured")
	}
	if subjectID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	name := subjectID
	if s.subjects != nil {
		if subject, err := s.subjects.Get(ctx, subjectID); err == nil && subject.Email != "" {
			name = subject.Email
		}
	}
	options, session, err := s.registrar.BeginRegistration(ctx, subjectID, name)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to begin registration")
	}
	id, err := newSessionID()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate registration id")
	}
	now := requestcontext.Now(ctx)
	sess := &models.Session{
		ID:           registrationPrefix + id,
		State:        models.StatePending,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
		ResultUserID: subjectID,
		Ceremony:     session,
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store registration ceremony")
	}
	return &RegistrationChallenge{ID: sess.ID, Options: options, ExpiresAt: sess.ExpiresAt}, nil
}

func (s *Service) FinishRegistration(ctx context.Context, subjectID, registrationID string, response []byte) (*models.Credential, error) {
	if s.registrar == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "passkey registration is not configured")
	}
	if !strings.HasPrefix(registrationID, registrationPrefix) {
		return nil, dErrors.New(dErrors.CodeNotFound, "registration not found")
	}
	sess, err := s.current(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if sess.ResultUserID != subjectID {
		return nil, dErrors.New(dErrors.CodeNotFound, "registration not found")
	}
	switch sess.State {
	case models.StateExpired:
		return nil, expiredError()
	case models.StatePending:
	default:
		return nil, finalizedError()
	}

	next := *sess
	next.State = models.StateApproved
	next.Ceremony = nil
	if err := s.store.Transition(ctx, registrationID, models.StatePending, &next); err != nil {
		return nil, s.lostRace(ctx, registrationID, err)
	}

	cred, err := s.registrar.FinishRegistration(ctx, subjectID, sess.Ceremony, response)
	switch {
	case errors.Is(err, ceremony.ErrInvalidAssertion):
		return nil, dErrors.New(dErrors.CodeInvalidAssertion, "registration response could not be verified")
	case errors.Is(err, sentinel.ErrConflict):
		return nil, dErrors.New(dErrors.CodeConflict, "passkey already registered")
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to finish registration")
	}
	if s.metrics != nil {
		s.metrics.IncrementRegistration()
	}
	if _, err := s.ledger.RecordCriticalEvent(ctx, EventPasskeyRegistered, subjectID, map[string]string{
		"credential_id": base64.RawURLEncoding.EncodeToString(cred.CredentialID),
	}); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to anchor passkey registration")
	}
	return cred, nil
}

// pairing loads a Device A session; registration ceremonies are not
// addressable through the pairing endpoints.
func (s *Service) pairing(ctx context.Context, id string) (*models.Session, error) {
	if strings.HasPrefix(id, registrationPrefix) {
		return nil, dErrors.New(dErrors.CodeNotFound, "pairing session not found")
	}
	return s.current(ctx, id)
}

// current loads a session and persists lazy expiry.
func (s *Service) current(ctx context.Context, id string) (*models.Session, error) {
	if id == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "sessionId is required")
	}
	sess, err := s.store.Get(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "pairing session not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load pairing session")
	}
	if sess.IsExpired(requestcontext.Now(ctx)) {
		return s.expire(ctx, sess), nil
	}
	return sess, nil
}

// expire marks sess expired. Losing the race to another writer is fine; the
// caller sees the expired view either way since the TTL has passed.
func (s *Service) expire(ctx context.Context, sess *models.Session) *models.Session {
	next := *sess
	next.State = models.StateExpired
	next.Ceremony = nil
	err := s.store.Transition(ctx, sess.ID, sess.State, &next)
	switch {
	case err == nil:
		s.transitioned(models.StateExpired)
	case errors.Is(err, sentinel.ErrInvalidState):
		if latest, getErr := s.store.Get(ctx, sess.ID); getErr == nil && latest.State.IsTerminal() {
			return latest
		}
	default:
		s.logger.WarnContext(ctx, "failed to persist pairing expiry", "session_id", sess.ID, "error", err)
	}
	return &next
}

func (s *Service) lostRace(ctx context.Context, id string, err error) error {
	if !errors.Is(err, sentinel.ErrInvalidState) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update pairing session")
	}
	if latest, getErr := s.store.Get(ctx, id); getErr == nil && latest.State == models.StateExpired {
		return expiredError()
	}
	return finalizedError()
}

func (s *Service) transitioned(state models.State) {
	if s.metrics != nil {
		s.metrics.IncrementTransition(string(state))
	}
}

func expiredError() error {
	return dErrors.New(dErrors.CodeExpired, "pairing session expired")
}

func finalizedError() error {
	return dErrors.New(dErrors.CodeAlreadyFinalized, "pairing session already finalized")
}

func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
