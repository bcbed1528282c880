// Package service assesses account activity against office hours and recent
// failure history. Assessments are advisory and never block a request.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mssola/useragent"

	incidentModels "aegis/internal/incident/models"
	rlModels "aegis/internal/ratelimit/models"
	"aegis/internal/ratelimit/ports"
	"aegis/internal/suspicious/models"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/platform/sentinel"
	"aegis/pkg/requestcontext"
)

type ScheduleStore interface {
	Get(ctx context.Context, office string) (*models.Schedule, error)
}

type HistoryStore interface {
	AddFailure(ctx context.Context, subjectID string, at time.Time) error
	AddViolation(ctx context.Context, identity string, at time.Time) error
	Load(ctx context.Context, subjectID string, since time.Time) (*models.History, error)
}

type IncidentRaiser interface {
	Raise(ctx context.Context, req incidentModels.RaiseRequest) (*incidentModels.Incident, error)
}

const minUserAgentLength = 10

type Service struct {
	schedules ScheduleStore
	history   HistoryStore
	incidents IncidentRaiser
	location  *time.Location
	logger    *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithIncidentRaiser opens an incident for every suspicious assessment.
func WithIncidentRaiser(r IncidentRaiser) Option {
	return func(s *Service) { s.incidents = r }
}

// WithDefaultLocation sets the zone used for offices without a schedule.
func WithDefaultLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

func New(schedules ScheduleStore, history HistoryStore, opts ...Option) (*Service, error) {
	if schedules == nil {
		return nil, errors.New("schedule store is required")
	}
	if history == nil {
		return nil, errors.New("history store is required")
	}
	svc := &Service{
		schedules: schedules,
		history:   history,
		location:  time.UTC,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Assess loads the office schedule and recent history for the subject and
// evaluates the request.
func (s *Service) Assess(ctx context.Context, req models.AssessRequest) (*models.Assessment, error) {
	if strings.TrimSpace(req.SubjectID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "subjectId is required")
	}
	at := req.At
	if at.IsZero() {
		at = requestcontext.Now(ctx)
	}

	schedule, err := s.schedule(ctx, req.Office)
	if err != nil {
		return nil, err
	}
	history, err := s.history.Load(ctx, req.SubjectID, at.Add(-models.ViolationWindow))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load activity history")
	}

	assessment := models.Evaluate(schedule, at, *history)
	if suspiciousUserAgent(req.UserAgent) {
		assessment.Reasons = append(assessment.Reasons, models.ReasonSuspiciousAgent)
		assessment.Suspicious = true
	}
	if !assessment.Suspicious {
		return &assessment, nil
	}

	ports.LogAudit(ctx, s.logger, "suspicious_activity",
		"subject_id", req.SubjectID,
		"office", req.Office,
		"reasons", strings.Join(assessment.Reasons, ","),
	)
	if s.incidents != nil {
		inc, err := s.incidents.Raise(ctx, incidentModels.RaiseRequest{
			Message:            "suspicious activity: " + strings.Join(assessment.Reasons, ", "),
			Severity:           incidentModels.SeverityMedium,
			VerificationStatus: incidentModels.VerificationSuspicious,
			AffectedSubjectIDs: []string{req.SubjectID},
		})
		if err != nil {
			// Advisory path: the assessment is still returned.
			s.logger.ErrorContext(ctx, "failed to raise suspicious activity incident", "error", err, "subject_id", req.SubjectID)
		} else {
			assessment.IncidentID = inc.ID
		}
	}
	return &assessment, nil
}

func (s *Service) schedule(ctx context.Context, office string) (*models.Schedule, error) {
	if office == "" {
		return models.DefaultSchedule("", s.location), nil
	}
	schedule, err := s.schedules.Get(ctx, office)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.DefaultSchedule(office, s.location), nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("failed to load office hours for %s", office))
	}
	return schedule, nil
}

// RecordFailure stores a failed verification or recovery attempt.
func (s *Service) RecordFailure(ctx context.Context, subjectID, purpose string, at time.Time) error {
	if err := s.history.AddFailure(ctx, subjectID, at); err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "activity failure recorded", "subject_id", subjectID, "purpose", purpose)
	return nil
}

// RecordViolation stores a rate-limit denial for the limited identity.
func (s *Service) RecordViolation(ctx context.Context, identity string, policy rlModels.Policy, at time.Time) error {
	if err := s.history.AddViolation(ctx, identity, at); err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "rate limit violation recorded", "identity", identity, "policy", string(policy))
	return nil
}

func suspiciousUserAgent(raw string) bool {
	raw = strings.TrimSpace(raw)
	if len(raw) < minUserAgentLength {
		return true
	}
	return useragent.New(raw).Bot()
}
