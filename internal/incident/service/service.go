// Package service runs the tamper incident workflow: new, acknowledged,
// resolved, with containment toggled independently until resolution.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"aegis/internal/incident/metrics"
	"aegis/internal/incident/models"
	ledgerModels "aegis/internal/ledger/models"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/platform/sentinel"
	pkgstrings "aegis/pkg/platform/strings"
	"aegis/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, inc *models.Incident) error
	Get(ctx context.Context, id string) (*models.Incident, error)
	Update(ctx context.Context, inc *models.Incident) error
	List(ctx context.Context, filter models.ListFilter) ([]*models.Incident, error)
	Count(ctx context.Context, q models.CountQuery) (int, error)
	FindOpenByRefs(ctx context.Context, ledgerRefs, auditRecordIDs []string) (*models.Incident, error)
	IsContained(ctx context.Context, subjectID string) (bool, error)
}

type Ledger interface {
	RecordCriticalEvent(ctx context.Context, eventType, subjectID string, details map[string]string) (*ledgerModels.CriticalEvent, error)
}

const (
	EventAcknowledged = "tamper_incident_acknowledged"
	EventContained    = "tamper_incident_contained"
	EventResolved     = "tamper_incident_resolved"

	updateRetries = 3
)

type Service struct {
	store    Store
	ledger   Ledger
	logger   *slog.Logger
	metrics  *metrics.Metrics
	cooldown time.Duration

	alertMu    sync.Mutex
	lastAlerts map[string]time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAlertCooldown sets the minimum gap between operator alerts for the
// same kind of incident.
func WithAlertCooldown(d time.Duration) Option {
	return func(s *Service) { s.cooldown = d }
}

func New(store Store, ledger Ledger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("incident store is required")
	}
	if ledger == nil {
		return nil, errors.New("ledger is required")
	}
	svc := &Service{
		store:      store,
		ledger:     ledger,
		logger:     slog.Default(),
		cooldown:   30 * time.Minute,
		lastAlerts: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Raise opens an incident, or returns the open incident that already
// references one of the same ledger refs or audit records.
func (s *Service) Raise(ctx context.Context, req models.RaiseRequest) (*models.Incident, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "message is required")
	}
	if strings.TrimSpace(req.VerificationStatus) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "verification status is required")
	}
	severity := req.Severity
	if severity == "" {
		severity = models.DefaultSeverity(req.VerificationStatus)
	}
	if !severity.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid severity")
	}
	contained := models.DefaultContainment(req.VerificationStatus)
	if req.Containment != nil {
		contained = *req.Containment
	}
	refs := pkgstrings.NormalizeSet(req.LedgerRefs)
	records := pkgstrings.NormalizeSet(req.AuditRecordIDs)

	if len(refs) > 0 || len(records) > 0 {
		existing, err := s.store.FindOpenByRefs(ctx, refs, records)
		if err == nil {
			if s.metrics != nil {
				s.metrics.IncrementDeduplicated()
			}
			s.logger.InfoContext(ctx, "incident already open for references", "incident_id", existing.ID)
			return existing, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up open incidents")
		}
	}

	inc := &models.Incident{
		ID:                 uuid.NewString(),
		Message:            strings.TrimSpace(req.Message),
		Severity:           severity,
		Status:             models.StatusNew,
		ContainmentActive:  contained,
		VerificationStatus: req.VerificationStatus,
		AffectedSubjectIDs: pkgstrings.NormalizeSet(req.AffectedSubjectIDs),
		LedgerRefs:         refs,
		AuditRecordIDs:     records,
		DetectedAt:         requestcontext.Now(ctx),
	}
	if err := s.store.Create(ctx, inc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create incident")
	}
	if s.metrics != nil {
		s.metrics.IncrementRaised(string(severity))
	}
	s.alert(ctx, inc)
	return inc, nil
}

// alert logs at error level at most once per cooldown for each verification
// status. Suppressed alerts drop to debug.
func (s *Service) alert(ctx context.Context, inc *models.Incident) {
	now := requestcontext.Now(ctx)
	s.alertMu.Lock()
	last, seen := s.lastAlerts[inc.VerificationStatus]
	fire := !seen || now.Sub(last) >= s.cooldown
	if fire {
		s.lastAlerts[inc.VerificationStatus] = now
	}
	s.alertMu.Unlock()

	attrs := []any{
		"incident_id", inc.ID,
		"severity", inc.Severity,
		"verification_status", inc.VerificationStatus,
		"containment_active", inc.ContainmentActive,
	}
	if fire {
		s.logger.ErrorContext(ctx, "tamper incident raised", attrs...)
		return
	}
	s.logger.DebugContext(ctx, "tamper incident raised (alert suppressed)", attrs...)
}

// Acknowledge moves a new incident to acknowledged, optionally setting
// containment.
func (s *Service) Acknowledge(ctx context.Context, id string, containment *bool) (*models.Incident, error) {
	return s.transition(ctx, id, EventAcknowledged, func(inc *models.Incident, now time.Time, actor string) error {
		if inc.Status != models.StatusNew {
			return dErrors.New(dErrors.CodeInvalidState, fmt.Sprintf("incident is already %s", inc.Status))
		}
		inc.Status = models.StatusAcknowledged
		inc.AcknowledgedAt = &now
		inc.AcknowledgedBy = actor
		if containment != nil {
			inc.ContainmentActive = *containment
		}
		return nil
	})
}

// SetContainment toggles containment without changing status.
func (s *Service) SetContainment(ctx context.Context, id string, active bool) (*models.Incident, error) {
	return s.transition(ctx, id, EventContained, func(inc *models.Incident, _ time.Time, _ string) error {
		if inc.Status == models.StatusResolved {
			return dErrors.New(dErrors.CodeInvalidState, "incident is resolved")
		}
		inc.ContainmentActive = active
		return nil
	})
}

// Resolve closes the incident. Containment is forced to the supplied value.
func (s *Service) Resolve(ctx context.Context, id, notes string, containment bool) (*models.Incident, error) {
	return s.transition(ctx, id, EventResolved, func(inc *models.Incident, now time.Time, actor string) error {
		if inc.Status == models.StatusResolved {
			return dErrors.New(dErrors.CodeInvalidState, "incident is already resolved")
		}
		inc.Status = models.StatusResolved
		inc.ContainmentActive = containment
		inc.ResolvedAt = &now
		inc.ResolvedBy = actor
		inc.ResolutionNotes = strings.TrimSpace(notes)
		return nil
	})
}

// transition applies mutate under compare-and-set, retrying on version
// conflicts, then anchors the action. A ledger failure restores the prior
// state and fails the call.
func (s *Service) transition(ctx context.Context, id, event string, mutate func(*models.Incident, time.Time, string) error) (*models.Incident, error) {
	now := requestcontext.Now(ctx)
	actor := requestcontext.Actor(ctx)
	for range updateRetries {
		inc, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		prev := inc.Clone()
		if err := mutate(inc, now, actor); err != nil {
			return nil, err
		}
		err = s.store.Update(ctx, inc)
		if errors.Is(err, sentinel.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update incident")
		}

		if _, err := s.ledger.RecordCriticalEvent(ctx, event, inc.ID, map[string]string{
			"status":             string(inc.Status),
			"containment_active": strconv.FormatBool(inc.ContainmentActive),
			"actor":              actor,
		}); err != nil {
			s.restore(ctx, prev, inc.Version)
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to anchor incident action")
		}
		if s.metrics != nil {
			s.metrics.IncrementTransition(event)
		}
		s.logger.InfoContext(ctx, "incident updated",
			"incident_id", inc.ID,
			"event", event,
			"status", inc.Status,
			"containment_active", inc.ContainmentActive,
		)
		return inc, nil
	}
	return nil, dErrors.New(dErrors.CodeConflict, "incident was modified concurrently")
}

// restore writes prev back over an unanchored update at version.
func (s *Service) restore(ctx context.Context, prev *models.Incident, version int) {
	prev.Version = version
	if err := s.store.Update(ctx, prev); err != nil {
		s.logger.ErrorContext(ctx, "failed to restore unanchored incident update",
			"incident_id", prev.ID,
			"error", err,
		)
	}
}

func (s *Service) Get(ctx context.Context, id string) (*models.Incident, error) {
	return s.get(ctx, id)
}

func (s *Service) get(ctx context.Context, id string) (*models.Incident, error) {
	inc, err := s.store.Get(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "incident not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to get incident")
	}
	return inc, nil
}

func (s *Service) List(ctx context.Context, filter models.ListFilter) ([]*models.Incident, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid status filter")
	}
	if filter.Severity != "" && !filter.Severity.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid severity filter")
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = models.DefaultListLimit
	case filter.Limit > models.MaxListLimit:
		filter.Limit = models.MaxListLimit
	}
	out, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list incidents")
	}
	return out, nil
}

// Stats counts incidents by status and containment concurrently.
func (s *Service) Stats(ctx context.Context) (*models.Stats, error) {
	var stats models.Stats
	queries := []struct {
		q   models.CountQuery
		dst *int
	}{
		{models.CountQuery{}, &stats.Total},
		{models.CountQuery{Status: models.StatusNew}, &stats.New},
		{models.CountQuery{Status: models.StatusAcknowledged}, &stats.Acknowledged},
		{models.CountQuery{Status: models.StatusResolved}, &stats.Resolved},
		{models.CountQuery{ContainedOnly: true}, &stats.ContainmentActive},
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, query := range queries {
		g.Go(func() error {
			n, err := s.store.Count(gctx, query.q)
			if err != nil {
				return err
			}
			*query.dst = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count incidents")
	}
	return &stats, nil
}

// IsContained reports whether subjectID is under an open, contained incident.
func (s *Service) IsContained(ctx context.Context, subjectID string) (bool, error) {
	if subjectID == "" {
		return false, nil
	}
	contained, err := s.store.IsContained(ctx, subjectID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check containment")
	}
	return contained, nil
}
