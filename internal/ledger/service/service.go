// Package service implements the tamper-evident audit ledger.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"aegis/internal/ledger/metrics"
	"aegis/internal/ledger/models"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/platform/sentinel"
	"aegis/pkg/requestcontext"
)

// Store persists ledger entries. Append methods seal the entry against the
// chain tail, assign its sequence and anchor its digest as a hash entry in
// one atomic step. Duplicates return sentinel.ErrConflict.
type Store interface {
	InsertHash(ctx context.Context, entry *models.HashEntry) (*models.HashEntry, error)
	GetHash(ctx context.Context, hash models.Hash) (*models.HashEntry, error)
	AppendCriticalEvent(ctx context.Context, event *models.CriticalEvent) (*models.CriticalEvent, error)
	AppendAdminApproval(ctx context.Context, approval *models.AdminApproval) (*models.AdminApproval, error)
	GetCriticalEvent(ctx context.Context, id string) (*models.CriticalEvent, error)
	CriticalEventsBySubject(ctx context.Context, subjectID string) ([]*models.CriticalEvent, error)
	GetAdminApproval(ctx context.Context, approvalID string) (*models.AdminApproval, error)
	ApprovalsBySubject(ctx context.Context, subjectID string) ([]*models.AdminApproval, error)
	ListCriticalEvents(ctx context.Context, after int64, limit int) ([]*models.CriticalEvent, error)
	ListAdminApprovals(ctx context.Context, after int64, limit int) ([]*models.AdminApproval, error)
	Counts(ctx context.Context) (models.Counts, error)
}

// AnchorPublisher emits committed writes. Failures never roll back a write.
type AnchorPublisher interface {
	Publish(ctx context.Context, event models.AnchorEvent) error
}

// DuplicateObserver is notified when a hash submission collides with an
// existing entry.
type DuplicateObserver interface {
	OnDuplicateHash(ctx context.Context, hash models.Hash, eventType string)
}

const chainPageSize = 500

type Service struct {
	store      Store
	publisher  AnchorPublisher
	duplicates DuplicateObserver
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAnchorPublisher(p AnchorPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithDuplicateObserver(o DuplicateObserver) Option {
	return func(s *Service) {
		s.duplicates = o
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("ledger store is required")
	}
	svc := &Service{
		store:  store,
		logger: slog.Default(),
		tracer: otel.Tracer("aegis/ledger"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// SetDuplicateObserver wires the observer after construction; the incident
// workflow depends on the ledger, so it cannot be passed to New.
func (s *Service) SetDuplicateObserver(o DuplicateObserver) {
	s.duplicates = o
}

// RecordHash anchors a fingerprint. A second submission of the same hash is
// rejected and treated as a potential tamper.
func (s *Service) RecordHash(ctx context.Context, hash models.Hash, eventType string) (*models.HashEntry, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.RecordHash", trace.WithAttributes(attribute.String("event_type", eventType)))
	defer span.End()

	if hash.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "hash cannot be zero")
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "event type is required")
	}

	start := time.Now()
	entry, err := s.store.InsertHash(ctx, &models.HashEntry{
		Hash:       hash,
		EventType:  eventType,
		Timestamp:  requestcontext.Now(ctx),
		RecordedBy: requestcontext.Actor(ctx),
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.onDuplicate(ctx, hash, eventType)
			span.SetStatus(codes.Error, "duplicate hash")
			return nil, dErrors.New(dErrors.CodeDuplicateHash, "hash already recorded")
		}
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record hash")
	}
	s.committed(ctx, models.KindHash, start, models.AnchorEvent{
		Kind:      models.KindHash,
		Sequence:  entry.Sequence,
		Timestamp: entry.Timestamp,
		Key:       entry.Hash.String(),
		EventType: entry.EventType,
	})
	return entry, nil
}

// RecordCriticalEvent appends a subject-scoped security event to the chain.
// The actor is taken from the request context.
func (s *Service) RecordCriticalEvent(ctx context.Context, eventType, subjectID string, details map[string]string) (*models.CriticalEvent, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.RecordCriticalEvent", trace.WithAttributes(attribute.String("event_type", eventType)))
	defer span.End()

	eventType = strings.TrimSpace(eventType)
	subjectID = strings.TrimSpace(subjectID)
	if eventType == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "event type is required")
	}
	if subjectID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "subject id is required")
	}

	start := time.Now()
	event, err := s.store.AppendCriticalEvent(ctx, &models.CriticalEvent{
		ID:        uuid.NewString(),
		EventType: eventType,
		SubjectID: subjectID,
		Details:   maps.Clone(details),
		Timestamp: requestcontext.Now(ctx),
		Actor:     requestcontext.Actor(ctx),
	})
	if err != nil {
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record critical event")
	}
	s.committed(ctx, models.KindCriticalEvent, start, models.AnchorEvent{
		Kind:      models.KindCriticalEvent,
		Sequence:  event.Sequence,
		Timestamp: event.Timestamp,
		Key:       event.ID,
		Digest:    event.Digest.String(),
		EventType: event.EventType,
	})
	return event, nil
}

// RecordAdminApproval appends an administrator decision. Approval ids are unique.
func (s *Service) RecordAdminApproval(ctx context.Context, approvalID, eventType, subjectID, approverID string, approved bool, details map[string]string) (*models.AdminApproval, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.RecordAdminApproval", trace.WithAttributes(attribute.String("event_type", eventType)))
	defer span.End()

	approvalID = strings.TrimSpace(approvalID)
	eventType = strings.TrimSpace(eventType)
	approverID = strings.TrimSpace(approverID)
	switch {
	case approvalID == "":
		return nil, dErrors.New(dErrors.CodeValidation, "approval id is required")
	case eventType == "":
		return nil, dErrors.New(dErrors.CodeValidation, "event type is required")
	case approverID == "":
		return nil, dErrors.New(dErrors.CodeValidation, "approver id is required")
	}

	start := time.Now()
	approval, err := s.store.AppendAdminApproval(ctx, &models.AdminApproval{
		ApprovalID: approvalID,
		EventType:  eventType,
		SubjectID:  strings.TrimSpace(subjectID),
		ApproverID: approverID,
		Approved:   approved,
		Details:    maps.Clone(details),
		Timestamp:  requestcontext.Now(ctx),
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "approval already recorded")
		}
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record admin approval")
	}
	s.committed(ctx, models.KindAdminApproval, start, models.AnchorEvent{
		Kind:      models.KindAdminApproval,
		Sequence:  approval.Sequence,
		Timestamp: approval.Timestamp,
		Key:       approval.ApprovalID,
		Digest:    approval.Digest.String(),
		EventType: approval.EventType,
	})
	return approval, nil
}

// VerifyHash reports whether hash is anchored and when.
func (s *Service) VerifyHash(ctx context.Context, hash models.Hash) (*models.HashVerification, error) {
	entry, err := s.store.GetHash(ctx, hash)
	if errors.Is(err, sentinel.ErrNotFound) {
		return &models.HashVerification{}, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify hash")
	}
	return &models.HashVerification{Exists: true, Timestamp: entry.Timestamp}, nil
}

func (s *Service) Counts(ctx context.Context) (models.Counts, error) {
	c, err := s.store.Counts(ctx)
	if err != nil {
		return c, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count ledger entries")
	}
	return c, nil
}

func (s *Service) HashCount(ctx context.Context) (int64, error) {
	c, err := s.Counts(ctx)
	return c.Hashes, err
}

func (s *Service) CriticalEventCount(ctx context.Context) (int64, error) {
	c, err := s.Counts(ctx)
	return c.CriticalEvents, err
}

func (s *Service) ApprovalCount(ctx context.Context) (int64, error) {
	c, err := s.Counts(ctx)
	return c.Approvals, err
}

func (s *Service) CriticalEvent(ctx context.Context, id string) (*models.CriticalEvent, error) {
	event, err := s.store.GetCriticalEvent(ctx, id)
	if err != nil {
		return nil, translateLookup(err, "critical event")
	}
	return event, nil
}

func (s *Service) CriticalEventsBySubject(ctx context.Context, subjectID string) ([]*models.CriticalEvent, error) {
	events, err := s.store.CriticalEventsBySubject(ctx, subjectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list critical events")
	}
	return events, nil
}

func (s *Service) AdminApproval(ctx context.Context, approvalID string) (*models.AdminApproval, error) {
	approval, err := s.store.GetAdminApproval(ctx, approvalID)
	if err != nil {
		return nil, translateLookup(err, "approval")
	}
	return approval, nil
}

func (s *Service) ApprovalsBySubject(ctx context.Context, subjectID string) ([]*models.AdminApproval, error) {
	approvals, err := s.store.ApprovalsBySubject(ctx, subjectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list approvals")
	}
	return approvals, nil
}

// VerifyChain recomputes every digest and link and reports the first break.
// Each entry's digest must also be anchored as a hash entry.
func (s *Service) VerifyChain(ctx context.Context) (*models.ChainReport, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.VerifyChain")
	defer span.End()

	report := &models.ChainReport{Valid: true}

	var prev models.Hash
	for after := int64(0); ; {
		events, err := s.store.ListCriticalEvents(ctx, after, chainPageSize)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read critical events")
		}
		for _, e := range events {
			report.Checked++
			if reason := s.checkLink(ctx, e.PrevDigest, prev, e.Digest, e.ComputeDigest()); reason != "" {
				return s.broken(ctx, span, report, models.KindCriticalEvent, e.Sequence, reason), nil
			}
			prev = e.Digest
			after = e.Sequence
		}
		if len(events) < chainPageSize {
			break
		}
	}

	prev = models.Hash{}
	for after := int64(0); ; {
		approvals, err := s.store.ListAdminApprovals(ctx, after, chainPageSize)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read admin approvals")
		}
		for _, a := range approvals {
			report.Checked++
			if reason := s.checkLink(ctx, a.PrevDigest, prev, a.Digest, a.ComputeDigest()); reason != "" {
				return s.broken(ctx, span, report, models.KindAdminApproval, a.Sequence, reason), nil
			}
			prev = a.Digest
			after = a.Sequence
		}
		if len(approvals) < chainPageSize {
			break
		}
	}
	return report, nil
}

func (s *Service) checkLink(ctx context.Context, storedPrev, expectedPrev, storedDigest, recomputed models.Hash) string {
	if storedPrev != expectedPrev {
		return "previous digest does not match chain"
	}
	if storedDigest != recomputed {
		return "digest does not match content"
	}
	if _, err := s.store.GetHash(ctx, storedDigest); err != nil {
		return "digest is not anchored"
	}
	return ""
}

func (s *Service) broken(ctx context.Context, span trace.Span, report *models.ChainReport, kind string, seq int64, reason string) *models.ChainReport {
	report.Valid = false
	report.BrokenKind = kind
	report.BrokenSequence = seq
	report.Reason = reason
	span.SetStatus(codes.Error, reason)
	if s.metrics != nil {
		s.metrics.IncrementChainBreak()
	}
	s.logger.ErrorContext(ctx, "ledger chain broken", "kind", kind, "sequence", seq, "reason", reason)
	return report
}

func (s *Service) onDuplicate(ctx context.Context, hash models.Hash, eventType string) {
	s.logger.ErrorContext(ctx, "duplicate ledger hash: potential tamper",
		"hash", hash.String(),
		"event_type", eventType,
		"actor", requestcontext.Actor(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncrementDuplicateHash()
	}
	if s.duplicates != nil {
		s.duplicates.OnDuplicateHash(ctx, hash, eventType)
	}
}

func (s *Service) committed(ctx context.Context, kind string, start time.Time, anchor models.AnchorEvent) {
	if s.metrics != nil {
		s.metrics.IncrementRecorded(kind)
		s.metrics.ObserveWrite(kind, time.Since(start).Seconds())
	}
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, anchor); err != nil {
		if s.metrics != nil {
			s.metrics.IncrementAnchorFailure()
		}
		s.logger.WarnContext(ctx, "failed to publish ledger anchor",
			"error", err,
			"kind", anchor.Kind,
			"sequence", anchor.Sequence,
		)
	}
}

func translateLookup(err error, what string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("%s not found", what))
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("failed to get %s", what))
}
