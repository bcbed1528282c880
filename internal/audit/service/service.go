// Package service writes off-ledger audit records and anchors their content
// hash to the ledger.
package service

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"strings"

	"github.com/google/uuid"

	"aegis/internal/audit/metrics"
	"aegis/internal/audit/models"
	ledgerModels "aegis/internal/ledger/models"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/platform/sentinel"
	"aegis/pkg/requestcontext"
)

type Store interface {
	Append(ctx context.Context, rec *models.Record) error
	Get(ctx context.Context, id string) (*models.Record, error)
	ListBySubject(ctx context.Context, subjectID string) ([]*models.Record, error)
}

type Ledger interface {
	RecordHash(ctx context.Context, hash ledgerModels.Hash, eventType string) (*ledgerModels.HashEntry, error)
}

type Service struct {
	store   Store
	ledger  Ledger
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(store Store, ledger Ledger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	if ledger == nil {
		return nil, errors.New("ledger is required")
	}
	svc := &Service{store: store, ledger: ledger, logger: slog.Default()}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Record stores the row, then anchors its hash. When anchoring fails the row
// stays and the call fails. The integrity job then reports it as not logged.
func (s *Service) Record(ctx context.Context, in models.RecordInput) (*models.Record, error) {
	if strings.TrimSpace(in.SubjectID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "subjectId is required")
	}
	if strings.TrimSpace(in.EventType) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "eventType is required")
	}
	metadata := maps.Clone(in.Metadata)
	if metadata == nil {
		metadata = map[string]string{}
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		metadata["request_id"] = requestID
	}

	rec := &models.Record{
		ID:        uuid.NewString(),
		SubjectID: in.SubjectID,
		EventType: in.EventType,
		Field:     in.Field,
		OldValue:  in.OldValue,
		NewValue:  in.NewValue,
		Role:      requestcontext.Role(ctx),
		Metadata:  metadata,
		Timestamp: ledgerModels.NormalizeTime(requestcontext.Now(ctx)),
	}
	rec.Hash = rec.ComputeHash()

	if err := s.store.Append(ctx, rec); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store audit record")
	}
	if s.metrics != nil {
		s.metrics.IncrementRecorded()
	}
	if _, err := s.ledger.RecordHash(ctx, rec.Hash, rec.EventType); err != nil {
		if s.metrics != nil {
			s.metrics.IncrementAnchorFailure()
		}
		s.logger.ErrorContext(ctx, "failed to anchor audit record", "record_id", rec.ID, "error", err)
		if dErrors.HasCode(err, dErrors.CodeDuplicateHash) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to anchor audit record")
	}
	return rec, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Record, error) {
	rec, err := s.store.Get(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "audit record not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to get audit record")
	}
	return rec, nil
}

func (s *Service) ListBySubject(ctx context.Context, subjectID string) ([]*models.Record, error) {
	recs, err := s.store.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit records")
	}
	return recs, nil
}
