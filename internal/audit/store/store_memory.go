// Package store persists audit records.
package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"aegis/internal/audit/models"
	"aegis/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.Record
	order   []string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*models.Record)}
}

func (s *InMemoryStore) Append(_ context.Context, rec *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		return fmt.Errorf("audit record %s: %w", rec.ID, sentinel.ErrConflict)
	}
	s.records[rec.ID] = rec.Clone()
	s.order = append(s.order, rec.ID)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("audit record %s: %w", id, sentinel.ErrNotFound)
	}
	return rec.Clone(), nil
}

// ListAfter returns up to limit records positioned after the cursor,
// ordered by (Timestamp, ID).
func (s *InMemoryStore) ListAfter(_ context.Context, after models.Cursor, limit int) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Record, 0)
	for _, id := range s.order {
		if rec := s.records[id]; after.Admits(rec) {
			out = append(out, rec.Clone())
		}
	}
	slices.SortFunc(out, models.CompareRecords)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) ListBySubject(_ context.Context, subjectID string) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Record, 0)
	for _, id := range s.order {
		if rec := s.records[id]; rec.SubjectID == subjectID {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (s *InMemoryStore) MarkVerified(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("audit record %s: %w", id, sentinel.ErrNotFound)
	}
	rec.LedgerVerifiedAt = &at
	return nil
}
