// Package store persists tamper incidents with versioned compare-and-set.
package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"aegis/internal/incident/models"
	"aegis/pkg/platform/sentinel"
	pkgstrings "aegis/pkg/platform/strings"
)

type InMemoryStore struct {
	mu        sync.RWMutex
	incidents map[string]*models.Incident
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{incidents: make(map[string]*models.Incident)}
}

// Create stores inc at version 1.
func (s *InMemoryStore) Create(_ context.Context, inc *models.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.incidents[inc.ID]; ok {
		return fmt.Errorf("incident %s: %w", inc.ID, sentinel.ErrConflict)
	}
	inc.Version = 1
	s.incidents[inc.ID] = inc.Clone()
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inc, ok := s.incidents[id]
	if !ok {
		return nil, fmt.Errorf("incident %s: %w", id, sentinel.ErrNotFound)
	}
	return inc.Clone(), nil
}

// Update replaces the stored incident when inc.Version matches, then bumps
// inc.Version.
func (s *InMemoryStore) Update(_ context.Context, inc *models.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.incidents[inc.ID]
	if !ok {
		return fmt.Errorf("incident %s: %w", inc.ID, sentinel.ErrNotFound)
	}
	if cur.Version != inc.Version {
		return fmt.Errorf("incident %s version %d: %w", inc.ID, inc.Version, sentinel.ErrConflict)
	}
	inc.Version++
	s.incidents[inc.ID] = inc.Clone()
	return nil
}

// List returns incidents newest first.
func (s *InMemoryStore) List(_ context.Context, filter models.ListFilter) ([]*models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Incident, 0)
	for _, inc := range s.incidents {
		if filter.Status != "" && inc.Status != filter.Status {
			continue
		}
		if filter.Severity != "" && inc.Severity != filter.Severity {
			continue
		}
		out = append(out, inc.Clone())
	}
	slices.SortFunc(out, func(a, b *models.Incident) int {
		if c := b.DetectedAt.Compare(a.DetectedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *InMemoryStore) Count(_ context.Context, q models.CountQuery) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, inc := range s.incidents {
		if q.Status != "" && inc.Status != q.Status {
			continue
		}
		if q.ContainedOnly && !inc.ContainmentActive {
			continue
		}
		n++
	}
	return n, nil
}

// FindOpenByRefs returns the oldest open incident sharing a ledger ref or
// audit record id.
func (s *InMemoryStore) FindOpenByRefs(_ context.Context, ledgerRefs, auditRecordIDs []string) (*models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *models.Incident
	for _, inc := range s.incidents {
		if !inc.IsOpen() {
			continue
		}
		if !pkgstrings.Intersects(inc.LedgerRefs, ledgerRefs) && !pkgstrings.Intersects(inc.AuditRecordIDs, auditRecordIDs) {
			continue
		}
		if found == nil || inc.DetectedAt.Before(found.DetectedAt) {
			found = inc
		}
	}
	if found == nil {
		return nil, sentinel.ErrNotFound
	}
	return found.Clone(), nil
}

// IsContained reports whether an open, contained incident affects subjectID.
func (s *InMemoryStore) IsContained(_ context.Context, subjectID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inc := range s.incidents {
		if inc.IsOpen() && inc.ContainmentActive && inc.Affects(subjectID) {
			return true, nil
		}
	}
	return false, nil
}
