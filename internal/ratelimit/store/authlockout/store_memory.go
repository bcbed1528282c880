package authlockout

import (
	"context"
	"sync"
	"time"

	"aegis/internal/ratelimit/models"
)

// InMemoryAuthLockoutStore keeps lockout records in process memory.
type InMemoryAuthLockoutStore struct {
	mu      sync.Mutex
	records map[string]*models.AuthLockout
}

func New() *InMemoryAuthLockoutStore {
	return &InMemoryAuthLockoutStore{records: make(map[string]*models.AuthLockout)}
}

// Get returns a copy of the record, or nil when none exists.
func (s *InMemoryAuthLockoutStore) Get(_ context.Context, identifier string) (*models.AuthLockout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[identifier]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *InMemoryAuthLockoutStore) RecordFailure(_ context.Context, identifier string, window time.Duration, now time.Time) (*models.AuthLockout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[identifier]
	if !ok {
		r = &models.AuthLockout{Identifier: identifier}
		s.records[identifier] = r
	}
	if r.WindowExpired(window, now) && !r.IsLockedAt(now) {
		r.FailureCount = 0
		r.LockedUntil = nil
	}
	r.FailureCount++
	r.LastFailureAt = now

	cp := *r
	return &cp, nil
}

func (s *InMemoryAuthLockoutStore) Update(_ context.Context, record *models.AuthLockout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *record
	s.records[record.Identifier] = &cp
	return nil
}

func (s *InMemoryAuthLockoutStore) Clear(_ context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, identifier)
	return nil
}
