// Package officehours loads office schedules.
package officehours

import (
	"context"
	"fmt"
	"sync"

	"aegis/internal/suspicious/models"
	"aegis/pkg/platform/sentinel"
)

type MemoryStore struct {
	mu        sync.RWMutex
	schedules map[string]*models.Schedule
}

func NewMemoryStore(schedules ...*models.Schedule) *MemoryStore {
	s := &MemoryStore{schedules: make(map[string]*models.Schedule)}
	for _, sched := range schedules {
		s.schedules[sched.Office()] = sched
	}
	return s
}

func (s *MemoryStore) Put(sched *models.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sched.Office()] = sched
}

func (s *MemoryStore) Get(_ context.Context, office string) (*models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sched, ok := s.schedules[office]
	if !ok {
		return nil, fmt.Errorf("office %s: %w", office, sentinel.ErrNotFound)
	}
	return sched, nil
}
