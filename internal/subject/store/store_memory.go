// Package store resolves subjects by id.
package store

import (
	"context"
	"fmt"
	"sync"

	"aegis/internal/subject/models"
	"aegis/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	subjects map[string]*models.Subject
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{subjects: make(map[string]*models.Subject)}
}

// Put seeds or replaces a subject.
func (s *InMemoryStore) Put(_ context.Context, subject *models.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *subject
	s.subjects[subject.ID] = &cp
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*models.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subject, ok := s.subjects[id]
	if !ok {
		return nil, fmt.Errorf("subject %s: %w", id, sentinel.ErrNotFound)
	}
	cp := *subject
	return &cp, nil
}
