// Package store holds verification requests keyed by (subject, purpose).
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"aegis/internal/verification/models"
	"aegis/pkg/platform/sentinel"
)

type key struct {
	subject string
	purpose models.Purpose
}

// InMemoryStore serializes every operation on a mutex, which makes Attempt
// linearizable per key.
type InMemoryStore struct {
	mu       sync.Mutex
	requests map[key]*models.Request
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{requests: make(map[key]*models.Request)}
}

// Save replaces any prior request for the same subject and purpose.
func (s *InMemoryStore) Save(_ context.Context, req *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *req
	s.requests[key{req.SubjectID, req.Purpose}] = &cp
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, subjectID string, purpose models.Purpose) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[key{subjectID, purpose}]
	if !ok {
		return nil, fmt.Errorf("verification request: %w", sentinel.ErrNotFound)
	}
	cp := *req
	return &cp, nil
}

func (s *InMemoryStore) Delete(_ context.Context, subjectID string, purpose models.Purpose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requests, key{subjectID, purpose})
	return nil
}

// Attempt checks codeHash against the active request and applies the result
// atomically. A mismatch that reaches maxAttempts deletes the request.
func (s *InMemoryStore) Attempt(_ context.Context, subjectID string, purpose models.Purpose, codeHash string, now time.Time, maxAttempts int) (*models.AttemptResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{subjectID, purpose}
	req, ok := s.requests[k]
	if !ok {
		return nil, fmt.Errorf("verification request: %w", sentinel.ErrNotFound)
	}
	switch {
	case req.Consumed:
		return &models.AttemptResult{Outcome: models.OutcomeAlreadyConsumed, Attempts: req.Attempts}, nil
	case req.IsExpired(now):
		return &models.AttemptResult{Outcome: models.OutcomeExpired, Attempts: req.Attempts}, nil
	case req.Matches(codeHash):
		req.Consumed = true
		return &models.AttemptResult{Outcome: models.OutcomeConsumed, Attempts: req.Attempts}, nil
	}

	req.Attempts++
	if req.Attempts >= maxAttempts {
		delete(s.requests, k)
		return &models.AttemptResult{Outcome: models.OutcomeExhausted, Attempts: req.Attempts}, nil
	}
	return &models.AttemptResult{Outcome: models.OutcomeMismatch, Attempts: req.Attempts}, nil
}
