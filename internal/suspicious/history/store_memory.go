// Package history keeps the recent failure and rate-limit violation timeline
// per subject.
package history

import (
	"context"
	"slices"
	"sync"
	"time"

	rlModels "aegis/internal/ratelimit/models"
	"aegis/internal/suspicious/models"
)

// Retention bounds how long events are kept. It covers the widest
// evaluation window.
const Retention = models.ViolationWindow

type InMemoryStore struct {
	mu         sync.Mutex
	failures   map[string][]time.Time
	violations map[string][]time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		failures:   make(map[string][]time.Time),
		violations: make(map[string][]time.Time),
	}
}

func (s *InMemoryStore) AddFailure(_ context.Context, subjectID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rlModels.NormalizeIdentity(subjectID)
	s.failures[key] = appendPruned(s.failures[key], at)
	return nil
}

func (s *InMemoryStore) AddViolation(_ context.Context, identity string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rlModels.NormalizeIdentity(identity)
	s.violations[key] = appendPruned(s.violations[key], at)
	return nil
}

func (s *InMemoryStore) Load(_ context.Context, subjectID string, since time.Time) (*models.History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rlModels.NormalizeIdentity(subjectID)
	return &models.History{
		Failures:   after(s.failures[key], since),
		Violations: after(s.violations[key], since),
	}, nil
}

func appendPruned(events []time.Time, at time.Time) []time.Time {
	cutoff := at.Add(-Retention)
	events = slices.DeleteFunc(events, func(t time.Time) bool { return t.Before(cutoff) })
	return append(events, at)
}

func after(events []time.Time, since time.Time) []time.Time {
	out := make([]time.Time, 0, len(events))
	for _, t := range events {
		if !t.Before(since) {
			out = append(out, t)
		}
	}
	return out
}
