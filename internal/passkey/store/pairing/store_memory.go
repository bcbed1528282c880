// Package pairing stores pairing sessions. Transition is the
// compare-and-set used for every state change.
package pairing

import (
	"context"
	"fmt"
	"sync"

	"aegis/internal/passkey/models"
	"aegis/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*models.Session)}
}

func (s *InMemoryStore) Create(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return fmt.Errorf("pairing session %s: %w", sess.ID, sentinel.ErrConflict)
	}
	s.sessions[sess.ID] = copySession(sess)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("pairing session %s: %w", id, sentinel.ErrNotFound)
	}
	return copySession(sess), nil
}

// Transition replaces the session with next only while its stored state is
// still expected.
func (s *InMemoryStore) Transition(_ context.Context, id string, expected models.State, next *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("pairing session %s: %w", id, sentinel.ErrNotFound)
	}
	if cur.State != expected {
		return fmt.Errorf("pairing session %s is %s: %w", id, cur.State, sentinel.ErrInvalidState)
	}
	s.sessions[id] = copySession(next)
	return nil
}

func copySession(in *models.Session) *models.Session {
	out := *in
	out.Ceremony = append([]byte(nil), in.Ceremony...)
	out.Options = append([]byte(nil), in.Options...)
	return &out
}
