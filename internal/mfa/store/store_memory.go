// Package store persists MFA credentials with versioned compare-and-set.
package store

import (
	"context"
	"fmt"
	"sync"

	"aegis/internal/mfa/models"
	"aegis/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu    sync.RWMutex
	creds map[string]*models.Credential
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{creds: make(map[string]*models.Credential)}
}

func (s *InMemoryStore) Get(_ context.Context, subjectID string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[subjectID]
	if !ok {
		return nil, fmt.Errorf("mfa credential %s: %w", subjectID, sentinel.ErrNotFound)
	}
	return copyCredential(c), nil
}

// Save writes cred if its Version matches the stored one (0 for a new row)
// and bumps Version on success.
func (s *InMemoryStore) Save(_ context.Context, cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.creds[cred.SubjectID]
	switch {
	case !ok && cred.Version != 0:
		return fmt.Errorf("mfa credential %s: %w", cred.SubjectID, sentinel.ErrNotFound)
	case ok && current.Version != cred.Version:
		return fmt.Errorf("mfa credential %s version %d: %w", cred.SubjectID, cred.Version, sentinel.ErrConflict)
	}
	cred.Version++
	s.creds[cred.SubjectID] = copyCredential(cred)
	return nil
}

func copyCredential(c *models.Credential) *models.Credential {
	out := *c
	out.Secret = append([]byte(nil), c.Secret...)
	out.PendingSecret = append([]byte(nil), c.PendingSecret...)
	if c.EnabledAt != nil {
		t := *c.EnabledAt
		out.EnabledAt = &t
	}
	if c.DisabledAt != nil {
		t := *c.DisabledAt
		out.DisabledAt = &t
	}
	return &out
}
