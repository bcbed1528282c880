// Package credential stores registered passkeys.
package credential

import (
	"context"
	"encoding/base64"
	"fmt"
	"slices"
	"sync"

	"aegis/internal/passkey/models"
	"aegis/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*models.Credential
	order []string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byID: make(map[string]*models.Credential)}
}

func idKey(id []byte) string {
	return base64.RawURLEncoding.EncodeToString(id)
}

func (s *InMemoryStore) Add(_ context.Context, cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := idKey(cred.CredentialID)
	if _, ok := s.byID[k]; ok {
		return fmt.Errorf("passkey credential: %w", sentinel.ErrConflict)
	}
	s.byID[k] = copyCredential(cred)
	s.order = append(s.order, k)
	return nil
}

// Update replaces the stored credential data, used to advance the sign counter.
func (s *InMemoryStore) Update(_ context.Context, cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := idKey(cred.CredentialID)
	if _, ok := s.byID[k]; !ok {
		return fmt.Errorf("passkey credential: %w", sentinel.ErrNotFound)
	}
	s.byID[k] = copyCredential(cred)
	return nil
}

func (s *InMemoryStore) ListBySubject(_ context.Context, subjectID string) ([]*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Credential
	for _, k := range s.order {
		if c := s.byID[k]; c.SubjectID == subjectID {
			out = append(out, copyCredential(c))
		}
	}
	return out, nil
}

func copyCredential(c *models.Credential) *models.Credential {
	out := *c
	out.CredentialID = slices.Clone(c.CredentialID)
	out.Data = slices.Clone(c.Data)
	return &out
}
