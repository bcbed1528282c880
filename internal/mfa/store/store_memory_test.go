package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"

	"aegis/internal/mfa/models"
	"aegis/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
}

func (s *InMemoryStoreSuite) TestSaveAndGet() {
	_, err := s.store.Get(s.ctx, "subj-1")
	s.ErrorIs(err, sentinel.ErrNotFound)

	cred := &models.Credential{SubjectID: "subj-1", PendingSecret: []byte("sealed")}
	s.Require().NoError(s.store.Save(s.ctx, cred))
	s.Equal(1, cred.Version)

	got, err := s.store.Get(s.ctx, "subj-1")
	s.Require().NoError(err)
	s.Equal([]byte("sealed"), got.PendingSecret)

	got.PendingSecret[0] = 'X'
	again, _ := s.store.Get(s.ctx, "subj-1")
	s.Equal([]byte("sealed"), again.PendingSecret, "returned values are copies")
}

func (s *InMemoryStoreSuite) TestVersionConflict() {
	s.Require().NoError(s.store.Save(s.ctx, &models.Credential{SubjectID: "subj-1"}))

	s.Run("second insert conflicts", func() {
		err := s.store.Save(s.ctx, &models.Credential{SubjectID: "subj-1"})
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("stale version conflicts", func() {
		a, _ := s.store.Get(s.ctx, "subj-1")
		b, _ := s.store.Get(s.ctx, "subj-1")
		a.Enabled = true
		s.Require().NoError(s.store.Save(s.ctx, a))
		b.ReenrollmentRequired = true
		s.ErrorIs(s.store.Save(s.ctx, b), sentinel.ErrConflict)
	})

	s.Run("concurrent writers, one wins", func() {
		base, _ := s.store.Get(s.ctx, "subj-1")
		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c := *base
				if s.store.Save(s.ctx, &c) == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		s.Equal(int32(1), wins.Load())
	})
}
