package pairing

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"aegis/internal/passkey/models"
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
	now := time.Now()
	s.Require().NoError(s.store.Create(s.ctx, &models.Session{
		ID: "sess-1", State: models.StatePending, CreatedAt: now, ExpiresAt: now.Add(2 * time.Minute),
	}))
}

func (s *InMemoryStoreSuite) TestCreateRejectsDuplicate() {
	err := s.store.Create(s.ctx, &models.Session{ID: "sess-1", State: models.StatePending})
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *InMemoryStoreSuite) TestGetMissing() {
	_, err := s.store.Get(s.ctx, "nope")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestTransition() {
	cur, err := s.store.Get(s.ctx, "sess-1")
	s.Require().NoError(err)

	cur.State = models.StateAuthenticating
	cur.Ceremony = []byte(`{"challenge":"abc"}`)
	s.Require().NoError(s.store.Transition(s.ctx, "sess-1", models.StatePending, cur))

	s.Run("stale expectation fails", func() {
		next := *cur
		next.State = models.StateDenied
		err := s.store.Transition(s.ctx, "sess-1", models.StatePending, &next)
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("payload persisted", func() {
		got, err := s.store.Get(s.ctx, "sess-1")
		s.Require().NoError(err)
		s.Equal(models.StateAuthenticating, got.State)
		s.JSONEq(`{"challenge":"abc"}`, string(got.Ceremony))
	})
}

func (s *InMemoryStoreSuite) TestOnlyOneTerminalTransitionWins() {
	cur, _ := s.store.Get(s.ctx, "sess-1")
	cur.State = models.StateAuthenticating
	s.Require().NoError(s.store.Transition(s.ctx, "sess-1", models.StatePending, cur))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := *cur
			next.State = models.StateDenied
			if i%2 == 0 {
				next.State = models.StateApproved
			}
			if s.store.Transition(s.ctx, "sess-1", models.StateAuthenticating, &next) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
}
