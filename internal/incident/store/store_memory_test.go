package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"aegis/internal/incident/models"
	"aegis/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	now   time.Time
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.now = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
}

func (s *MemoryStoreSuite) create(id string, offset time.Duration, mutate func(*models.Incident)) *models.Incident {
	inc := &models.Incident{
		ID:         id,
		Message:    "m",
		Severity:   models.SeverityMedium,
		Status:     models.StatusNew,
		DetectedAt: s.now.Add(offset),
	}
	if mutate != nil {
		mutate(inc)
	}
	s.Require().NoError(s.store.Create(context.Background(), inc))
	return inc
}

func (s *MemoryStoreSuite) TestCreateAndGet() {
	inc := s.create("a", 0, nil)
	s.Equal(1, inc.Version)
	s.ErrorIs(s.store.Create(context.Background(), &models.Incident{ID: "a"}), sentinel.ErrConflict)

	got, err := s.store.Get(context.Background(), "a")
	s.Require().NoError(err)
	s.Equal("m", got.Message)

	_, err = s.store.Get(context.Background(), "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestUpdateIsVersioned() {
	ctx := context.Background()
	s.create("a", 0, nil)

	const writers = 20
	var wins atomic.Int32
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inc, err := s.store.Get(ctx, "a")
			if err != nil {
				return
			}
			inc.Status = models.StatusAcknowledged
			err = s.store.Update(ctx, inc)
			if err == nil {
				wins.Add(1)
				return
			}
			s.True(errors.Is(err, sentinel.ErrConflict))
		}()
	}
	wg.Wait()
	s.GreaterOrEqual(wins.Load(), int32(1))

	got, err := s.store.Get(ctx, "a")
	s.Require().NoError(err)
	s.Equal(int(wins.Load())+1, got.Version)
}

func (s *MemoryStoreSuite) TestListOrderAndFilter() {
	s.create("old", -time.Hour, nil)
	s.create("new", 0, func(i *models.Incident) { i.Severity = models.SeverityHigh })
	s.create("done", -time.Minute, func(i *models.Incident) { i.Status = models.StatusResolved })

	all, err := s.store.List(context.Background(), models.ListFilter{})
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal([]string{"new", "done", "old"}, []string{all[0].ID, all[1].ID, all[2].ID})

	high, err := s.store.List(context.Background(), models.ListFilter{Severity: models.SeverityHigh})
	s.Require().NoError(err)
	s.Len(high, 1)

	limited, err := s.store.List(context.Background(), models.ListFilter{Limit: 1})
	s.Require().NoError(err)
	s.Len(limited, 1)
}

func (s *MemoryStoreSuite) TestRefsAndContainment() {
	ctx := context.Background()
	s.create("open", 0, func(i *models.Incident) {
		i.LedgerRefs = []string{"h1"}
		i.AffectedSubjectIDs = []string{"user-1"}
		i.ContainmentActive = true
	})
	s.create("closed", 0, func(i *models.Incident) {
		i.Status = models.StatusResolved
		i.AuditRecordIDs = []string{"r1"}
		i.AffectedSubjectIDs = []string{"user-2"}
		i.ContainmentActive = true
	})

	found, err := s.store.FindOpenByRefs(ctx, []string{"h1"}, nil)
	s.Require().NoError(err)
	s.Equal("open", found.ID)
	_, err = s.store.FindOpenByRefs(ctx, nil, []string{"r1"})
	s.ErrorIs(err, sentinel.ErrNotFound, "resolved incidents do not dedupe")

	contained, err := s.store.IsContained(ctx, "user-1")
	s.Require().NoError(err)
	s.True(contained)
	contained, err = s.store.IsContained(ctx, "user-2")
	s.Require().NoError(err)
	s.False(contained)

	n, err := s.store.Count(ctx, models.CountQuery{ContainedOnly: true})
	s.Require().NoError(err)
	s.Equal(2, n)
}
