//go:build integration

package history_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"aegis/internal/suspicious/history"
	"aegis/pkg/testutil/containers"
)

type RedisHistorySuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *history.RedisStore
}

func TestRedisHistorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisHistorySuite))
}

func (s *RedisHistorySuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = history.NewRedisStore(s.redis.Client)
}

func (s *RedisHistorySuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisHistorySuite) TestRecordAndLoad() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	s.Require().NoError(s.store.AddFailure(ctx, "User-1", now.Add(-time.Minute)))
	s.Require().NoError(s.store.AddFailure(ctx, "user-1", now.Add(-time.Minute)))
	s.Require().NoError(s.store.AddViolation(ctx, "user-1", now))

	h, err := s.store.Load(ctx, "user-1", now.Add(-10*time.Minute))
	s.Require().NoError(err)
	s.Len(h.Failures, 2, "identical timestamps are kept as separate events")
	s.Require().Len(h.Violations, 1)
	s.True(h.Violations[0].Equal(now))
}

func (s *RedisHistorySuite) TestOldEventsArePruned() {
	ctx := context.Background()
	now := time.Now().UTC()

	s.Require().NoError(s.store.AddFailure(ctx, "user-1", now.Add(-2*time.Hour)))
	s.Require().NoError(s.store.AddFailure(ctx, "user-1", now))

	n, err := s.redis.Client.ZCard(ctx, "activity:fail:user-1").Result()
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}
