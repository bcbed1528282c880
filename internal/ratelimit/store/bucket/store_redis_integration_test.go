//go:build integration

package bucket_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"aegis/internal/ratelimit/store/bucket"
	"aegis/pkg/testutil/containers"
)

type RedisBucketStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *bucket.RedisBucketStore
	now   time.Time
}

func TestRedisBucketStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisBucketStoreSuite))
}

func (s *RedisBucketStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = bucket.NewRedisBucketStore(s.redis.Client)
}

func (s *RedisBucketStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.now = time.Now().Truncate(time.Second)
}

func (s *RedisBucketStoreSuite) TestConcurrentAllowIsExact() {
	ctx := context.Background()
	const limit, goroutines = 10, 50

	var wg sync.WaitGroup
	var allowed atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.store.Allow(ctx, "rl:test:hot", limit, time.Minute, s.now)
			s.NoError(err)
			if err == nil && res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(limit), allowed.Load())
	count, err := s.store.GetCurrentCount(ctx, "rl:test:hot", time.Minute, s.now)
	s.Require().NoError(err)
	s.Equal(limit, count)
}

func (s *RedisBucketStoreSuite) TestWindowSlides() {
	ctx := context.Background()
	for i := range 3 {
		res, err := s.store.Allow(ctx, "rl:test:slide", 3, time.Minute, s.now.Add(time.Duration(i)*time.Second))
		s.Require().NoError(err)
		s.True(res.Allowed)
	}

	res, err := s.store.Allow(ctx, "rl:test:slide", 3, time.Minute, s.now.Add(30*time.Second))
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Equal(30, res.RetryAfter)

	res, err = s.store.Allow(ctx, "rl:test:slide", 3, time.Minute, s.now.Add(time.Minute+500*time.Millisecond))
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func (s *RedisBucketStoreSuite) TestReset() {
	ctx := context.Background()
	_, err := s.store.Allow(ctx, "rl:test:reset", 1, time.Minute, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Reset(ctx, "rl:test:reset"))

	res, err := s.store.Allow(ctx, "rl:test:reset", 1, time.Minute, s.now)
	s.Require().NoError(err)
	s.True(res.Allowed)
}
