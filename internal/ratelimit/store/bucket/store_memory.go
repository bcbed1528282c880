package bucket

import (
	"context"
	"sync"
	"time"

	"aegis/internal/ratelimit/models"
)

// InMemoryBucketStore implements a per-process sliding window. Use the Redis
// store when more than one replica serves traffic.
type InMemoryBucketStore struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
}

func NewInMemoryBucketStore() *InMemoryBucketStore {
	return &InMemoryBucketStore{buckets: make(map[string][]time.Time)}
}

func (s *InMemoryBucketStore) Allow(_ context.Context, key string, limit int, window time.Duration, now time.Time) (*models.RateLimitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamps := prune(s.buckets[key], now.Add(-window))

	if len(stamps) < limit {
		stamps = append(stamps, now)
		s.buckets[key] = stamps
		return &models.RateLimitResult{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit - len(stamps),
			ResetAt:   stamps[0].Add(window),
		}, nil
	}

	s.buckets[key] = stamps
	resetAt := now.Add(window)
	if len(stamps) > 0 {
		resetAt = stamps[0].Add(window)
	}
	return &models.RateLimitResult{
		Allowed:    false,
		Limit:      limit,
		Remaining:  0,
		ResetAt:    resetAt,
		RetryAfter: models.RetryAfterSeconds(resetAt, now),
	}, nil
}

func (s *InMemoryBucketStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
	return nil
}

func (s *InMemoryBucketStore) GetCurrentCount(_ context.Context, key string, window time.Duration, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stamps := prune(s.buckets[key], now.Add(-window))
	s.buckets[key] = stamps
	return len(stamps), nil
}

// prune drops timestamps at or before cutoff. Timestamps are appended in
// admission order so the slice stays sorted.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}
