package history

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"aegis/internal/ratelimit/models"
	suspiciousModels "aegis/internal/suspicious/models"
)

// RedisStore keeps one ZSET per subject and kind, scored by unix micro.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func failureKey(subjectID string) string {
	return "activity:fail:" + models.SanitizeKeySegment(models.NormalizeIdentity(subjectID))
}

func violationKey(identity string) string {
	return "activity:viol:" + models.SanitizeKeySegment(models.NormalizeIdentity(identity))
}

func (s *RedisStore) AddFailure(ctx context.Context, subjectID string, at time.Time) error {
	return s.add(ctx, failureKey(subjectID), at)
}

func (s *RedisStore) AddViolation(ctx context.Context, identity string, at time.Time) error {
	return s.add(ctx, violationKey(identity), at)
}

func (s *RedisStore) add(ctx context.Context, key string, at time.Time) error {
	score := float64(at.UnixMicro())
	cutoff := strconv.FormatInt(at.Add(-Retention).UnixMicro(), 10)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, key, "-inf", "("+cutoff)
		p.ZAdd(ctx, key, redis.Z{Score: score, Member: uuid.NewString()})
		p.Expire(ctx, key, Retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record activity %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, subjectID string, since time.Time) (*suspiciousModels.History, error) {
	failures, err := s.load(ctx, failureKey(subjectID), since)
	if err != nil {
		return nil, err
	}
	violations, err := s.load(ctx, violationKey(subjectID), since)
	if err != nil {
		return nil, err
	}
	return &suspiciousModels.History{Failures: failures, Violations: violations}, nil
}

func (s *RedisStore) load(ctx context.Context, key string, since time.Time) ([]time.Time, error) {
	res, err := s.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMicro(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("load activity %s: %w", key, err)
	}
	out := make([]time.Time, 0, len(res))
	for _, z := range res {
		out = append(out, time.UnixMicro(int64(z.Score)).UTC())
	}
	return out, nil
}
