package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"aegis/internal/verification/models"
	"aegis/pkg/platform/sentinel"
)

// retention keeps consumed and expired requests readable long enough to
// report the precise outcome instead of not_found.
const retention = 15 * time.Minute

// attemptScript mirrors InMemoryStore.Attempt. Timestamps are unix micros.
var attemptScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local hash = ARGV[2]
local max = tonumber(ARGV[3])
if redis.call('EXISTS', key) == 0 then
  return {'not_found', 0}
end
local f = redis.call('HMGET', key, 'code_hash', 'expires_at', 'consumed', 'attempts')
local attempts = tonumber(f[4]) or 0
if f[3] == '1' then
  return {'already_consumed', attempts}
end
if now > tonumber(f[2]) then
  return {'expired', attempts}
end
if f[1] == hash then
  redis.call('HSET', key, 'consumed', '1')
  return {'consumed', attempts}
end
attempts = redis.call('HINCRBY', key, 'attempts', 1)
if attempts >= max then
  redis.call('DEL', key)
  return {'exhausted', attempts}
end
return {'mismatch', attempts}
`)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(subjectID string, purpose models.Purpose) string {
	return "verify:" + string(purpose) + ":" + subjectID
}

func (s *RedisStore) Save(ctx context.Context, req *models.Request) error {
	k := redisKey(req.SubjectID, req.Purpose)
	consumed := "0"
	if req.Consumed {
		consumed = "1"
	}
	ttl := time.Until(req.ExpiresAt) + retention
	if ttl <= 0 {
		ttl = retention
	}
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, k)
		p.HSet(ctx, k,
			"subject_id", req.SubjectID,
			"purpose", string(req.Purpose),
			"code_hash", req.CodeHash,
			"created_at", req.CreatedAt.UnixMicro(),
			"expires_at", req.ExpiresAt.UnixMicro(),
			"consumed", consumed,
			"attempts", req.Attempts,
		)
		p.Expire(ctx, k, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save verification request: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, subjectID string, purpose models.Purpose) (*models.Request, error) {
	vals, err := s.client.HGetAll(ctx, redisKey(subjectID, purpose)).Result()
	if err != nil {
		return nil, fmt.Errorf("get verification request: %w", err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("verification request: %w", sentinel.ErrNotFound)
	}
	created, _ := strconv.ParseInt(vals["created_at"], 10, 64)
	expires, _ := strconv.ParseInt(vals["expires_at"], 10, 64)
	attempts, _ := strconv.Atoi(vals["attempts"])
	return &models.Request{
		SubjectID: vals["subject_id"],
		Purpose:   models.Purpose(vals["purpose"]),
		CodeHash:  vals["code_hash"],
		CreatedAt: time.UnixMicro(created).UTC(),
		ExpiresAt: time.UnixMicro(expires).UTC(),
		Consumed:  vals["consumed"] == "1",
		Attempts:  attempts,
	}, nil
}

func (s *RedisStore) Delete(ctx context.Context, subjectID string, purpose models.Purpose) error {
	if err := s.client.Del(ctx, redisKey(subjectID, purpose)).Err(); err != nil {
		return fmt.Errorf("delete verification request: %w", err)
	}
	return nil
}

func (s *RedisStore) Attempt(ctx context.Context, subjectID string, purpose models.Purpose, codeHash string, now time.Time, maxAttempts int) (*models.AttemptResult, error) {
	res, err := attemptScript.Run(ctx, s.client, []string{redisKey(subjectID, purpose)},
		now.UnixMicro(), codeHash, maxAttempts).Slice()
	if err != nil {
		return nil, fmt.Errorf("verification attempt: %w", err)
	}
	if len(res) != 2 {
		return nil, errors.New("verification attempt: unexpected script reply")
	}
	outcome, _ := res[0].(string)
	attempts, _ := res[1].(int64)
	if outcome == "not_found" {
		return nil, fmt.Errorf("verification request: %w", sentinel.ErrNotFound)
	}
	return &models.AttemptResult{Outcome: models.Outcome(outcome), Attempts: int(attempts)}, nil
}
