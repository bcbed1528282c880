package pairing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"aegis/internal/passkey/models"
	"aegis/pkg/platform/sentinel"
)

// retention keeps terminal and expired sessions pollable after the TTL.
const retention = 10 * time.Minute

// transitionScript swaps the payload only while the state field matches.
// Replies: 1 swapped, 0 missing, -1 state mismatch.
var transitionScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state then
  return 0
end
if state ~= ARGV[1] then
  return -1
end
redis.call('HSET', KEYS[1], 'state', ARGV[2], 'payload', ARGV[3])
return 1
`)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(id string) string {
	return "pair:" + id
}

func (s *RedisStore) Create(ctx context.Context, sess *models.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode pairing session: %w", err)
	}
	k := redisKey(sess.ID)
	ttl := time.Until(sess.ExpiresAt) + retention
	var created *redis.BoolCmd
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		created = p.HSetNX(ctx, k, "state", string(sess.State))
		p.HSetNX(ctx, k, "payload", payload)
		p.Expire(ctx, k, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("create pairing session: %w", err)
	}
	if !created.Val() {
		return fmt.Errorf("pairing session %s: %w", sess.ID, sentinel.ErrConflict)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.Session, error) {
	payload, err := s.client.HGet(ctx, redisKey(id), "payload").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("pairing session %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get pairing session: %w", err)
	}
	var sess models.Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, fmt.Errorf("decode pairing session: %w", err)
	}
	return &sess, nil
}

func (s *RedisStore) Transition(ctx context.Context, id string, expected models.State, next *models.Session) error {
	payload, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode pairing session: %w", err)
	}
	res, err := transitionScript.Run(ctx, s.client, []string{redisKey(id)}, string(expected), string(next.State), payload).Int()
	if err != nil {
		return fmt.Errorf("transition pairing session: %w", err)
	}
	switch res {
	case 0:
		return fmt.Errorf("pairing session %s: %w", id, sentinel.ErrNotFound)
	case -1:
		return fmt.Errorf("pairing session %s: %w", id, sentinel.ErrInvalidState)
	}
	return nil
}
