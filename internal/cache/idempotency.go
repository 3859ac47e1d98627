package cache

import (
	"context"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const idempotencyKeyPrefix = "idempotency:"

// IdempotencyStore remembers request keys for a bounded time.
type IdempotencyStore interface {
	// Reserve claims key for ttl and reports false when it was already claimed.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release forgets key so a failed request can be retried.
	Release(ctx context.Context, key string) error
}

// NewIdempotencyStore uses Redis when a client is configured and process
// memory otherwise.
func NewIdempotencyStore(client *redis.Client) IdempotencyStore {
	if client != nil {
		return &redisIdempotencyStore{client: client}
	}
	return NewMemoryIdempotencyStore()
}

type redisIdempotencyStore struct {
	client *redis.Client
}

func (s *redisIdempotencyStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, idempotencyKey(key), time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
}

func (s *redisIdempotencyStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, idempotencyKey(key)).Err()
}

type memoryIdempotencyStore struct {
	keys *TTLCache[string, struct{}]
}

func NewMemoryIdempotencyStore() IdempotencyStore {
	return &memoryIdempotencyStore{keys: NewTTLCache[string, struct{}]()}
}

func (s *memoryIdempotencyStore) Reserve(_ context.Context, key string, ttl time.Duration) (bool, error) {
	return s.keys.SetIfAbsent(idempotencyKey(key), struct{}{}, ttl), nil
}

func (s *memoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.keys.Delete(idempotencyKey(key))
	return nil
}

func idempotencyKey(key string) string {
	return idempotencyKeyPrefix + strings.TrimSpace(key)
}
