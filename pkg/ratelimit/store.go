package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists bucket state. Load returns (nil, nil) when nothing is stored.
type Store interface {
	Load(ctx context.Context, shop string, api API) (*BucketState, error)
	Save(ctx context.Context, shop string, api API, state *BucketState) error
}

// RedisKeyPrefix prefixes all rate limit keys.
const RedisKeyPrefix = "shopify:rate_limit"

// stateTTL bounds how long an unrefreshed bucket state is kept. Any bucket is
// empty again well within this time.
const stateTTL = 5 * time.Minute

// RedisKey returns the key holding the bucket state for a shop and API.
func RedisKey(shop string, api API) string {
	return fmt.Sprintf("%s:%s:%s", RedisKeyPrefix, shop, api)
}

// MemoryStore keeps bucket state in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]BucketState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]BucketState)}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, shop string, api API) (*BucketState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.states[RedisKey(shop, api)]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, shop string, api API, state *BucketState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.states[RedisKey(shop, api)] = *state
	return nil
}

// RedisStore shares bucket state between processes syncing the same shop.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{redis: redisClient}
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context, shop string, api API) (*BucketState, error) {
	data, err := r.redis.Get(ctx, RedisKey(shop, api)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var state BucketState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse bucket state: %w", err)
	}
	return &state, nil
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, shop string, api API, state *BucketState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal bucket state: %w", err)
	}

	if err := r.redis.Set(ctx, RedisKey(shop, api), data, stateTTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
