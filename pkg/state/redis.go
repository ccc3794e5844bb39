package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps state in Redis as JSON values without expiry.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a Redis-backed store. Close closes the client.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{redis: redisClient}
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, key Key) (*Entry, error) {
	data, err := r.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			Operations.WithLabelValues("redis", "get").Inc()
			Misses.WithLabelValues("redis").Inc()
			return nil, fmt.Errorf("%s: %w", key, ErrNoState)
		}
		return nil, observe("redis", "get", fmt.Errorf("redis get: %w", err))
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, observe("redis", "get", fmt.Errorf("%w: %v", ErrInvalidEntry, err))
	}
	return &entry, observe("redis", "get", nil)
}

// Set implements Store.
func (r *RedisStore) Set(ctx context.Context, key Key, entry *Entry) error {
	if err := validate(key, entry); err != nil {
		return observe("redis", "set", err)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return observe("redis", "set", fmt.Errorf("marshal state entry: %w", err))
	}

	if err := r.redis.Set(ctx, key.String(), data, 0).Err(); err != nil {
		return observe("redis", "set", fmt.Errorf("redis set: %w", err))
	}
	return observe("redis", "set", nil)
}

// Delete implements Store.
func (r *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := r.redis.Del(ctx, key.String()).Err(); err != nil {
		return observe("redis", "delete", fmt.Errorf("redis del: %w", err))
	}
	return observe("redis", "delete", nil)
}

// List implements Store.
func (r *RedisStore) List(ctx context.Context, shop string) ([]Keyed, error) {
	var out []Keyed

	iter := r.redis.Scan(ctx, 0, ShopPrefix(shop)+"*", 100).Iterator()
	for iter.Next(ctx) {
		key, err := ParseKey(iter.Val())
		if err != nil || key.Shop != shop {
			continue
		}
		entry, err := r.Get(ctx, key)
		if errors.Is(err, ErrNoState) {
			continue
		}
		if err != nil {
			return nil, observe("redis", "list", err)
		}
		out = append(out, Keyed{Key: key, Entry: entry})
	}
	if err := iter.Err(); err != nil {
		return nil, observe("redis", "list", fmt.Errorf("redis scan: %w", err))
	}

	sortKeyed(out)
	return out, observe("redis", "list", nil)
}

// Close implements Store.
func (r *RedisStore) Close() error {
	return r.redis.Close()
}
