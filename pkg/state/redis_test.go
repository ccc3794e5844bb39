package state

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis and skips the test when none is running.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   14,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
	})

	return client
}

func TestRedisStore_Contract(t *testing.T) {
	store := NewRedisStore(setupTestRedis(t))
	defer store.Close()

	testStoreContract(t, store)
}

func TestNewRedisStore_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewRedisStore should panic with nil redis client")
		}
	}()
	NewRedisStore(nil)
}
