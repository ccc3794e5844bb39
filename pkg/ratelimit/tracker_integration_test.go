//go:build integration

package ratelimit

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestRedisStore_Integration_RoundTrip(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	store := NewRedisStore(redisClient)
	ctx := context.Background()

	state, err := store.Load(ctx, "shop", APIREST)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if state != nil {
		t.Fatalf("Load() on empty Redis = %+v, want nil", state)
	}

	saved := &BucketState{Used: 12, Capacity: 40, RestoreRate: 2, LastUpdate: time.Now().UTC().Truncate(time.Second)}
	if err := store.Save(ctx, "shop", APIREST, saved); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	state, err = store.Load(ctx, "shop", APIREST)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if state.Used != 12 || state.Capacity != 40 || !state.LastUpdate.Equal(saved.LastUpdate) {
		t.Errorf("Load() = %+v, want %+v", state, saved)
	}

	ttl, err := redisClient.TTL(ctx, RedisKey("shop", APIREST)).Result()
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 0 || ttl > stateTTL {
		t.Errorf("TTL = %v, want (0, %v]", ttl, stateTTL)
	}
}

func TestTracker_Integration_SharedState(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	store := NewRedisStore(redisClient)
	writer := NewTracker(store, "shared-shop", logger)
	reader := NewTracker(store, "shared-shop", logger)
	ctx := context.Background()

	headers := http.Header{}
	headers.Set(HeaderCallLimit, "39/40")
	if err := writer.UpdateFromHeaders(ctx, headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	state, err := reader.GetState(ctx, APIREST)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if !state.NeedsCriticalBlock(time.Now()) {
		t.Errorf("reader should see critical state, got used=%v", state.UsedAt(time.Now()))
	}
}

func TestTracker_Integration_WaitCritical(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(NewRedisStore(redisClient), "wait-shop", logger)
	ctx := context.Background()

	// 39/40 at 2/s needs ~3.5s to drop below 32
	headers := http.Header{}
	headers.Set(HeaderCallLimit, "39/40")
	if err := tracker.UpdateFromHeaders(ctx, headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	start := time.Now()
	if err := tracker.Wait(ctx, APIREST); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < 3*time.Second {
		t.Errorf("Wait() returned after %v, expected to hold ~3.5s", elapsed)
	}
}
