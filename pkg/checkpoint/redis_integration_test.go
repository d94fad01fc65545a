//go:build integration

package checkpoint

import (
	"context"
	"fmt"
	"os"
	"testing"

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

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

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

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	store := NewRedisStore(redisClient, logger)
	ctx := context.Background()

	// Empty Redis yields the default checkpoint
	if got := store.Load(ctx, "positions"); got != Default() {
		t.Errorf("Load() on empty redis = %+v, want default", got)
	}

	for page := 1; page <= 5; page++ {
		cp := Checkpoint{
			CurrentURL: fmt.Sprintf("https://example.com/api/positions/?page=%d", page),
			NextURL:    fmt.Sprintf("https://example.com/api/positions/?page=%d", page+1),
			LastPage:   page,
		}
		if err := store.Save(ctx, "positions", cp); err != nil {
			t.Fatalf("Save(page %d) error = %v", page, err)
		}
		if got := store.Load(ctx, "positions"); got != cp {
			t.Errorf("Load() after page %d = %+v, want %+v", page, got, cp)
		}
	}
}
