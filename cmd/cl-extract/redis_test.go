package main

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/Sternrassler/cl-extractor/internal/testutil"
	"github.com/Sternrassler/cl-extractor/pkg/checkpoint"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func redisConfig(addr string) string {
	return fmt.Sprintf(`redis:
  addr: %s
checkpoint:
  backend: redis
ratelimit:
  backend: redis
  scope: cli-test
`, addr)
}

func TestPositionsCmd_RedisBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	env := newTestEnv(t, redisConfig(mr.Addr()))
	env.mock.SetPages("positions", testutil.Pages(3, 1))

	out, err := env.execute("positions")
	if err != nil {
		t.Fatalf("positions failed: %v\n%s", err, out)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cp := checkpoint.NewRedisStore(rdb, zerolog.Nop()).Load(context.Background(), "positions")
	if cp.LastPage != 3 || cp.HasNext() {
		t.Errorf("checkpoint = %+v, want last page 3 without next", cp)
	}

	if _, err := env.execute("checkpoint", "reset", "positions"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if mr.Exists(checkpoint.Key("positions")) {
		t.Error("checkpoint key still present after reset")
	}
}

func TestPositionsCmd_RedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	env := newTestEnv(t, redisConfig(addr))

	_, err := env.execute("positions")
	if err == nil || !strings.Contains(err.Error(), "connecting to redis") {
		t.Fatalf("expected redis connection error, got %v", err)
	}
	if got := env.mock.GetRequestCount(); got != 0 {
		t.Errorf("requests = %d, want 0", got)
	}
}
