package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisWindow is a request budget shared by every process that uses the same
// Redis instance and scope. The window counter expires after the cool-down,
// so the window starts with the first request after a reset.
type RedisWindow struct {
	redis  *redis.Client
	config Config
	logger zerolog.Logger
	sleep  SleepFunc
}

// NewRedisWindow creates a Redis-backed fixed-window limiter.
func NewRedisWindow(redisClient *redis.Client, cfg Config, logger zerolog.Logger) *RedisWindow {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	cfg = cfg.withDefaults()
	return &RedisWindow{
		redis:  redisClient,
		config: cfg,
		logger: logger.With().Str("scope", cfg.Scope).Str("backend", "redis").Logger(),
		sleep:  sleepContext,
	}
}

// SetSleep replaces the cool-down sleep (for testing).
func (l *RedisWindow) SetSleep(fn SleepFunc) {
	l.sleep = fn
}

// Key returns the Redis key of the window counter.
func (l *RedisWindow) Key() string {
	return RedisKeyPrefix + l.config.Scope + ":count"
}

// GetState retrieves the current window from Redis.
// Returns an empty window if no counter exists.
func (l *RedisWindow) GetState(ctx context.Context) (WindowState, error) {
	count, err := l.redis.Get(ctx, l.Key()).Int()
	if err != nil && err != redis.Nil {
		return WindowState{}, fmt.Errorf("get window count: %w", err)
	}
	return WindowState{Count: count, Budget: l.config.Budget}, nil
}

// Allow reports whether the shared budget has room left. Redis errors are
// reported as "allowed"; Acquire surfaces them.
func (l *RedisWindow) Allow() bool {
	state, err := l.GetState(context.Background())
	if err != nil {
		l.logger.Warn().Err(err).Msg("Rate limit state unavailable")
		return true
	}
	return !state.Exhausted()
}

// Acquire counts one request in the shared window, sleeping until the window
// expires when the budget is spent.
func (l *RedisWindow) Acquire(ctx context.Context) error {
	for {
		count, err := l.redis.Incr(ctx, l.Key()).Result()
		if err != nil {
			return fmt.Errorf("increment window count: %w", err)
		}
		if count == 1 {
			if err := l.redis.Expire(ctx, l.Key(), l.config.Cooldown).Err(); err != nil {
				return fmt.Errorf("set window expiry: %w", err)
			}
		}
		if int(count) <= l.config.Budget {
			windowRequests.WithLabelValues(l.config.Scope).Set(float64(count))
			return nil
		}

		// Over budget: give the slot back and wait for the window to end.
		if err := l.redis.Decr(ctx, l.Key()).Err(); err != nil {
			l.logger.Warn().Err(err).Msg("Failed to release over-budget slot")
		}

		wait, err := l.redis.PTTL(ctx, l.Key()).Result()
		if err != nil {
			return fmt.Errorf("get window ttl: %w", err)
		}
		if wait <= 0 {
			// Counter without expiry, start the cool-down now.
			if err := l.redis.Expire(ctx, l.Key(), l.config.Cooldown).Err(); err != nil {
				return fmt.Errorf("set window expiry: %w", err)
			}
			wait = l.config.Cooldown
		}

		cooldownsTotal.WithLabelValues(l.config.Scope).Inc()
		l.logger.Warn().
			Int("budget", l.config.Budget).
			Dur("cooldown", wait).
			Msg("Shared request budget exhausted, pausing")

		if err := l.sleep(ctx, wait); err != nil {
			return interrupted(err)
		}
		if ctx.Err() != nil {
			return interrupted(ctx.Err())
		}
		l.logger.Info().Dur("waited", wait.Round(time.Second)).Msg("Shared cool-down finished")
	}
}
