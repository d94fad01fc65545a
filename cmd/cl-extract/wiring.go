package main

import (
	"context"
	"fmt"

	"github.com/Sternrassler/cl-extractor/pkg/checkpoint"
	"github.com/Sternrassler/cl-extractor/pkg/client"
	"github.com/Sternrassler/cl-extractor/pkg/ratelimit"
	"github.com/Sternrassler/cl-extractor/pkg/session"
	"github.com/Sternrassler/cl-extractor/pkg/sink"
	"github.com/redis/go-redis/v9"
)

// backends are the long-lived collaborators built from the configuration.
type backends struct {
	redis   *redis.Client
	store   checkpoint.Store
	limiter ratelimit.Limiter
}

func (b *backends) Close() error {
	if b.redis != nil {
		return b.redis.Close()
	}
	return nil
}

// openBackends connects Redis when a backend needs it and builds the
// checkpoint store and the shared limiter, if any.
func (c *cli) openBackends(ctx context.Context) (*backends, error) {
	b := &backends{}

	if c.cfg.UsesRedis() {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     c.cfg.Redis.Addr,
			Password: c.cfg.Redis.Password,
			DB:       c.cfg.Redis.DB,
		})
		if err := b.redis.Ping(ctx).Err(); err != nil {
			b.redis.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", c.cfg.Redis.Addr, err)
		}
		c.logger.Info().Str("addr", c.cfg.Redis.Addr).Msg("Connected to Redis")
	}

	switch c.cfg.Checkpoint.Backend {
	case "redis":
		b.store = checkpoint.NewRedisStore(b.redis, c.logger)
	default:
		b.store = checkpoint.NewFileStore(c.cfg.Checkpoint.Dir, c.logger)
	}

	limitCfg := ratelimit.Config{
		Budget:   c.cfg.RateLimit.HourlyBudget,
		Cooldown: c.cfg.RateLimit.Cooldown,
		Scope:    c.cfg.RateLimit.Scope,
	}
	switch {
	case c.cfg.RateLimit.Backend == "redis":
		b.limiter = ratelimit.NewRedisWindow(b.redis, limitCfg, c.logger)
	case c.cfg.RateLimit.SharedBudget:
		b.limiter = ratelimit.NewFixedWindow(limitCfg, c.logger)
	}

	return b, nil
}

// apiConfig maps the configuration onto the client template.
func (c *cli) apiConfig() client.Config {
	api := c.cfg.API
	retry := c.cfg.Retry

	cfg := client.DefaultConfig(api.BaseURL, nil)
	cfg.Token = api.Token
	cfg.AuthScheme = api.AuthScheme
	cfg.UserAgent = api.UserAgent
	cfg.Timeout = api.Timeout
	cfg.Retry = client.RetryConfig{
		MaxAttempts:       retry.MaxRetries,
		InitialBackoff:    retry.InitialBackoff,
		MaxBackoff:        retry.MaxBackoff,
		BackoffMultiplier: 2.0,
		Jitter:            retry.Jitter,
	}
	return cfg
}

// newSession builds a session on top of b.
func (c *cli) newSession(ctx context.Context, b *backends) (*session.Session, error) {
	out, err := sink.New(ctx, c.cfg.Storage, c.logger)
	if err != nil {
		return nil, fmt.Errorf("creating sink: %w", err)
	}

	return session.New(session.Deps{
		API:      c.apiConfig(),
		Store:    b.store,
		Sink:     out,
		Limiter:  b.limiter,
		Cooldown: c.cfg.RateLimit.Cooldown,
		Logger:   c.logger,
	})
}
