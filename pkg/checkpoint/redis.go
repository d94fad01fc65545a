package checkpoint

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// KeyPrefix namespaces checkpoint hashes in Redis.
const KeyPrefix = "extract:checkpoint:"

// Hash fields of a stored checkpoint.
const (
	fieldCurrentURL = "current_url"
	fieldNextURL    = "next_url"
	fieldLastPage   = "last_page"
)

// RedisStore keeps one hash per stream in Redis.
type RedisStore struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewRedisStore creates a Redis-backed checkpoint store.
func NewRedisStore(redisClient *redis.Client, logger zerolog.Logger) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis:  redisClient,
		logger: logger.With().Str("backend", "redis").Logger(),
	}
}

// Key returns the Redis key of a stream.
func Key(stream string) string {
	return KeyPrefix + stream
}

// Load reads the checkpoint hash, falling back to Default().
func (s *RedisStore) Load(ctx context.Context, stream string) Checkpoint {
	fields, err := s.redis.HGetAll(ctx, Key(stream)).Result()
	if err != nil {
		s.logger.Warn().Err(err).Str("stream", stream).Msg("Checkpoint unreadable, starting from page 1")
		CheckpointFallbacks.WithLabelValues("redis", "read_error").Inc()
		return Default()
	}
	if len(fields) == 0 {
		s.logger.Debug().Str("stream", stream).Msg("No checkpoint found, starting from page 1")
		CheckpointFallbacks.WithLabelValues("redis", "missing").Inc()
		return Default()
	}

	cp, err := fromHash(fields)
	if err != nil {
		s.logger.Warn().Err(err).Str("stream", stream).Msg("Checkpoint malformed, starting from page 1")
		CheckpointFallbacks.WithLabelValues("redis", "malformed").Inc()
		return Default()
	}
	return cp
}

func fromHash(fields map[string]string) (Checkpoint, error) {
	cur, okCur := fields[fieldCurrentURL]
	next, okNext := fields[fieldNextURL]
	pageStr, okPage := fields[fieldLastPage]
	if !okCur || !okNext || !okPage {
		return Checkpoint{}, fmt.Errorf("%w: missing fields", ErrMalformed)
	}

	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 1 {
		return Checkpoint{}, fmt.Errorf("%w: last page %q", ErrMalformed, pageStr)
	}
	if next == NoneSentinel {
		next = ""
	}
	return Checkpoint{CurrentURL: cur, NextURL: next, LastPage: page}, nil
}

// Save writes all fields with a single HSET so readers never see a mix of
// old and new values.
func (s *RedisStore) Save(ctx context.Context, stream string, cp Checkpoint) error {
	if err := cp.validate(); err != nil {
		CheckpointWrites.WithLabelValues("redis", "error").Inc()
		return fmt.Errorf("save checkpoint %s: %w", stream, err)
	}

	next := cp.NextURL
	if next == "" {
		next = NoneSentinel
	}

	err := s.redis.HSet(ctx, Key(stream),
		fieldCurrentURL, cp.CurrentURL,
		fieldNextURL, next,
		fieldLastPage, strconv.Itoa(cp.LastPage),
	).Err()
	if err != nil {
		CheckpointWrites.WithLabelValues("redis", "error").Inc()
		return fmt.Errorf("save checkpoint %s: %w", stream, err)
	}

	CheckpointWrites.WithLabelValues("redis", "ok").Inc()
	return nil
}

// Delete removes the checkpoint hash of a stream.
func (s *RedisStore) Delete(ctx context.Context, stream string) error {
	if err := s.redis.Del(ctx, Key(stream)).Err(); err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", stream, err)
	}
	return nil
}
