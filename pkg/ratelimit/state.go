// Package ratelimit implements the hourly request budget of extraction runs.
// It uses a deliberately coarse fixed window: once the budget is spent the
// caller pauses for a cool-down interval and the counter starts over.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Defaults for the request budget.
const (
	// DefaultHourlyBudget is the number of requests allowed per window.
	DefaultHourlyBudget = 5000

	// DefaultCooldown is how long a caller pauses once the budget is spent.
	DefaultCooldown = time.Hour

	// RedisKeyPrefix namespaces shared window counters in Redis.
	RedisKeyPrefix = "extract:ratelimit:"
)

// ErrInterrupted is returned when a cool-down is cut short by context cancellation.
var ErrInterrupted = errors.New("rate limit cool-down interrupted")

// Limiter gates requests against a request budget.
type Limiter interface {
	// Allow reports whether the budget still has room in the current window.
	Allow() bool

	// Acquire blocks through the cool-down if the budget is exhausted, then
	// counts one request against the budget.
	Acquire(ctx context.Context) error
}

// Config holds limiter configuration.
type Config struct {
	// Budget is the number of requests per window.
	Budget int

	// Cooldown is the pause once the budget is exhausted.
	Cooldown time.Duration

	// Scope labels the budget in logs and metrics (e.g. a stream id or "shared").
	Scope string
}

// DefaultConfig returns the default hourly budget configuration.
func DefaultConfig() Config {
	return Config{
		Budget:   DefaultHourlyBudget,
		Cooldown: DefaultCooldown,
		Scope:    "default",
	}
}

func (c Config) withDefaults() Config {
	if c.Budget <= 0 {
		c.Budget = DefaultHourlyBudget
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.Scope == "" {
		c.Scope = "default"
	}
	return c
}

// WindowState is a snapshot of a budget window.
type WindowState struct {
	Count  int `json:"count"`
	Budget int `json:"budget"`
}

// Exhausted returns true once the budget is spent.
func (s WindowState) Exhausted() bool {
	return s.Count >= s.Budget
}

// Remaining returns the requests left in the window, never negative.
func (s WindowState) Remaining() int {
	if s.Count >= s.Budget {
		return 0
	}
	return s.Budget - s.Count
}

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// sleepContext is the default SleepFunc.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func interrupted(err error) error {
	return fmt.Errorf("%w: %v", ErrInterrupted, err)
}
