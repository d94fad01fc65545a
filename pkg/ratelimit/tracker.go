package ratelimit

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for request budget tracking.
var (
	windowRequests = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "extract_ratelimit_window_requests",
		Help: "Requests counted in the current rate limit window",
	}, []string{"scope"})

	cooldownsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extract_ratelimit_cooldowns_total",
		Help: "Total number of cool-downs entered because the request budget was exhausted",
	}, []string{"scope"})
)

// FixedWindow is an in-process request budget. A single instance may be
// shared by concurrently running streams to give them a common budget.
type FixedWindow struct {
	config Config
	logger zerolog.Logger
	sleep  SleepFunc

	mu      sync.Mutex
	count   int
	cooling chan struct{} // non-nil while one caller sleeps through the cool-down
}

// NewFixedWindow creates a fixed-window limiter.
func NewFixedWindow(cfg Config, logger zerolog.Logger) *FixedWindow {
	cfg = cfg.withDefaults()
	return &FixedWindow{
		config: cfg,
		logger: logger.With().Str("scope", cfg.Scope).Logger(),
		sleep:  sleepContext,
	}
}

// SetSleep replaces the cool-down sleep (for testing).
func (l *FixedWindow) SetSleep(fn SleepFunc) {
	l.sleep = fn
}

// State returns a snapshot of the current window.
func (l *FixedWindow) State() WindowState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return WindowState{Count: l.count, Budget: l.config.Budget}
}

// Allow reports whether the budget has room left.
func (l *FixedWindow) Allow() bool {
	return !l.State().Exhausted()
}

// Acquire counts one request, first sleeping through the cool-down if the
// budget is exhausted. Only one caller sleeps; concurrent callers wait for it.
func (l *FixedWindow) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		if l.count < l.config.Budget {
			l.count++
			windowRequests.WithLabelValues(l.config.Scope).Set(float64(l.count))
			l.mu.Unlock()
			return nil
		}

		if l.cooling != nil {
			wait := l.cooling
			l.mu.Unlock()
			select {
			case <-ctx.Done():
				return interrupted(ctx.Err())
			case <-wait:
			}
			continue
		}

		done := make(chan struct{})
		l.cooling = done
		l.mu.Unlock()

		cooldownsTotal.WithLabelValues(l.config.Scope).Inc()
		l.logger.Warn().
			Int("budget", l.config.Budget).
			Dur("cooldown", l.config.Cooldown).
			Msg("Request budget exhausted, pausing")

		err := l.sleep(ctx, l.config.Cooldown)

		l.mu.Lock()
		if err == nil {
			l.count = 0
			windowRequests.WithLabelValues(l.config.Scope).Set(0)
		}
		l.cooling = nil
		close(done)
		l.mu.Unlock()

		if err != nil {
			l.logger.Info().Msg("Cool-down interrupted")
			return interrupted(err)
		}
		l.logger.Info().Msg("Cool-down finished, request budget reset")
	}
}
