package pagination

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Sternrassler/cl-extractor/pkg/checkpoint"
	"github.com/Sternrassler/cl-extractor/pkg/client"
	"github.com/Sternrassler/cl-extractor/pkg/ratelimit"
	"github.com/rs/zerolog"
)

// State is a walker state.
type State int

// Walker states, in the order a page passes through them.
const (
	StateResume State = iota
	StateFetching
	StateAccumulating
	StateCheckpointing
	StateAdvance
	StateDone
)

func (s State) String() string {
	switch s {
	case StateResume:
		return "RESUME"
	case StateFetching:
		return "FETCHING"
	case StateAccumulating:
		return "ACCUMULATING"
	case StateCheckpointing:
		return "CHECKPOINTING"
	case StateAdvance:
		return "ADVANCE"
	case StateDone:
		return "DONE"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for candidate := StateResume; candidate <= StateDone; candidate++ {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown walker state %q", text)
}

// PageFetcher fetches a single page by absolute URL.
type PageFetcher interface {
	FetchPage(ctx context.Context, pageURL string) (*client.Page, error)
}

// requestCounter is implemented by fetchers that count HTTP attempts.
type requestCounter interface {
	RequestsIssued() int64
}

// Config holds walker configuration.
type Config struct {
	// Stream identifies the checkpoint entry.
	Stream string

	// StartURL is page 1 including query parameters.
	StartURL string

	// MaxPages caps the pages fetched in this run. 0 means unlimited.
	MaxPages int
}

// RunStats summarizes a walker run.
type RunStats struct {
	Stream        string        `json:"stream"`
	Requests      int64         `json:"requests"`
	Records       int           `json:"records"`
	Pages         int           `json:"pages"`
	StartPage     int           `json:"start_page"`
	LastPage      int           `json:"last_page"`
	Flushes       int           `json:"flushes"`
	FlushFailures int           `json:"flush_failures"`
	Elapsed       time.Duration `json:"elapsed"`
	Interrupted   bool          `json:"interrupted"`
	FinalState    State         `json:"final_state"`
}

// PageError wraps a failure with the stream and page it happened on.
type PageError struct {
	Stream string
	Page   int
	URL    string
	Err    error
}

// Error implements the error interface.
func (e *PageError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("stream %s page %d (%s): %v", e.Stream, e.Page, e.URL, e.Err)
	}
	return fmt.Sprintf("stream %s page %d: %v", e.Stream, e.Page, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PageError) Unwrap() error {
	return e.Err
}

// Walker fetches the pages of one stream sequentially.
type Walker struct {
	fetcher PageFetcher
	store   checkpoint.Store
	acc     *Accumulator
	config  Config
	logger  zerolog.Logger
	onState func(State)
}

// NewWalker creates a walker for a single run.
func NewWalker(fetcher PageFetcher, store checkpoint.Store, acc *Accumulator, cfg Config, logger zerolog.Logger) *Walker {
	if cfg.MaxPages < 0 {
		cfg.MaxPages = 0
	}
	return &Walker{
		fetcher: fetcher,
		store:   store,
		acc:     acc,
		config:  cfg,
		logger:  logger.With().Str("stream", cfg.Stream).Logger(),
	}
}

// OnState registers a hook called on every state transition.
func (w *Walker) OnState(fn func(State)) {
	w.onState = fn
}

func (w *Walker) enter(s State) {
	w.logger.Trace().Str("state", s.String()).Msg("Walker state")
	if w.onState != nil {
		w.onState(s)
	}
}

// Run walks the stream until the last page, the page cap, an error, or
// cancellation of ctx. Cancellation is reported through RunStats.Interrupted,
// not as an error.
func (w *Walker) Run(ctx context.Context) (RunStats, error) {
	start := time.Now()
	stats := RunStats{Stream: w.config.Stream}

	var requestsBefore int64
	counter, counting := w.fetcher.(requestCounter)
	if counting {
		requestsBefore = counter.RequestsIssued()
	}

	// Fetched pages are finished even after cancellation.
	persistCtx := context.WithoutCancel(ctx)

	w.enter(StateResume)
	pageURL, page := w.config.StartURL, 1
	if cp := w.store.Load(ctx, w.config.Stream); cp.HasNext() {
		pageURL, page = cp.NextURL, cp.LastPage+1
		w.logger.Info().
			Int("page", page).
			Str("url", pageURL).
			Msg("Resuming from checkpoint")
	}
	stats.StartPage = page

	var runErr error
	for {
		w.enter(StateFetching)
		if ctx.Err() != nil {
			stats.Interrupted = true
			break
		}

		result, err := w.fetcher.FetchPage(ctx, pageURL)
		if err != nil {
			if isInterruption(ctx, err) {
				stats.Interrupted = true
				w.logger.Warn().Int("page", page).Msg("Run interrupted, discarding in-flight page")
				break
			}
			runErr = &PageError{Stream: w.config.Stream, Page: page, URL: pageURL, Err: err}
			w.logger.Error().Err(err).Int("page", page).Str("url", pageURL).Msg("Page fetch failed")
			break
		}

		w.enter(StateAccumulating)
		w.acc.Add(page, result.Results)
		stats.Pages++
		stats.Records += len(result.Results)
		stats.LastPage = page
		pagesFetchedTotal.WithLabelValues(w.config.Stream).Inc()
		recordsFetchedTotal.WithLabelValues(w.config.Stream).Add(float64(len(result.Results)))

		w.logger.Info().
			Int("page", page).
			Int("records", len(result.Results)).
			Int("total_records", stats.Records).
			Msg("Fetched page")

		if w.acc.Due(page) {
			w.flush(persistCtx, &stats)
		}

		w.enter(StateCheckpointing)
		cp := checkpoint.Checkpoint{CurrentURL: pageURL, NextURL: result.Next, LastPage: page}
		if err := w.store.Save(persistCtx, w.config.Stream, cp); err != nil {
			runErr = &PageError{Stream: w.config.Stream, Page: page, URL: pageURL, Err: fmt.Errorf("save checkpoint: %w", err)}
			w.logger.Error().Err(err).Int("page", page).Msg("Checkpoint save failed")
			break
		}
		lastPageGauge.WithLabelValues(w.config.Stream).Set(float64(page))

		w.enter(StateAdvance)
		if result.Next == "" {
			break
		}
		if w.config.MaxPages > 0 && stats.Pages >= w.config.MaxPages {
			w.logger.Info().Int("max_pages", w.config.MaxPages).Msg("Page cap reached")
			break
		}
		pageURL = result.Next
		page++
	}

	w.enter(StateDone)
	stats.FinalState = StateDone
	if err := w.flush(persistCtx, &stats); err != nil && runErr == nil {
		runErr = &PageError{Stream: w.config.Stream, Page: stats.LastPage, Err: fmt.Errorf("final flush: %w", err)}
	}

	if counting {
		stats.Requests = counter.RequestsIssued() - requestsBefore
	}
	stats.Elapsed = time.Since(start)

	outcome := "success"
	switch {
	case runErr != nil:
		outcome = "failed"
	case stats.Interrupted:
		outcome = "interrupted"
	}
	runsTotal.WithLabelValues(outcome).Inc()

	w.logger.Info().
		Str("outcome", outcome).
		Int("pages", stats.Pages).
		Int("records", stats.Records).
		Int64("requests", stats.Requests).
		Int("start_page", stats.StartPage).
		Int("last_page", stats.LastPage).
		Int("flushes", stats.Flushes).
		Int("flush_failures", stats.FlushFailures).
		Float64("elapsed_minutes", stats.Elapsed.Minutes()).
		Msg("Run finished")

	return stats, runErr
}

// flush writes the buffer; failures are logged and counted, the buffer is kept.
func (w *Walker) flush(ctx context.Context, stats *RunStats) error {
	pending := w.acc.Pending()
	flushed, err := w.acc.Flush(ctx)
	if err != nil {
		stats.FlushFailures++
		flushesTotal.WithLabelValues("failure").Inc()
		w.logger.Error().
			Err(err).
			Int("first_page", pending.FirstPage).
			Int("last_page", pending.LastPage).
			Int("records", len(pending.Records)).
			Msg("Flush failed, keeping buffer")
		return err
	}
	if flushed {
		stats.Flushes++
		flushesTotal.WithLabelValues("success").Inc()
		w.logger.Info().
			Int("first_page", pending.FirstPage).
			Int("last_page", pending.LastPage).
			Int("records", len(pending.Records)).
			Msg("Flushed batch")
	}
	return nil
}

// isInterruption reports whether err stems from cancellation rather than a failure.
func isInterruption(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, client.ErrContextCancelled) ||
		errors.Is(err, ratelimit.ErrInterrupted)
}
