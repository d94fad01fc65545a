// Package session runs extraction requests end to end: it validates a
// FetchRequest, wires the limiter, client, checkpoint store and sink together
// and walks the stream.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Sternrassler/cl-extractor/pkg/checkpoint"
	"github.com/Sternrassler/cl-extractor/pkg/client"
	"github.com/Sternrassler/cl-extractor/pkg/pagination"
	"github.com/Sternrassler/cl-extractor/pkg/ratelimit"
	"github.com/Sternrassler/cl-extractor/pkg/sink"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Status is the outcome of a run.
type Status string

// Run outcomes.
const (
	StatusSuccess     Status = "success"
	StatusInterrupted Status = "interrupted"
	StatusFailed      Status = "failed"
)

// Summary is the result of Fetch.
type Summary struct {
	RunID     string              `json:"run_id"`
	Stream    string              `json:"stream"`
	Endpoint  string              `json:"endpoint"`
	Status    Status              `json:"status"`
	Stats     pagination.RunStats `json:"stats"`
	Artifacts []sink.Artifact     `json:"artifacts"`
	Error     string              `json:"error,omitempty"`
}

// Deps are the collaborators shared by every run of a Session.
type Deps struct {
	// API is the client template. Its Limiter is replaced per run.
	API client.Config

	Store checkpoint.Store
	Sink  sink.Sink

	// Limiter, when set, is shared by all runs instead of a per-run budget.
	Limiter ratelimit.Limiter

	// Cooldown for per-run limiters. Defaults to one hour.
	Cooldown time.Duration

	// ConfigureClient is called on every client before a run starts.
	ConfigureClient func(*client.Client)

	Logger zerolog.Logger
}

// Session executes FetchRequests.
type Session struct {
	deps   Deps
	logger zerolog.Logger
}

// New creates a session.
func New(deps Deps) (*Session, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("checkpoint store is required")
	}
	if deps.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if deps.API.BaseURL == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	if deps.Cooldown <= 0 {
		deps.Cooldown = ratelimit.DefaultCooldown
	}
	return &Session{
		deps:   deps,
		logger: deps.Logger.With().Str("component", "session").Logger(),
	}, nil
}

// Fetch runs req until the stream is exhausted, the page cap is reached, an
// error occurs, or ctx is cancelled. Cancellation yields StatusInterrupted
// and a nil error.
func (s *Session) Fetch(ctx context.Context, req FetchRequest) (Summary, error) {
	req = req.withDefaults()

	authorID := ""
	if req.AuthorScoped {
		authorID = req.AuthorID
	}
	summary := Summary{
		RunID:    uuid.NewString(),
		Stream:   checkpoint.StreamID(req.Endpoint, authorID),
		Endpoint: req.Endpoint,
		Status:   StatusFailed,
	}

	if err := req.Validate(); err != nil {
		summary.Error = err.Error()
		return summary, err
	}

	logger := s.logger.With().
		Str("run_id", summary.RunID).
		Str("stream", summary.Stream).
		Logger()

	limiter := s.deps.Limiter
	if limiter == nil {
		limiter = ratelimit.NewFixedWindow(ratelimit.Config{
			Budget:   req.HourlyBudget,
			Cooldown: s.deps.Cooldown,
			Scope:    summary.Stream,
		}, logger)
	}

	apiCfg := s.deps.API
	apiCfg.Limiter = limiter
	apiClient, err := client.New(apiCfg)
	if err != nil {
		summary.Error = err.Error()
		return summary, fmt.Errorf("stream %s: %w", summary.Stream, err)
	}
	if s.deps.ConfigureClient != nil {
		s.deps.ConfigureClient(apiClient)
	}

	params := url.Values{}
	for k, v := range req.Params {
		params.Set(k, v)
	}

	threshold := 0
	if req.FlushPolicy == FlushEveryPages {
		threshold = req.FlushThreshold
	}

	flush := func(ctx context.Context, b pagination.Batch) error {
		artifact, err := s.deps.Sink.Write(ctx, b.Records, ArtifactName(req, b))
		if errors.Is(err, sink.ErrNothingToWrite) {
			return nil
		}
		if err != nil {
			return err
		}
		summary.Artifacts = append(summary.Artifacts, artifact)
		return nil
	}

	walker := pagination.NewWalker(apiClient, s.deps.Store, pagination.NewAccumulator(threshold, flush), pagination.Config{
		Stream:   summary.Stream,
		StartURL: apiClient.EndpointURL(req.Endpoint, params),
		MaxPages: req.MaxPages,
	}, logger)

	logger.Info().
		Str("endpoint", req.Endpoint).
		Int("max_pages", req.MaxPages).
		Str("flush_policy", string(req.FlushPolicy)).
		Int("flush_threshold", threshold).
		Msg("Starting extraction")

	stats, runErr := walker.Run(ctx)
	summary.Stats = stats

	switch {
	case runErr != nil:
		summary.Status = StatusFailed
		summary.Error = runErr.Error()
	case stats.Interrupted:
		summary.Status = StatusInterrupted
	default:
		summary.Status = StatusSuccess
	}

	event := logger.Info()
	if runErr != nil {
		event = logger.Error().Err(runErr)
	}
	event.
		Str("status", string(summary.Status)).
		Int("records", stats.Records).
		Int("pages", stats.Pages).
		Int64("requests", stats.Requests).
		Int("artifacts", len(summary.Artifacts)).
		Float64("elapsed_minutes", stats.Elapsed.Minutes()).
		Msg("Extraction finished")

	return summary, runErr
}
