// Package metrics provides the Prometheus registry and /metrics endpoint of
// the extractor. All metrics are defined in their respective packages
// (client, ratelimit, checkpoint, pagination, sink) to maintain modularity
// and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry used by the extractor.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the /metrics handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - extract_requests_total{endpoint, status} (Counter): HTTP attempts by endpoint path and status
//   - extract_request_duration_seconds{endpoint} (Histogram): Attempt duration by endpoint
//   - extract_errors_total{class} (Counter): Errors by class (client, server, network, decode)
//
// Retry Metrics (pkg/client):
//   - extract_retries_total{error_class} (Counter): Retry attempts by error class
//   - extract_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - extract_retry_exhausted_total{error_class} (Counter): Page fetches that exhausted max retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - extract_ratelimit_window_requests{scope} (Gauge): Requests counted in the current window
//   - extract_ratelimit_cooldowns_total{scope} (Counter): Cool-downs after the budget was spent
//
// Checkpoint Metrics (pkg/checkpoint):
//   - extract_checkpoint_writes_total{backend, result} (Counter): Checkpoint saves
//   - extract_checkpoint_fallbacks_total{backend, reason} (Counter): Loads that fell back to page 1
//
// Pagination Metrics (pkg/pagination):
//   - extract_pages_fetched_total{stream} (Counter): Pages fetched
//   - extract_records_fetched_total{stream} (Counter): Records fetched
//   - extract_last_page{stream} (Gauge): Last checkpointed page
//   - extract_flushes_total{result} (Counter): Batch flushes
//   - extract_runs_total{outcome} (Counter): Runs by outcome (success, interrupted, failed)
//
// Sink Metrics (pkg/sink):
//   - extract_sink_writes_total{kind, result} (Counter): Artifact writes by storage kind
//   - extract_sink_bytes_written_total{kind} (Counter): Bytes written by storage kind
//
// Example Prometheus Queries:
//
//   # Requests per hour against the budget
//   sum(increase(extract_requests_total[1h]))
//
//   # Server error rate
//   rate(extract_errors_total{class="server"}[5m])
//
//   # Progress of a stream
//   extract_last_page{stream="financial-disclosures"}
//
//   # Failed flushes
//   increase(extract_flushes_total{result="failure"}[1h]) > 0
