// Package client provides the HTTP client used to fetch pages from a
// paginated JSON API, with request budgeting, retries and error classification.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/cl-extractor/pkg/ratelimit"
	"github.com/Sternrassler/cl-extractor/pkg/record"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for API client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extract_requests_total",
		Help: "Total API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "extract_request_duration_seconds",
		Help:    "API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extract_errors_total",
		Help: "Total API errors by class",
	}, []string{"class"})
)

// maxBodySize bounds how much of a response body is read.
const maxBodySize = 64 << 20

// Page is one decoded page of results.
type Page struct {
	Results []record.Record
	// Next is the absolute URL of the following page, empty on the last page.
	Next string
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root, e.g. "https://www.courtlistener.com/api/rest/v4/".
	BaseURL string

	// Token is sent as "Authorization: <AuthScheme> <Token>" when set.
	Token      string
	AuthScheme string

	UserAgent string

	// Timeout per HTTP attempt.
	Timeout time.Duration

	// Limiter is consulted before every attempt (REQUIRED).
	Limiter ratelimit.Limiter

	Retry RetryConfig
}

// DefaultConfig returns a default configuration for baseURL.
func DefaultConfig(baseURL string, limiter ratelimit.Limiter) Config {
	return Config{
		BaseURL:    baseURL,
		AuthScheme: "Bearer",
		UserAgent:  "cl-extractor/1.0",
		Timeout:    60 * time.Second,
		Limiter:    limiter,
		Retry:      DefaultRetryConfig(),
	}
}

// Client fetches and decodes pages.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger
	sleep      sleepFunc
	requests   atomic.Int64
}

// New creates a new API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url must be absolute (got %q)", cfg.BaseURL)
	}
	if cfg.Limiter == nil {
		return nil, fmt.Errorf("limiter is required")
	}
	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	logger := log.With().Str("component", "api-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: base,
		config:  cfg,
		logger:  logger,
		sleep:   sleepContext,
	}, nil
}

// EndpointURL builds "<base><endpoint>/?<params>".
func (c *Client) EndpointURL(endpoint string, params url.Values) string {
	u := c.baseURL.JoinPath(strings.Trim(endpoint, "/"))
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return u.String()
}

// FetchPage GETs pageURL with retries and decodes the page.
// Query parameters must already be part of pageURL.
func (c *Client) FetchPage(ctx context.Context, pageURL string) (*Page, error) {
	var body []byte

	err := retryWithBackoff(ctx, c.config.Retry, c.sleep, func() error {
		var reqErr error
		body, reqErr = c.get(ctx, pageURL)
		return reqErr
	}, classifyError)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, ErrContextCancelled) && !errors.Is(err, ratelimit.ErrInterrupted) {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
		return nil, err
	}

	page, err := decodePage(pageURL, body)
	if err != nil {
		errorsTotal.WithLabelValues("decode").Inc()
		c.logger.Error().Err(err).Str("url", pageURL).Msg("Failed to decode page")
		return nil, err
	}
	return page, nil
}

// get performs a single attempt: acquire budget, send, read body.
func (c *Client) get(ctx context.Context, pageURL string) ([]byte, error) {
	if err := c.config.Limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRateLimiter, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if c.config.Token != "" {
		req.Header.Set("Authorization", c.config.AuthScheme+" "+c.config.Token)
	}

	endpoint := req.URL.Path
	c.requests.Add(1)

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Debug().
		Str("url", pageURL).
		Msg("Executing API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Warn().Err(err).Str("url", pageURL).Msg("HTTP request failed")
		return nil, err
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		errClass := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(errClass)).Inc()

		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn().
			Str("url", pageURL).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("API request error")

		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    strings.TrimSpace(resp.Status + " " + string(bytes.TrimSpace(msg))),
			URL:        pageURL,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// classifyStatus maps a non-200 status code to an error class.
func classifyStatus(status int) ErrorClass {
	if status >= 500 {
		return ErrorClassServer
	}
	return ErrorClassClient
}

// classifyError categorizes an attempt error for retry handling. Budget and
// cancellation errors are returned unclassified so they are never retried.
func classifyError(err error) ErrorClass {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.ErrorClass
	case errors.Is(err, ErrRateLimiter), errors.Is(err, context.Canceled):
		return ""
	default:
		return ErrorClassNetwork
	}
}

// decodePage parses {"results": [...], "next": "..."}.
func decodePage(pageURL string, body []byte) (*Page, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &DecodeError{URL: pageURL, Reason: "body is not a JSON object", Err: err}
	}

	rawResults, ok := envelope["results"]
	if !ok || bytes.Equal(bytes.TrimSpace(rawResults), []byte("null")) {
		return nil, &DecodeError{URL: pageURL, Reason: "missing results"}
	}

	var results []record.Record
	if err := json.Unmarshal(rawResults, &results); err != nil {
		return nil, &DecodeError{URL: pageURL, Reason: "results is not an array of objects", Err: err}
	}

	page := &Page{Results: results}
	if rawNext, ok := envelope["next"]; ok && !bytes.Equal(bytes.TrimSpace(rawNext), []byte("null")) {
		if err := json.Unmarshal(rawNext, &page.Next); err != nil {
			return nil, &DecodeError{URL: pageURL, Reason: "next is not a string", Err: err}
		}
	}
	return page, nil
}

// RequestsIssued returns the number of HTTP attempts made by this client.
func (c *Client) RequestsIssued() int64 {
	return c.requests.Load()
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetSleep replaces the backoff sleep (for testing).
func (c *Client) SetSleep(sleep func(ctx context.Context, d time.Duration) error) {
	c.sleep = sleep
}
