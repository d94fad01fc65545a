// Package testutil provides testing utilities for the extraction engine.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// APIPrefix is the path under which MockAPI serves endpoints.
const APIPrefix = "/api/rest/v4/"

// MockAPIResponse defines the behavior for a mock endpoint response.
type MockAPIResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI is a configurable mock of a paginated JSON API.
//
// Endpoints registered with SetPages serve {"results": [...], "next": ...}
// documents. Page n is addressed by the "page" query parameter and the next
// link carries every other query parameter of the request.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	pages    map[string][][]map[string]any
	failures map[string][]int

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
	requests          []string
}

// NewMockAPI creates a new mock API server.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
		pages:    make(map[string][][]map[string]any),
		failures: make(map[string][]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.requests = append(mock.requests, r.URL.RequestURI())
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		mock.pageHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// BaseURL returns the API root to configure clients with.
func (m *MockAPI) BaseURL() string {
	return m.server.URL + APIPrefix
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.requests = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockAPI) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockAPI) SetResponse(path string, resp MockAPIResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetPages registers the pages of an endpoint, page 1 first.
func (m *MockAPI) SetPages(endpoint string, pages [][]map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[endpointPath(endpoint)] = pages
}

// FailPage makes the next requests for page of endpoint answer with the
// given status codes, in order, before the page is served normally.
func (m *MockAPI) FailPage(endpoint string, page int, statuses ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := failureKey(endpointPath(endpoint), page)
	m.failures[key] = append(m.failures[key], statuses...)
}

// PageURL returns the URL of page n of endpoint with extra query parameters.
func (m *MockAPI) PageURL(endpoint string, page int, params url.Values) string {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	u := m.server.URL + endpointPath(endpoint)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// Requests returns the request URIs received, in order.
func (m *MockAPI) Requests() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.requests))
	copy(out, m.requests)
	return out
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockAPI) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

func (m *MockAPI) pageHandler(w http.ResponseWriter, r *http.Request) {
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			http.Error(w, `{"detail": "Invalid page."}`, http.StatusNotFound)
			return
		}
		page = n
	}

	m.mu.Lock()
	pages, ok := m.pages[r.URL.Path]
	key := failureKey(r.URL.Path, page)
	var status int
	if queued := m.failures[key]; len(queued) > 0 {
		status = queued[0]
		m.failures[key] = queued[1:]
	}
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if status != 0 {
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"detail": "status %d"}`, status)
		return
	}
	if !ok || page > len(pages) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail": "Not found."}`))
		return
	}

	doc := map[string]any{
		"count":   countRecords(pages),
		"results": pages[page-1],
		"next":    nil,
	}
	if page < len(pages) {
		q := r.URL.Query()
		q.Set("page", strconv.Itoa(page+1))
		doc["next"] = m.server.URL + r.URL.Path + "?" + q.Encode()
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(doc)
}

// Records generates n records with ids starting at first.
func Records(first, n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		id := first + i
		out[i] = map[string]any{
			"id":           id,
			"resource_uri": fmt.Sprintf("https://example.test/api/rest/v4/items/%d/", id),
			"judge":        fmt.Sprintf("Judge %d", id),
		}
	}
	return out
}

// Pages generates count pages of perPage records each.
func Pages(count, perPage int) [][]map[string]any {
	pages := make([][]map[string]any, count)
	for i := range pages {
		pages[i] = Records(i*perPage+1, perPage)
	}
	return pages
}

// NewServerErrorResponse creates a 503 Service Unavailable response.
func NewServerErrorResponse() MockAPIResponse {
	return MockAPIResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       `{"detail": "Service unavailable"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockAPIResponse {
	return MockAPIResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"detail": "Not found."}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

func endpointPath(endpoint string) string {
	return APIPrefix + strings.Trim(endpoint, "/") + "/"
}

func failureKey(path string, page int) string {
	return path + "#" + strconv.Itoa(page)
}

func countRecords(pages [][]map[string]any) int {
	n := 0
	for _, p := range pages {
		n += len(p)
	}
	return n
}
