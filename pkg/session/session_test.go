package session

import (
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/cl-extractor/internal/testutil"
	"github.com/Sternrassler/cl-extractor/pkg/checkpoint"
	"github.com/Sternrassler/cl-extractor/pkg/client"
	"github.com/Sternrassler/cl-extractor/pkg/pagination"
	"github.com/Sternrassler/cl-extractor/pkg/ratelimit"
	"github.com/Sternrassler/cl-extractor/pkg/sink"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	mock    *testutil.MockAPI
	session *Session
	store   *checkpoint.FileStore
	dataDir string
}

func newFixture(t *testing.T, limiter ratelimit.Limiter) *fixture {
	t.Helper()

	mock := testutil.NewMockAPI()
	t.Cleanup(mock.Close)

	dataDir := t.TempDir()
	store := checkpoint.NewFileStore(t.TempDir(), zerolog.Nop())

	s, err := New(Deps{
		API:     client.DefaultConfig(mock.BaseURL(), nil),
		Store:   store,
		Sink:    sink.NewLocalSink(dataDir, zerolog.Nop()),
		Limiter: limiter,
		ConfigureClient: func(c *client.Client) {
			c.SetSleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() })
		},
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	return &fixture{mock: mock, session: s, store: store, dataDir: dataDir}
}

func TestNew_Validation(t *testing.T) {
	store := checkpoint.NewFileStore(t.TempDir(), zerolog.Nop())
	local := sink.NewLocalSink(t.TempDir(), zerolog.Nop())

	_, err := New(Deps{API: client.Config{BaseURL: "https://example.test/"}, Sink: local})
	assert.ErrorContains(t, err, "checkpoint store is required")

	_, err = New(Deps{API: client.Config{BaseURL: "https://example.test/"}, Store: store})
	assert.ErrorContains(t, err, "sink is required")

	_, err = New(Deps{Store: store, Sink: local})
	assert.ErrorContains(t, err, "base url is required")
}

func TestFetch_WritesBatches(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.SetPages("positions", testutil.Pages(12, 2))

	summary, err := f.session.Fetch(context.Background(), FetchRequest{Endpoint: "positions", FlushThreshold: 5})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, summary.Status)
	assert.Equal(t, "positions", summary.Stream)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 12, summary.Stats.Pages)
	assert.Equal(t, 24, summary.Stats.Records)
	assert.Equal(t, int64(12), summary.Stats.Requests)
	require.Len(t, summary.Artifacts, 3)

	for _, name := range []string{
		"positions_pages_1_to_5.csv",
		"positions_pages_6_to_10.csv",
		"positions_pages_11_to_12.csv",
	} {
		assert.FileExists(t, filepath.Join(f.dataDir, "positions", name))
	}

	data, err := os.ReadFile(filepath.Join(f.dataDir, "positions", "positions_pages_11_to_12.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 5, "header plus 4 records")

	cp := f.store.Load(context.Background(), "positions")
	assert.Equal(t, 12, cp.LastPage)
	assert.False(t, cp.HasNext())
}

func TestFetch_AuthorScoped(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.SetPages("search", testutil.Pages(3, 2))

	summary, err := f.session.Fetch(context.Background(), FetchRequest{
		Endpoint:     "search",
		Params:       map[string]string{"q": "author_id:42"},
		AuthorScoped: true,
		AuthorID:     "42",
		FlushPolicy:  FlushAtEnd,
		Destination:  "dockets",
	})
	require.NoError(t, err)

	assert.Equal(t, "search_author_42", summary.Stream)
	require.Len(t, summary.Artifacts, 1)
	assert.Equal(t, 6, summary.Artifacts[0].Records)
	assert.FileExists(t, filepath.Join(f.dataDir, "dockets", "Judge_1_42.csv"))

	// The query is sent on the first page and carried by the next links.
	requests := f.mock.Requests()
	require.Len(t, requests, 3)
	for _, r := range requests {
		assert.Contains(t, r, "q=author_id%3A42")
	}

	cp := f.store.Load(context.Background(), "search_author_42")
	assert.Equal(t, 3, cp.LastPage)
}

func TestFetch_InvalidRequestMakesNoRequests(t *testing.T) {
	f := newFixture(t, nil)

	summary, err := f.session.Fetch(context.Background(), FetchRequest{Endpoint: "positions", FlushPolicy: FlushEveryPages})

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, StatusFailed, summary.Status)
	assert.Equal(t, 0, f.mock.GetRequestCount())
}

func TestFetch_ClientErrorFails(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.SetPages("positions", testutil.Pages(4, 1))
	f.mock.FailPage("positions", 2, http.StatusNotFound)

	summary, err := f.session.Fetch(context.Background(), FetchRequest{Endpoint: "positions"})

	var pageErr *pagination.PageError
	require.ErrorAs(t, err, &pageErr)
	assert.Equal(t, 2, pageErr.Page)
	assert.True(t, client.IsClientError(err))
	assert.Equal(t, StatusFailed, summary.Status)
	assert.NotEmpty(t, summary.Error)
	assert.Equal(t, 2, f.mock.GetRequestCount(), "client errors are not retried")

	// The fetched page is still written.
	assert.FileExists(t, filepath.Join(f.dataDir, "positions", "positions_pages_1_to_1.csv"))
}

func TestFetch_RetryExhaustedFails(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.SetPages("education", testutil.Pages(2, 1))
	f.mock.FailPage("education", 1, 500, 500, 500, 500, 500)

	summary, err := f.session.Fetch(context.Background(), FetchRequest{Endpoint: "education"})

	assert.True(t, errors.Is(err, client.ErrRetryExhausted))
	assert.Equal(t, StatusFailed, summary.Status)
	assert.Equal(t, int64(5), summary.Stats.Requests)
	assert.Empty(t, summary.Artifacts)
}

func TestFetch_ResumesAcrossRuns(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.SetPages("positions", testutil.Pages(5, 1))
	req := FetchRequest{Endpoint: "positions", MaxPages: 2, FlushThreshold: 5}

	first, err := f.session.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Stats.LastPage)

	second, err := f.session.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 3, second.Stats.StartPage)
	assert.Equal(t, 4, second.Stats.LastPage)
	assert.FileExists(t, filepath.Join(f.dataDir, "positions", "positions_pages_3_to_4.csv"))
}

func TestFetch_Interrupted(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.SetPages("positions", testutil.Pages(3, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := f.session.Fetch(ctx, FetchRequest{Endpoint: "positions"})
	require.NoError(t, err)
	assert.Equal(t, StatusInterrupted, summary.Status)
	assert.True(t, summary.Stats.Interrupted)
	assert.Equal(t, 0, f.mock.GetRequestCount())
}

func TestFetch_SharedLimiter(t *testing.T) {
	shared := ratelimit.NewFixedWindow(ratelimit.Config{Budget: 100, Scope: "shared"}, zerolog.Nop())
	f := newFixture(t, shared)
	f.mock.SetPages("positions", testutil.Pages(3, 1))
	f.mock.SetPages("education", testutil.Pages(2, 1))

	_, err := f.session.Fetch(context.Background(), FetchRequest{Endpoint: "positions"})
	require.NoError(t, err)
	_, err = f.session.Fetch(context.Background(), FetchRequest{Endpoint: "education"})
	require.NoError(t, err)

	assert.Equal(t, 5, shared.State().Count)
}

// samePersonPages returns one-record pages that all name the same judge,
// as author-scoped search results do.
func samePersonPages(count int, judge string) [][]map[string]any {
	pages := testutil.Pages(count, 1)
	for _, page := range pages {
		for _, r := range page {
			r["judge"] = judge
		}
	}
	return pages
}

// idsOnDisk reads the id column of every CSV file in dir.
func idsOnDisk(t *testing.T, dir string) []string {
	t.Helper()

	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	require.NoError(t, err)

	var ids []string
	for _, p := range paths {
		f, err := os.Open(p)
		require.NoError(t, err)
		rows, err := csv.NewReader(f).ReadAll()
		f.Close()
		require.NoError(t, err)
		require.NotEmpty(t, rows, p)

		col := -1
		for i, name := range rows[0] {
			if name == "id" {
				col = i
			}
		}
		require.GreaterOrEqual(t, col, 0, "no id column in %s", p)
		for _, row := range rows[1:] {
			ids = append(ids, row[col])
		}
	}
	sort.Strings(ids)
	return ids
}

func TestFetch_AuthorScopedResumeKeepsEarlierArtifact(t *testing.T) {
	tests := []struct {
		name      string
		maxPages  int
		cutShort  func(f *fixture)
		firstFail bool
	}{
		{
			name:      "client error on page 3",
			cutShort:  func(f *fixture) { f.mock.FailPage("search", 3, http.StatusNotFound) },
			firstFail: true,
		},
		{
			name:     "page cap",
			maxPages: 2,
			cutShort: func(f *fixture) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.mock.SetPages("search", samePersonPages(4, "Jane Roe"))
			tt.cutShort(f)

			req := FetchRequest{
				Endpoint:     "search",
				Params:       map[string]string{"q": "author_id:7"},
				MaxPages:     tt.maxPages,
				AuthorScoped: true,
				AuthorID:     "7",
				FlushPolicy:  FlushAtEnd,
				Destination:  "dockets",
			}

			first, err := f.session.Fetch(context.Background(), req)
			if tt.firstFail {
				require.Error(t, err)
				assert.Equal(t, StatusFailed, first.Status)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, 2, first.Stats.LastPage)

			second, err := f.session.Fetch(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, StatusSuccess, second.Status)
			assert.Equal(t, 3, second.Stats.StartPage)

			dir := filepath.Join(f.dataDir, "dockets")
			assert.FileExists(t, filepath.Join(dir, "Jane_Roe_7.csv"))
			assert.FileExists(t, filepath.Join(dir, "Jane_Roe_7_pages_3_to_4.csv"))
			assert.Equal(t, []string{"1", "2", "3", "4"}, idsOnDisk(t, dir))
		})
	}
}
