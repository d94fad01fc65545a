package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sternrassler/cl-extractor/internal/testutil"
	"github.com/Sternrassler/cl-extractor/pkg/checkpoint"
	"github.com/Sternrassler/cl-extractor/pkg/session"
	"github.com/rs/zerolog"
)

type testEnv struct {
	mock    *testutil.MockAPI
	dir     string
	cfgPath string
}

// newTestEnv writes a config pointing at a mock API and temp directories.
// extra is appended to the YAML document.
func newTestEnv(t *testing.T, extra string) *testEnv {
	t.Helper()

	mock := testutil.NewMockAPI()
	t.Cleanup(mock.Close)

	dir := t.TempDir()
	chdir(t, dir)

	content := fmt.Sprintf(`api:
  base_url: %s
retry:
  initial_backoff: 1ms
storage:
  location: %s
checkpoint:
  dir: %s
logging:
  level: error
%s`, mock.BaseURL(), filepath.Join(dir, "data"), filepath.Join(dir, "checkpoints"), extra)

	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return &testEnv{mock: mock, dir: dir, cfgPath: cfgPath}
}

func (e *testEnv) execute(args ...string) (string, error) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"--config", e.cfgPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func (e *testEnv) assertFile(t *testing.T, rel string) {
	t.Helper()
	if _, err := os.Stat(filepath.Join(e.dir, rel)); err != nil {
		t.Errorf("expected %s to exist: %v", rel, err)
	}
}

func TestRootCmd_Help(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("--help failed: %v", err)
	}

	out := buf.String()
	for _, name := range []string{"run", "positions", "education", "disclosures", "dockets", "checkpoint"} {
		if !strings.Contains(out, name) {
			t.Errorf("expected help output to list %q, got:\n%s", name, out)
		}
	}
}

func TestRootCmd_UnknownCommand(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{"opinions"})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestPositionsCmd(t *testing.T) {
	env := newTestEnv(t, "")
	env.mock.SetPages("positions", testutil.Pages(7, 2))

	out, err := env.execute("positions", "--max-pages", "3", "--flush-threshold", "2")
	if err != nil {
		t.Fatalf("positions failed: %v\n%s", err, out)
	}

	if !strings.Contains(out, "success") || !strings.Contains(out, "pages=3 records=6") {
		t.Errorf("unexpected summary:\n%s", out)
	}
	env.assertFile(t, "data/positions/positions_pages_1_to_2.csv")
	env.assertFile(t, "data/positions/positions_pages_3_to_3.csv")
	env.assertFile(t, "checkpoints/positions_checkpoint.txt")

	if got := env.mock.GetRequestCount(); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestPositionsCmd_ClientErrorFails(t *testing.T) {
	env := newTestEnv(t, "")
	env.mock.SetPages("positions", testutil.Pages(3, 1))
	env.mock.FailPage("positions", 1, http.StatusNotFound)

	out, err := env.execute("positions")
	if err == nil {
		t.Fatalf("expected error, got output:\n%s", out)
	}
	if !strings.Contains(out, "failed") {
		t.Errorf("expected failed summary, got:\n%s", out)
	}
	if got := env.mock.GetRequestCount(); got != 1 {
		t.Errorf("requests = %d, want 1 (no retries)", got)
	}
}

func TestDocketsCmd(t *testing.T) {
	env := newTestEnv(t, "")
	env.mock.SetPages("search", testutil.Pages(2, 1))

	out, err := env.execute("dockets", "--author-id", "42")
	if err != nil {
		t.Fatalf("dockets failed: %v\n%s", err, out)
	}

	if !strings.Contains(out, "search_author_42") {
		t.Errorf("expected stream id in output, got:\n%s", out)
	}
	env.assertFile(t, "data/dockets/Judge_1_42.csv")
	env.assertFile(t, "checkpoints/search_author_42_checkpoint.txt")
}

func TestDocketsCmd_FlushThreshold(t *testing.T) {
	env := newTestEnv(t, "")
	env.mock.SetPages("search", testutil.Pages(2, 1))

	out, err := env.execute("dockets", "--author-id", "42", "--flush-threshold", "1")
	if err != nil {
		t.Fatalf("dockets failed: %v\n%s", err, out)
	}

	env.assertFile(t, "data/dockets/Judge_1_42_pages_1_to_1.csv")
	env.assertFile(t, "data/dockets/Judge_2_42_pages_2_to_2.csv")
}

func TestDocketsCmd_RequiresAuthor(t *testing.T) {
	env := newTestEnv(t, "")

	_, err := env.execute("dockets")
	if err == nil || !strings.Contains(err.Error(), "author-id") {
		t.Fatalf("expected missing author-id error, got %v", err)
	}
}

func TestRunCmd_Jobs(t *testing.T) {
	env := newTestEnv(t, `concurrency: 2
jobs:
  - dataset: positions
    max_pages: 2
  - dataset: education
`)
	env.mock.SetPages("positions", testutil.Pages(4, 1))
	env.mock.SetPages("education", testutil.Pages(3, 2))

	out, err := env.execute("--json", "run")
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}

	var summaries []session.Summary
	if err := json.Unmarshal([]byte(out), &summaries); err != nil {
		t.Fatalf("decode summaries: %v\n%s", err, out)
	}
	if len(summaries) != 2 {
		t.Fatalf("summaries = %d, want 2", len(summaries))
	}

	want := map[string]int{"positions": 2, "education": 3}
	for _, s := range summaries {
		if s.Status != session.StatusSuccess {
			t.Errorf("%s status = %s, want success", s.Stream, s.Status)
		}
		if s.Stats.Pages != want[s.Stream] {
			t.Errorf("%s pages = %d, want %d", s.Stream, s.Stats.Pages, want[s.Stream])
		}
	}
	env.assertFile(t, "data/education/education_pages_1_to_3.csv")
}

func TestRunCmd_NoJobs(t *testing.T) {
	env := newTestEnv(t, "")

	_, err := env.execute("run")
	if err == nil || !strings.Contains(err.Error(), "no jobs configured") {
		t.Fatalf("expected no jobs error, got %v", err)
	}
}

func TestRunCmd_InvalidConfig(t *testing.T) {
	env := newTestEnv(t, "jobs:\n  - dataset: opinions\n")

	_, err := env.execute("run")
	if err == nil || !strings.Contains(err.Error(), "loading config") {
		t.Fatalf("expected config error, got %v", err)
	}
	if got := env.mock.GetRequestCount(); got != 0 {
		t.Errorf("requests = %d, want 0", got)
	}
}

func TestCheckpointCmd_ShowAndReset(t *testing.T) {
	env := newTestEnv(t, "")

	store := checkpoint.NewFileStore(filepath.Join(env.dir, "checkpoints"), zerolog.Nop())
	cp := checkpoint.Checkpoint{
		CurrentURL: "https://example.test/positions/?page=4",
		NextURL:    "https://example.test/positions/?page=5",
		LastPage:   4,
	}
	if err := store.Save(context.Background(), "positions", cp); err != nil {
		t.Fatalf("save: %v", err)
	}

	out, err := env.execute("checkpoint", "show", "positions")
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}
	if !strings.Contains(out, "Last successfully fetched page: 4") {
		t.Errorf("unexpected show output:\n%s", out)
	}

	if _, err := env.execute("checkpoint", "reset", "positions"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if got := store.Load(context.Background(), "positions"); got.HasNext() {
		t.Errorf("checkpoint still present after reset: %+v", got)
	}
}

func TestCheckpointCmd_ID(t *testing.T) {
	env := newTestEnv(t, "")

	out, err := env.execute("checkpoint", "id", "--endpoint", "search", "--author-id", "1213")
	if err != nil {
		t.Fatalf("id failed: %v", err)
	}
	if strings.TrimSpace(out) != "search_author_1213" {
		t.Errorf("id = %q, want search_author_1213", strings.TrimSpace(out))
	}
}

func TestLoadEnvFile(t *testing.T) {
	chdir(t, t.TempDir())

	if err := loadEnvFile(""); err != nil {
		t.Errorf("missing default .env should be ignored, got %v", err)
	}
	if err := loadEnvFile("missing.env"); err == nil {
		t.Error("expected error for missing explicit env file")
	}

	t.Setenv("CLX_TEST_ENV_VALUE", "")
	os.Unsetenv("CLX_TEST_ENV_VALUE")
	if err := os.WriteFile(".env", []byte("CLX_TEST_ENV_VALUE=from-dotenv\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := loadEnvFile(""); err != nil {
		t.Fatalf("loadEnvFile: %v", err)
	}
	if got := os.Getenv("CLX_TEST_ENV_VALUE"); got != "from-dotenv" {
		t.Errorf("CLX_TEST_ENV_VALUE = %q, want from-dotenv", got)
	}
}

// chdir changes the working directory for the duration of the test,
// equivalent to testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
