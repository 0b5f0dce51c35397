package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"inspectra/internal/browser/browsertest"
	"inspectra/internal/config"
	"inspectra/internal/crawler"
	"inspectra/internal/storage"
	"inspectra/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, store RunStore) (*Server, *CrawlManager) {
	t.Helper()
	cfg := config.Default()
	cfg.Browser.HydrationDelay = config.DurationFrom(0)
	cfg.Browser.NavigationTimeout = config.DurationFrom(time.Second)

	launcher := browsertest.New(map[string]browsertest.Page{
		"https://example.com":       {HTML: `<html><head><title>Home</title></head><body><a href="/login">in</a><a href="/docs">docs</a></body></html>`},
		"https://example.com/login": {HTML: `<html><head><title>Sign in</title></head><body><form><input type="password"></form></body></html>`},
		"https://example.com/docs":  {HTML: `<html><head><title>Docs</title></head><body></body></html>`},
	})
	engine, err := crawler.NewEngine(cfg, crawler.WithLogger(testLogger()), crawler.WithLauncher(launcher))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	manager := NewCrawlManager(context.Background(), engine, 2, testLogger())
	t.Cleanup(manager.Wait)
	return NewServer(cfg, manager, engine.Results(), store, testLogger()), manager
}

func TestServerHandlers(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t, nil)

	assertRoute(t, server, http.MethodGet, "/health", http.StatusOK, "application/json")
	assertRoute(t, server, http.MethodGet, "/openapi.yaml", http.StatusOK, "application/yaml")
	assertRoute(t, server, http.MethodGet, "/docs", http.StatusOK, "text/html; charset=utf-8")
	assertRoute(t, server, http.MethodGet, "/api/crawl/latest", http.StatusNotFound, "application/json")
	assertRoute(t, server, http.MethodGet, "/api/crawl/active", http.StatusOK, "application/json")
	assertRoute(t, server, http.MethodGet, "/api/crawls", http.StatusServiceUnavailable, "")
	assertRoute(t, server, http.MethodDelete, "/health", http.StatusMethodNotAllowed, "")
	assertRoute(t, server, http.MethodGet, "/api/crawl", http.StatusMethodNotAllowed, "")
}

func TestDocsPageDescribesAPI(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t, nil)
	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/docs", nil))

	body := rr.Body.String()
	for _, want := range []string{"<title>Inspectra API</title>", "url: '/openapi.yaml'", "/api/crawl/stream", "/api/crawl/latest"} {
		if !strings.Contains(body, want) {
			t.Fatalf("docs page missing %q", want)
		}
	}
}

func TestStartCrawlRejectsMissingURL(t *testing.T) {
	t.Parallel()

	server, manager := newTestServer(t, nil)

	for _, tc := range []struct {
		name string
		req  *http.Request
	}{
		{"post without url", httptest.NewRequest(http.MethodPost, "/api/crawl", strings.NewReader(`{"maxPages":3}`))},
		{"post invalid json", httptest.NewRequest(http.MethodPost, "/api/crawl", strings.NewReader(`{`))},
		{"stream without url", httptest.NewRequest(http.MethodGet, "/api/crawl/stream", nil)},
		{"stream bad maxPages", httptest.NewRequest(http.MethodGet, "/api/crawl/stream?url=https://example.com&maxPages=x", nil)},
		{"zero maxPages", httptest.NewRequest(http.MethodPost, "/api/crawl", strings.NewReader(`{"url":"https://example.com","maxPages":0}`))},
	} {
		rr := httptest.NewRecorder()
		server.ServeHTTP(rr, tc.req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d (%s)", tc.name, rr.Code, rr.Body.String())
		}
	}
	if got := len(manager.List()); got != 0 {
		t.Fatalf("rejected requests must not start crawls, got %d", got)
	}
}

func TestStartCrawlStreamsEvents(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t, nil)
	srv := httptest.NewServer(server)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/crawl", "application/json", strings.NewReader(`{"url":"https://example.com","maxDepth":1}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	frames := parseFrames(t, string(body))
	if len(frames) == 0 || frames[len(frames)-1].event != "done" {
		t.Fatalf("expected stream to end with done, got %+v", frames)
	}
	pages := 0
	for _, f := range frames {
		var typed struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal([]byte(f.data), &typed); err != nil {
			t.Fatalf("decode frame %q: %v", f.data, err)
		}
		if typed.Type != f.event {
			t.Fatalf("frame event %q carries type %q", f.event, typed.Type)
		}
		if f.event == "page" {
			pages++
		}
	}
	if pages != 3 {
		t.Fatalf("expected 3 page events, got %d", pages)
	}
	var done struct {
		Success    bool `json:"success"`
		TotalPages int  `json:"totalPages"`
	}
	if err := json.Unmarshal([]byte(frames[len(frames)-1].data), &done); err != nil {
		t.Fatalf("decode done: %v", err)
	}
	if !done.Success || done.TotalPages != 3 {
		t.Fatalf("unexpected done payload: %+v", done)
	}

	latest, err := http.Get(srv.URL + "/api/crawl/latest")
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	defer latest.Body.Close()
	if latest.StatusCode != http.StatusOK {
		t.Fatalf("expected latest 200, got %d", latest.StatusCode)
	}
	var res types.CrawlResult
	if err := json.NewDecoder(latest.Body).Decode(&res); err != nil {
		t.Fatalf("decode latest: %v", err)
	}
	if len(res.Pages) != 3 || len(res.Edges) != 2 {
		t.Fatalf("unexpected latest result: %+v", res)
	}
}

func TestStreamCrawlInvalidSeedEndsWithDone(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t, nil)
	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/crawl/stream?url=not+a+url", nil))

	frames := parseFrames(t, rr.Body.String())
	if len(frames) != 3 {
		t.Fatalf("expected log, error and done frames, got %+v", frames)
	}
	if frames[1].event != "error" || frames[2].event != "done" {
		t.Fatalf("unexpected frames: %+v", frames)
	}
	if !strings.Contains(frames[2].data, `"success":false`) {
		t.Fatalf("expected failed done, got %s", frames[2].data)
	}
}

type fakeRunStore struct {
	runs map[string]storage.StoredRun
}

func (f fakeRunStore) ListRuns(ctx context.Context, params storage.RunListParams) (storage.RunList, error) {
	list := storage.RunList{Page: 1, PageSize: 20, Items: []storage.RunSummary{}}
	for _, r := range f.runs {
		list.Items = append(list.Items, r.RunSummary)
	}
	list.TotalCount = len(list.Items)
	return list, nil
}

func (f fakeRunStore) LoadResult(ctx context.Context, runID string) (storage.StoredRun, error) {
	run, ok := f.runs[runID]
	if !ok {
		return storage.StoredRun{}, storage.ErrNotFound
	}
	return run, nil
}

func TestStoredRunRoutes(t *testing.T) {
	t.Parallel()

	store := fakeRunStore{runs: map[string]storage.StoredRun{
		"run-1": {
			RunSummary: storage.RunSummary{RunID: "run-1", PageCount: 1},
			Result:     types.CrawlResult{SeedURL: "https://example.com/"},
		},
	}}
	server, _ := newTestServer(t, store)

	assertRoute(t, server, http.MethodGet, "/api/crawls", http.StatusOK, "application/json")
	assertRoute(t, server, http.MethodGet, "/api/crawls/run-1", http.StatusOK, "application/json")
	assertRoute(t, server, http.MethodGet, "/api/crawls/missing", http.StatusNotFound, "")
	assertRoute(t, server, http.MethodGet, "/api/crawls/run-1/extra", http.StatusNotFound, "")
}

type frame struct {
	event string
	data  string
}

func parseFrames(t *testing.T, body string) []frame {
	t.Helper()
	var frames []frame
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" || strings.HasPrefix(block, ":") {
			continue
		}
		var f frame
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				f.event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				f.data = strings.TrimPrefix(line, "data: ")
			}
		}
		if f.event == "" {
			t.Fatalf("frame without event: %q", block)
		}
		frames = append(frames, f)
	}
	return frames
}

func assertRoute(t *testing.T, h http.Handler, method, path string, wantStatus int, wantContentType string) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != wantStatus {
		t.Fatalf("%s %s: expected status %d, got %d (body=%s)", method, path, wantStatus, rr.Code, rr.Body.String())
	}
	if wantContentType != "" {
		if got := rr.Header().Get("Content-Type"); got != wantContentType {
			t.Fatalf("%s %s: expected content-type %s, got %s", method, path, wantContentType, got)
		}
	}
	if rr.Body.Len() == 0 {
		t.Fatalf("%s %s: expected non-empty body", method, path)
	}
}
