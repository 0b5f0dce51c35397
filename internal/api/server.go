package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"inspectra/internal/config"
	"inspectra/internal/crawler"
	"inspectra/internal/storage"
)

// RunStore reads persisted crawls.
type RunStore interface {
	ListRuns(ctx context.Context, params storage.RunListParams) (storage.RunList, error)
	LoadResult(ctx context.Context, runID string) (storage.StoredRun, error)
}

// Server exposes the HTTP API for starting crawls and reading their results.
type Server struct {
	manager   *CrawlManager
	results   *crawler.ResultCache
	store     RunStore
	defaults  config.CrawlConfig
	heartbeat time.Duration
	logger    *slog.Logger
	mux       *http.ServeMux
}

// NewServer wires handlers onto an HTTP mux. store may be nil when
// persistence is disabled.
func NewServer(cfg config.Config, manager *CrawlManager, results *crawler.ResultCache, store RunStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	heartbeat := cfg.Server.Heartbeat.Duration
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	s := &Server{
		manager:   manager,
		results:   results,
		store:     store,
		defaults:  cfg.Crawl,
		heartbeat: heartbeat,
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP satisfies the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/crawl", s.handleStartCrawl)
	s.mux.HandleFunc("/api/crawl/stream", s.handleStreamCrawl)
	s.mux.HandleFunc("/api/crawl/latest", s.handleLatest)
	s.mux.HandleFunc("/api/crawl/active", s.handleActive)
	s.mux.HandleFunc("/api/crawls", s.handleRuns)
	s.mux.HandleFunc("/api/crawls/", s.handleRunByID)
	s.mux.HandleFunc(openAPIPath, s.handleOpenAPI)
	s.mux.HandleFunc("/docs", s.handleDocs)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"running":   s.manager.Running(),
		"storage":   s.store != nil,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleStartCrawl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req StartCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid json payload: %v", err), http.StatusBadRequest)
		return
	}
	s.streamCrawl(w, r, req)
}

func (s *Server) handleStreamCrawl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	req, err := requestFromQuery(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.streamCrawl(w, r, req)
}

// streamCrawl starts the crawl and relays its events as Server-Sent Events.
// A client that goes away only detaches; the crawl runs to completion.
func (s *Server) streamCrawl(w http.ResponseWriter, r *http.Request, req StartCrawlRequest) {
	cfg, err := req.toConfig(s.defaults)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	run, err := s.manager.Start(cfg)
	if err != nil {
		if errors.Is(err, ErrMaxConcurrency) {
			http.Error(w, err.Error(), http.StatusTooManyRequests)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer run.Detach()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Crawl-Id", run.ID())
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case evt, open := <-run.Events():
			if !open {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				s.logger.Warn("encode event failed", "crawl", run.ID(), "type", evt.Type(), "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type(), payload); err != nil {
				s.logger.Debug("stream consumer gone", "crawl", run.ID(), "error", err)
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			s.logger.Info("stream consumer detached", "crawl", run.ID())
			return
		}
	}
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	res, err := s.results.Latest()
	if err != nil {
		if errors.Is(err, crawler.ErrNoResult) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, s.manager.List())
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if s.store == nil {
		http.Error(w, "result storage is not configured", http.StatusServiceUnavailable)
		return
	}
	params := storage.RunListParams{
		Page:     queryInt(r, "page"),
		PageSize: queryInt(r, "page_size"),
	}
	list, err := s.store.ListRuns(r.Context(), params)
	if err != nil {
		s.logger.Error("list runs failed", "error", err)
		http.Error(w, "failed to list crawls", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleRunByID(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/crawls/"), "/")
	if trimmed == "" || strings.Contains(trimmed, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	runID, err := url.PathUnescape(trimmed)
	if err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return
	}
	if s.store == nil {
		http.Error(w, "result storage is not configured", http.StatusServiceUnavailable)
		return
	}
	run, err := s.store.LoadResult(r.Context(), runID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.logger.Error("load run failed", "run", runID, "error", err)
		http.Error(w, "failed to load crawl", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}
