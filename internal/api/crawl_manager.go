package api

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"inspectra/internal/crawler"
	"inspectra/pkg/types"
)

// ErrMaxConcurrency signals that the concurrent crawl limit has been reached.
var ErrMaxConcurrency = errors.New("maximum concurrent crawls reached")

// Crawler is the engine surface the manager drives.
type Crawler interface {
	Crawl(ctx context.Context, req types.CrawlConfig, sink crawler.ProgressSink) (types.CrawlResult, error)
}

const finishedHistory = 32

// CrawlManager admits crawls up to a concurrency limit and runs each on the
// manager's root context, so a crawl outlives the request that started it
// and stops only when the root context is cancelled.
type CrawlManager struct {
	engine         Crawler
	rootCtx        context.Context
	maxConcurrency int
	logger         *slog.Logger

	mu      sync.Mutex
	running int
	seq     int
	runs    map[string]*Run
	order   []string
	wg      sync.WaitGroup
}

// NewCrawlManager constructs a manager. maxConcurrency defaults to 2.
func NewCrawlManager(rootCtx context.Context, engine Crawler, maxConcurrency int, logger *slog.Logger) *CrawlManager {
	if maxConcurrency <= 0 {
		maxConcurrency = 2
	}
	if rootCtx == nil {
		rootCtx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CrawlManager{
		engine:         engine,
		rootCtx:        rootCtx,
		maxConcurrency: maxConcurrency,
		logger:         logger,
		runs:           make(map[string]*Run),
	}
}

// Start admits and launches a crawl. The returned Run streams the crawl's
// events until it finishes or the caller detaches.
func (m *CrawlManager) Start(req types.CrawlConfig) (*Run, error) {
	m.mu.Lock()
	if m.running >= m.maxConcurrency {
		m.mu.Unlock()
		return nil, ErrMaxConcurrency
	}
	m.running++
	m.seq++
	run := newRun("c"+strconv.Itoa(m.seq), req)
	m.runs[run.id] = run
	m.order = append(m.order, run.id)
	m.pruneLocked()
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer m.finish()
		defer close(run.events)
		if _, err := m.engine.Crawl(m.rootCtx, req, run); err != nil {
			m.logger.Warn("crawl ended with error", "crawl", run.id, "seed", req.SeedURL, "error", err)
		}
	}()
	return run, nil
}

// List returns summaries of running and recently finished crawls, newest first.
func (m *CrawlManager) List() []CrawlSummary {
	m.mu.Lock()
	runs := make([]*Run, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, r)
	}
	m.mu.Unlock()

	out := make([]CrawlSummary, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Running reports the number of crawls in flight.
func (m *CrawlManager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Wait blocks until every admitted crawl has returned.
func (m *CrawlManager) Wait() {
	m.wg.Wait()
}

func (m *CrawlManager) finish() {
	m.mu.Lock()
	if m.running > 0 {
		m.running--
	}
	m.mu.Unlock()
}

// pruneLocked drops the oldest finished runs beyond the history limit.
func (m *CrawlManager) pruneLocked() {
	excess := len(m.order) - m.maxConcurrency - finishedHistory
	if excess <= 0 {
		return
	}
	kept := m.order[:0]
	for _, id := range m.order {
		if excess > 0 && m.runs[id].finished() {
			delete(m.runs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
}

// Run is one admitted crawl. It implements crawler.ProgressSink, tracking a
// summary and forwarding events to the attached stream consumer.
type Run struct {
	id       string
	events   chan crawler.Event
	detached chan struct{}
	once     sync.Once

	mu      sync.Mutex
	summary CrawlSummary
}

func newRun(id string, req types.CrawlConfig) *Run {
	return &Run{
		id:       id,
		events:   make(chan crawler.Event, 16),
		detached: make(chan struct{}),
		summary: CrawlSummary{
			ID:        id,
			Request:   req,
			Status:    CrawlStatusRunning,
			State:     crawler.StateInitializing.String(),
			Attached:  true,
			StartedAt: time.Now().UTC(),
		},
	}
}

// ID returns the manager-assigned crawl id.
func (r *Run) ID() string { return r.id }

// Events delivers the crawl's events. The channel closes after the DoneEvent.
func (r *Run) Events() <-chan crawler.Event { return r.events }

// Detach stops delivery to the consumer. The crawl keeps running and later
// events are dropped.
func (r *Run) Detach() {
	r.once.Do(func() {
		close(r.detached)
		r.mu.Lock()
		r.summary.Attached = false
		r.mu.Unlock()
	})
}

// Report satisfies crawler.ProgressSink.
func (r *Run) Report(ev crawler.Event) {
	r.track(ev)
	select {
	case r.events <- ev:
	case <-r.detached:
	}
}

func (r *Run) track(ev crawler.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch e := ev.(type) {
	case crawler.ProgressEvent:
		r.summary.Progress = e.Value
		r.summary.Stage = e.Stage
		if e.Stage == crawler.StageCrawling {
			r.summary.State = crawler.StateCrawling.String()
		}
	case crawler.PageEvent:
		r.summary.State = crawler.StateCrawling.String()
		r.summary.Pages++
		r.summary.LastURL = e.Page.URL
	case crawler.ErrorEvent:
		r.summary.Error = e.Message
	case crawler.DoneEvent:
		now := time.Now().UTC()
		r.summary.CompletedAt = &now
		r.summary.RunID = e.RunID
		if e.Success {
			r.summary.Status = CrawlStatusCompleted
			r.summary.State = crawler.StateCompleted.String()
		} else {
			r.summary.Status = CrawlStatusFailed
			r.summary.State = crawler.StateFailed.String()
			if e.Error != "" {
				r.summary.Error = e.Error
			}
		}
	}
}

// Snapshot returns a copy of the crawl's summary.
func (r *Run) Snapshot() CrawlSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.summary
	if out.CompletedAt != nil {
		completed := *out.CompletedAt
		out.CompletedAt = &completed
	}
	return out
}

func (r *Run) finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary.Status != CrawlStatusRunning
}
