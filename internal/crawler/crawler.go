// Package crawler implements the breadth-first discovery crawl: URL
// normalization, admission policy, the frontier, page visits and graph assembly.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"inspectra/internal/browser"
	"inspectra/internal/classify"
	"inspectra/internal/config"
	"inspectra/internal/processor"
	robotsclient "inspectra/internal/robots"
	"inspectra/pkg/types"
)

var (
	// ErrInvalidSeed is returned when the seed URL cannot be crawled.
	ErrInvalidSeed = errors.New("invalid seed url")
	// ErrBrowserUnavailable is returned when the browser capability fails to launch.
	ErrBrowserUnavailable = errors.New("browser unavailable")
)

// State is the lifecycle position of the most recent crawl.
type State int32

const (
	StateIdle State = iota
	StateInitializing
	StateCrawling
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateCrawling:
		return "crawling"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ResultStore persists completed crawls.
type ResultStore interface {
	SaveResult(ctx context.Context, runID string, req types.CrawlConfig, res types.CrawlResult) error
}

// RobotsChecker gates dequeued URLs on robots.txt rules.
type RobotsChecker interface {
	Allowed(ctx context.Context, target *url.URL) bool
}

// Engine runs crawls. Each Crawl call is sequential internally; separate calls
// may run concurrently and share only the result cache and the store.
type Engine struct {
	cfg        config.Config
	launcher   browser.Launcher
	classifier Classifier
	sampler    *processor.Sampler
	cache      *ResultCache
	store      ResultStore
	robots     RobotsChecker
	limiter    *DomainLimiter
	logger     *slog.Logger
	newRunID   func() string

	state atomic.Int32
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithLauncher replaces the browser capability selected by configuration.
func WithLauncher(l browser.Launcher) Option {
	return func(e *Engine) { e.launcher = l }
}

// WithClassifier replaces the heuristic page-type classifier.
func WithClassifier(c Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

// WithResultCache shares a latest-result cache with other readers.
func WithResultCache(c *ResultCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithStore persists each completed crawl.
func WithStore(s ResultStore) Option {
	return func(e *Engine) { e.store = s }
}

// WithRobots replaces the robots.txt checker built from configuration.
func WithRobots(r RobotsChecker) Option {
	return func(e *Engine) { e.robots = r }
}

// NewEngine builds an engine from configuration.
func NewEngine(cfg config.Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:        cfg,
		classifier: classify.Default(),
		sampler:    processor.NewSampler(cfg.Browser.MaxSampleBytes),
		limiter:    NewDomainLimiter(cfg.Politeness),
		newRunID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		logger, err := BuildLogger(cfg.Logging, nil)
		if err != nil {
			return nil, err
		}
		e.logger = logger
	}
	if e.cache == nil {
		e.cache = NewResultCache()
	}
	if e.robots == nil && cfg.Robots.Respect {
		e.robots = robotsclient.NewAgent(cfg.Robots, nil)
	}
	if e.launcher == nil {
		launcher, err := newLauncher(cfg.Browser, e.logger)
		if err != nil {
			return nil, err
		}
		e.launcher = launcher
	}
	return e, nil
}

func newLauncher(cfg config.BrowserConfig, logger *slog.Logger) (browser.Launcher, error) {
	switch strings.ToLower(cfg.Engine) {
	case "chromedp", "chrome", "":
		patterns := make([]*regexp.Regexp, 0, len(cfg.APIPatterns))
		for _, raw := range cfg.APIPatterns {
			pat, err := regexp.Compile(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid api pattern %q: %w", raw, err)
			}
			patterns = append(patterns, pat)
		}
		return browser.NewChromeLauncher(browser.ChromeOptions{
			Headless:     cfg.Headless,
			ExecPath:     cfg.ExecPath,
			UserAgent:    cfg.UserAgent,
			NetworkIdle:  cfg.NetworkIdle.Duration,
			MaxHTMLBytes: cfg.MaxBodyBytes,
			APIPatterns:  patterns,
		}, logger), nil
	case "http":
		return browser.NewHTTPLauncher(browser.HTTPOptions{
			UserAgent:    cfg.UserAgent,
			Timeout:      cfg.NavigationTimeout.Duration,
			MaxBodyBytes: cfg.MaxBodyBytes,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported browser engine %q", cfg.Engine)
	}
}

// State reports the lifecycle state of the most recently started crawl. An
// Engine shared by concurrent crawls reports whichever crawl changed state
// last; callers tracking several crawls follow each one's events instead.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Results exposes the latest-result cache.
func (e *Engine) Results() *ResultCache {
	return e.cache
}

// Defaults fills unset request fields from configuration.
func (e *Engine) Defaults(req types.CrawlConfig) types.CrawlConfig {
	req.SeedURL = strings.TrimSpace(req.SeedURL)
	if req.MaxPages <= 0 {
		req.MaxPages = e.cfg.Crawl.MaxPages
	}
	if req.MaxDepth < 0 {
		req.MaxDepth = e.cfg.Crawl.MaxDepth
	}
	if strings.TrimSpace(req.DeviceProfile) == "" {
		req.DeviceProfile = e.cfg.Crawl.DeviceProfile
	}
	return req
}

// Crawl explores the site reachable from req.SeedURL breadth-first and reports
// lifecycle events to sink. Exactly one DoneEvent is reported per call. Failures
// to start the crawl, and cancellation of ctx, end it in the Failed state.
func (e *Engine) Crawl(ctx context.Context, req types.CrawlConfig, sink ProgressSink) (res types.CrawlResult, err error) {
	if sink == nil {
		sink = Discard
	}
	runID := e.newRunID()
	logger := e.logger.With("run", runID)
	e.state.Store(int32(StateInitializing))
	req = e.Defaults(req)

	fail := func(cause error) (types.CrawlResult, error) {
		e.state.Store(int32(StateFailed))
		logger.Error("crawl failed", "seed", req.SeedURL, "error", cause)
		sink.Report(ErrorEvent{Message: cause.Error()})
		sink.Report(DoneEvent{Success: false, Error: cause.Error()})
		return types.CrawlResult{}, cause
	}
	defer func() {
		if r := recover(); r != nil {
			res, err = fail(fmt.Errorf("crawl aborted: %v", r))
		}
	}()

	sink.Report(LogEvent{Level: "info", Text: "Starting crawl of " + req.SeedURL})
	seed, err := resolveSeed(req.SeedURL)
	if err != nil {
		return fail(err)
	}
	policy, err := NewPolicy(seed.Hostname(), req.IncludeSubdomains, req.MaxPages, req.MaxDepth,
		e.cfg.Crawl.MaxLinksPerPage, e.cfg.Crawl.IncludePatterns, e.cfg.Crawl.ExcludePatterns)
	if err != nil {
		return fail(err)
	}
	logger.Info("crawl starting", "seed", seed.String(), "max_pages", req.MaxPages, "max_depth", req.MaxDepth,
		"include_subdomains", req.IncludeSubdomains, "device", req.DeviceProfile, "requires_auth", req.RequiresAuth)

	profile := browser.ResolveProfile(req.DeviceProfile)
	sink.Report(LogEvent{Level: "info", Text: "Launching browser (" + profile.Name + ")"})
	sink.Report(ProgressEvent{Value: 2, Stage: StageLaunch})
	br, err := e.launcher.Launch(ctx, profile)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrBrowserUnavailable, err))
	}
	defer func() {
		if cerr := br.Close(); cerr != nil {
			logger.Warn("close browser failed", "error", cerr)
		}
	}()

	visitor := &Visitor{
		browser:           br,
		policy:            policy,
		classifier:        e.classifier,
		sampler:           e.sampler,
		limiter:           e.limiter,
		logger:            logger,
		navigationTimeout: e.cfg.Browser.NavigationTimeout.Duration,
		hydrationDelay:    e.cfg.Browser.HydrationDelay.Duration,
		settleDelay:       e.cfg.Browser.SettleDelay.Duration,
	}
	if visitor.navigationTimeout <= 0 {
		visitor.navigationTimeout = 25 * time.Second
	}
	if dir := e.cfg.Browser.ScreenshotDir; dir != "" {
		visitor.screenshotDir = filepath.Join(dir, runID)
	}

	visited := NewVisited()
	frontier := NewFrontier(visited)
	graph := NewGraph()

	e.state.Store(int32(StateCrawling))
	frontier.Push(types.FrontierEntry{URL: seed.String(), Depth: 0})
	sink.Report(LogEvent{Level: "info", Text: "Starting breadth-first crawl"})
	sink.Report(ProgressEvent{Value: 5, Stage: StageStart})

	for frontier.Len() > 0 && visited.Len() < req.MaxPages {
		if err := ctx.Err(); err != nil {
			return fail(fmt.Errorf("crawl cancelled: %w", err))
		}
		entry, _ := frontier.Pop()
		key := Normalize(entry.URL)
		if visited.Has(key) {
			continue
		}
		if !policy.Admit(key, visited.Len()) {
			logger.Debug("url rejected by policy", "url", entry.URL)
			continue
		}
		if e.robots != nil {
			if target, perr := url.Parse(entry.URL); perr == nil && !e.robots.Allowed(ctx, target) {
				logger.Debug("blocked by robots", "url", entry.URL)
				continue
			}
		}

		visited.Mark(key)
		id := types.PageIDFor(visited.Len())
		visit := visitor.Visit(ctx, entry.URL, key, id, entry.Depth, entry.DiscoveredFrom)
		if err := graph.AddPage(visit.Record); err != nil {
			return fail(fmt.Errorf("record page %s: %w", id, err))
		}

		rec := visit.Record
		if rec.Degraded() {
			sink.Report(LogEvent{Level: "error", Text: fmt.Sprintf("Failed to visit %s: %s", rec.URL, rec.Error)})
		} else {
			sink.Report(LogEvent{Level: "info", Text: fmt.Sprintf("Visited %s (%d, %s)", rec.URL, rec.StatusCode, rec.PageType)})
		}
		sink.Report(PageEvent{Page: rec})
		sink.Report(ProgressEvent{Value: crawlPercent(visited.Len(), req.MaxPages), Stage: StageCrawling})

		for _, candidate := range visit.Candidates {
			if visited.Len() >= req.MaxPages {
				break
			}
			parent := id
			frontier.Push(types.FrontierEntry{URL: candidate, Depth: entry.Depth + 1, DiscoveredFrom: &parent})
		}
	}

	res = graph.Result(seed.String(), time.Now().UTC())
	e.cache.Publish(res)
	if e.store != nil {
		if serr := e.store.SaveResult(ctx, runID, req, res); serr != nil {
			logger.Error("persist crawl failed", "error", serr)
		}
	}
	e.state.Store(int32(StateCompleted))
	logger.Info("crawl completed", "pages", len(res.Pages), "edges", len(res.Edges))
	sink.Report(LogEvent{Level: "info", Text: fmt.Sprintf("Crawl complete: %d pages, %d edges", len(res.Pages), len(res.Edges))})
	sink.Report(ProgressEvent{Value: 100, Stage: StageDone})
	sink.Report(DoneEvent{Success: true, Result: &res, RunID: runID})
	return res, nil
}

// resolveSeed accepts absolute http(s) URLs and bare hosts, which default to https.
func resolveSeed(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidSeed)
	}
	candidate := raw
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + candidate
	}
	u, err := url.Parse(candidate)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSeed, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q: unsupported scheme %q", ErrInvalidSeed, raw, u.Scheme)
	}
	if u.Hostname() == "" || strings.ContainsAny(u.Host, " \t") {
		return nil, fmt.Errorf("%w: %q: missing host", ErrInvalidSeed, raw)
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u, nil
}

// BuildLogger constructs the slog logger described by cfg, writing to w or stdout.
func BuildLogger(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unsupported log level %q", cfg.Level)
	}
	if w == nil {
		w = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Structured {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), nil
}
