package browser

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// ChromeOptions configures the headless Chrome backend.
type ChromeOptions struct {
	Headless bool
	ExecPath string
	// UserAgent overrides the device profile user agent when set.
	UserAgent    string
	NetworkIdle  time.Duration
	MaxHTMLBytes int64
	// APIPatterns classify a request as an API call in addition to XHR/Fetch resource types.
	APIPatterns []*regexp.Regexp
}

// ChromeLauncher starts headless Chrome sessions using chromedp.
type ChromeLauncher struct {
	opts   ChromeOptions
	logger *slog.Logger
}

// NewChromeLauncher constructs a launcher with defaults applied.
func NewChromeLauncher(opts ChromeOptions, logger *slog.Logger) *ChromeLauncher {
	if opts.NetworkIdle <= 0 {
		opts.NetworkIdle = 500 * time.Millisecond
	}
	if opts.MaxHTMLBytes <= 0 {
		opts.MaxHTMLBytes = 6 * 1024 * 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromeLauncher{opts: opts, logger: logger}
}

// Launch starts one Chrome process for the lifetime of a crawl.
func (l *ChromeLauncher) Launch(ctx context.Context, profile Profile) (Browser, error) {
	ua := profile.UserAgent
	if l.opts.UserAgent != "" {
		ua = l.opts.UserAgent
	}
	execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.WindowSize(profile.Width, profile.Height),
	)
	if ua != "" {
		execOpts = append(execOpts, chromedp.UserAgent(ua))
	}
	if l.opts.ExecPath != "" {
		execOpts = append(execOpts, chromedp.ExecPath(l.opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// An empty Run starts the browser process so launch failures surface here.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	l.logger.Debug("chrome started", "profile", profile.Name, "headless", l.opts.Headless)

	return &chromeBrowser{
		opts:        l.opts,
		profile:     profile,
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		logger:      l.logger,
	}, nil
}

type chromeBrowser struct {
	opts        ChromeOptions
	profile     Profile
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *slog.Logger
}

// NewPage opens a fresh tab and registers capture hooks scoped to it.
func (b *chromeBrowser) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tabCtx, tabCancel := chromedp.NewContext(b.ctx)
	p := &chromePage{
		opts:   b.opts,
		tabCtx: tabCtx,
		cancel: tabCancel,
		logger: b.logger,
	}
	p.lastActivity.Store(time.Now().UnixNano())
	chromedp.ListenTarget(tabCtx, p.observe)

	// Allocate the tab on its own context; a first Run on a derived context
	// would tie the tab's lifetime to that action's deadline.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return p, nil
}

func (b *chromeBrowser) Close() error {
	b.cancel()
	b.allocCancel()
	return nil
}

type chromePage struct {
	opts   ChromeOptions
	tabCtx context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	lastActivity  atomic.Int64
	docStatus     atomic.Int64
	apiCalls      atomic.Int64
	consoleErrors atomic.Int64
	exceptions    atomic.Int64
}

// observe runs on chromedp's event goroutine and only touches this page's counters.
func (p *chromePage) observe(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		p.lastActivity.Store(time.Now().UnixNano())
		if e.Request != nil && p.isAPICall(e.Type, e.Request.URL) {
			p.apiCalls.Add(1)
		}
	case *network.EventResponseReceived:
		if e.Type == network.ResourceTypeDocument && e.Response != nil {
			if status := e.Response.Status; (status < 300 || status >= 400) && p.docStatus.Load() == 0 {
				p.docStatus.Store(status)
			}
		}
	case *runtime.EventConsoleAPICalled:
		if e.Type == runtime.APITypeError {
			p.consoleErrors.Add(1)
		}
	case *runtime.EventExceptionThrown:
		p.exceptions.Add(1)
	}
}

func (p *chromePage) isAPICall(kind network.ResourceType, url string) bool {
	if kind == network.ResourceTypeXHR || kind == network.ResourceTypeFetch {
		return true
	}
	for _, pat := range p.opts.APIPatterns {
		if pat.MatchString(url) {
			return true
		}
	}
	return false
}

// scoped derives an action context from the tab that also honours ctx's deadline and cancellation.
// Cancelling it aborts the running action without closing the tab.
func (p *chromePage) scoped(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(p.tabCtx)
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		inner := cancel
		cancel = func() { cancelDeadline(); inner() }
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (p *chromePage) Navigate(ctx context.Context, url string) (Navigation, error) {
	runCtx, cancel := p.scoped(ctx)
	defer cancel()

	var finalURL string
	err := chromedp.Run(runCtx,
		network.Enable(),
		runtime.Enable(),
		chromedp.Navigate(url),
		waitForNetworkIdle(&p.lastActivity, p.opts.NetworkIdle),
		chromedp.Location(&finalURL),
	)
	if err != nil {
		if ctx.Err() != nil {
			return Navigation{}, fmt.Errorf("navigate %s: %w", url, ctx.Err())
		}
		return Navigation{}, fmt.Errorf("navigate %s: %w", url, err)
	}
	status := int(p.docStatus.Load())
	if status == 0 {
		status = 200
	}
	return Navigation{StatusCode: status, FinalURL: finalURL}, nil
}

func (p *chromePage) Snapshot(ctx context.Context) (Snapshot, error) {
	runCtx, cancel := p.scoped(ctx)
	defer cancel()

	var html, location string
	if err := chromedp.Run(runCtx,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&location),
	); err != nil {
		return Snapshot{}, fmt.Errorf("extract dom: %w", err)
	}
	if int64(len(html)) > p.opts.MaxHTMLBytes {
		html = html[:p.opts.MaxHTMLBytes]
	}
	return ParseSnapshot(html, location)
}

func (p *chromePage) Observations() Observations {
	return Observations{
		APICalls:      int(p.apiCalls.Load()),
		ConsoleErrors: int(p.consoleErrors.Load()),
		Exceptions:    int(p.exceptions.Load()),
	}
}

func (p *chromePage) Screenshot(ctx context.Context) ([]byte, error) {
	runCtx, cancel := p.scoped(ctx)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// Close closes the tab; the shared browser stays up.
func (p *chromePage) Close() error {
	p.cancel()
	return nil
}

// waitForNetworkIdle returns once no request has started for the idle window.
func waitForNetworkIdle(lastActivity *atomic.Int64, idle time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			quiet := time.Since(time.Unix(0, lastActivity.Load()))
			if quiet >= idle {
				return nil
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}
