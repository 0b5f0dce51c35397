// Package browsertest provides a scripted in-memory browser for crawler tests.
package browsertest

import (
	"context"
	"errors"
	"sync"
	"time"

	"inspectra/internal/browser"
)

// Page scripts the behaviour of one URL.
type Page struct {
	Status int
	HTML   string
	// HydratedHTML is served from the second snapshot onwards when set.
	HydratedHTML string
	// Err fails navigation outright.
	Err error
	// Delay blocks navigation; a context deadline shorter than Delay fails it.
	Delay         time.Duration
	APICalls      int
	ConsoleErrors int
	Exceptions    int
	Screenshot    []byte
}

// Launcher hands out browsers that serve the scripted pages. URLs without a
// script answer 404 with an empty document.
type Launcher struct {
	Pages     map[string]Page
	LaunchErr error

	mu        sync.Mutex
	visits    []string
	openPages int
	launched  int
	closed    int
}

// New returns a launcher serving pages.
func New(pages map[string]Page) *Launcher {
	return &Launcher{Pages: pages}
}

// Launch implements browser.Launcher.
func (l *Launcher) Launch(ctx context.Context, _ browser.Profile) (browser.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.LaunchErr != nil {
		return nil, l.LaunchErr
	}
	l.mu.Lock()
	l.launched++
	l.mu.Unlock()
	return &fakeBrowser{launcher: l}, nil
}

// Visits returns navigated URLs in order.
func (l *Launcher) Visits() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.visits...)
}

// OpenPages reports pages that were opened but never closed.
func (l *Launcher) OpenPages() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.openPages
}

// Closed reports whether every launched browser was closed.
func (l *Launcher) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launched > 0 && l.launched == l.closed
}

type fakeBrowser struct {
	launcher *Launcher
	once     sync.Once
}

func (b *fakeBrowser) NewPage(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.launcher.mu.Lock()
	b.launcher.openPages++
	b.launcher.mu.Unlock()
	return &fakePage{launcher: b.launcher}, nil
}

func (b *fakeBrowser) Close() error {
	b.once.Do(func() {
		b.launcher.mu.Lock()
		b.launcher.closed++
		b.launcher.mu.Unlock()
	})
	return nil
}

type fakePage struct {
	launcher  *Launcher
	url       string
	script    Page
	snapshots int
	closed    bool
}

func (p *fakePage) Navigate(ctx context.Context, url string) (browser.Navigation, error) {
	p.launcher.mu.Lock()
	p.launcher.visits = append(p.launcher.visits, url)
	script, ok := p.launcher.Pages[url]
	p.launcher.mu.Unlock()
	if !ok {
		script = Page{Status: 404}
	}

	if script.Delay > 0 {
		timer := time.NewTimer(script.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return browser.Navigation{}, ctx.Err()
		}
	}
	if script.Err != nil {
		return browser.Navigation{}, script.Err
	}

	p.url = url
	p.script = script
	status := script.Status
	if status == 0 {
		status = 200
	}
	return browser.Navigation{StatusCode: status, FinalURL: url}, nil
}

func (p *fakePage) Snapshot(ctx context.Context) (browser.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return browser.Snapshot{}, err
	}
	if p.url == "" {
		return browser.Snapshot{}, errors.New("snapshot before navigation")
	}
	p.snapshots++
	html := p.script.HTML
	if p.snapshots > 1 && p.script.HydratedHTML != "" {
		html = p.script.HydratedHTML
	}
	return browser.ParseSnapshot(html, p.url)
}

func (p *fakePage) Observations() browser.Observations {
	return browser.Observations{
		APICalls:      p.script.APICalls,
		ConsoleErrors: p.script.ConsoleErrors,
		Exceptions:    p.script.Exceptions,
	}
}

func (p *fakePage) Screenshot(context.Context) ([]byte, error) {
	if p.script.Screenshot == nil {
		return nil, browser.ErrScreenshotUnsupported
	}
	return p.script.Screenshot, nil
}

func (p *fakePage) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.launcher.mu.Lock()
	p.launcher.openPages--
	p.launcher.mu.Unlock()
	return nil
}
