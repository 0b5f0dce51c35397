// Package browser defines the page automation capability consumed by the crawler
// and provides a headless Chrome backend and a plain HTTP backend.
package browser

import (
	"context"
	"errors"
)

// ErrScreenshotUnsupported is returned by backends that cannot render pixels.
var ErrScreenshotUnsupported = errors.New("screenshot not supported by this backend")

// Launcher starts a browser instance shared by every page of one crawl.
type Launcher interface {
	Launch(ctx context.Context, profile Profile) (Browser, error)
}

// Browser hands out one isolated browsing context per page visit.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single browsing context. Capture counters start at zero for every page.
type Page interface {
	Navigate(ctx context.Context, url string) (Navigation, error)
	Snapshot(ctx context.Context) (Snapshot, error)
	Observations() Observations
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Navigation describes the outcome of loading a document.
type Navigation struct {
	StatusCode int
	FinalURL   string
}

// Observations are the side effects captured while a page was open.
type Observations struct {
	APICalls      int
	ConsoleErrors int
	Exceptions    int
}

// Errors sums console errors and uncaught exceptions.
func (o Observations) Errors() int {
	return o.ConsoleErrors + o.Exceptions
}
