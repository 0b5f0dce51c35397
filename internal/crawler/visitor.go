package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"inspectra/internal/browser"
	"inspectra/internal/classify"
	"inspectra/internal/processor"
	"inspectra/pkg/types"
)

const maxErrorRunes = 300

// Classifier assigns a page type from the page URL, title and HTML sample.
type Classifier interface {
	Classify(pageURL, title, sample string) string
}

// Visit is the outcome of one page visit: the record plus the child candidates
// harvested from it. Candidates is empty for degraded records and for pages at
// the depth limit.
type Visit struct {
	Record     types.PageRecord
	Candidates []string
}

// Visitor performs one page visit at a time against a shared browser. Page-level
// failures never escape Visit; they become degraded records.
type Visitor struct {
	browser    browser.Browser
	policy     *Policy
	classifier Classifier
	sampler    *processor.Sampler
	limiter    *DomainLimiter
	logger     *slog.Logger

	navigationTimeout time.Duration
	hydrationDelay    time.Duration
	settleDelay       time.Duration

	screenshotDir string
}

// Visit navigates target and builds the record for it. normalized is the dedup
// key stored on the record.
func (v *Visitor) Visit(ctx context.Context, target, normalized string, id types.PageID, depth int, from *types.PageID) Visit {
	rec := types.PageRecord{
		ID:             id,
		URL:            normalized,
		Depth:          depth,
		DiscoveredFrom: from,
		PageType:       classify.TypeUnknown,
	}
	logger := v.logger.With("page", string(id), "url", target)

	page, err := v.browser.NewPage(ctx)
	if err != nil {
		logger.Warn("open page failed", "error", err)
		return Visit{Record: degrade(rec, fmt.Errorf("open page: %w", err))}
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			logger.Debug("close page failed", "error", cerr)
		}
	}()

	visit, err := v.load(ctx, page, target, rec)
	if err != nil {
		logger.Warn("page visit failed", "error", err)
		return Visit{Record: degrade(rec, err)}
	}
	logger.Debug("page visited", "status", visit.Record.StatusCode, "type", visit.Record.PageType, "candidates", len(visit.Candidates))
	return visit
}

func (v *Visitor) load(ctx context.Context, page browser.Page, target string, rec types.PageRecord) (Visit, error) {
	if host, ok := hostOf(target); ok {
		if err := v.limiter.Wait(ctx, host); err != nil {
			return Visit{}, fmt.Errorf("politeness wait: %w", err)
		}
	}

	start := time.Now()
	navCtx, cancel := context.WithTimeout(ctx, v.navigationTimeout)
	nav, err := page.Navigate(navCtx, target)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return Visit{}, fmt.Errorf("navigation timeout after %s: %w", v.navigationTimeout, err)
		}
		return Visit{}, err
	}
	loadTime := time.Since(start)

	snap, err := v.snapshot(ctx, page)
	if err != nil {
		return Visit{}, err
	}
	if snap.LinkCount == 0 && v.hydrationDelay > 0 {
		if err := sleepCtx(ctx, v.hydrationDelay); err != nil {
			return Visit{}, err
		}
		if snap, err = v.snapshot(ctx, page); err != nil {
			return Visit{}, err
		}
	}
	if v.settleDelay > 0 {
		if err := sleepCtx(ctx, v.settleDelay); err != nil {
			return Visit{}, err
		}
	}

	sample, err := v.sampler.Build(snap.HTML)
	if err != nil {
		return Visit{}, fmt.Errorf("build sample: %w", err)
	}
	finalURL := nav.FinalURL
	if finalURL == "" {
		finalURL = target
	}
	obs := page.Observations()

	rec.StatusCode = nav.StatusCode
	rec.LoadTimeMs = loadTime.Milliseconds()
	rec.Title = snap.Title
	rec.PageType = v.classifier.Classify(finalURL, snap.Title, sample.HTML)
	rec.APICallCount = obs.APICalls
	rec.FormCount = snap.FormCount
	rec.InputCount = snap.InputCount
	rec.LinkCount = snap.LinkCount
	rec.ImageCount = snap.ImageCount
	rec.ErrorCount = obs.Errors()
	rec.Screenshot = v.screenshot(ctx, page, rec.ID)

	visit := Visit{Record: rec}
	if v.policy.AllowChildren(rec.Depth) {
		visit.Candidates = v.policy.Harvest(finalURL, snap.Anchors, snap.ButtonTargets, snap.RouteCandidates)
	}
	return visit, nil
}

func (v *Visitor) snapshot(ctx context.Context, page browser.Page) (browser.Snapshot, error) {
	evalCtx, cancel := context.WithTimeout(ctx, v.navigationTimeout)
	defer cancel()
	snap, err := page.Snapshot(evalCtx)
	if err != nil {
		return browser.Snapshot{}, fmt.Errorf("extract page: %w", err)
	}
	return snap, nil
}

// screenshot stores a capture when a directory is configured and returns its path.
// Capture failures leave the record intact.
func (v *Visitor) screenshot(ctx context.Context, page browser.Page, id types.PageID) string {
	if v.screenshotDir == "" {
		return ""
	}
	data, err := page.Screenshot(ctx)
	if err != nil {
		if !errors.Is(err, browser.ErrScreenshotUnsupported) {
			v.logger.Warn("screenshot failed", "page", string(id), "error", err)
		}
		return ""
	}
	if err := os.MkdirAll(v.screenshotDir, 0o755); err != nil {
		v.logger.Warn("create screenshot dir failed", "dir", v.screenshotDir, "error", err)
		return ""
	}
	path := filepath.Join(v.screenshotDir, string(id)+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		v.logger.Warn("write screenshot failed", "path", path, "error", err)
		return ""
	}
	return path
}

// degrade zeroes the content fields of rec and attaches the failure.
func degrade(rec types.PageRecord, err error) types.PageRecord {
	msg := err.Error()
	if msg == "" {
		msg = "page visit failed"
	}
	return types.PageRecord{
		ID:             rec.ID,
		URL:            rec.URL,
		Depth:          rec.Depth,
		DiscoveredFrom: rec.DiscoveredFrom,
		PageType:       classify.TypeUnknown,
		ErrorCount:     1,
		Error:          truncateRunes(msg, maxErrorRunes),
	}
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
