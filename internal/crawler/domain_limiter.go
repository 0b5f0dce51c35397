package crawler

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"inspectra/internal/config"
)

// DomainLimiter spaces navigations to the same host by a fixed delay and an
// optional token bucket. A nil limiter never waits.
type DomainLimiter struct {
	delay    time.Duration
	requests int
	window   time.Duration

	mu       sync.Mutex
	last     map[string]time.Time
	limiters map[string]*rate.Limiter
}

// NewDomainLimiter returns nil when politeness is disabled.
func NewDomainLimiter(cfg config.PolitenessConfig) *DomainLimiter {
	delay := cfg.PerHostDelay.Duration
	if delay <= 0 && !cfg.RateLimit.Enabled() {
		return nil
	}
	d := &DomainLimiter{
		delay:    delay,
		last:     make(map[string]time.Time),
		limiters: make(map[string]*rate.Limiter),
	}
	if cfg.RateLimit.Enabled() {
		d.requests = cfg.RateLimit.Requests
		d.window = cfg.RateLimit.Window.Duration
	}
	return d
}

// Wait blocks until the host may be navigated again or ctx ends.
func (d *DomainLimiter) Wait(ctx context.Context, host string) error {
	if d == nil || host == "" {
		return nil
	}
	host = strings.ToLower(host)

	var sleep time.Duration
	d.mu.Lock()
	if last, ok := d.last[host]; ok && d.delay > 0 {
		if rest := time.Until(last.Add(d.delay)); rest > 0 {
			sleep = rest
		}
	}
	limiter := d.bucketLocked(host)
	d.mu.Unlock()

	if sleep > 0 {
		timer := time.NewTimer(sleep)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	}

	d.mu.Lock()
	d.last[host] = time.Now()
	d.mu.Unlock()
	return nil
}

func (d *DomainLimiter) bucketLocked(host string) *rate.Limiter {
	if d.requests <= 0 {
		return nil
	}
	if limiter, ok := d.limiters[host]; ok {
		return limiter
	}
	interval := d.window / time.Duration(d.requests)
	if interval <= 0 {
		interval = time.Millisecond
	}
	limiter := rate.NewLimiter(rate.Every(interval), d.requests)
	d.limiters[host] = limiter
	return limiter
}
