package crawler

import (
	"errors"
	"sync/atomic"

	"inspectra/pkg/types"
)

// ErrNoResult is returned by ResultCache.Latest before any crawl has completed.
var ErrNoResult = errors.New("no completed crawl yet")

// ResultCache holds the most recently completed crawl. It starts empty, is
// replaced wholesale by each completed crawl and hands out copies to readers.
type ResultCache struct {
	latest atomic.Pointer[types.CrawlResult]
}

// NewResultCache returns an empty cache.
func NewResultCache() *ResultCache {
	return &ResultCache{}
}

// Publish replaces the cached result.
func (c *ResultCache) Publish(res types.CrawlResult) {
	snapshot := res.Clone()
	c.latest.Store(&snapshot)
}

// Latest returns a copy of the last published result.
func (c *ResultCache) Latest() (types.CrawlResult, error) {
	res := c.latest.Load()
	if res == nil {
		return types.CrawlResult{}, ErrNoResult
	}
	return res.Clone(), nil
}
