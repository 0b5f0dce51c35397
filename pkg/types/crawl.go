package types

import (
	"strconv"
	"time"
)

// CrawlConfig is the immutable request that starts a discovery crawl.
type CrawlConfig struct {
	SeedURL           string `json:"url"`
	MaxPages          int    `json:"maxPages"`
	MaxDepth          int    `json:"maxDepth"`
	IncludeSubdomains bool   `json:"includeSubdomains"`
	DeviceProfile     string `json:"deviceProfile"`
	// RequiresAuth is accepted and recorded but has no effect on traversal.
	RequiresAuth bool `json:"requiresAuth"`
}

// PageID identifies an accepted page within one crawl ("p1", "p2", ...).
type PageID string

// PageIDFor formats the sequential identifier for the n-th accepted page.
func PageIDFor(n int) PageID {
	return PageID("p" + strconv.Itoa(n))
}

// FrontierEntry models a work item waiting in the crawl frontier.
type FrontierEntry struct {
	URL            string
	Depth          int
	DiscoveredFrom *PageID
}

// PageRecord is the outcome of visiting one page, successful or degraded.
type PageRecord struct {
	ID             PageID  `json:"id"`
	URL            string  `json:"url"`
	Depth          int     `json:"depth"`
	StatusCode     int     `json:"statusCode"`
	LoadTimeMs     int64   `json:"loadTimeMs"`
	PageType       string  `json:"pageType"`
	Title          string  `json:"title"`
	DiscoveredFrom *PageID `json:"discoveredFrom"`
	APICallCount   int     `json:"apiCallCount"`
	FormCount      int     `json:"formCount"`
	InputCount     int     `json:"inputCount"`
	LinkCount      int     `json:"linkCount"`
	ImageCount     int     `json:"imageCount"`
	ErrorCount     int     `json:"errorCount"`
	Screenshot     string  `json:"screenshot,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// Degraded reports whether the record was produced by a failed visit.
func (p PageRecord) Degraded() bool {
	return p.Error != ""
}

// Edge links the page that first caused a URL to be accepted to that page.
type Edge struct {
	From PageID `json:"from"`
	To   PageID `json:"to"`
}

// CrawlResult is the immutable snapshot published when a crawl completes.
type CrawlResult struct {
	SeedURL     string       `json:"seedUrl"`
	Pages       []PageRecord `json:"pages"`
	Edges       []Edge       `json:"edges"`
	CompletedAt time.Time    `json:"completedAt"`
}

// Clone returns a deep copy so callers cannot mutate a published snapshot.
func (r CrawlResult) Clone() CrawlResult {
	out := r
	out.Pages = make([]PageRecord, len(r.Pages))
	for i, p := range r.Pages {
		if p.DiscoveredFrom != nil {
			parent := *p.DiscoveredFrom
			p.DiscoveredFrom = &parent
		}
		out.Pages[i] = p
	}
	out.Edges = append([]Edge(nil), r.Edges...)
	if out.Edges == nil {
		out.Edges = []Edge{}
	}
	return out
}
