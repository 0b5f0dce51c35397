package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"inspectra/internal/config"
	"inspectra/pkg/types"
)

// StartCrawlRequest is the start-crawl payload. Omitted fields take the
// configured crawl defaults.
type StartCrawlRequest struct {
	URL               string `json:"url"`
	MaxPages          *int   `json:"maxPages,omitempty"`
	MaxDepth          *int   `json:"maxDepth,omitempty"`
	IncludeSubdomains *bool  `json:"includeSubdomains,omitempty"`
	DeviceProfile     string `json:"deviceProfile,omitempty"`
	RequiresAuth      bool   `json:"requiresAuth,omitempty"`
}

// toConfig validates the request and fills defaults.
func (r StartCrawlRequest) toConfig(defaults config.CrawlConfig) (types.CrawlConfig, error) {
	seed := strings.TrimSpace(r.URL)
	if seed == "" {
		return types.CrawlConfig{}, fmt.Errorf("url is required")
	}
	cfg := types.CrawlConfig{
		SeedURL:           seed,
		MaxPages:          defaults.MaxPages,
		MaxDepth:          defaults.MaxDepth,
		IncludeSubdomains: defaults.IncludeSubdomains,
		DeviceProfile:     defaults.DeviceProfile,
		RequiresAuth:      r.RequiresAuth,
	}
	if r.MaxPages != nil {
		if *r.MaxPages <= 0 {
			return types.CrawlConfig{}, fmt.Errorf("maxPages must be > 0")
		}
		cfg.MaxPages = *r.MaxPages
	}
	if r.MaxDepth != nil {
		if *r.MaxDepth < 0 {
			return types.CrawlConfig{}, fmt.Errorf("maxDepth must be >= 0")
		}
		cfg.MaxDepth = *r.MaxDepth
	}
	if r.IncludeSubdomains != nil {
		cfg.IncludeSubdomains = *r.IncludeSubdomains
	}
	if p := strings.TrimSpace(r.DeviceProfile); p != "" {
		cfg.DeviceProfile = p
	}
	return cfg, nil
}

// requestFromQuery reads a StartCrawlRequest from query parameters, the form
// EventSource clients can send.
func requestFromQuery(q url.Values) (StartCrawlRequest, error) {
	req := StartCrawlRequest{
		URL:           q.Get("url"),
		DeviceProfile: q.Get("deviceProfile"),
	}
	if raw := q.Get("maxPages"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return req, fmt.Errorf("invalid maxPages %q", raw)
		}
		req.MaxPages = &n
	}
	if raw := q.Get("maxDepth"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return req, fmt.Errorf("invalid maxDepth %q", raw)
		}
		req.MaxDepth = &n
	}
	if raw := q.Get("includeSubdomains"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return req, fmt.Errorf("invalid includeSubdomains %q", raw)
		}
		req.IncludeSubdomains = &b
	}
	if raw := q.Get("requiresAuth"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return req, fmt.Errorf("invalid requiresAuth %q", raw)
		}
		req.RequiresAuth = b
	}
	return req, nil
}

// CrawlStatus captures the lifecycle stage of a crawl started through the API.
type CrawlStatus string

const (
	CrawlStatusRunning   CrawlStatus = "running"
	CrawlStatusCompleted CrawlStatus = "completed"
	CrawlStatusFailed    CrawlStatus = "failed"
)

// CrawlSummary surfaces the live state of one crawl.
type CrawlSummary struct {
	ID          string            `json:"id"`
	RunID       string            `json:"runId,omitempty"`
	Request     types.CrawlConfig `json:"request"`
	Status      CrawlStatus       `json:"status"`
	Progress    int               `json:"progress"`
	Stage       string            `json:"stage,omitempty"`
	State       string            `json:"state"`
	Pages       int               `json:"pages"`
	LastURL     string            `json:"lastUrl,omitempty"`
	Attached    bool              `json:"attached"`
	StartedAt   time.Time         `json:"startedAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
	Error       string            `json:"error,omitempty"`
}
