package browser

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

// HTTPOptions controls the plain HTTP backend.
type HTTPOptions struct {
	// UserAgent overrides the device profile user agent when set.
	UserAgent    string
	Headers      map[string]string
	Timeout      time.Duration
	MaxBodyBytes int64
	// Client replaces the default transport, mainly for tests.
	Client *http.Client
}

// HTTPLauncher serves pages fetched over plain HTTP without executing scripts.
// Capture counters are always zero and screenshots are unsupported.
type HTTPLauncher struct {
	client       *http.Client
	userAgent    string
	extraHeaders map[string]string
	maxBodyBytes int64
}

// NewHTTPLauncher constructs an HTTP backend using the provided options.
func NewHTTPLauncher(opts HTTPOptions) *HTTPLauncher {
	if opts.Timeout <= 0 {
		opts.Timeout = 25 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 6 * 1024 * 1024
	}

	client := opts.Client
	if client == nil {
		transport := &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
		client = &http.Client{Timeout: opts.Timeout, Transport: transport}
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &HTTPLauncher{
		client:       client,
		userAgent:    opts.UserAgent,
		extraHeaders: headers,
		maxBodyBytes: opts.MaxBodyBytes,
	}
}

// Launch returns a browser bound to the profile's user agent.
func (l *HTTPLauncher) Launch(ctx context.Context, profile Profile) (Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ua := profile.UserAgent
	if l.userAgent != "" {
		ua = l.userAgent
	}
	return &httpBrowser{launcher: l, userAgent: ua}, nil
}

type httpBrowser struct {
	launcher  *HTTPLauncher
	userAgent string
}

func (b *httpBrowser) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &httpPage{browser: b}, nil
}

func (b *httpBrowser) Close() error {
	b.launcher.client.CloseIdleConnections()
	return nil
}

type httpPage struct {
	browser  *httpBrowser
	body     []byte
	finalURL string
	loaded   bool
}

func (p *httpPage) Navigate(ctx context.Context, target string) (Navigation, error) {
	l := p.browser.launcher
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Navigation{}, fmt.Errorf("build request: %w", err)
	}
	if p.browser.userAgent != "" {
		req.Header.Set("User-Agent", p.browser.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	for k, v := range l.extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return Navigation{}, fmt.Errorf("http fetch failed: %w", err)
	}
	body, err := l.readBody(resp)
	if err != nil {
		return Navigation{}, err
	}

	p.body = body
	p.finalURL = target
	if resp.Request != nil && resp.Request.URL != nil {
		p.finalURL = resp.Request.URL.String()
	}
	p.loaded = true
	return Navigation{StatusCode: resp.StatusCode, FinalURL: p.finalURL}, nil
}

func (p *httpPage) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	if !p.loaded {
		return Snapshot{}, errors.New("snapshot before navigation")
	}
	return ParseSnapshot(string(p.body), p.finalURL)
}

func (p *httpPage) Observations() Observations {
	return Observations{}
}

func (p *httpPage) Screenshot(context.Context) ([]byte, error) {
	return nil, ErrScreenshotUnsupported
}

func (p *httpPage) Close() error {
	p.body = nil
	return nil
}

func (l *HTTPLauncher) readBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, errors.New("empty response body")
	}

	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	// Oversized documents are truncated rather than rejected; the DOM parser copes.
	body, err := io.ReadAll(io.LimitReader(reader, l.maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
