package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"inspectra/internal/config"
)

func TestAgentHonoursDisallow(t *testing.T) {
	t.Parallel()

	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		fetches.Add(1)
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	}))
	defer srv.Close()

	agent := NewAgent(config.RobotsConfig{Respect: true, UserAgent: "inspectra-bot/1.0"}, srv.Client())
	ctx := context.Background()

	if !agent.Allowed(ctx, mustParse(t, srv.URL+"/public")) {
		t.Fatal("expected /public to be allowed")
	}
	if agent.Allowed(ctx, mustParse(t, srv.URL+"/private/area")) {
		t.Fatal("expected /private/area to be disallowed")
	}
	if got := fetches.Load(); got != 1 {
		t.Fatalf("expected robots.txt to be fetched once, got %d", got)
	}
}

func TestAgentDisabledAllowsEverything(t *testing.T) {
	t.Parallel()

	agent := NewAgent(config.RobotsConfig{Respect: false}, nil)
	if !agent.Allowed(context.Background(), mustParse(t, "https://example.com/private")) {
		t.Fatal("disabled agent must allow")
	}
	if agent.Allowed(context.Background(), &url.URL{Path: "/relative"}) {
		t.Fatal("relative urls are never allowed")
	}
}

func TestAgentMissingRobotsAllows(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	agent := NewAgent(config.RobotsConfig{Respect: true, UserAgent: "inspectra-bot/1.0"}, srv.Client())
	if !agent.Allowed(context.Background(), mustParse(t, srv.URL+"/anything")) {
		t.Fatal("missing robots.txt must allow")
	}
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}
