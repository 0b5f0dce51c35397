package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"inspectra/pkg/types"
)

func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()
	if cmd.Use != "inspectra" {
		t.Fatalf("unexpected use %q", cmd.Use)
	}
	for _, name := range []string{"crawl", "serve", "version"} {
		if sub, _, err := cmd.Find([]string{name}); err != nil || sub.Name() != name {
			t.Fatalf("expected %s subcommand, got %v (%v)", name, sub, err)
		}
	}
	if cmd.PersistentFlags().Lookup("config") == nil {
		t.Fatal("expected persistent config flag")
	}
}

func TestCrawlCmdFlags(t *testing.T) {
	t.Parallel()

	cmd := NewCrawlCmd()
	cases := map[string]string{
		"max-pages":          "0",
		"max-depth":          "-1",
		"include-subdomains": "false",
		"format":             "json",
		"output":             "",
	}
	for name, def := range cases {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			t.Fatalf("expected %s flag", name)
		}
		if flag.DefValue != def {
			t.Errorf("%s: expected default %q, got %q", name, def, flag.DefValue)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out.String(), "inspectra version ") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func siteServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<html><head><title>Home</title></head><body><a href="/pricing">Pricing</a><a href="/login">Log in</a></body></html>`))
	})
	mux.HandleFunc("/pricing", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Pricing</title></head><body><a href="/">Home</a></body></html>`))
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Sign in</title></head><body><form><input name="user"><input type="password"></form></body></html>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	body := `browser:
  engine: http
  hydration_delay: 0s
  navigation_timeout: 5s
logging:
  level: error
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestCrawlCmdWritesJSON(t *testing.T) {
	srv := siteServer(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "result.json")

	cmd := NewRootCmd()
	var stderr bytes.Buffer
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--config", writeConfig(t, dir), "crawl", srv.URL, "--max-depth", "1", "--output", out})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("crawl: %v (stderr=%s)", err, stderr.String())
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var res types.CrawlResult
	if err := json.Unmarshal(data, &res); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(res.Pages) != 3 || len(res.Edges) != 2 {
		t.Fatalf("expected 3 pages and 2 edges, got %+v", res)
	}
	if res.Pages[2].PageType != "login" {
		t.Fatalf("expected login page type, got %q", res.Pages[2].PageType)
	}
	if !strings.Contains(stderr.String(), "Crawl complete") {
		t.Fatalf("expected lifecycle narration on stderr, got %q", stderr.String())
	}
}

func TestCrawlCmdWritesMarkdown(t *testing.T) {
	srv := siteServer(t)
	dir := t.TempDir()

	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--config", writeConfig(t, dir), "crawl", srv.URL, "--max-depth", "0", "--format", "markdown"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("crawl: %v (stderr=%s)", err, stderr.String())
	}
	if !strings.Contains(stdout.String(), "# Crawl Report") {
		t.Fatalf("expected markdown report, got %q", stdout.String())
	}
}

func TestCrawlCmdInvalidSeed(t *testing.T) {
	dir := t.TempDir()

	cmd := NewRootCmd()
	var stderr bytes.Buffer
	cmd.SetErr(&stderr)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", writeConfig(t, dir), "crawl", "ftp://example.com"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected invalid seed error")
	}
	if !strings.Contains(stderr.String(), "[error]") {
		t.Fatalf("expected error narration, got %q", stderr.String())
	}
}
