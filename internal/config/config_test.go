package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromReaderAppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader(`
crawl:
  max_pages: 50
browser:
  engine: chrome
  hydration_delay: 3
  navigation_timeout: 10s
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Crawl.MaxPages != 50 {
		t.Errorf("max_pages = %d, want 50", cfg.Crawl.MaxPages)
	}
	if cfg.Crawl.MaxDepth != 3 {
		t.Errorf("max_depth default = %d, want 3", cfg.Crawl.MaxDepth)
	}
	if cfg.Browser.Engine != "chromedp" {
		t.Errorf("engine alias not normalised: %q", cfg.Browser.Engine)
	}
	if cfg.Browser.HydrationDelay.Duration != 3*time.Second {
		t.Errorf("numeric duration = %v, want 3s", cfg.Browser.HydrationDelay.Duration)
	}
	if cfg.Browser.NavigationTimeout.Duration != 10*time.Second {
		t.Errorf("string duration = %v, want 10s", cfg.Browser.NavigationTimeout.Duration)
	}
}

func TestLoadFromReaderEmptyDocument(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Crawl.DeviceProfile != "desktop" {
		t.Errorf("device profile = %q", cfg.Crawl.DeviceProfile)
	}
}

func TestLoadFromReaderRejectsInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{name: "unknown field", yaml: "crawl:\n  nope: 1\n", want: "decode config"},
		{name: "zero max pages", yaml: "crawl:\n  max_pages: 0\n", want: "crawl.max_pages"},
		{name: "negative depth", yaml: "crawl:\n  max_depth: -1\n", want: "crawl.max_depth"},
		{name: "bad engine", yaml: "browser:\n  engine: webkit\n", want: "unsupported browser engine"},
		{name: "bad pattern", yaml: "crawl:\n  exclude_patterns: ['(']\n", want: "invalid crawl pattern"},
		{name: "bad driver", yaml: "storage:\n  driver: mysql\n", want: "unsupported storage driver"},
		{name: "postgres without dsn", yaml: "storage:\n  driver: postgres\n", want: "storage.dsn"},
		{name: "bad log level", yaml: "logging:\n  level: loud\n", want: "unsupported log level"},
		{name: "bad duration", yaml: "browser:\n  network_idle: soon\n", want: "invalid duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestSQLiteDriverGetsDefaultDSN(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader("storage:\n  driver: sqlite\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.DSN != DefaultSQLitePath() {
		t.Errorf("dsn = %q, want %q", cfg.Storage.DSN, DefaultSQLitePath())
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  addr: ':9000'\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("INSPECTRA_MAX_CONCURRENCY", "3")
	t.Setenv("INSPECTRA_LOG_LEVEL", "DEBUG")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.MaxConcurrency != 3 {
		t.Errorf("max concurrency = %d, want 3", cfg.Server.MaxConcurrency)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadRejectsBadEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("INSPECTRA_MAX_CONCURRENCY", "many")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for non-numeric concurrency")
	}
}
