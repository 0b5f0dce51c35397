package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppName names the XDG directories used for default paths.
const AppName = "inspectra"

// Config captures everything required to run the discovery server or a one-off crawl.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Crawl      CrawlConfig      `yaml:"crawl"`
	Browser    BrowserConfig    `yaml:"browser"`
	Politeness PolitenessConfig `yaml:"politeness"`
	Robots     RobotsConfig     `yaml:"robots"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	MaxConcurrency  int      `yaml:"max_concurrency"`
	Heartbeat       Duration `yaml:"heartbeat"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// CrawlConfig holds request defaults and candidate-link filters.
type CrawlConfig struct {
	MaxPages          int      `yaml:"max_pages"`
	MaxDepth          int      `yaml:"max_depth"`
	IncludeSubdomains bool     `yaml:"include_subdomains"`
	DeviceProfile     string   `yaml:"device_profile"`
	MaxLinksPerPage   int      `yaml:"max_links_per_page"`
	IncludePatterns   []string `yaml:"include_patterns"`
	ExcludePatterns   []string `yaml:"exclude_patterns"`
}

// BrowserConfig selects and tunes the browser capability.
type BrowserConfig struct {
	Engine            string   `yaml:"engine"`
	Headless          bool     `yaml:"headless"`
	ExecPath          string   `yaml:"exec_path"`
	UserAgent         string   `yaml:"user_agent"`
	NavigationTimeout Duration `yaml:"navigation_timeout"`
	NetworkIdle       Duration `yaml:"network_idle"`
	HydrationDelay    Duration `yaml:"hydration_delay"`
	SettleDelay       Duration `yaml:"settle_delay"`
	MaxSampleBytes    int      `yaml:"max_sample_bytes"`
	MaxBodyBytes      int64    `yaml:"max_body_bytes"`
	APIPatterns       []string `yaml:"api_patterns"`
	ScreenshotDir     string   `yaml:"screenshot_dir"`
}

// PolitenessConfig throttles navigations per host.
type PolitenessConfig struct {
	PerHostDelay Duration        `yaml:"per_host_delay"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig applies a token bucket per host.
type RateLimitConfig struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// RobotsConfig configures robots.txt handling.
type RobotsConfig struct {
	Respect   bool     `yaml:"respect"`
	UserAgent string   `yaml:"user_agent"`
	CacheTTL  Duration `yaml:"cache_ttl"`
}

// StorageConfig describes the optional relational store for completed crawls.
type StorageConfig struct {
	Driver          string   `yaml:"driver"`
	DSN             string   `yaml:"dsn"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
	CreateIfMissing bool     `yaml:"create_if_missing"`
	AutoMigrate     bool     `yaml:"auto_migrate"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Structured bool   `yaml:"structured"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			MaxConcurrency:  1,
			Heartbeat:       DurationFrom(15 * time.Second),
			ShutdownTimeout: DurationFrom(15 * time.Second),
		},
		Crawl: CrawlConfig{
			MaxPages:        20,
			MaxDepth:        3,
			DeviceProfile:   "desktop",
			MaxLinksPerPage: 200,
		},
		Browser: BrowserConfig{
			Engine:            "chromedp",
			Headless:          true,
			NavigationTimeout: DurationFrom(25 * time.Second),
			NetworkIdle:       DurationFrom(500 * time.Millisecond),
			HydrationDelay:    DurationFrom(2 * time.Second),
			MaxSampleBytes:    5000,
			MaxBodyBytes:      6 * 1024 * 1024,
			APIPatterns:       []string{`/api/`, `graphql`, `\.json(\?|$)`},
		},
		Robots: RobotsConfig{
			Respect:   false,
			UserAgent: "inspectra-bot/1.0",
			CacheTTL:  DurationFrom(6 * time.Hour),
		},
		Storage: StorageConfig{
			AutoMigrate: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Structured: true,
		},
	}
}

// DefaultPath is the config file consulted when no path is given.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// DefaultSQLitePath is where the sqlite store lives when no DSN is configured.
func DefaultSQLitePath() string {
	return filepath.Join(xdg.DataHome, AppName, "inspectra.db")
}

// Load reads, merges, and validates configuration from a YAML file.
// A missing file at the default location yields the defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = DefaultPath()
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return finish(&cfg)
		}
	}

	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()

	if err := decodeYAML(fh, &cfg); err != nil {
		return nil, err
	}
	return finish(&cfg)
}

// LoadFromReader decodes configuration from an arbitrary reader without env overrides.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return nil, err
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func finish(cfg *Config) (*Config, error) {
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv("INSPECTRA_ADDR")); v != "" {
		c.Server.Addr = v
	}
	if raw := strings.TrimSpace(os.Getenv("INSPECTRA_MAX_CONCURRENCY")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("INSPECTRA_MAX_CONCURRENCY: %w", err)
		}
		c.Server.MaxConcurrency = n
	}
	if v := strings.TrimSpace(os.Getenv("INSPECTRA_STORAGE_DRIVER")); v != "" {
		c.Storage.Driver = v
	}
	if v := strings.TrimSpace(os.Getenv("INSPECTRA_STORAGE_DSN")); v != "" {
		c.Storage.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("INSPECTRA_LOG_LEVEL")); v != "" {
		c.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("INSPECTRA_CHROME_PATH")); v != "" {
		c.Browser.ExecPath = v
	}
	return nil
}

// Validate enforces required invariants for the configuration.
func (c Config) Validate() error {
	if c.Server.MaxConcurrency <= 0 {
		return fmt.Errorf("server.max_concurrency must be > 0 (got %d)", c.Server.MaxConcurrency)
	}
	if c.Crawl.MaxPages <= 0 {
		return fmt.Errorf("crawl.max_pages must be > 0 (got %d)", c.Crawl.MaxPages)
	}
	if c.Crawl.MaxDepth < 0 {
		return fmt.Errorf("crawl.max_depth must be >= 0 (got %d)", c.Crawl.MaxDepth)
	}
	if c.Crawl.MaxLinksPerPage < 0 {
		return fmt.Errorf("crawl.max_links_per_page must be >= 0 (got %d)", c.Crawl.MaxLinksPerPage)
	}
	for _, pat := range append(append([]string(nil), c.Crawl.IncludePatterns...), c.Crawl.ExcludePatterns...) {
		if _, err := regexp.Compile(pat); err != nil {
			return fmt.Errorf("invalid crawl pattern %q: %w", pat, err)
		}
	}
	switch c.Browser.Engine {
	case "chromedp", "http":
	default:
		return fmt.Errorf("unsupported browser engine %q", c.Browser.Engine)
	}
	if c.Browser.NavigationTimeout.Duration <= 0 {
		return errors.New("browser.navigation_timeout must be > 0")
	}
	if c.Browser.MaxSampleBytes <= 0 {
		return fmt.Errorf("browser.max_sample_bytes must be > 0 (got %d)", c.Browser.MaxSampleBytes)
	}
	for _, pat := range c.Browser.APIPatterns {
		if _, err := regexp.Compile(pat); err != nil {
			return fmt.Errorf("invalid browser.api_patterns entry %q: %w", pat, err)
		}
	}
	if rl := c.Politeness.RateLimit; rl.Requests < 0 {
		return fmt.Errorf("politeness.rate_limit.requests must be >= 0 (got %d)", rl.Requests)
	}
	if c.Robots.Respect && c.Robots.UserAgent == "" {
		return errors.New("robots.user_agent must be set when robots.respect is true")
	}
	switch c.Storage.Driver {
	case "", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		return errors.New("storage.dsn must be set for the postgres driver")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unsupported log level %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) normalise() {
	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
	c.Crawl.DeviceProfile = strings.ToLower(strings.TrimSpace(c.Crawl.DeviceProfile))
	if c.Crawl.DeviceProfile == "" {
		c.Crawl.DeviceProfile = "desktop"
	}
	c.Crawl.IncludePatterns = trimEmpty(c.Crawl.IncludePatterns)
	c.Crawl.ExcludePatterns = trimEmpty(c.Crawl.ExcludePatterns)
	c.Browser.Engine = strings.ToLower(strings.TrimSpace(c.Browser.Engine))
	if c.Browser.Engine == "chrome" {
		c.Browser.Engine = "chromedp"
	}
	c.Browser.ExecPath = strings.TrimSpace(c.Browser.ExecPath)
	c.Browser.UserAgent = strings.TrimSpace(c.Browser.UserAgent)
	c.Browser.ScreenshotDir = strings.TrimSpace(c.Browser.ScreenshotDir)
	c.Browser.APIPatterns = trimEmpty(c.Browser.APIPatterns)
	c.Robots.UserAgent = strings.TrimSpace(c.Robots.UserAgent)
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Storage.DSN = strings.TrimSpace(c.Storage.DSN)
	if c.Storage.Driver == "sqlite" && c.Storage.DSN == "" {
		c.Storage.DSN = DefaultSQLitePath()
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
}

func trimEmpty(values []string) []string {
	if len(values) == 0 {
		return values
	}
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			cleaned = append(cleaned, v)
		}
	}
	return cleaned
}

// Enabled reports whether per-host rate limiting is active.
func (r RateLimitConfig) Enabled() bool {
	return r.Requests > 0 && !r.Window.IsZero()
}
