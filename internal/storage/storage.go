package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	pq "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"inspectra/internal/config"
	"inspectra/pkg/types"
)

// ErrNotFound is returned when a run id has no stored crawl.
var ErrNotFound = errors.New("crawl run not found")

// SQLStore persists completed crawls into postgres or sqlite.
type SQLStore struct {
	db          *sql.DB
	driver      string
	autoMigrate bool
}

// NewSQLStore opens the configured database and applies the schema when
// auto-migration is enabled.
func NewSQLStore(cfg config.StorageConfig) (*SQLStore, error) {
	if cfg.Driver == "" || cfg.DSN == "" {
		return nil, errors.New("storage config missing driver or dsn")
	}
	if cfg.Driver == "sqlite" {
		if err := ensureSQLiteDir(cfg.DSN); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sql connection: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		if !cfg.CreateIfMissing || !shouldAttemptCreateDatabase(cfg.Driver, err) {
			return nil, fmt.Errorf("ping sql connection: %w", err)
		}
		if err := createDatabase(ctx, cfg); err != nil {
			return nil, err
		}
		db, err = sql.Open(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sql connection: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping sql connection: %w", err)
		}
	}
	if cfg.Driver == "sqlite" {
		// sqlite allows a single writer.
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime.Duration > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Duration)
	}
	store := &SQLStore{
		db:          db,
		driver:      cfg.Driver,
		autoMigrate: cfg.AutoMigrate,
	}
	if cfg.AutoMigrate {
		if err := store.ensureSchema(context.Background()); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return store, nil
}

// SaveResult writes a completed crawl and its graph in one transaction.
// Saving the same run id twice replaces the earlier copy.
func (s *SQLStore) SaveResult(ctx context.Context, runID string, req types.CrawlConfig, res types.CrawlResult) error {
	if s == nil || s.db == nil {
		return nil
	}
	if strings.TrimSpace(runID) == "" {
		return errors.New("save result: empty run id")
	}
	err := s.saveResult(ctx, runID, req, res)
	if err != nil && s.autoMigrate && isUndefinedTableErr(err) {
		if schemaErr := s.ensureSchema(ctx); schemaErr != nil {
			return fmt.Errorf("ensure schema: %w", schemaErr)
		}
		err = s.saveResult(ctx, runID, req, res)
	}
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

func (s *SQLStore) saveResult(ctx context.Context, runID string, req types.CrawlConfig, res types.CrawlResult) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"crawl_edges", "crawl_pages", "crawls"} {
		if _, err = tx.ExecContext(ctx, s.rebind("DELETE FROM "+table+" WHERE run_id = ?"), runID); err != nil {
			return err
		}
	}

	if _, err = tx.ExecContext(ctx, s.rebind(`
        INSERT INTO crawls (run_id, seed_url, max_pages, max_depth, include_subdomains,
                            device_profile, requires_auth, page_count, edge_count, completed_at_ms)
        VALUES (?,?,?,?,?,?,?,?,?,?)`),
		runID,
		res.SeedURL,
		req.MaxPages,
		req.MaxDepth,
		req.IncludeSubdomains,
		req.DeviceProfile,
		req.RequiresAuth,
		len(res.Pages),
		len(res.Edges),
		res.CompletedAt.UnixMilli(),
	); err != nil {
		return err
	}

	pageStmt, err := tx.PrepareContext(ctx, s.rebind(`
        INSERT INTO crawl_pages (run_id, page_id, position, url, depth, status_code, load_time_ms,
                                 page_type, title, discovered_from, api_call_count, form_count,
                                 input_count, link_count, image_count, error_count, screenshot, error)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`))
	if err != nil {
		return err
	}
	defer pageStmt.Close()
	for i, page := range res.Pages {
		var from sql.NullString
		if page.DiscoveredFrom != nil {
			from = sql.NullString{String: string(*page.DiscoveredFrom), Valid: true}
		}
		if _, err = pageStmt.ExecContext(ctx,
			runID, string(page.ID), i, page.URL, page.Depth, page.StatusCode, page.LoadTimeMs,
			page.PageType, page.Title, from, page.APICallCount, page.FormCount,
			page.InputCount, page.LinkCount, page.ImageCount, page.ErrorCount, page.Screenshot, page.Error,
		); err != nil {
			return fmt.Errorf("insert page %s: %w", page.ID, err)
		}
	}

	edgeStmt, err := tx.PrepareContext(ctx, s.rebind(`
        INSERT INTO crawl_edges (run_id, position, from_page, to_page) VALUES (?,?,?,?)`))
	if err != nil {
		return err
	}
	defer edgeStmt.Close()
	for i, edge := range res.Edges {
		if _, err = edgeStmt.ExecContext(ctx, runID, i, string(edge.From), string(edge.To)); err != nil {
			return fmt.Errorf("insert edge %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Close closes the underlying DB connection.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// rebind rewrites ? placeholders into $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func ensureSQLiteDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create sqlite directory: %w", err)
	}
	return nil
}

func shouldAttemptCreateDatabase(driver string, err error) bool {
	if !strings.EqualFold(driver, "postgres") {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "3D000"
	}
	return strings.Contains(strings.ToLower(err.Error()), "does not exist")
}

func createDatabase(ctx context.Context, cfg config.StorageConfig) error {
	parsed, err := url.Parse(cfg.DSN)
	if err != nil {
		return fmt.Errorf("parse dsn: %w", err)
	}
	dbName := strings.TrimPrefix(parsed.Path, "/")
	if dbName == "" {
		return errors.New("dsn missing database name")
	}
	if strings.EqualFold(dbName, "postgres") {
		return fmt.Errorf("target database %q cannot be auto-created", dbName)
	}
	parsed.Path = "/postgres"
	adminDB, err := sql.Open(cfg.Driver, parsed.String())
	if err != nil {
		return fmt.Errorf("connect admin database: %w", err)
	}
	defer adminDB.Close()
	if err := adminDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping admin database: %w", err)
	}
	stmt := fmt.Sprintf("CREATE DATABASE %s", pq.QuoteIdentifier(dbName))
	if _, err := adminDB.ExecContext(ctx, stmt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "42P04" {
			return nil
		}
		return fmt.Errorf("create database %q: %w", dbName, err)
	}
	return nil
}

func (s *SQLStore) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil || !s.autoMigrate {
		return nil
	}
	schemaCtx := ctx
	if schemaCtx == nil || schemaCtx.Err() != nil {
		schemaCtx = context.Background()
	}
	schemaCtx, cancel := context.WithTimeout(schemaCtx, 10*time.Second)
	defer cancel()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS crawls (
		    run_id TEXT PRIMARY KEY,
		    seed_url TEXT NOT NULL,
		    max_pages INTEGER NOT NULL,
		    max_depth INTEGER NOT NULL,
		    include_subdomains BOOLEAN NOT NULL,
		    device_profile TEXT NOT NULL,
		    requires_auth BOOLEAN NOT NULL,
		    page_count INTEGER NOT NULL,
		    edge_count INTEGER NOT NULL,
		    completed_at_ms BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_crawls_completed_at ON crawls (completed_at_ms DESC)`,
		`CREATE TABLE IF NOT EXISTS crawl_pages (
		    run_id TEXT NOT NULL,
		    page_id TEXT NOT NULL,
		    position INTEGER NOT NULL,
		    url TEXT NOT NULL,
		    depth INTEGER NOT NULL,
		    status_code INTEGER NOT NULL,
		    load_time_ms BIGINT NOT NULL,
		    page_type TEXT NOT NULL,
		    title TEXT NOT NULL,
		    discovered_from TEXT,
		    api_call_count INTEGER NOT NULL,
		    form_count INTEGER NOT NULL,
		    input_count INTEGER NOT NULL,
		    link_count INTEGER NOT NULL,
		    image_count INTEGER NOT NULL,
		    error_count INTEGER NOT NULL,
		    screenshot TEXT NOT NULL,
		    error TEXT NOT NULL,
		    PRIMARY KEY (run_id, page_id)
		)`,
		`CREATE TABLE IF NOT EXISTS crawl_edges (
		    run_id TEXT NOT NULL,
		    position INTEGER NOT NULL,
		    from_page TEXT NOT NULL,
		    to_page TEXT NOT NULL,
		    PRIMARY KEY (run_id, position)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(schemaCtx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func isUndefinedTableErr(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P01"
	}
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "no such table") {
		return true
	}
	return strings.Contains(lower, "relation") && strings.Contains(lower, "does not exist")
}
