package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"inspectra/pkg/types"
)

// RunSummary describes one stored crawl without its graph.
type RunSummary struct {
	RunID       string            `json:"runId"`
	Request     types.CrawlConfig `json:"request"`
	PageCount   int               `json:"pageCount"`
	EdgeCount   int               `json:"edgeCount"`
	CompletedAt time.Time         `json:"completedAt"`
}

// StoredRun is a stored crawl with its full result.
type StoredRun struct {
	RunSummary
	Result types.CrawlResult `json:"result"`
}

// RunListParams controls pagination for ListRuns.
type RunListParams struct {
	Page     int
	PageSize int
}

// RunList is one page of stored runs, newest first.
type RunList struct {
	Items      []RunSummary `json:"items"`
	Page       int          `json:"page"`
	PageSize   int          `json:"pageSize"`
	TotalCount int          `json:"totalCount"`
}

const (
	defaultRunPageSize = 20
	maxRunPageSize     = 200
)

// ListRuns returns stored crawls ordered by completion time, newest first.
func (s *SQLStore) ListRuns(ctx context.Context, params RunListParams) (RunList, error) {
	if s == nil || s.db == nil {
		return RunList{}, errors.New("sql store not initialised")
	}
	page := params.Page
	if page < 1 {
		page = 1
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = defaultRunPageSize
	}
	if pageSize > maxRunPageSize {
		pageSize = maxRunPageSize
	}
	result := RunList{Page: page, PageSize: pageSize, Items: []RunSummary{}}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM crawls`).Scan(&result.TotalCount); err != nil {
		return RunList{}, fmt.Errorf("count runs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
        SELECT run_id, seed_url, max_pages, max_depth, include_subdomains, device_profile,
               requires_auth, page_count, edge_count, completed_at_ms
        FROM crawls
        ORDER BY completed_at_ms DESC, run_id
        LIMIT ? OFFSET ?`), pageSize, (page-1)*pageSize)
	if err != nil {
		return RunList{}, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return RunList{}, fmt.Errorf("scan run: %w", err)
		}
		result.Items = append(result.Items, summary)
	}
	if err := rows.Err(); err != nil {
		return RunList{}, err
	}
	return result, nil
}

// LoadResult fetches one stored crawl with its pages and edges in
// discovery order. It returns ErrNotFound for unknown run ids.
func (s *SQLStore) LoadResult(ctx context.Context, runID string) (StoredRun, error) {
	if s == nil || s.db == nil {
		return StoredRun{}, errors.New("sql store not initialised")
	}
	row := s.db.QueryRowContext(ctx, s.rebind(`
        SELECT run_id, seed_url, max_pages, max_depth, include_subdomains, device_profile,
               requires_auth, page_count, edge_count, completed_at_ms
        FROM crawls
        WHERE run_id = ?`), runID)
	summary, err := scanSummary(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StoredRun{}, ErrNotFound
		}
		return StoredRun{}, fmt.Errorf("fetch run: %w", err)
	}

	run := StoredRun{
		RunSummary: summary,
		Result: types.CrawlResult{
			SeedURL:     summary.Request.SeedURL,
			Pages:       make([]types.PageRecord, 0, summary.PageCount),
			Edges:       make([]types.Edge, 0, summary.EdgeCount),
			CompletedAt: summary.CompletedAt,
		},
	}
	if run.Result.Pages, err = s.loadPages(ctx, runID, run.Result.Pages); err != nil {
		return StoredRun{}, err
	}
	if run.Result.Edges, err = s.loadEdges(ctx, runID, run.Result.Edges); err != nil {
		return StoredRun{}, err
	}
	return run, nil
}

func (s *SQLStore) loadPages(ctx context.Context, runID string, pages []types.PageRecord) ([]types.PageRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
        SELECT page_id, url, depth, status_code, load_time_ms, page_type, title, discovered_from,
               api_call_count, form_count, input_count, link_count, image_count, error_count,
               screenshot, error
        FROM crawl_pages
        WHERE run_id = ?
        ORDER BY position`), runID)
	if err != nil {
		return nil, fmt.Errorf("fetch pages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			page types.PageRecord
			id   string
			from sql.NullString
		)
		if err := rows.Scan(&id, &page.URL, &page.Depth, &page.StatusCode, &page.LoadTimeMs,
			&page.PageType, &page.Title, &from,
			&page.APICallCount, &page.FormCount, &page.InputCount, &page.LinkCount,
			&page.ImageCount, &page.ErrorCount, &page.Screenshot, &page.Error); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		page.ID = types.PageID(id)
		if from.Valid {
			parent := types.PageID(from.String)
			page.DiscoveredFrom = &parent
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

func (s *SQLStore) loadEdges(ctx context.Context, runID string, edges []types.Edge) ([]types.Edge, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
        SELECT from_page, to_page FROM crawl_edges WHERE run_id = ? ORDER BY position`), runID)
	if err != nil {
		return nil, fmt.Errorf("fetch edges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, types.Edge{From: types.PageID(from), To: types.PageID(to)})
	}
	return edges, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner) (RunSummary, error) {
	var (
		summary     RunSummary
		completedMs int64
	)
	if err := row.Scan(&summary.RunID, &summary.Request.SeedURL, &summary.Request.MaxPages,
		&summary.Request.MaxDepth, &summary.Request.IncludeSubdomains, &summary.Request.DeviceProfile,
		&summary.Request.RequiresAuth, &summary.PageCount, &summary.EdgeCount, &completedMs); err != nil {
		return RunSummary{}, err
	}
	summary.CompletedAt = time.UnixMilli(completedMs).UTC()
	return summary, nil
}
