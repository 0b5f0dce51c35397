package crawler

import (
	"fmt"
	"time"

	"inspectra/pkg/types"
)

// Graph accumulates page records and discovery edges. It is append-only and
// rejects any addition that would break the record invariants: unique ids and
// URLs, edges between existing pages, and child depth one below its parent.
type Graph struct {
	pages []types.PageRecord
	edges []types.Edge
	index map[types.PageID]int
	urls  map[string]struct{}
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		index: make(map[types.PageID]int),
		urls:  make(map[string]struct{}),
	}
}

// AddPage appends a record and, when it names a parent, the discovery edge to it.
func (g *Graph) AddPage(rec types.PageRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("page record without id")
	}
	if _, dup := g.index[rec.ID]; dup {
		return fmt.Errorf("duplicate page id %s", rec.ID)
	}
	if _, dup := g.urls[rec.URL]; dup {
		return fmt.Errorf("duplicate page url %s", rec.URL)
	}
	if rec.DiscoveredFrom != nil {
		parent, ok := g.index[*rec.DiscoveredFrom]
		if !ok {
			return fmt.Errorf("page %s discovered from unknown page %s", rec.ID, *rec.DiscoveredFrom)
		}
		if want := g.pages[parent].Depth + 1; rec.Depth != want {
			return fmt.Errorf("page %s at depth %d, want %d", rec.ID, rec.Depth, want)
		}
	}

	g.index[rec.ID] = len(g.pages)
	g.urls[rec.URL] = struct{}{}
	g.pages = append(g.pages, rec)
	if rec.DiscoveredFrom != nil {
		return g.AddEdge(types.Edge{From: *rec.DiscoveredFrom, To: rec.ID})
	}
	return nil
}

// AddEdge records an edge between two existing pages.
func (g *Graph) AddEdge(e types.Edge) error {
	if _, ok := g.index[e.From]; !ok {
		return fmt.Errorf("edge from unknown page %s", e.From)
	}
	if _, ok := g.index[e.To]; !ok {
		return fmt.Errorf("edge to unknown page %s", e.To)
	}
	g.edges = append(g.edges, e)
	return nil
}

// Len returns the number of pages.
func (g *Graph) Len() int {
	return len(g.pages)
}

// Result snapshots the graph.
func (g *Graph) Result(seedURL string, completedAt time.Time) types.CrawlResult {
	res := types.CrawlResult{
		SeedURL:     seedURL,
		Pages:       g.pages,
		Edges:       g.edges,
		CompletedAt: completedAt,
	}
	return res.Clone()
}
