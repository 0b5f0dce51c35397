package report

import (
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"inspectra/pkg/types"
)

const maxCellRunes = 60

// MarkdownWriter renders a crawl as a Markdown site map: a summary, the page
// type distribution, a page table and the discovery graph.
type MarkdownWriter struct {
	output io.Writer
	title  cases.Caser
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{output: output, title: cases.Title(language.English)}
}

func (w *MarkdownWriter) Write(res types.CrawlResult) error {
	md := markdown.NewMarkdown(w.output)

	md.H1("Crawl Report")
	md.PlainText("")
	w.writeSummary(md, res)
	w.writePageTypes(md, res)
	w.writePages(md, res)
	w.writeGraph(md, res)

	return md.Build()
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, res types.CrawlResult) {
	degraded, apiCalls := 0, 0
	for _, p := range res.Pages {
		if p.Degraded() {
			degraded++
		}
		apiCalls += p.APICallCount
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Seed", "`" + res.SeedURL + "`"},
			{"Completed", res.CompletedAt.UTC().Format(time.RFC3339)},
			{"Pages", strconv.Itoa(len(res.Pages))},
			{"Edges", strconv.Itoa(len(res.Edges))},
			{"Degraded pages", strconv.Itoa(degraded)},
			{"API calls observed", strconv.Itoa(apiCalls)},
		},
	})
	md.PlainText("")

	if degraded > 0 {
		md.Warningf("%d page(s) failed to load and were recorded with errors.", degraded)
	} else if len(res.Pages) > 0 {
		md.Tip("Every page loaded without navigation errors.")
	} else {
		md.Note("The crawl produced no pages.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writePageTypes(md *markdown.Markdown, res types.CrawlResult) {
	if len(res.Pages) == 0 {
		return
	}
	counts := make(map[string]int)
	for _, p := range res.Pages {
		counts[p.PageType]++
	}
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		if counts[kinds[i]] != counts[kinds[j]] {
			return counts[kinds[i]] > counts[kinds[j]]
		}
		return kinds[i] < kinds[j]
	})

	md.H2("Page Types")
	md.PlainText("")
	chart := piechart.NewPieChart(io.Discard, piechart.WithTitle("Page types"), piechart.WithShowData(true))
	for _, k := range kinds {
		chart.LabelAndIntValue(w.title.String(k), uint64(counts[k]))
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writePages(md *markdown.Markdown, res types.CrawlResult) {
	md.H2("Pages")
	md.PlainText("")
	if len(res.Pages) == 0 {
		md.PlainText("No pages were visited.")
		md.PlainText("")
		return
	}
	rows := make([][]string, 0, len(res.Pages))
	for _, p := range res.Pages {
		from := "-"
		if p.DiscoveredFrom != nil {
			from = string(*p.DiscoveredFrom)
		}
		status := strconv.Itoa(p.StatusCode)
		if p.Degraded() {
			status = "error: " + truncate(p.Error, maxCellRunes)
		}
		rows = append(rows, []string{
			string(p.ID),
			truncate(p.URL, maxCellRunes),
			strconv.Itoa(p.Depth),
			status,
			w.title.String(p.PageType),
			truncate(cell(p.Title), maxCellRunes),
			from,
			strconv.FormatInt(p.LoadTimeMs, 10),
			strconv.Itoa(p.APICallCount),
			strconv.Itoa(p.FormCount),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"ID", "URL", "Depth", "Status", "Type", "Title", "From", "Load ms", "API", "Forms"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeGraph(md *markdown.Markdown, res types.CrawlResult) {
	if len(res.Edges) == 0 {
		return
	}
	md.H2("Discovery Graph")
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, flowchart(res))
	md.PlainText("")
}

// flowchart renders the discovery tree as a mermaid graph definition.
func flowchart(res types.CrawlResult) string {
	var b strings.Builder
	b.WriteString("graph TD\n")
	for _, p := range res.Pages {
		label := p.Title
		if label == "" {
			label = p.URL
		}
		label = strings.NewReplacer(`"`, "'", "\n", " ").Replace(truncate(label, 40))
		b.WriteString("    " + string(p.ID) + `["` + label + `"]` + "\n")
	}
	for _, e := range res.Edges {
		b.WriteString("    " + string(e.From) + " --> " + string(e.To) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
