// Package report renders completed crawls for humans and tools.
package report

import (
	"fmt"
	"io"
	"strings"

	"inspectra/pkg/types"
)

// Writer renders one crawl result to its output.
type Writer interface {
	Write(res types.CrawlResult) error
}

// Supported output formats.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// New returns the writer for format ("json", "markdown" or "md").
func New(format string, output io.Writer) (Writer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint()), nil
	case FormatMarkdown, "md":
		return NewMarkdownWriter(output), nil
	default:
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
}
