// Package processor turns rendered documents into the bounded samples handed to
// the page-type classifier.
package processor

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// DefaultMaxSampleBytes bounds the HTML sample when no limit is configured.
const DefaultMaxSampleBytes = 5000

// Sample is the cleaned view of a document used for classification.
type Sample struct {
	// HTML is the script-free body markup, truncated to the configured size.
	HTML string
	// Text is the visible text of the body with whitespace collapsed.
	Text string
}

// Sampler strips noisy nodes and bounds the resulting markup.
type Sampler struct {
	maxBytes int
}

// NewSampler constructs a sampler. Non-positive limits fall back to DefaultMaxSampleBytes.
func NewSampler(maxBytes int) *Sampler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxSampleBytes
	}
	return &Sampler{maxBytes: maxBytes}
}

var blockLevelTags = map[string]struct{}{
	"p": {}, "div": {}, "section": {}, "article": {}, "header": {}, "footer": {},
	"nav": {}, "main": {}, "aside": {}, "form": {}, "h1": {}, "h2": {}, "h3": {},
	"h4": {}, "h5": {}, "h6": {}, "li": {}, "table": {}, "tr": {}, "figure": {},
}

// Build removes scripts and styles and returns the bounded sample.
func (s *Sampler) Build(document string) (Sample, error) {
	if strings.TrimSpace(document) == "" {
		return Sample{}, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return Sample{}, fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script,noscript,style,template,link[rel='stylesheet'],svg").Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	markup, err := root.Html()
	if err != nil {
		return Sample{}, fmt.Errorf("serialise html: %w", err)
	}

	var text strings.Builder
	for _, node := range root.Nodes {
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			accumulateText(child, &text)
		}
	}

	return Sample{
		HTML: truncateBytes(collapseWhitespace(markup), s.maxBytes),
		Text: truncateBytes(collapseWhitespace(text.String()), s.maxBytes),
	}, nil
}

func accumulateText(node *html.Node, b *strings.Builder) {
	switch node.Type {
	case html.TextNode:
		if text := strings.Join(strings.Fields(node.Data), " "); text != "" {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(text)
		}
	case html.ElementNode:
		_, block := blockLevelTags[strings.ToLower(node.Data)]
		if block && b.Len() > 0 {
			b.WriteByte('\n')
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			accumulateText(child, b)
		}
	}
}

func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if fields := strings.Fields(line); len(fields) > 0 {
			out = append(out, strings.Join(fields, " "))
		}
	}
	return strings.Join(out, "\n")
}

// truncateBytes cuts s to at most max bytes without splitting a rune.
func truncateBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
