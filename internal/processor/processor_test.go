package processor

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSamplerStripsScriptsAndStyles(t *testing.T) {
	t.Parallel()

	doc := `<html><head><title>T</title><style>.x{color:red}</style></head>
<body><h1>Welcome</h1><script>var secret = 1;</script><p>Sign   in
 to continue</p><noscript>enable js</noscript></body></html>`

	sample, err := NewSampler(0).Build(doc)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, unwanted := range []string{"secret", "color:red", "enable js"} {
		if strings.Contains(sample.HTML, unwanted) || strings.Contains(sample.Text, unwanted) {
			t.Fatalf("sample still contains %q: html=%q text=%q", unwanted, sample.HTML, sample.Text)
		}
	}
	if !strings.Contains(sample.Text, "Welcome") || !strings.Contains(sample.Text, "Sign in to continue") {
		t.Fatalf("unexpected text %q", sample.Text)
	}
	if !strings.Contains(sample.HTML, "<h1>Welcome</h1>") {
		t.Fatalf("unexpected html %q", sample.HTML)
	}
}

func TestSamplerBoundsOutput(t *testing.T) {
	t.Parallel()

	doc := "<body><p>" + strings.Repeat("é", 400) + "</p></body>"
	sample, err := NewSampler(101).Build(doc)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(sample.HTML) > 101 || len(sample.Text) > 101 {
		t.Fatalf("sample exceeds bound: html=%d text=%d", len(sample.HTML), len(sample.Text))
	}
	if !utf8.ValidString(sample.HTML) || !utf8.ValidString(sample.Text) {
		t.Fatal("truncation split a rune")
	}
}

func TestSamplerEmptyDocument(t *testing.T) {
	t.Parallel()

	sample, err := NewSampler(10).Build("   ")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if sample.HTML != "" || sample.Text != "" {
		t.Fatalf("expected empty sample, got %+v", sample)
	}
}
