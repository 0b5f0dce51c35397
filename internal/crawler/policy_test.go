package crawler

import (
	"reflect"
	"testing"
)

func TestAdmit(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		candidate  string
		host       string
		base       string
		subdomains bool
		visited    int
		maxPages   int
		want       bool
	}{
		{"same host", "https://app.example.com/a", "app.example.com", "app.example.com", false, 0, 5, true},
		{"budget exhausted", "https://app.example.com/a", "app.example.com", "app.example.com", false, 5, 5, false},
		{"sibling subdomain excluded", "https://static.example.com/a", "static.example.com", "app.example.com", false, 0, 5, false},
		{"exact match ignores www", "https://example.com/a", "example.com", "www.example.com", false, 0, 5, false},
		{"subdomain suffix after www strip", "https://static.example.com/a", "static.example.com", "www.example.com", true, 0, 5, true},
		{"subdomain of subdomain", "https://a.b.example.com/", "a.b.example.com", "example.com", true, 0, 5, true},
		{"suffix must match", "https://static.example.com/a", "static.example.com", "app.example.com", true, 0, 5, false},
		{"other domain", "https://other.org/", "other.org", "example.com", true, 0, 5, false},
		{"unparsable candidate", "https://example.com/%zz", "example.com", "example.com", false, 0, 5, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Admit(tc.candidate, tc.host, tc.base, tc.subdomains, tc.visited, tc.maxPages)
			if got != tc.want {
				t.Fatalf("Admit(%q, %q, %q, %v, %d, %d) = %v, want %v",
					tc.candidate, tc.host, tc.base, tc.subdomains, tc.visited, tc.maxPages, got, tc.want)
			}
		})
	}
}

func TestPolicyAllowChildren(t *testing.T) {
	t.Parallel()

	p, err := NewPolicy("example.com", false, 10, 2, 0, nil, nil)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	if !p.AllowChildren(0) || !p.AllowChildren(1) {
		t.Fatal("expected children below max depth")
	}
	if p.AllowChildren(2) {
		t.Fatal("expected no children at max depth")
	}
}

func TestPolicyHarvest(t *testing.T) {
	t.Parallel()

	p, err := NewPolicy("example.com", false, 10, 3, 0, nil, []string{`/logout`})
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	anchors := []string{
		"/a",
		"/a#section",
		"b",
		"https://EXAMPLE.com/a/",
		"https://cdn.example.com/x",
		"mailto:hi@example.com",
		"javascript:void(0)",
		"#top",
		"/logout",
		"http://[::1]:namedport",
	}
	buttons := []string{"/settings"}
	routes := []string{"/reports/daily", "/a"}

	got := p.Harvest("https://example.com/dir/page", anchors, buttons, routes)
	want := []string{
		"https://example.com/a",
		"https://example.com/dir/b",
		"https://example.com/settings",
		"https://example.com/reports/daily",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Harvest() = %v, want %v", got, want)
	}
}

func TestPolicyHarvestCapsLinks(t *testing.T) {
	t.Parallel()

	p, err := NewPolicy("example.com", false, 10, 3, 2, nil, nil)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	got := p.Harvest("https://example.com/", []string{"/1", "/2", "/3"})
	if len(got) != 2 {
		t.Fatalf("expected 2 links, got %v", got)
	}
}

func TestPolicyIncludePatterns(t *testing.T) {
	t.Parallel()

	p, err := NewPolicy("example.com", false, 10, 3, 0, []string{`/docs/`}, nil)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	if p.Follow("https://example.com/blog/1") {
		t.Fatal("expected non-matching url to be dropped")
	}
	if !p.Follow("https://example.com/docs/intro") {
		t.Fatal("expected matching url to be kept")
	}
	if _, err := NewPolicy("example.com", false, 10, 3, 0, []string{"("}, nil); err == nil {
		t.Fatal("expected invalid pattern error")
	}
}
