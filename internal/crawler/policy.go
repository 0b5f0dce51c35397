package crawler

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Admit decides whether a dequeued URL may be visited. Rules apply in order:
// the page budget, host scope (exact host, or suffix of the base host without
// its leading "www." when subdomains are included), then URL validity.
func Admit(candidate, candidateHost, baseHost string, includeSubdomains bool, visited, maxPages int) bool {
	if visited >= maxPages {
		return false
	}
	if !includeSubdomains {
		if candidateHost != baseHost {
			return false
		}
	} else if !strings.HasSuffix(candidateHost, strings.TrimPrefix(baseHost, "www.")) {
		return false
	}
	if _, err := url.Parse(candidate); err != nil {
		return false
	}
	return true
}

// Policy carries the per-crawl admission settings and the harvesting filters.
type Policy struct {
	BaseHost          string
	IncludeSubdomains bool
	MaxPages          int
	MaxDepth          int
	MaxLinksPerPage   int

	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// NewPolicy compiles the include and exclude patterns.
func NewPolicy(baseHost string, includeSubdomains bool, maxPages, maxDepth, maxLinks int, include, exclude []string) (*Policy, error) {
	inc, err := compilePatterns(include)
	if err != nil {
		return nil, fmt.Errorf("invalid include pattern: %w", err)
	}
	exc, err := compilePatterns(exclude)
	if err != nil {
		return nil, fmt.Errorf("invalid exclude pattern: %w", err)
	}
	if maxLinks <= 0 {
		maxLinks = 200
	}
	return &Policy{
		BaseHost:          strings.ToLower(baseHost),
		IncludeSubdomains: includeSubdomains,
		MaxPages:          maxPages,
		MaxDepth:          maxDepth,
		MaxLinksPerPage:   maxLinks,
		include:           inc,
		exclude:           exc,
	}, nil
}

// Admit applies the package-level Admit rules to a normalized URL.
func (p *Policy) Admit(normalized string, visited int) bool {
	host, ok := hostOf(normalized)
	if !ok {
		return false
	}
	return Admit(normalized, host, p.BaseHost, p.IncludeSubdomains, visited, p.MaxPages)
}

// InScope reports whether a host falls inside the crawl's host scope.
func (p *Policy) InScope(host string) bool {
	return Admit("", host, p.BaseHost, p.IncludeSubdomains, 0, 1)
}

// AllowChildren reports whether links found at depth may be enqueued.
func (p *Policy) AllowChildren(depth int) bool {
	return depth < p.MaxDepth
}

// Follow applies the include/exclude patterns to an absolute candidate URL.
func (p *Policy) Follow(target string) bool {
	if len(p.include) > 0 {
		matched := false
		for _, pat := range p.include {
			if pat.MatchString(target) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, pat := range p.exclude {
		if pat.MatchString(target) {
			return false
		}
	}
	return true
}

// Harvest resolves raw link targets against the page URL and returns the
// in-scope http(s) candidates in discovery order, without duplicates and capped
// at MaxLinksPerPage. Malformed targets are skipped.
func (p *Policy) Harvest(pageURL string, targets ...[]string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, group := range targets {
		for _, raw := range group {
			raw = strings.TrimSpace(raw)
			if raw == "" || strings.HasPrefix(raw, "#") {
				continue
			}
			u, err := base.Parse(raw)
			if err != nil {
				continue
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				continue
			}
			u.Fragment = ""
			u.RawFragment = ""
			if !p.InScope(strings.ToLower(u.Hostname())) {
				continue
			}
			target := u.String()
			if !p.Follow(target) {
				continue
			}
			key := Normalize(target)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, target)
			if len(out) >= p.MaxLinksPerPage {
				return out
			}
		}
	}
	return out
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, raw := range patterns {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		pat, err := regexp.Compile(raw)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, pat)
	}
	return compiled, nil
}
