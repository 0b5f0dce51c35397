// Package classify assigns a coarse page type to a visited page from its URL,
// title and HTML sample.
package classify

import (
	"net/url"
	"regexp"
	"strings"
)

// Page types produced by Heuristic.
const (
	TypeLogin     = "login"
	TypeSignup    = "signup"
	TypeDashboard = "dashboard"
	TypeSettings  = "settings"
	TypeSearch    = "search"
	TypeCheckout  = "checkout"
	TypeForm      = "form"
	TypeListing   = "listing"
	TypeDetail    = "detail"
	TypeDocs      = "docs"
	TypeError     = "error"
	TypeLanding   = "landing"
	TypeUnknown   = "unknown"
)

// Func adapts a plain function to the classifier interface used by the crawler.
type Func func(pageURL, title, sample string) string

// Classify calls f.
func (f Func) Classify(pageURL, title, sample string) string {
	return f(pageURL, title, sample)
}

type rule struct {
	pageType string
	path     *regexp.Regexp
	title    *regexp.Regexp
	markup   *regexp.Regexp
}

// Rules are evaluated together; the highest score wins and earlier rules break ties.
var rules = []rule{
	{
		pageType: TypeError,
		path:     regexp.MustCompile(`(^|/)(404|500|error|not-found)(/|$)`),
		title:    regexp.MustCompile(`(?i)\b(404|500|not found|page not found|server error|something went wrong)\b`),
	},
	{
		pageType: TypeLogin,
		path:     regexp.MustCompile(`(^|/)(login|signin|sign-in|auth|sso)(/|$)`),
		title:    regexp.MustCompile(`(?i)\b(log ?in|sign ?in)\b`),
		markup:   regexp.MustCompile(`(?i)type=["']?password`),
	},
	{
		pageType: TypeSignup,
		path:     regexp.MustCompile(`(^|/)(signup|sign-up|register|join)(/|$)`),
		title:    regexp.MustCompile(`(?i)\b(sign ?up|register|create (an )?account)\b`),
	},
	{
		pageType: TypeCheckout,
		path:     regexp.MustCompile(`(^|/)(checkout|cart|basket|payment|billing)(/|$)`),
		title:    regexp.MustCompile(`(?i)\b(checkout|cart|payment)\b`),
		markup:   regexp.MustCompile(`(?i)autocomplete=["']?cc-`),
	},
	{
		pageType: TypeSettings,
		path:     regexp.MustCompile(`(^|/)(settings|preferences|account|profile)(/|$)`),
		title:    regexp.MustCompile(`(?i)\b(settings|preferences|my account|profile)\b`),
	},
	{
		pageType: TypeDashboard,
		path:     regexp.MustCompile(`(^|/)(dashboard|admin|overview|home|app)(/|$)`),
		title:    regexp.MustCompile(`(?i)\b(dashboard|overview|analytics)\b`),
		markup:   regexp.MustCompile(`(?i)<canvas|class=["'][^"']*\b(chart|widget|kpi)`),
	},
	{
		pageType: TypeSearch,
		path:     regexp.MustCompile(`(^|/)(search|find|results)(/|$)`),
		title:    regexp.MustCompile(`(?i)\b(search|results for)\b`),
		markup:   regexp.MustCompile(`(?i)type=["']?search`),
	},
	{
		pageType: TypeDocs,
		path:     regexp.MustCompile(`(^|/)(docs|documentation|help|guide|faq|support|kb)(/|$)`),
		title:    regexp.MustCompile(`(?i)\b(docs|documentation|guide|faq|help center)\b`),
	},
	{
		pageType: TypeListing,
		path:     regexp.MustCompile(`(^|/)(products|items|list|catalog|category|blog|news|users|orders)(/|$)`),
		markup:   regexp.MustCompile(`(?i)<(table|ul)\b[^>]*class=["'][^"']*\b(list|grid|table|results)`),
	},
	{
		pageType: TypeDetail,
		path:     regexp.MustCompile(`/(\d+|[0-9a-f]{8,}|[a-z0-9]+(-[a-z0-9]+){2,})/?$`),
		markup:   regexp.MustCompile(`(?i)<article\b`),
	},
}

var formMarkup = regexp.MustCompile(`(?i)<form\b`)

// Heuristic classifies with keyword rules over the path, title and markup.
// A path match scores 3, a title match 2 and a markup match 1.
func Heuristic(pageURL, title, sample string) string {
	path := "/"
	if u, err := url.Parse(pageURL); err == nil && u.Path != "" {
		path = strings.ToLower(u.Path)
	}

	best, bestScore := TypeUnknown, 0
	for _, r := range rules {
		score := 0
		if r.path != nil && r.path.MatchString(path) {
			score += 3
		}
		if r.title != nil && r.title.MatchString(title) {
			score += 2
		}
		if r.markup != nil && r.markup.MatchString(sample) {
			score++
		}
		if score > bestScore {
			best, bestScore = r.pageType, score
		}
	}
	if bestScore >= 2 {
		return best
	}

	switch {
	case formMarkup.MatchString(sample):
		return TypeForm
	case path == "/":
		return TypeLanding
	case bestScore > 0:
		return best
	}
	return TypeUnknown
}

// Default returns the heuristic classifier.
func Default() Func {
	return Heuristic
}
