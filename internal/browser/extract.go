package browser

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const maxRouteCandidates = 200

// Snapshot is the metadata extracted from a loaded document.
type Snapshot struct {
	URL   string
	Title string
	// Anchors holds raw href values of <a> elements.
	Anchors []string
	// ButtonTargets holds navigation targets declared by button-like elements
	// (data-href, onclick location changes, role="link").
	ButtonTargets []string
	// RouteCandidates holds path-shaped attribute values that look like client-side routes.
	RouteCandidates []string
	FormCount       int
	InputCount      int
	LinkCount       int
	ImageCount      int
	HTML            string
}

var (
	onclickTarget = regexp.MustCompile(`(?:location(?:\.href)?\s*=|location\.(?:assign|replace)\(|navigate\(|router\.push\(|window\.open\()\s*['"]([^'"]+)['"]`)
	routeShape    = regexp.MustCompile(`^/[A-Za-z0-9][A-Za-z0-9_\-./]*$`)
)

var assetExtensions = map[string]struct{}{
	".js": {}, ".mjs": {}, ".css": {}, ".map": {}, ".png": {}, ".jpg": {}, ".jpeg": {},
	".gif": {}, ".svg": {}, ".webp": {}, ".ico": {}, ".woff": {}, ".woff2": {}, ".ttf": {},
	".eot": {}, ".mp4": {}, ".webm": {}, ".mp3": {}, ".pdf": {}, ".zip": {}, ".json": {},
}

// attributes that never carry navigation intent.
var skipRouteAttrs = map[string]struct{}{
	"href": {}, "src": {}, "srcset": {}, "style": {}, "class": {}, "id": {},
	"action": {}, "d": {}, "viewbox": {}, "xmlns": {},
}

// ParseSnapshot extracts navigation targets and element counts from rendered HTML.
func ParseSnapshot(html, pageURL string) (Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Snapshot{}, fmt.Errorf("parse html: %w", err)
	}

	snap := Snapshot{
		URL:   pageURL,
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
		HTML:  html,
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		snap.LinkCount++
		if href := strings.TrimSpace(s.AttrOr("href", "")); href != "" {
			snap.Anchors = append(snap.Anchors, href)
		}
	})

	doc.Find("[data-href],[onclick],[role='link']").Each(func(_ int, s *goquery.Selection) {
		if target := buttonTarget(s); target != "" {
			snap.ButtonTargets = append(snap.ButtonTargets, target)
		}
	})

	snap.FormCount = doc.Find("form").Length()
	snap.InputCount = doc.Find("input,textarea,select").Length()
	snap.ImageCount = doc.Find("img").Length()
	snap.RouteCandidates = routeCandidates(doc)
	return snap, nil
}

func buttonTarget(s *goquery.Selection) string {
	for _, attr := range []string{"data-href", "data-url", "data-link"} {
		if v := strings.TrimSpace(s.AttrOr(attr, "")); v != "" {
			return v
		}
	}
	if m := onclickTarget.FindStringSubmatch(s.AttrOr("onclick", "")); m != nil {
		return strings.TrimSpace(m[1])
	}
	if goquery.NodeName(s) != "a" && s.AttrOr("role", "") == "link" {
		return strings.TrimSpace(s.AttrOr("href", ""))
	}
	return ""
}

func routeCandidates(doc *goquery.Document) []string {
	seen := make(map[string]struct{})
	var out []string
	doc.Find("body *").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, attr := range s.Nodes[0].Attr {
			if _, skip := skipRouteAttrs[strings.ToLower(attr.Key)]; skip {
				continue
			}
			v := strings.TrimSpace(attr.Val)
			if !looksLikeRoute(v) {
				continue
			}
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
			if len(out) >= maxRouteCandidates {
				return false
			}
		}
		return true
	})
	return out
}

func looksLikeRoute(v string) bool {
	if len(v) < 2 || strings.HasPrefix(v, "//") || !routeShape.MatchString(v) {
		return false
	}
	_, asset := assetExtensions[strings.ToLower(path.Ext(v))]
	return !asset
}
