package crawler

import (
	"net/url"
	"strings"
)

// Normalize canonicalises a URL into the key used for deduplication. The fragment
// is dropped, query parameters are sorted by key, trailing slashes are removed
// from the path and the result is lower-cased. Input that does not parse as an
// absolute URL is returned lower-cased. Normalize is idempotent.
func Normalize(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	u, err := url.Parse(lowered)
	if err != nil || u.Scheme == "" || u.Host == "" || u.Opaque != "" {
		return lowered
	}

	u.Fragment = ""
	u.RawFragment = ""

	if port := u.Port(); port != "" && port == defaultPortForScheme(u.Scheme) {
		u.Host = u.Hostname()
	}

	u.Path = trimTrailingSlashes(u.Path)
	if u.RawPath != "" {
		u.RawPath = trimTrailingSlashes(u.RawPath)
	}

	u.RawQuery = strings.TrimSpace(u.RawQuery)
	if u.RawQuery != "" {
		if values, err := url.ParseQuery(u.RawQuery); err == nil {
			u.RawQuery = values.Encode()
		}
	}
	u.ForceQuery = false

	return strings.TrimSpace(strings.ToLower(u.String()))
}

func trimTrailingSlashes(p string) string {
	trimmed := strings.TrimRight(p, "/")
	if trimmed == "" {
		return "/"
	}
	return trimmed
}

func defaultPortForScheme(scheme string) string {
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return ""
	}
}

// hostOf returns the lower-cased host name of an absolute URL.
func hostOf(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Hostname()), true
}
