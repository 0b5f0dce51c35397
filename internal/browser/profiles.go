package browser

import "strings"

// Profile is a named viewport and user-agent preset.
type Profile struct {
	Name      string
	Width     int
	Height    int
	UserAgent string
	Mobile    bool
}

// DefaultProfile is used when a request names an unknown preset.
const DefaultProfile = "desktop"

var profiles = map[string]Profile{
	"desktop": {
		Name:      "desktop",
		Width:     1366,
		Height:    768,
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	},
	"laptop": {
		Name:      "laptop",
		Width:     1280,
		Height:    800,
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	},
	"tablet": {
		Name:      "tablet",
		Width:     820,
		Height:    1180,
		UserAgent: "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
		Mobile:    true,
	},
	"mobile": {
		Name:      "mobile",
		Width:     390,
		Height:    844,
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
		Mobile:    true,
	},
}

// ResolveProfile looks up a preset by name, falling back to desktop.
func ResolveProfile(name string) Profile {
	if p, ok := profiles[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return profiles[DefaultProfile]
}
