package classify

import "testing"

func TestHeuristic(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		url    string
		title  string
		sample string
		want   string
	}{
		{"login path", "https://app.example.com/login", "Welcome", `<form><input type="password"></form>`, TypeLogin},
		{"login by title and markup", "https://app.example.com/session/new", "Sign in", `<input type=password>`, TypeLogin},
		{"dashboard", "https://app.example.com/dashboard", "Acme", `<canvas></canvas>`, TypeDashboard},
		{"settings", "https://app.example.com/settings", "Settings", "", TypeSettings},
		{"checkout", "https://shop.example.com/cart", "Your cart", "", TypeCheckout},
		{"error title", "https://example.com/missing", "404 Not Found", "", TypeError},
		{"docs", "https://example.com/docs/intro", "Intro", "", TypeDocs},
		{"detail", "https://example.com/orders/12345", "Order", "<article></article>", TypeDetail},
		{"root is landing", "https://example.com/", "Acme", "<h1>hello</h1>", TypeLanding},
		{"plain form", "https://example.com/contact-us", "Contact", "<form></form>", TypeForm},
		{"unknown", "https://example.com/about", "About", "<p>hi</p>", TypeUnknown},
		{"unparsable url", "%%%", "", "", TypeLanding},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Heuristic(tc.url, tc.title, tc.sample); got != tc.want {
				t.Fatalf("Heuristic(%q, %q) = %q, want %q", tc.url, tc.title, got, tc.want)
			}
		})
	}
}

func TestFuncAdapter(t *testing.T) {
	t.Parallel()

	f := Func(func(string, string, string) string { return "custom" })
	if got := f.Classify("u", "t", "s"); got != "custom" {
		t.Fatalf("got %q", got)
	}
}
