package browser

import (
	"reflect"
	"testing"
)

func TestParseSnapshot(t *testing.T) {
	t.Parallel()

	doc := `<html><head><title> Orders </title></head><body>
<a href="/orders/1">one</a>
<a href="  ">blank</a>
<button data-href="/new-order">New</button>
<div onclick="window.location.href = '/reports'">Reports</div>
<span role="link" href="/help">Help</span>
<nav><li data-to="/settings/profile">Profile</li><i data-src="/static/app.js"></i></nav>
<form><input name="q"><textarea></textarea><select></select></form>
<img src="/a.png"><img src="/b.png">
<div class="x" data-path="//cdn.example.com/lib"></div>
</body></html>`

	snap, err := ParseSnapshot(doc, "https://example.com/orders")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if snap.Title != "Orders" {
		t.Fatalf("title = %q", snap.Title)
	}
	if snap.LinkCount != 2 || !reflect.DeepEqual(snap.Anchors, []string{"/orders/1"}) {
		t.Fatalf("anchors = %v, link count = %d", snap.Anchors, snap.LinkCount)
	}
	if want := []string{"/new-order", "/reports", "/help"}; !reflect.DeepEqual(snap.ButtonTargets, want) {
		t.Fatalf("button targets = %v, want %v", snap.ButtonTargets, want)
	}
	if snap.FormCount != 1 || snap.InputCount != 3 || snap.ImageCount != 2 {
		t.Fatalf("counts form=%d input=%d image=%d", snap.FormCount, snap.InputCount, snap.ImageCount)
	}
	if want := []string{"/new-order", "/settings/profile"}; !reflect.DeepEqual(snap.RouteCandidates, want) {
		t.Fatalf("route candidates = %v, want %v", snap.RouteCandidates, want)
	}
}

func TestResolveProfile(t *testing.T) {
	t.Parallel()

	if p := ResolveProfile(" Mobile "); p.Name != "mobile" || !p.Mobile {
		t.Fatalf("unexpected mobile profile %+v", p)
	}
	if p := ResolveProfile("smart-fridge"); p.Name != DefaultProfile {
		t.Fatalf("unknown profile should fall back to desktop, got %s", p.Name)
	}
}

func TestObservationsErrors(t *testing.T) {
	t.Parallel()

	if got := (Observations{ConsoleErrors: 2, Exceptions: 1}).Errors(); got != 3 {
		t.Fatalf("Errors() = %d", got)
	}
}
