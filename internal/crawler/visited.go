package crawler

// Visited is the set of normalized URLs accepted for a visit. It is the dedup
// authority for a crawl and is owned by the engine's loop, so it carries no lock.
type Visited struct {
	entries map[string]struct{}
}

// NewVisited returns an empty registry.
func NewVisited() *Visited {
	return &Visited{entries: make(map[string]struct{})}
}

// Mark records a normalized URL and reports whether it was new.
func (v *Visited) Mark(normalized string) bool {
	if _, ok := v.entries[normalized]; ok {
		return false
	}
	v.entries[normalized] = struct{}{}
	return true
}

// Has reports whether the normalized URL was already accepted.
func (v *Visited) Has(normalized string) bool {
	_, ok := v.entries[normalized]
	return ok
}

// Len returns the number of accepted URLs.
func (v *Visited) Len() int {
	return len(v.entries)
}
