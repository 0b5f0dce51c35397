package crawler

import "inspectra/pkg/types"

// Frontier is the FIFO queue of pending visits. Pushes are deduplicated by
// normalized URL against both the queue and the visited registry through a map
// index, so ordering stays first-in first-out.
type Frontier struct {
	queue   []types.FrontierEntry
	head    int
	queued  map[string]struct{}
	visited *Visited
}

// NewFrontier returns an empty frontier that consults visited on every push.
func NewFrontier(visited *Visited) *Frontier {
	return &Frontier{
		queued:  make(map[string]struct{}),
		visited: visited,
	}
}

// Push appends the entry unless its normalized URL is queued or visited.
func (f *Frontier) Push(entry types.FrontierEntry) bool {
	key := Normalize(entry.URL)
	if _, ok := f.queued[key]; ok {
		return false
	}
	if f.visited != nil && f.visited.Has(key) {
		return false
	}
	f.queued[key] = struct{}{}
	f.queue = append(f.queue, entry)
	return true
}

// Pop removes and returns the oldest entry.
func (f *Frontier) Pop() (types.FrontierEntry, bool) {
	if f.head >= len(f.queue) {
		return types.FrontierEntry{}, false
	}
	entry := f.queue[f.head]
	f.queue[f.head] = types.FrontierEntry{}
	f.head++
	delete(f.queued, Normalize(entry.URL))

	// Reclaim the consumed prefix once it dominates the backing array.
	if f.head > 64 && f.head*2 >= len(f.queue) {
		f.queue = append([]types.FrontierEntry(nil), f.queue[f.head:]...)
		f.head = 0
	}
	return entry, true
}

// Len returns the number of pending entries.
func (f *Frontier) Len() int {
	return len(f.queue) - f.head
}
