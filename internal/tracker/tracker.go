// Package tracker remembers the last observed status of each monitored resource.
//
// A Tracker is owned by the reconciliation goroutine and is not safe for concurrent use.
// Other goroutines read the monitor's published view instead.
package tracker

import "sort"

// Tracker maps a resource identity to its most recently observed status
type Tracker[S any] struct {
	last map[string]S
}

// New creates an empty tracker
func New[S any]() *Tracker[S] {
	return &Tracker[S]{last: make(map[string]S)}
}

// Observe records status as the latest value for id, returning the prior value if any
func (t *Tracker[S]) Observe(id string, status S) (prev S, had bool) {
	prev, had = t.last[id]
	t.last[id] = status
	return prev, had
}

// Forget drops id from the tracker
func (t *Tracker[S]) Forget(id string) {
	delete(t.last, id)
}

// Missing returns tracked identities absent from seen, sorted for stable processing
func (t *Tracker[S]) Missing(seen map[string]struct{}) []string {
	var gone []string
	for id := range t.last {
		if _, ok := seen[id]; !ok {
			gone = append(gone, id)
		}
	}
	sort.Strings(gone)
	return gone
}

// Len returns the number of tracked identities
func (t *Tracker[S]) Len() int {
	return len(t.last)
}
