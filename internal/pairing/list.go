package pairing

import (
	"net"
	"sync"
)

// List is the proxy's connection-list registry: every live Pair, keyed by
// an opaque ID, guarded by a single mutex since adds/removes are rare
// compared to the per-pair traffic they gate.
type List struct {
	mu      sync.Mutex
	nextID  uint64
	entries map[uint64]*Pair
}

// NewList constructs an empty List.
func NewList() *List {
	return &List{entries: make(map[uint64]*Pair)}
}

// Add registers client under a fresh ID and returns the new Pair.
func (l *List) Add(client net.Conn) *Pair {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	p := New(l.nextID, client)
	l.entries[l.nextID] = p
	return p
}

// Remove drops pair id from the registry. Safe to call more than once.
func (l *List) Remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, id)
}

// Len reports the number of live pairs.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Get returns the pair registered under id, if any.
func (l *List) Get(id uint64) (*Pair, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.entries[id]
	return p, ok
}

// Each is a synchronous visit over a snapshot of the current pairs, safe
// to call while other goroutines add or remove entries concurrently.
func (l *List) Each(fn func(*Pair)) {
	l.mu.Lock()
	snapshot := make([]*Pair, 0, len(l.entries))
	for _, p := range l.entries {
		snapshot = append(snapshot, p)
	}
	l.mu.Unlock()

	for _, p := range snapshot {
		fn(p)
	}
}
