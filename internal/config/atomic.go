package config

import "sync/atomic"

// Atomic holds a hot-reloadable configuration snapshot. Only the Debug
// logging flags are actually swapped on reload; listen/ssl/upstream and
// every other field require a process restart, since they're wired into
// already-open listeners and dialers that a config reload cannot retarget.
type Atomic struct {
	ptr atomic.Pointer[Document]
}

// NewAtomic wraps an initial document snapshot.
func NewAtomic(doc *Document) *Atomic {
	a := &Atomic{}
	a.ptr.Store(doc)
	return a
}

// Load returns the current snapshot.
func (a *Atomic) Load() *Document {
	return a.ptr.Load()
}

// Reload re-reads path and, if it parses successfully, swaps in a new
// snapshot that keeps every restart-only field from the current snapshot
// and takes only Debug from the freshly loaded document.
func (a *Atomic) Reload(path string) error {
	fresh, err := Load(path)
	if err != nil {
		return err
	}
	current := a.ptr.Load()
	next := *current
	next.Debug = fresh.Debug
	a.ptr.Store(&next)
	return nil
}
