package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// MinReloadInterval is the hard floor on how often a config reload can
// happen, regardless of how many filesystem events fsnotify delivers in a
// burst (editors routinely emit several writes per save).
const MinReloadInterval = 15 * time.Second

// Watcher drives Atomic.Reload from filesystem change notifications,
// gated by MinReloadInterval. A ticker provides the floor itself; an
// fsnotify watch on the config file's directory sets a dirty flag so the
// next tick after an edit actually reloads instead of waiting out a full
// polling interval for no reason.
type Watcher struct {
	path    string
	cfg     *Atomic
	onError func(error)

	mu       sync.Mutex
	dirty    bool
	lastLoad time.Time
}

// NewWatcher constructs a Watcher for path, reporting reload failures to
// onError (never fatal — the prior snapshot stays live on a bad reload).
func NewWatcher(path string, cfg *Atomic, onError func(error)) *Watcher {
	return &Watcher{path: path, cfg: cfg, onError: onError}
}

// Run blocks until ctx is done, reloading cfg whenever the watched file
// changes, never faster than MinReloadInterval.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	ticker := time.NewTicker(MinReloadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) == filepath.Clean(w.path) && ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.markDirty()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			if w.onError != nil {
				w.onError(err)
			}
		case <-ticker.C:
			w.tryReload()
		}
	}
}

func (w *Watcher) markDirty() {
	w.mu.Lock()
	w.dirty = true
	w.mu.Unlock()
}

func (w *Watcher) tryReload() {
	w.mu.Lock()
	if !w.dirty || time.Since(w.lastLoad) < MinReloadInterval {
		w.mu.Unlock()
		return
	}
	w.dirty = false
	w.lastLoad = time.Now()
	w.mu.Unlock()

	if err := w.cfg.Reload(w.path); err != nil && w.onError != nil {
		w.onError(err)
	}
}
