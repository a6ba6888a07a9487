// Package proxy implements the Proxy Core: the accept loop, per-pair
// goroutines, upstream dial, and the background config-reload and
// idle-cache-GC loops that together replace the source's single-threaded
// readiness selector (spec.md §4.5, §9).
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/cache"
	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/config"
	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/logging"
	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/pairing"
	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/transport"
)

// idleGCDebounce is how long the proxy waits with zero active pairs
// before calling cache.Purge, so a brief lull between requests doesn't
// trigger a sweep on every accept/close cycle.
const idleGCDebounce = 2 * time.Second

// Proxy owns the shared resources spec.md §5 calls out explicitly: the
// response cache and the connection-list registry. Both carry their own
// lock, so per spec.md's own permitted alternative to a single owning
// task, many pair goroutines may run concurrently as long as every cache
// and connection-list mutation is serialized through one of those locks.
type Proxy struct {
	cfg   *config.Atomic
	log   *logging.Logger
	cache *cache.Cache
	pairs *pairing.List
}

// New constructs a Proxy around an already-loaded configuration snapshot
// and logger. The cache is sized from cfg's current CacheExpire; a config
// reload never resizes it, since cacheexpire is not in Atomic's
// hot-reloadable Debug-only field set (see config.Atomic).
func New(cfg *config.Atomic, log *logging.Logger) *Proxy {
	doc := cfg.Load()
	return &Proxy{
		cfg:   cfg,
		log:   log,
		cache: cache.New(doc.CacheTTL()),
		pairs: pairing.NewList(),
	}
}

// Serve opens the configured listener and runs until ctx is canceled. A
// bind failure makes Serve return an error at startup. After that, an
// Accept failure not caused by ctx being canceled also ends Serve with an
// error; every other error is confined to a single pair.
func (p *Proxy) Serve(ctx context.Context) error {
	doc := p.cfg.Load()
	ln, err := transport.Listen(doc)
	if err != nil {
		return fmt.Errorf("proxy: listen: %w", err)
	}
	defer ln.Close()

	p.log.Log(logging.CategoryInfo, "listening", map[string]any{"addr": doc.Listen, "ssl": doc.SSL})

	go p.idleGCLoop(ctx)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			p.log.Log(logging.CategoryErr, "accept failed", map[string]any{"err": err.Error()})
			return fmt.Errorf("proxy: accept: %w", err)
		}
		pair := p.pairs.Add(conn)
		go p.runPair(ctx, pair)
	}
}

// idleGCLoop calls cache.Purge whenever the connection-list registry has
// observed zero live pairs for idleGCDebounce, the goroutine-per-pair
// replacement for the single-threaded loop's "if no active pairs, purge"
// per-wake bullet (spec.md §4.5).
func (p *Proxy) idleGCLoop(ctx context.Context) {
	ticker := time.NewTicker(idleGCDebounce)
	defer ticker.Stop()
	idleSince := time.Time{}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.pairs.Len() != 0 {
				idleSince = time.Time{}
				continue
			}
			if idleSince.IsZero() {
				idleSince = time.Now()
				continue
			}
			if time.Since(idleSince) >= idleGCDebounce {
				if n := p.cache.Purge(); n > 0 {
					p.log.Log(logging.CategoryCache, "purged expired entries", map[string]any{"count": n})
				}
			}
		}
	}
}

// runPair instantiates this pair's filter chain from the current config
// snapshot and runs its client-reader goroutine, waiting for the pair to
// close before deregistering it. The server-reader goroutine, if any, is
// started lazily by handleClient once the upstream dials.
func (p *Proxy) runPair(ctx context.Context, pair *pairing.Pair) {
	defer p.pairs.Remove(pair.ID)
	defer pair.Close()

	doc := p.cfg.Load()

	in, err := buildInFilters(doc.InFilterDir)
	if err != nil {
		p.log.Log(logging.CategoryErr, "filter setup failed", map[string]any{"pair": pair.ID, "err": err.Error()})
		return
	}
	out, err := buildOutFilters(doc.OutFilterDir)
	if err != nil {
		p.log.Log(logging.CategoryErr, "filter setup failed", map[string]any{"pair": pair.ID, "err": err.Error()})
		return
	}
	pair.ConfigureFilters(in, out, doc.FilterValidate)

	p.handleClient(ctx, pair, doc)
}

// writeFrame fully drains buf to conn, looping on partial writes instead
// of trusting a single Write call to consume the whole frame — the
// documented partial-write bug spec.md §5 calls out explicitly.
func writeFrame(conn net.Conn, buf []byte) error {
	for len(buf) > 0 {
		n, err := conn.Write(buf)
		buf = buf[n:]
		if err != nil {
			return err
		}
	}
	return nil
}

// isTimeout reports whether err is a network operation timing out, used
// to distinguish an idle-timeout close (logged at net level, not an
// error) from a genuine I/O failure.
func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
