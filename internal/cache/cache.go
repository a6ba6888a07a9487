// Package cache implements the response cache: search requests are
// fingerprinted and their response stream replayed verbatim on a later
// identical request, saving an upstream round trip.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"

	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/codec"
)

// Fingerprint identifies a searchRequest independent of its message ID.
type Fingerprint string

// Compute derives the canonical fingerprint of a search request: a SHA-256
// digest over a NUL-delimited concatenation of every field that determines
// the response set. The message ID is deliberately excluded so that the
// same search issued twice, by different clients or the same client twice,
// fingerprints identically.
func Compute(sp *codec.SearchParams) Fingerprint {
	h := sha256.New()
	write := func(b []byte) {
		h.Write(b)
		h.Write([]byte{0})
	}
	write([]byte(sp.BaseDN))
	write([]byte(itoa(sp.Scope)))
	write([]byte(itoa(sp.DerefAliases)))
	write([]byte(itoa(sp.SizeLimit)))
	write([]byte(itoa(sp.TimeLimit)))
	if sp.TypesOnly {
		write([]byte{1})
	} else {
		write([]byte{0})
	}
	write(sp.FilterBytes)
	for _, a := range sp.Attributes {
		write([]byte(a))
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

func itoa(n int64) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(n))
	return string(b[:])
}

// Entry holds the accumulated response stream for one cached search: every
// searchResEntry and searchResRef frame seen so far, in arrival order, plus
// the searchResDone that closes it. Entries are append-only until Completed
// is set; a search still in flight is never replayed.
type Entry struct {
	Responses  [][]byte
	Completed  bool
	InsertedAt time.Time
}

// Cache is a mutex-guarded fingerprint-keyed response cache with a fixed
// per-entry expiry. It is safe for concurrent use across connection pairs.
type Cache struct {
	mu      sync.Mutex
	entries map[Fingerprint]*Entry
	ttl     time.Duration
}

// New returns a Cache whose entries expire ttl after insertion. A ttl of
// zero disables expiry checks: Get never expires an entry and Purge removes
// nothing, so entries live until Abandon, a later Begin, or process exit.
func New(ttl time.Duration) *Cache {
	return &Cache{entries: make(map[Fingerprint]*Entry), ttl: ttl}
}

// Get returns the cached entry for fp if present, complete, and unexpired.
func (c *Cache) Get(fp Fingerprint) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fp]
	if !ok || !e.Completed {
		return nil, false
	}
	if c.ttl > 0 && time.Since(e.InsertedAt) > c.ttl {
		delete(c.entries, fp)
		return nil, false
	}
	return e, true
}

// Begin starts (or restarts) recording responses for fp. Call it when a
// search request without a cache hit is forwarded upstream.
func (c *Cache) Begin(fp Fingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fp] = &Entry{InsertedAt: time.Now()}
}

// InFlight reports whether fp already names an unexpired entry, complete
// or not. The request path uses this to decide whether an identical
// search already in progress should be left recording (no second Begin,
// which would otherwise discard the responses collected so far) rather
// than started fresh.
func (c *Cache) InFlight(fp Fingerprint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[fp]
	if !ok {
		return false
	}
	if c.ttl > 0 && time.Since(e.InsertedAt) > c.ttl {
		delete(c.entries, fp)
		return false
	}
	return true
}

// Append records one more response frame for fp. It is a no-op if Begin was
// never called or the entry was already marked complete.
func (c *Cache) Append(fp Fingerprint, frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[fp]
	if !ok || e.Completed {
		return
	}
	e.Responses = append(e.Responses, frame)
}

// Complete marks fp's entry as eligible for replay.
func (c *Cache) Complete(fp Fingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[fp]; ok {
		e.Completed = true
	}
}

// Abandon discards a partially recorded entry, used when the upstream
// connection drops mid-search so a truncated result is never replayed.
func (c *Cache) Abandon(fp Fingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, fp)
}

// Purge drops every expired entry and returns how many were removed.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ttl <= 0 {
		return 0
	}
	n := 0
	for fp, e := range c.entries {
		if time.Since(e.InsertedAt) > c.ttl {
			delete(c.entries, fp)
			n++
		}
	}
	return n
}

// Len reports the number of entries currently held, complete or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
