// Package pairing tracks each client<->upstream connection pair: the
// pending-request table that lets a response be matched back to its
// originating request, and the single-close discipline that tears both
// sockets down exactly once.
package pairing

import (
	"net"
	"sync"

	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/codec"
)

// PendingRequest records enough of an in-flight client request to cache
// its eventual response: the client-assigned message ID the response is
// sent back under, and the search parameters (from which the cache
// fingerprint is computed) if the request was a cacheable search.
type PendingRequest struct {
	ClientMessageID int64
	Op              codec.Operation
	Search          *codec.SearchParams
}

// Pair is one proxied connection: a client socket, an upstream socket
// (dialed lazily on first request), and the state both reader goroutines
// share. filterMu serializes in-filter and out-filter application so the
// two directions never interleave filter calls; cache calls are not taken
// under filterMu and rely on the cache's own lock.
type Pair struct {
	ID     uint64
	Client net.Conn
	Server net.Conn

	mu      sync.Mutex
	pending map[int64]*PendingRequest
	nextID  int64

	filterMu       sync.Mutex
	filtersIn      []namedIn
	filtersOut     []namedOut
	filterValidate bool

	closeOnce sync.Once
	closed    chan struct{}
}

// New constructs a Pair around an already-accepted client connection. The
// upstream Server connection is attached later via SetServer, once dialed.
func New(id uint64, client net.Conn) *Pair {
	return &Pair{
		ID:      id,
		Client:  client,
		pending: make(map[int64]*PendingRequest),
		closed:  make(chan struct{}),
	}
}

// SetServer attaches the dialed upstream connection.
func (p *Pair) SetServer(server net.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Server = server
}

// GetServer returns the currently attached upstream connection, or nil if
// none has been dialed yet. Reads go through the same mutex SetServer
// writes through, so a dial racing a lookup from another goroutine never
// observes a torn value.
func (p *Pair) GetServer() net.Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Server
}

// RememberPending records req under proxyMessageID, the ID the request
// will be forwarded upstream under, so the matching response can be found
// again by the message ID it comes back with.
func (p *Pair) RememberPending(proxyMessageID int64, req *PendingRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[proxyMessageID] = req
}

// Pending looks up (without removing) the pending request for a proxy
// message ID seen on a response. Searches stay pending across multiple
// searchResEntry frames until a searchResDone clears them.
func (p *Pair) Pending(proxyMessageID int64) (*PendingRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	req, ok := p.pending[proxyMessageID]
	return req, ok
}

// ClearPending removes the pending entry for proxyMessageID, called once
// its terminal searchResDone has been seen.
func (p *Pair) ClearPending(proxyMessageID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, proxyMessageID)
}

// NextProxyMessageID returns the message ID to tag an upstream-bound
// request with. Proxy runs one upstream connection per client pair, so no
// other client shares this pair's upstream id-space and this returns the
// client's own ID unchanged; callers must still go through this method
// rather than reading the client ID directly in case that changes.
func (p *Pair) NextProxyMessageID(clientMessageID int64) int64 {
	return clientMessageID
}

// Lock/Unlock take the same filterMu that serializes in-filter and
// out-filter application for this pair, per the invariant that no two
// goroutines interleave filter calls for the same pair.
func (p *Pair) Lock()   { p.filterMu.Lock() }
func (p *Pair) Unlock() { p.filterMu.Unlock() }

// Close tears down both sockets exactly once, however many goroutines or
// error paths call it concurrently.
func (p *Pair) Close() {
	p.closeOnce.Do(func() {
		if p.Client != nil {
			p.Client.Close()
		}
		if p.Server != nil {
			p.Server.Close()
		}
		close(p.closed)
	})
}

// Done returns a channel closed once Close has run.
func (p *Pair) Done() <-chan struct{} {
	return p.closed
}
