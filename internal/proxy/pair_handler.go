package proxy

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/cache"
	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/codec"
	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/config"
	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/logging"
	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/pairing"
	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/transport"
)

// handleClient is the pair's client-reader goroutine: it owns the only
// path that dials upstream and spawns handleServer, since the upstream
// connection is lazy and synchronous on the first forwarded request
// (spec.md §4.5).
func (p *Proxy) handleClient(ctx context.Context, pair *pairing.Pair, doc *config.Document) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		deadline := doc.IdleTimeout.AsDuration()
		if deadline > 0 {
			pair.Client.SetReadDeadline(time.Now().Add(deadline))
		}

		frame, err := codec.ReadFrame(pair.Client)
		if err != nil {
			p.logFrameError(logging.CategoryNet, "client", pair.ID, err)
			return
		}

		msg, err := codec.DecodeRequest(frame)
		if err != nil {
			p.log.Log(logging.CategoryErr, "malformed request", map[string]any{"pair": pair.ID, "err": err.Error()})
			return
		}

		if msg.Op == codec.OpUnbindRequest {
			return
		}

		if msg.Op == codec.OpExtendedRequest && msg.StartTLS {
			p.log.Log(logging.CategoryErr, "rejecting StartTLS", map[string]any{"pair": pair.ID, "severity": "critical"})
			return
		}

		nonFatal, fatal := pair.ApplyIn(msg)
		p.logFilterErrors(pair.ID, nonFatal)
		if fatal != nil {
			p.log.Log(logging.CategoryErr, "in-filter corrupted encoding, closing pair", map[string]any{"pair": pair.ID, "err": fatal.Error()})
			return
		}

		if doc.UseCache && msg.Op == codec.OpSearchRequest && msg.Search != nil {
			if p.replayFromCache(pair, msg) {
				continue
			}
		}

		server, err := p.ensureServer(pair, doc)
		if err != nil {
			p.log.Log(logging.CategoryErr, "upstream dial failed", map[string]any{"pair": pair.ID, "err": err.Error()})
			return
		}

		if doc.UseCache && msg.Op == codec.OpSearchRequest && msg.Search != nil {
			pair.RememberPending(pair.NextProxyMessageID(msg.MessageID), &pairing.PendingRequest{
				ClientMessageID: msg.MessageID,
				Op:              msg.Op,
				Search:          msg.Search,
			})
			fp := cache.Compute(msg.Search)
			if !p.cache.InFlight(fp) {
				p.cache.Begin(fp)
			}
		}

		if err := writeFrame(server, codec.Encode(msg)); err != nil {
			p.log.Log(logging.CategoryNet, "upstream write failed", map[string]any{"pair": pair.ID, "err": err.Error()})
			return
		}
	}
}

// replayFromCache serves req from a completed cache entry if one exists,
// writing each stored response back to the client with the message ID
// rewritten to req's, per spec.md §4.4 step 2. It returns false (no-op)
// on any cache miss, leaving req to be forwarded upstream normally.
func (p *Proxy) replayFromCache(pair *pairing.Pair, req *codec.Message) bool {
	fp := cache.Compute(req.Search)
	entry, ok := p.cache.Get(fp)
	if !ok {
		return false
	}
	for _, frame := range entry.Responses {
		resp, err := codec.Decode(frame)
		if err != nil {
			// A cached frame that no longer decodes is a bug in the cache
			// writer, not a client-facing condition; skip it rather than
			// crash the pair serving an otherwise-good replay.
			continue
		}
		resp.SetMessageID(req.MessageID)
		if err := writeFrame(pair.Client, codec.Encode(resp)); err != nil {
			return true
		}
	}
	p.log.Log(logging.CategoryCache, "served from cache", map[string]any{"pair": pair.ID, "fingerprint": string(fp)})
	return true
}

// ensureServer dials the upstream on first use and starts its reader
// goroutine. Only the client-reader goroutine ever calls this; GetServer
// goes through pair's mutex so handleServer's concurrent reads of the same
// field are never racing an in-progress SetServer.
func (p *Proxy) ensureServer(pair *pairing.Pair, doc *config.Document) (net.Conn, error) {
	if server := pair.GetServer(); server != nil {
		return server, nil
	}
	conn, err := transport.Dial(doc)
	if err != nil {
		return nil, err
	}
	pair.SetServer(conn)
	go p.handleServer(pair, conn, doc)
	return conn, nil
}

// handleServer is the pair's server-reader goroutine: it decodes each
// upstream response, runs out-filters on search result entries, drives
// the response-cache append/complete transitions, and forwards the
// (possibly mutated) frame back to the client. It takes the dialed
// connection directly, rather than re-reading pair.GetServer() on every
// loop iteration, since it is the sole reader of that connection for the
// pair's lifetime.
func (p *Proxy) handleServer(pair *pairing.Pair, server net.Conn, doc *config.Document) {
	defer pair.Close()

	for {
		deadline := doc.IdleTimeout.AsDuration()
		if deadline > 0 {
			server.SetReadDeadline(time.Now().Add(deadline))
		}

		frame, err := codec.ReadFrame(server)
		if err != nil {
			p.logFrameError(logging.CategoryNet, "server", pair.ID, err)
			return
		}

		msg, err := codec.DecodeResponse(frame)
		if err != nil {
			p.log.Log(logging.CategoryErr, "malformed response", map[string]any{"pair": pair.ID, "err": err.Error()})
			return
		}

		switch msg.Op {
		case codec.OpSearchResEntry:
			nonFatal, fatal := pair.ApplyOut(msg)
			p.logFilterErrors(pair.ID, nonFatal)
			if fatal != nil {
				p.log.Log(logging.CategoryErr, "out-filter corrupted encoding, closing pair", map[string]any{"pair": pair.ID, "err": fatal.Error()})
				return
			}
			p.cacheAppendIfPending(pair, msg)
		case codec.OpSearchResRef:
			// §4.2 names only searchResEntry as an out-filter target;
			// references are forwarded unfiltered but still cached
			// per the Open Question resolution in SPEC_FULL.md §4.4.
			p.cacheAppendIfPending(pair, msg)
		case codec.OpSearchResDone:
			p.cacheCompleteIfPending(pair, msg)
		}

		if err := writeFrame(pair.Client, codec.Encode(msg)); err != nil {
			p.log.Log(logging.CategoryNet, "client write failed", map[string]any{"pair": pair.ID, "err": err.Error()})
			return
		}
	}
}

// cacheAppendIfPending records resp's encoded frame under the fingerprint
// of whatever search is pending for its message ID, if any. A response
// with no pending entry (caching disabled, or a bind/other op that never
// populated the pending table) is simply not recorded.
func (p *Proxy) cacheAppendIfPending(pair *pairing.Pair, resp *codec.Message) {
	req, ok := pair.Pending(resp.MessageID)
	if !ok || req.Search == nil {
		return
	}
	fp := cache.Compute(req.Search)
	p.cache.Append(fp, codec.Encode(resp))
}

// cacheCompleteIfPending appends the terminal searchResDone frame to the
// pending search's cache entry, marks it complete, and clears the pending
// mapping. The Done frame is part of the replayed response stream (§3:
// "responses: ...followed by one terminal searchResDone"), so it must be
// recorded before Complete makes the entry eligible for replay, per
// Invariant 4: completion happens exactly once and the entry is never
// mutated afterward.
func (p *Proxy) cacheCompleteIfPending(pair *pairing.Pair, resp *codec.Message) {
	req, ok := pair.Pending(resp.MessageID)
	if !ok {
		return
	}
	if req.Search != nil {
		fp := cache.Compute(req.Search)
		p.cache.Append(fp, codec.Encode(resp))
		p.cache.Complete(fp)
	}
	pair.ClearPending(resp.MessageID)
}

func (p *Proxy) logFrameError(category logging.Category, side string, pairID uint64, err error) {
	switch {
	case errors.Is(err, codec.ErrClosed):
		return
	case isTimeout(err):
		p.log.Log(category, side+" idle timeout", map[string]any{"pair": pairID})
	case errors.Is(err, codec.ErrTruncated):
		p.log.Log(category, side+" frame truncated", map[string]any{"pair": pairID})
	case errors.Is(err, codec.ErrMalformed):
		p.log.Log(logging.CategoryErr, side+" frame malformed", map[string]any{"pair": pairID})
	default:
		p.log.Log(category, side+" read failed", map[string]any{"pair": pairID, "err": err.Error()})
	}
}

func (p *Proxy) logFilterErrors(pairID uint64, errs []error) {
	for _, err := range errs {
		p.log.Log(logging.CategoryFilter, "filter raised, message unchanged", map[string]any{"pair": pairID, "err": err.Error()})
	}
}
