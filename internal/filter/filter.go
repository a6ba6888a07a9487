// Package filter implements the proxy's in-filter/out-filter pipeline: a
// compiled-in registry of named filters, replacing the dynamic
// directory-scanned plugin model, since a rewrite into a compiled
// language has no dynamic-load equivalent worth building.
package filter

import (
	"fmt"
	"sync"

	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/codec"
)

// Direction distinguishes filters that run on client->server traffic from
// filters that run on server->client traffic.
type Direction int

const (
	DirectionIn Direction = iota
	DirectionOut
)

// Request wraps a client request message for in-filters. It deliberately
// exposes no way to read or set the message ID: message IDs are rewritten
// only by the proxy's cache replay, so a filter working through Request
// cannot desynchronize a pending-request table.
type Request struct {
	msg *codec.Message
}

// NewRequest wraps msg for filter consumption.
func NewRequest(msg *codec.Message) *Request { return &Request{msg: msg} }

func (r *Request) Op() codec.Operation         { return r.msg.Op }
func (r *Request) BindDN() (string, bool)      { return r.msg.BindDN() }
func (r *Request) SetBindDN(dn string) error   { return r.msg.SetBindDN(dn) }
func (r *Request) Search() *codec.SearchParams { return r.msg.Search }

// Entry wraps a searchResEntry message for out-filters. Unlike Request it
// exposes the message ID, but only read-only: Entry has no setter for it.
type Entry struct {
	msg *codec.Message
}

// NewEntry wraps msg for filter consumption.
func NewEntry(msg *codec.Message) *Entry { return &Entry{msg: msg} }

// MessageID returns the response's message ID, read-only: Entry offers no
// setter for it (see the doc on Request/Entry). The underlying message
// returned by Message does carry SetMessageID.
func (e *Entry) MessageID() int64             { return e.msg.MessageID }
func (e *Entry) DN() (string, bool)           { return e.msg.EntryDN() }
func (e *Entry) Attributes() []codec.EntryAttr { return e.msg.EntryAttributes() }
func (e *Entry) Append(name string, values []string) error {
	return e.msg.AppendAttribute(name, values)
}
func (e *Entry) Replace(name string, values []string) error {
	return e.msg.ReplaceAttribute(name, values)
}

// Message returns the underlying message. Exported for filters (like the
// overlay adapter) that need to hand it to a package built directly
// against *codec.Message rather than the Entry wrapper.
func (e *Entry) Message() *codec.Message { return e.msg }

// In is a filter that inspects or rewrites an outbound client request
// before it is forwarded to the upstream server.
type In interface {
	Filter(r *Request) error
}

// Out is a filter that inspects or rewrites an inbound search result
// entry before it is forwarded back to the client.
type Out interface {
	Filter(e *Entry) error
}

// InFactory builds a named in-filter from its configured parameters.
type InFactory func(params map[string]string) (In, error)

// OutFactory builds a named out-filter from its configured parameters.
type OutFactory func(params map[string]string) (Out, error)

// Registry maps filter names to the factories that construct them. A
// process-wide Registry is populated by each built-in filter's init, the
// static-registry equivalent of the original plugin directory scan.
type Registry struct {
	mu           sync.RWMutex
	inFactories  map[string]InFactory
	outFactories map[string]OutFactory
}

func NewRegistry() *Registry {
	return &Registry{
		inFactories:  make(map[string]InFactory),
		outFactories: make(map[string]OutFactory),
	}
}

var global = NewRegistry()

// RegisterIn adds an in-filter factory to the process-wide registry. Meant
// to be called from a built-in filter's init function.
func RegisterIn(name string, f InFactory) { global.RegisterIn(name, f) }

// RegisterOut adds an out-filter factory to the process-wide registry.
func RegisterOut(name string, f OutFactory) { global.RegisterOut(name, f) }

// InstantiateIn builds the named in-filter from the process-wide registry.
func InstantiateIn(name string, params map[string]string) (In, error) {
	return global.InstantiateIn(name, params)
}

// InstantiateOut builds the named out-filter from the process-wide registry.
func InstantiateOut(name string, params map[string]string) (Out, error) {
	return global.InstantiateOut(name, params)
}

func (r *Registry) RegisterIn(name string, f InFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFactories[name] = f
}

func (r *Registry) RegisterOut(name string, f OutFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outFactories[name] = f
}

func (r *Registry) InstantiateIn(name string, params map[string]string) (In, error) {
	r.mu.RLock()
	f, ok := r.inFactories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("filter: unknown in-filter %q", name)
	}
	return f(params)
}

func (r *Registry) InstantiateOut(name string, params map[string]string) (Out, error) {
	r.mu.RLock()
	f, ok := r.outFactories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("filter: unknown out-filter %q", name)
	}
	return f(params)
}
