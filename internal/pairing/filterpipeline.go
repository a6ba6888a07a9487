package pairing

import (
	"fmt"

	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/codec"
	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/filter"
)

// FilterError reports a non-fatal filter failure (the message passes
// through unmutated) so the caller can log it under the "filter" category.
type FilterError struct {
	Name      string
	Direction filter.Direction
	Err       error
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("pairing: filter %q failed: %v", e.Name, e.Err)
}

func (e *FilterError) Unwrap() error { return e.Err }

// named pairs a filter instance with the name it was instantiated from, so
// a failure can be attributed to a specific filter in logs.
type namedIn struct {
	name string
	f    filter.In
}

type namedOut struct {
	name string
	f    filter.Out
}

// NamedIn pairs an in-filter instance with the name it was instantiated
// from, in the order it must run.
type NamedIn struct {
	Name string
	F    filter.In
}

// NamedOut is NamedIn's out-filter counterpart.
type NamedOut struct {
	Name string
	F    filter.Out
}

// ConfigureFilters attaches this pair's in/out filter chains, instantiated
// once per pair per spec.md §4.2, plus the filtervalidate policy: if
// validate is true, a post-filter re-encode failure is fatal to the pair
// (FilterCorruptedEncoding, spec.md §7); otherwise it is treated exactly
// like an ordinary FilterRaised (logged, message passes unchanged). in and
// out must already be in load order — spec.md §4.2's "ordered by load
// order (directory listing, ascending)" and §5's filter-invocation
// ordering guarantee both depend on that order being preserved, which a
// map could not do.
func (p *Pair) ConfigureFilters(in []NamedIn, out []NamedOut, validate bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filtersIn = make([]namedIn, len(in))
	for i, nf := range in {
		p.filtersIn[i] = namedIn{name: nf.Name, f: nf.F}
	}
	p.filtersOut = make([]namedOut, len(out))
	for i, nf := range out {
		p.filtersOut[i] = namedOut{name: nf.Name, f: nf.F}
	}
	p.filterValidate = validate
}

// ApplyIn runs every configured in-filter over req, in registration order,
// serialized against ApplyOut by filterMu per Invariant 6 (§3): no two
// goroutines for this pair ever interleave a filter call.
// nonFatal collects every FilterError encountered; a non-nil returned
// error means filtervalidate caught a corrupted re-encode and the pair
// must be torn down.
func (p *Pair) ApplyIn(req *codec.Message) (nonFatal []error, fatal error) {
	p.filterMu.Lock()
	defer p.filterMu.Unlock()

	for _, nf := range p.filtersIn {
		r := filter.NewRequest(req)
		if err := nf.f.Filter(r); err != nil {
			nonFatal = append(nonFatal, &FilterError{Name: nf.name, Direction: filter.DirectionIn, Err: err})
			continue
		}
		if p.filterValidate {
			if _, err := codec.Decode(codec.Encode(req)); err != nil {
				return nonFatal, fmt.Errorf("pairing: filter %q corrupted encoding: %w", nf.name, err)
			}
		}
	}
	return nonFatal, nil
}

// ApplyOut runs every configured out-filter over entry (a searchResEntry),
// with the same ordering, serialization, and filtervalidate semantics as
// ApplyIn. Out-filters never run on searchResDone or any other response
// kind (§4.2); callers are responsible for only invoking this on entries.
func (p *Pair) ApplyOut(entry *codec.Message) (nonFatal []error, fatal error) {
	p.filterMu.Lock()
	defer p.filterMu.Unlock()

	for _, nf := range p.filtersOut {
		e := filter.NewEntry(entry)
		if err := nf.f.Filter(e); err != nil {
			nonFatal = append(nonFatal, &FilterError{Name: nf.name, Direction: filter.DirectionOut, Err: err})
			continue
		}
		if p.filterValidate {
			if _, err := codec.Decode(codec.Encode(entry)); err != nil {
				return nonFatal, fmt.Errorf("pairing: filter %q corrupted encoding: %w", nf.name, err)
			}
		}
	}
	return nonFatal, nil
}
