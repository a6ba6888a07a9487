package proxy

import (
	"fmt"

	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/config"
	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/filter"
	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/pairing"
)

// buildInFilters instantiates one in-filter object per entry of specs, in
// list order, from the compiled-in registry. The returned slice preserves
// that order: spec.md §4.2 requires filters run "ordered by load order
// (directory listing, ascending)", and §5 guarantees invocations stay in
// registration order, neither of which a map could preserve. Construction
// failures are returned rather than skipped: the chain is built when a
// pair starts, and a misconfigured filter closes that pair instead of
// being handled per message.
func buildInFilters(specs []config.FilterSpec) ([]pairing.NamedIn, error) {
	out := make([]pairing.NamedIn, 0, len(specs))
	for _, spec := range specs {
		f, err := filter.InstantiateIn(spec.Name, spec.Params)
		if err != nil {
			return nil, fmt.Errorf("proxy: in-filter %q: %w", spec.Name, err)
		}
		out = append(out, pairing.NamedIn{Name: spec.Name, F: f})
	}
	return out, nil
}

// buildOutFilters is buildInFilters' out-filter counterpart.
func buildOutFilters(specs []config.FilterSpec) ([]pairing.NamedOut, error) {
	out := make([]pairing.NamedOut, 0, len(specs))
	for _, spec := range specs {
		f, err := filter.InstantiateOut(spec.Name, spec.Params)
		if err != nil {
			return nil, fmt.Errorf("proxy: out-filter %q: %w", spec.Name, err)
		}
		out = append(out, pairing.NamedOut{Name: spec.Name, F: f})
	}
	return out, nil
}
