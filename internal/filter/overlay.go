package filter

import (
	"fmt"

	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/overlay"
)

func init() {
	RegisterOut("overlay", newOverlayFilter)
}

// overlayFilter adapts internal/overlay into the out-filter contract.
type overlayFilter struct {
	ov *overlay.Overlay
}

func newOverlayFilter(params map[string]string) (Out, error) {
	dir := params["dir"]
	if dir == "" {
		return nil, fmt.Errorf("filter: overlay: missing required param %q", "dir")
	}
	prefix := params["prefix"]
	if prefix == "" {
		prefix = "my_"
	}
	return &overlayFilter{ov: overlay.New(dir, prefix)}, nil
}

func (f *overlayFilter) Filter(e *Entry) error {
	return f.ov.Apply(e.Message())
}
