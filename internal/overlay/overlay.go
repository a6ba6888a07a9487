// Package overlay injects attributes sourced from YAML files into
// searchResEntry messages, keyed by the entry's DN or by one of its
// existing attribute values.
package overlay

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/codec"
	"gopkg.in/yaml.v3"
)

// sanitizePattern matches each run of characters unsafe for a filesystem
// component, collapsed into a single underscore before the candidate is
// ever joined onto a directory path.
var sanitizePattern = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

const maxCandidateLen = 64

// Sanitize reduces s to a safe, bounded filename component: every run of
// characters outside [A-Za-z0-9_-] becomes a single underscore, and the
// result is truncated to 64 bytes. It is idempotent, so applying it twice
// is always safe.
func Sanitize(s string) string {
	clean := sanitizePattern.ReplaceAllString(s, "_")
	if len(clean) > maxCandidateLen {
		clean = clean[:maxCandidateLen]
	}
	return clean
}

// Overlay holds the configuration needed to locate and apply YAML overlay
// files: the directory they live in and the attribute name prefix used to
// mark which injected attributes are overlay-sourced.
type Overlay struct {
	Dir    string
	Prefix string
}

// New constructs an Overlay rooted at dir, prefixing injected attribute
// names with prefix (for example "my_").
func New(dir, prefix string) *Overlay {
	return &Overlay{Dir: dir, Prefix: prefix}
}

// Apply looks up overlay data for msg (a searchResEntry) by trying, in
// order, the entry's DN and each of its existing attribute values as a
// candidate file name, and injects every scalar or list found in every
// matching file as a new attribute on msg. A miss on every candidate is not
// an error: the entry is simply left unmodified. All candidate files are
// read before anything is injected, so a file that fails to read or parse
// returns an error with msg still unmodified.
func (o *Overlay) Apply(msg *codec.Message) error {
	var found []map[string]any
	for _, candidate := range o.candidates(msg) {
		data, err := o.read(candidate)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("overlay: reading %q: %w", candidate, err)
		}
		found = append(found, data)
	}
	for _, data := range found {
		if err := o.inject(msg, data); err != nil {
			return err
		}
	}
	return nil
}

// candidates builds msg's candidate path set per §4.3 step 1: the entry's
// DN verbatim, then "<attrType>/sanitize(val)" for every existing
// attribute value — only the value half is sanitized, so the type names
// one directory level and the sanitized value names the file within it.
func (o *Overlay) candidates(msg *codec.Message) []string {
	var out []string
	if dn, ok := msg.EntryDN(); ok {
		out = append(out, dn)
	}
	for _, attr := range msg.EntryAttributes() {
		for _, v := range attr.Values {
			out = append(out, attr.Type+"/"+Sanitize(v))
		}
	}
	return out
}

func (o *Overlay) read(candidate string) (map[string]any, error) {
	if candidate == "" {
		return nil, os.ErrNotExist
	}
	path := filepath.Join(o.Dir, candidate+".yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	return data, nil
}

func (o *Overlay) inject(msg *codec.Message, data map[string]any) error {
	for key, val := range data {
		values := toStringSlice(val)
		if len(values) == 0 {
			continue
		}
		if err := msg.AppendAttribute(o.Prefix+key, values); err != nil {
			return fmt.Errorf("overlay: injecting %q: %w", key, err)
		}
	}
	return nil
}

// toStringSlice normalizes a YAML-decoded value into a multi-valued
// attribute's value list: a string, int or bool scalar becomes a
// single-element list, a list is converted element-by-element by the same
// rule, and anything else (floats, nulls, nested mappings) is dropped.
func toStringSlice(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case int:
		return []string{strconv.Itoa(t)}
	case bool:
		return []string{strconv.FormatBool(t)}
	case []any:
		var out []string
		for _, e := range t {
			out = append(out, toStringSlice(e)...)
		}
		return out
	default:
		return nil
	}
}
