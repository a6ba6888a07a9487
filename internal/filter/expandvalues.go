package filter

import (
	"fmt"
	"strings"
)

func init() {
	RegisterOut("expandvalues", newExpandValues)
}

// expandValues splits a single compound attribute value (e.g. a
// semicolon-joined group list) into its constituent values, so downstream
// LDAP clients that expect one value per group membership see a properly
// multi-valued attribute instead of one packed string.
type expandValues struct {
	attribute string
	separator string
}

func newExpandValues(params map[string]string) (Out, error) {
	attr := params["attribute"]
	if attr == "" {
		return nil, fmt.Errorf("filter: expandvalues: missing required param %q", "attribute")
	}
	sep := params["separator"]
	if sep == "" {
		sep = ","
	}
	return &expandValues{attribute: attr, separator: sep}, nil
}

func (f *expandValues) Filter(e *Entry) error {
	for _, a := range e.Attributes() {
		if a.Type != f.attribute {
			continue
		}
		var expanded []string
		changed := false
		for _, v := range a.Values {
			parts := strings.Split(v, f.separator)
			if len(parts) > 1 {
				changed = true
			}
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					expanded = append(expanded, p)
				}
			}
		}
		if !changed {
			return nil
		}
		return e.Replace(f.attribute, expanded)
	}
	return nil
}
