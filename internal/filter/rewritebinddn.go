package filter

import (
	"fmt"
	"regexp"
)

func init() {
	RegisterIn("rewritebinddn", newRewriteBindDN)
}

// rewriteBindDN rewrites a mail-style bind name (cn=user@dom.tld) into a
// canonical directory DN (uid=user,dc=dom,dc=tld) before the bindRequest
// reaches the upstream server. Pattern and template are configurable so
// the same filter serves directories with a different naming convention.
type rewriteBindDN struct {
	pattern  *regexp.Regexp
	template string
}

func newRewriteBindDN(params map[string]string) (In, error) {
	pattern := params["pattern"]
	if pattern == "" {
		pattern = `^cn=([^@]+)@([^.]+)\.(.+)$`
	}
	template := params["template"]
	if template == "" {
		template = `uid=$1,dc=$2,dc=$3`
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("filter: rewritebinddn: invalid pattern: %w", err)
	}
	return &rewriteBindDN{pattern: re, template: template}, nil
}

func (f *rewriteBindDN) Filter(r *Request) error {
	dn, ok := r.BindDN()
	if !ok || dn == "" {
		return nil
	}
	if !f.pattern.MatchString(dn) {
		return nil
	}
	return r.SetBindDN(f.pattern.ReplaceAllString(dn, f.template))
}
