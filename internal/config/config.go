// Package config loads and hot-reloads the proxy's YAML configuration
// document.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FilterSpec is one entry of an outfilter_dir/infilter_dir list: a
// registered filter name plus its construction parameters.
type FilterSpec struct {
	Name   string            `yaml:"name"`
	Params map[string]string `yaml:"params"`
}

// UnmarshalYAML accepts either a bare scalar ("rewritebinddn") or a full
// mapping ({name: rewritebinddn, params: {...}}), since most filters in
// practice need no parameters and the config file shouldn't have to spell
// out an empty params block for each one.
func (f *FilterSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&f.Name)
	}
	type plain FilterSpec
	return value.Decode((*plain)(f))
}

// Debug holds the independently-toggled logging categories. These are
// subsystems, not severities: pkt and cache can both log at Info level but
// be switched on or off without touching the other.
type Debug struct {
	Info       bool `yaml:"info"`
	Warn       bool `yaml:"warn"`
	Err        bool `yaml:"err"`
	Pkt        bool `yaml:"pkt"`
	PktSecure  bool `yaml:"pktsecure"`
	Net        bool `yaml:"net"`
	Cache      bool `yaml:"cache"`
	Cache2     bool `yaml:"cache2"`
	Filter     bool `yaml:"filter"`
}

// Document is the full on-disk configuration schema.
type Document struct {
	Listen         string       `yaml:"listen"`
	SSL            bool         `yaml:"ssl"`
	TLSCert        string       `yaml:"tls_cert"`
	TLSKey         string       `yaml:"tls_key"`
	UpstreamLDAP   string       `yaml:"upstream_ldap"`
	UpstreamSSL    bool         `yaml:"upstream_ssl"`
	OutFilterDir   []FilterSpec `yaml:"outfilter_dir"`
	InFilterDir    []FilterSpec `yaml:"infilter_dir"`
	FilterValidate bool         `yaml:"filtervalidate"`
	LogSyslog      bool         `yaml:"log_syslog"`
	LogStderr      bool         `yaml:"log_stderr"`
	LogFile        string       `yaml:"log_file"`
	UseCache       bool         `yaml:"usecache"`
	CacheExpire    int          `yaml:"cacheexpire"`
	YAMLAttributes bool         `yaml:"yaml_attributes"`
	YAMLDir        string       `yaml:"yaml_dir"`
	OverlayPrefix  string       `yaml:"overlay_prefix"`
	IdleTimeout    Duration     `yaml:"idle_timeout"`
	Debug          Debug        `yaml:"debug"`
}

// Duration decodes a YAML string like "5m" the way time.ParseDuration
// would, so the config file can use human-friendly durations instead of
// raw nanosecond integers.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) AsDuration() time.Duration { return time.Duration(d) }

// CacheTTL returns the configured cache expiry as a time.Duration.
func (doc *Document) CacheTTL() time.Duration {
	return time.Duration(doc.CacheExpire) * time.Second
}

// Load reads and parses the YAML document at path, applying defaults for
// any field the file omits.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %q: %w", path, err)
	}
	doc := defaultDocument()
	if err := yaml.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("config: parsing %q: %w", path, err)
	}
	return doc, nil
}

func defaultDocument() *Document {
	return &Document{
		Listen:         ":1389",
		FilterValidate: true,
		LogStderr:      true,
		UseCache:       true,
		CacheExpire:    300,
		OverlayPrefix:  "x-",
		IdleTimeout:    Duration(5 * time.Minute),
		Debug: Debug{
			Info: true,
			Warn: true,
			Err:  true,
		},
	}
}
