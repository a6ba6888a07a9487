// Package logging wires zerolog into the proxy's category-based logging
// model: independently-toggled named subsystems rather than severities.
package logging

import (
	"io"
	"log/syslog"
	"os"

	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/config"
	"github.com/rs/zerolog"
)

// Category names a logging subsystem. Two categories can both log at Info
// severity yet be switched on and off independently (pkt vs cache).
type Category string

const (
	CategoryInfo      Category = "info"
	CategoryWarn      Category = "warn"
	CategoryErr       Category = "err"
	CategoryPkt       Category = "pkt"
	CategoryPktSecure Category = "pktsecure"
	CategoryNet       Category = "net"
	CategoryCache     Category = "cache"
	CategoryCache2    Category = "cache2"
	CategoryFilter    Category = "filter"
)

// Logger fans a single zerolog.Logger out across named categories, each
// independently enabled by the config's debug flags.
type Logger struct {
	base    zerolog.Logger
	enabled map[Category]bool
}

// New builds a Logger writing to w with the given category flags.
func New(w io.Writer, flags map[Category]bool) *Logger {
	enabled := make(map[Category]bool, len(flags))
	for k, v := range flags {
		enabled[k] = v
	}
	return &Logger{
		base:    zerolog.New(w).With().Timestamp().Logger(),
		enabled: enabled,
	}
}

// SetFlags atomically replaces the enabled-category set, used by a config
// reload that changes the debug block.
func (l *Logger) SetFlags(flags map[Category]bool) {
	enabled := make(map[Category]bool, len(flags))
	for k, v := range flags {
		enabled[k] = v
	}
	l.enabled = enabled
}

// Log emits msg under category if that category is currently enabled.
func (l *Logger) Log(category Category, msg string, fields map[string]any) {
	if !l.enabled[category] {
		return
	}
	ev := l.base.Info().Str("category", string(category))
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

// FlagsFromDebug converts a config.Debug block into the map Logger expects.
func FlagsFromDebug(d config.Debug) map[Category]bool {
	return map[Category]bool{
		CategoryInfo:      d.Info,
		CategoryWarn:      d.Warn,
		CategoryErr:       d.Err,
		CategoryPkt:       d.Pkt,
		CategoryPktSecure: d.PktSecure,
		CategoryNet:       d.Net,
		CategoryCache:     d.Cache,
		CategoryCache2:    d.Cache2,
		CategoryFilter:    d.Filter,
	}
}

// BuildWriter fans output out to every sink the config enables: stderr,
// a file, and syslog, combined with zerolog.MultiLevelWriter so a single
// Logger can write to all of them without knowing which are active.
func BuildWriter(doc *config.Document) (io.Writer, error) {
	var writers []io.Writer

	if doc.LogStderr {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if doc.LogFile != "" {
		f, err := os.OpenFile(doc.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		writers = append(writers, f)
	}

	if doc.LogSyslog {
		sw, err := syslog.New(syslog.LOG_INFO, "ldap-proxy")
		if err != nil {
			return nil, err
		}
		writers = append(writers, sw)
	}

	if len(writers) == 0 {
		return io.Discard, nil
	}
	return zerolog.MultiLevelWriter(writers...), nil
}
