// Command ldap-proxy runs the transparent LDAP v3 proxy: it decodes every
// client request and upstream response at the BER level, runs them
// through the configured filter chain and YAML overlay, and optionally
// serves repeated search queries from an in-memory response cache.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/config"
	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/logging"
	"github.com/beckerr-rzht/ldap-dynamic-rewriter/internal/proxy"
)

func main() {
	configPath := flag.String("config", "/etc/ldap-proxy/config.yaml", "path to the proxy's YAML configuration document")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "ldap-proxy:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	doc, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	writer, err := logging.BuildWriter(doc)
	if err != nil {
		return fmt.Errorf("building log sinks: %w", err)
	}
	log := logging.New(writer, logging.FlagsFromDebug(doc.Debug))

	cfg := config.NewAtomic(doc)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	watcher := config.NewWatcher(configPath, cfg, func(err error) {
		log.Log(logging.CategoryWarn, "config reload failed", map[string]any{"err": err.Error()})
	})
	go func() {
		if err := watcher.Run(ctx); err != nil {
			log.Log(logging.CategoryWarn, "config watcher exited", map[string]any{"err": err.Error()})
		}
	}()

	go syncDebugFlags(ctx, cfg, log)

	p := proxy.New(cfg, log)
	return p.Serve(ctx)
}

// syncDebugFlags keeps the logger's enabled categories in step with
// whatever the config watcher last swapped into cfg. Debug is the only
// field a reload actually changes (config.Atomic.Reload), so polling it
// on the same floor as reload itself is sufficient; there is no separate
// notification path from Atomic back out to the logger.
func syncDebugFlags(ctx context.Context, cfg *config.Atomic, log *logging.Logger) {
	ticker := time.NewTicker(config.MinReloadInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.SetFlags(logging.FlagsFromDebug(cfg.Load().Debug))
		}
	}
}
