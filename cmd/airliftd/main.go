// Command airliftd runs an Airlift audio pipeline node: it loads the YAML
// topology, wires producers, flows, and outputs, and serves the HTTP control
// surface until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/airliftlabs/airlift/internal/api"
	"github.com/airliftlabs/airlift/internal/config"
	"github.com/airliftlabs/airlift/internal/graph"
	"github.com/airliftlabs/airlift/internal/observe"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "airlift.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "airliftd: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "airliftd: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server)
	slog.SetDefault(logger)

	slog.Info("airlift starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "airlift",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise metrics provider", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(flushCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	resolved, err := graph.NewResolver(graph.WithLogger(logger)).Resolve(&cfg.Topology)
	if err != nil {
		slog.Error("failed to resolve pipeline topology", "err", err)
		return 1
	}

	if err := resolved.Node.Start(ctx); err != nil {
		slog.Error("failed to start node", "err", err)
		return 1
	}

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           api.New(resolved, api.WithLogger(logger)).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", cfg.Server.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	slog.Info("node ready — press Ctrl+C to shut down",
		"producers", resolved.Node.Status().ProducerCount,
		"flows", resolved.Node.Status().FlowCount,
	)

	exit := 0
	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
		exit = 1
	}

	slog.Info("shutting down node")
	if err := resolved.Node.Stop(); err != nil {
		slog.Warn("node stop reported errors", "err", err)
	}
	slog.Info("goodbye")
	return exit
}

// newLogger builds the process logger from server config. JSON output is for
// log shippers; text is the interactive default.
func newLogger(cfg config.ServerConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel.SlogLevel()}
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
