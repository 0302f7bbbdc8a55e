// Command hubd runs the Memory-and-Reasoning Hub.
//
// The hub multiplexes MCP tool calls from many AI clients onto a property
// graph store, a notebook vault, and a pool of local model runtimes. It
// speaks MCP over stdio (point-to-point) or HTTP+WebSocket (multi-client),
// selected by transport.mode.
//
// Required environment variables:
//
//	HUB_GRAPH_PASSWORD    - password for the graph backend
//	HUB_BEARER_TOKEN      - bearer token (http transport only)
//
// Optional environment variables:
//
//	HUB_CONFIG            - path to hub.toml
//	HUB_GRAPH_URI         - graph endpoint (default: bolt://localhost:7687)
//	HUB_MODEL_HOST/_PORT  - model runtime (default: localhost:11434)
//	HUB_NOTEBOOK_VAULT_ROOT - notebook vault root
//	HUB_LOG_LEVEL         - debug, info, warn, error (default: info)
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/emergent-company/memoryhub/internal/chainserver"
	"github.com/emergent-company/memoryhub/internal/config"
	"github.com/emergent-company/memoryhub/internal/discovery"
	"github.com/emergent-company/memoryhub/internal/dispatcher"
	"github.com/emergent-company/memoryhub/internal/governance"
	"github.com/emergent-company/memoryhub/internal/graphserver"
	"github.com/emergent-company/memoryhub/internal/graphstore"
	"github.com/emergent-company/memoryhub/internal/mcp"
	"github.com/emergent-company/memoryhub/internal/metrics"
	"github.com/emergent-company/memoryhub/internal/modelrouter"
	"github.com/emergent-company/memoryhub/internal/modelserver"
	"github.com/emergent-company/memoryhub/internal/notebook"
	"github.com/emergent-company/memoryhub/internal/notebookserver"
	"github.com/emergent-company/memoryhub/internal/scheduler"
	"github.com/emergent-company/memoryhub/internal/taskserver"
	"github.com/emergent-company/memoryhub/internal/transporthttp"
)

// Version is set via ldflags at build time.
var Version = "dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "info" {
		runInfo(os.Args[2:])
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "hubd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to hub.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Structured logging to stderr (stdout is for the stdio MCP transport)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	version := cfg.Server.Version
	if Version != "dev" {
		version = Version
	}

	logger.Info("starting hub",
		"version", version,
		"transport", cfg.Transport.Mode,
		"graph_uri", cfg.Graph.URI,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Backends
	pool, err := graphstore.NewPool(cfg.Graph)
	if err != nil {
		return fmt.Errorf("connecting graph backend: %w", err)
	}

	vault, err := notebook.New(cfg.Notebook)
	if err != nil {
		return fmt.Errorf("opening notebook vault: %w", err)
	}

	router := modelrouter.New(cfg.Model, logger)

	// Hub plumbing
	m := metrics.New("memoryhub")
	gov := governance.New(cfg.Governance, vault, version, logger)
	disc := discovery.New(logger)
	disp := dispatcher.New(disc, gov, m, logger)

	chainSrv := chainserver.New(pool, vault, logger)
	disp.Register(graphserver.New(pool, logger), []string{"entities", "relationships", "traversal"})
	disp.Register(chainSrv, []string{"reasoning"})
	disp.Register(taskserver.New(pool, logger), []string{"tasks"})
	disp.Register(modelserver.New(router, logger), []string{"models"})
	disp.Register(notebookserver.New(vault, logger), []string{"notes"})

	disc.OnStatusChange(m.SetSubServerHealth)
	stopProbes, err := disc.StartHealthProbes(ctx, "@every 30s")
	if err != nil {
		return fmt.Errorf("starting health probes: %w", err)
	}

	sched := scheduler.New(logger)
	sched.Add(chainserver.NewExportRetryJob(chainSrv), time.Minute)
	sched.Start(ctx)

	info := mcp.ServerInfo{Name: cfg.Server.Name, Version: version}

	var serveErr error
	switch cfg.Transport.Mode {
	case "http":
		srv := transporthttp.New(cfg.Transport, disp, gov, pool, router, info, logger)
		errc := make(chan error, 1)
		go func() { errc <- srv.Start() }()
		select {
		case serveErr = <-errc:
		case <-ctx.Done():
			drain, cancelDrain := context.WithTimeout(context.Background(), time.Duration(cfg.Transport.DrainTimeoutSeconds)*time.Second)
			serveErr = srv.Shutdown(drain)
			cancelDrain()
		}
	default:
		serveErr = mcp.NewServer(disp, info, logger).Run(ctx)
		if serveErr == context.Canceled {
			serveErr = nil
		}
	}

	// Teardown callbacks run in parallel, bounded by the drain timeout.
	teardownCtx, cancelTeardown := context.WithTimeout(context.Background(), time.Duration(cfg.Transport.DrainTimeoutSeconds)*time.Second)
	defer cancelTeardown()

	g, gctx := errgroup.WithContext(teardownCtx)
	g.Go(func() error {
		sched.Stop()
		return nil
	})
	g.Go(func() error {
		stopProbes()
		return nil
	})
	g.Go(func() error {
		return pool.Close(gctx)
	})
	if err := g.Wait(); err != nil {
		logger.Warn("teardown incomplete", "error", err)
	}

	logger.Info("hub stopped")
	return serveErr
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
