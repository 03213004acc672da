package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/NOVA-ALLRounder/main-sub002/internal/config"
	"github.com/NOVA-ALLRounder/main-sub002/internal/embed"
	"github.com/NOVA-ALLRounder/main-sub002/internal/index"
	"github.com/NOVA-ALLRounder/main-sub002/internal/logging"
	"github.com/NOVA-ALLRounder/main-sub002/internal/mcp"
	"github.com/NOVA-ALLRounder/main-sub002/internal/policy"
	"github.com/NOVA-ALLRounder/main-sub002/internal/search"
	"github.com/NOVA-ALLRounder/main-sub002/internal/store"
	"github.com/NOVA-ALLRounder/main-sub002/internal/telemetry"
	"github.com/NOVA-ALLRounder/main-sub002/internal/watcher"
)

// metricsFlushInterval is how often serve persists query statistics.
const metricsFlushInterval = time.Minute

func newServeCmd() *cobra.Command {
	var watch bool
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Serve the index over the Model Context Protocol on stdio. Exposes the
search_documents and index_status tools, and indexed text documents as
resources. Logs go to ~/.docindex/logs/docindex.log; stdout carries only
protocol messages.

With --watch the index is kept up to date while serving.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx, watch, transport)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Re-index on file changes while serving")
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport (stdio)")

	return cmd
}

func runServe(ctx context.Context, watch bool, transport string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !debugMode {
		if err := replaceLogger(logging.ServeConfig(cfg.Logging.Level)); err != nil {
			return err
		}
	}

	e, err := newEmbedder(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = e.Model().Close() }()

	oracle, err := index.NewOracle(cfg)
	if err != nil {
		return err
	}

	metrics := telemetry.NewQueryMetrics(telemetry.NewFileStore(cfg.ResolveDataDir()),
		telemetry.Config{FlushInterval: metricsFlushInterval})
	defer func() { _ = metrics.Close() }()

	srv, runner, err := newMCPServer(cfg, e, oracle, metrics)
	if err != nil {
		return err
	}
	defer func() { _ = runner.Close() }()

	if watch {
		go watchWhileServing(ctx, cfg, runner)
	}
	return srv.Serve(ctx, transport)
}

// newMCPServer wires a Runner, a Retriever and the MCP server so that
// every index the Runner publishes becomes searchable.
func newMCPServer(cfg *config.Config, e *embed.Embedder, oracle policy.Oracle, metrics *telemetry.QueryMetrics) (*mcp.Server, *index.Runner, error) {
	reranker, err := search.NewReranker(cfg.Search.Reranker, cfg.RerankTimeout())
	if err != nil {
		return nil, nil, err
	}

	var srv *mcp.Server
	var retriever *search.Retriever
	publish := func(idx *store.Index) {
		if srv == nil || idx == nil {
			return
		}
		if retriever == nil {
			retriever = search.NewRetriever(idx, e,
				search.WithReranker(reranker),
				search.WithLexicalFallback(cfg.Search.LexicalFallback))
		} else {
			retriever.SetIndex(idx)
		}
		srv.SetIndex(retriever, idx)
	}

	runner, err := index.NewRunner(index.RunnerDependencies{
		Config:   cfg,
		Embedder: e,
		Oracle:   oracle,
		OnIndex:  publish,
	})
	if err != nil {
		return nil, nil, err
	}

	srv, err = mcp.NewServer(mcp.ServerConfig{
		Status:        runner,
		Oracle:        oracle,
		Agent:         cfg.Policy.Agent,
		SearchOptions: search.OptionsFromConfig(cfg.Search),
		Metrics:       metrics,
		Logger:        slog.Default(),
	})
	if err != nil {
		_ = runner.Close()
		return nil, nil, err
	}

	// Loads the persisted index, if any; the Runner publishes it.
	_ = runner.Index()
	return srv, runner, nil
}

// watchWhileServing keeps the index current. Failures are logged; the
// server keeps answering from the last good index.
func watchWhileServing(ctx context.Context, cfg *config.Config, runner *index.Runner) {
	if _, err := runner.Run(ctx, index.RunOptions{}); err != nil {
		slog.Warn("serve_initial_index_failed", slog.String("error", err.Error()))
	}

	w, err := watcher.NewHybridWatcher(watcher.Options{
		Debounce:      cfg.WatchDebounce(),
		SkipDirs:      cfg.Scanner.SkipDirs,
		AllowedDotDir: cfg.Scanner.AllowedDotDir,
		IgnoreDirs:    []string{cfg.ResolveDataDir()},
	})
	if err != nil {
		slog.Warn("serve_watch_failed", slog.String("error", err.Error()))
		return
	}
	coord := index.NewCoordinator(index.CoordinatorConfig{Runner: runner, Reload: reloadOracle})
	if err := watchLoop(ctx, w, coord, cfg); err != nil {
		slog.Warn("serve_watch_stopped", slog.String("error", err.Error()))
	}
}
