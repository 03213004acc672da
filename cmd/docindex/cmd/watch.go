package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/NOVA-ALLRounder/main-sub002/internal/config"
	"github.com/NOVA-ALLRounder/main-sub002/internal/index"
	"github.com/NOVA-ALLRounder/main-sub002/internal/output"
	"github.com/NOVA-ALLRounder/main-sub002/internal/policy"
	"github.com/NOVA-ALLRounder/main-sub002/internal/ui"
	"github.com/NOVA-ALLRounder/main-sub002/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var noTUI bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Index, then re-index on file changes",
		Long: `Run an incremental index, then watch the roots and re-run it after each
debounced burst of changes. Editing the project config file reloads the
access policy and rescans.

Stop with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runWatch(ctx, cmd, noTUI)
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Plain progress output for the initial index")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, noTUI bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := checkOnce(cmd, cfg, false); err != nil {
		return err
	}

	e, err := newEmbedder(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = e.Model().Close() }()

	out := cmd.OutOrStdout()
	status := output.New(out)
	renderer := ui.NewRenderer(ui.NewConfig(out,
		ui.WithForcePlain(noTUI),
		ui.WithNoColor(ui.DetectNoColor()),
		ui.WithTitle(cfg.Paths.Roots[0])))

	runner, err := index.NewRunner(index.RunnerDependencies{Config: cfg, Embedder: e, Renderer: renderer})
	if err != nil {
		return err
	}
	defer func() { _ = runner.Close() }()

	if err := renderer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start progress display: %w", err)
	}
	_, runErr := runner.Run(ctx, index.RunOptions{})
	_ = renderer.Stop()
	if runErr != nil {
		return runErr
	}

	// Later runs report through the log only.
	runner.SetRenderer(ui.NopRenderer{})

	w, err := watcher.NewHybridWatcher(watcher.Options{
		Debounce:      cfg.WatchDebounce(),
		SkipDirs:      cfg.Scanner.SkipDirs,
		AllowedDotDir: cfg.Scanner.AllowedDotDir,
		IgnoreDirs:    []string{cfg.ResolveDataDir()},
	})
	if err != nil {
		return err
	}

	coord := index.NewCoordinator(index.CoordinatorConfig{
		Runner: runner,
		Reload: reloadOracle,
		OnRun: func(report *index.RunReport, err error) {
			if err != nil {
				return
			}
			status.Infof("Re-indexed: +%d ~%d -%d (%d chunks)",
				report.Added, report.Modified, report.Deleted, report.Chunks)
		},
	})

	status.Infof("Watching %d root(s). Press Ctrl-C to stop.", len(cfg.Paths.Roots))
	slog.Info("watch_started", slog.Any("roots", cfg.Paths.Roots))

	return watchLoop(ctx, w, coord, cfg)
}

// reloadOracle re-reads the configuration and builds its policy.
func reloadOracle() (policy.Oracle, error) {
	next, err := readConfig()
	if err != nil {
		return nil, err
	}
	return index.NewOracle(next)
}

// watchLoop runs the watcher and the coordinator until either stops.
func watchLoop(ctx context.Context, w *watcher.HybridWatcher, coord *index.Coordinator, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return w.Start(gctx, cfg.Paths.Roots...)
	})
	g.Go(func() error {
		defer cancel()
		defer func() { _ = w.Stop() }()
		return coord.Watch(gctx, w)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
