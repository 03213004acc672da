package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/NOVA-ALLRounder/main-sub002/internal/config"
	"github.com/NOVA-ALLRounder/main-sub002/internal/index"
	"github.com/NOVA-ALLRounder/main-sub002/internal/output"
	"github.com/NOVA-ALLRounder/main-sub002/internal/preflight"
	"github.com/NOVA-ALLRounder/main-sub002/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var force bool
	var noTUI bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the configured document roots",
		Long: `Scan the configured roots, apply the access policy and bring the index
up to date. Unchanged files are skipped by size and mtime; re-read files
whose content hash is unchanged are not re-embedded.

The first run in a data directory checks the environment (see 'docindex
doctor') and stops if a required check fails.

Use --force to discard the scan state, chunk cache and index.`,
		Example: `  # Incremental index of the current directory
  docindex index

  # Full rebuild without the progress UI
  docindex index --force --no-tui`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runIndex(ctx, cmd, force, noTUI)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Discard scan state, cache and index before indexing")
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Plain progress output instead of the interactive UI")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, force, noTUI bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := checkOnce(cmd, cfg, force); err != nil {
		return err
	}

	e, err := newEmbedder(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = e.Model().Close() }()

	out := cmd.OutOrStdout()
	noColor := ui.DetectNoColor()
	renderer := ui.NewRenderer(ui.NewConfig(out,
		ui.WithForcePlain(noTUI),
		ui.WithNoColor(noColor),
		ui.WithTitle(cfg.Paths.Roots[0])))

	runner, err := index.NewRunner(index.RunnerDependencies{
		Config:   cfg,
		Embedder: e,
		Renderer: renderer,
	})
	if err != nil {
		return err
	}
	defer func() { _ = runner.Close() }()

	if err := renderer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start progress display: %w", err)
	}
	report, runErr := runner.Run(ctx, index.RunOptions{Force: force})
	_ = renderer.Stop()
	if runErr != nil {
		return runErr
	}

	denied := make(map[string]int, len(report.Denied))
	for reason, n := range report.Denied {
		denied[string(reason)] = n
	}
	ui.NewStatusRenderer(out, noColor).RenderDenied(denied)
	if report.Failed > 0 {
		output.New(out).Warningf("%d document(s) failed to embed and will be retried on the next run", report.Failed)
	}
	return nil
}

// checkOnce runs the required preflight checks when the data directory has
// no marker for the current settings, or on --force.
func checkOnce(cmd *cobra.Command, cfg *config.Config, force bool) error {
	dataDir := cfg.ResolveDataDir()
	if force {
		if err := preflight.ClearMarker(dataDir); err != nil {
			return err
		}
	}
	fingerprint := preflight.Fingerprint(cfg)
	if !preflight.NeedsCheck(dataDir, fingerprint) {
		return nil
	}

	checker := preflight.New(cfg, preflight.WithOutput(cmd.ErrOrStderr()))
	results := checker.RunRequired(cmd.Context())
	if checker.HasCriticalFailures(results) {
		checker.PrintResults(results)
		return preflightError(results)
	}
	return preflight.MarkPassed(dataDir, fingerprint)
}
