package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	docerrors "github.com/NOVA-ALLRounder/main-sub002/internal/errors"
	"github.com/NOVA-ALLRounder/main-sub002/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		jsonOutput bool
		verbose    bool
		offline    bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment before indexing",
		Long: `Check the corpus roots, the data directory, the open file limit, the
embedding model, the reranker and the persisted index.

Exits non-zero when a required check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			checker := preflight.New(cfg,
				preflight.WithOutput(out),
				preflight.WithVerbose(verbose),
				preflight.WithOffline(offline))
			results := checker.RunAll(cmd.Context())

			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(map[string]any{
					"status": checker.SummaryStatus(results),
					"checks": results,
				}); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}

			if checker.HasCriticalFailures(results) {
				return preflightError(results)
			}
			// Offline runs skip the embedder, so they cannot vouch for it.
			if offline {
				return nil
			}
			if err := preflight.MarkPassed(cfg.ResolveDataDir(), preflight.Fingerprint(cfg)); err != nil {
				return fmt.Errorf("failed to record preflight result: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show check details")
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the embedder and reranker probes")

	return cmd
}

func preflightError(results []preflight.CheckResult) error {
	return docerrors.New(docerrors.ErrCodePreflight, "preflight checks failed: "+preflight.Failures(results), nil).
		WithSuggestion("Run 'docindex doctor -v' for details")
}
