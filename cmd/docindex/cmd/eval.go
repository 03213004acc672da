package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	docerrors "github.com/NOVA-ALLRounder/main-sub002/internal/errors"
	"github.com/NOVA-ALLRounder/main-sub002/internal/search"
	"github.com/NOVA-ALLRounder/main-sub002/internal/validation"
)

func newEvalCmd() *cobra.Command {
	var (
		jsonOutput bool
		verbose    bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "eval <queries.yaml>",
		Short: "Measure retrieval quality against a query set",
		Long: `Run every query in a YAML query set against the index and check that
expected documents rank in the top results and forbidden ones never do.

Exits non-zero when a tier 1 or negative query fails.`,
		Example: `  docindex eval queries.yaml
  docindex eval queries.yaml -k 5 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			queries, err := validation.LoadQueries(args[0])
			if err != nil {
				return docerrors.ValidationError("invalid query set", err)
			}

			idx, err := loadIndex(cfg)
			if err != nil {
				return err
			}
			e, err := newEmbedder(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = e.Model().Close() }()
			if err := checkModel(idx, e); err != nil {
				return err
			}
			retriever, err := newRetriever(cfg, idx, e)
			if err != nil {
				return err
			}

			v := validation.NewValidator(retriever, validation.Config{
				Roots:   cfg.Paths.Roots,
				TopK:    limit,
				Options: search.OptionsFromConfig(cfg.Search),
			})
			result := v.RunAll(ctx, queries)

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := validation.WriteJSON(out, result); err != nil {
					return err
				}
			} else {
				validation.PrintResult(out, result, verbose)
			}

			if !result.Passed() {
				return fmt.Errorf("evaluation failed: tier 1 %d/%d, negative %d/%d",
					result.Tier1Pass, result.Tier1Total, result.NegPass, result.NegTotal)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "List passing queries too")
	cmd.Flags().IntVarP(&limit, "limit", "k", validation.DefaultTopK, "Results inspected per query")

	return cmd
}
