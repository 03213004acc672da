package cmd

import (
	"github.com/spf13/cobra"

	"github.com/NOVA-ALLRounder/main-sub002/internal/index"
	"github.com/NOVA-ALLRounder/main-sub002/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index statistics",
		Long: `Show the persisted index (documents, chunks, vector shape), the scan
state, the chunk cache and any cache/index mismatches. No model is loaded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			info, err := index.ReadStatus(cfg)
			if err != nil {
				return err
			}

			r := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor())
			if jsonOutput {
				return r.RenderJSON(info)
			}
			return r.Render(info)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")

	return cmd
}
