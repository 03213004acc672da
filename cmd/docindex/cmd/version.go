package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NOVA-ALLRounder/main-sub002/internal/store"
	"github.com/NOVA-ALLRounder/main-sub002/pkg/version"
)

type versionOutput struct {
	version.BuildInfo
	IndexFormat int `json:"index_format"`
}

func newVersionCmd() *cobra.Command {
	var jsonOutput, shortOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print the docindex version, build details and the on-disk index format
this binary reads and writes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			switch {
			case shortOutput:
				_, err := fmt.Fprintln(out, version.Short())
				return err
			case jsonOutput:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(versionOutput{BuildInfo: version.GetInfo(), IndexFormat: store.FormatVersion})
			default:
				_, err := fmt.Fprintf(out, "%s\nindex format: v%d\n", version.String(), store.FormatVersion)
				return err
			}
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	cmd.Flags().BoolVar(&shortOutput, "short", false, "Output only the version number")

	return cmd
}
