package cli

import (
	"github.com/spf13/cobra"

	"vo-performance-bot/internal/app"
)

var (
	ingestDate      string
	ingestOverwrite bool
	ingestDryRun    bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch today's operator performance from the SSV API and store it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.IngestOptions{
			Date:      ingestDate,
			Overwrite: ingestOverwrite,
			DryRun:    ingestDryRun,
		}
		return getApp().Ingest(cmd.Context(), opts, cmd.OutOrStdout())
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDate, "date", "", "Date key to store under (YYYY-MM-DD, defaults to today)")
	ingestCmd.Flags().BoolVar(&ingestOverwrite, "overwrite", false, "Replace points already stored for the date")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "Print fetched operators without writing to storage")
}
