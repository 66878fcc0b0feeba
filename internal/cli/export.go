package cli

import (
	"github.com/spf13/cobra"

	"vo-performance-bot/internal/app"
	"vo-performance-bot/internal/commands"
)

var (
	exportHorizon  string
	exportIDs      []string
	exportPNGPath  string
	exportCSVPath  string
	exportMaxDates int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored performance series as CSV and/or PNG chart",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			Horizon:  exportHorizon,
			IDs:      commands.ParseIDs(exportIDs),
			PNGPath:  exportPNGPath,
			CSVPath:  exportCSVPath,
			MaxDates: exportMaxDates,
		}
		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportHorizon, "horizon", "24h", "Series to export (24h or 30d)")
	exportCmd.Flags().StringSliceVar(&exportIDs, "ids", nil, "Operator IDs to export (default all)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxDates, "max-dates", 0, "Maximum dates to export (defaults to config)")
}
