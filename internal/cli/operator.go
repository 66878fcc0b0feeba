package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"vo-performance-bot/internal/commands"
)

var operatorCmd = &cobra.Command{
	Use:   "operator <id> [id...]",
	Short: "Show recent performance for operator IDs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := commands.ParseIDs(args)
		if len(ids) == 0 {
			return errors.New("operator IDs must be positive integers")
		}
		return getApp().Operator(cmd.Context(), ids, cmd.OutOrStdout())
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the latest collected date and the next scheduled run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Info(cmd.Context(), cmd.OutOrStdout())
	},
}
