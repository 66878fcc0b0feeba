package cli

import (
	"github.com/spf13/cobra"
)

var (
	alertsPost bool
	digestSend bool
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Compose the threshold alert report once (prints unless --post)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Alerts(cmd.Context(), alertsPost, cmd.OutOrStdout())
	},
}

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Compose the daily digests once (prints unless --send)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Digest(cmd.Context(), digestSend, cmd.OutOrStdout())
	},
}

func init() {
	alertsCmd.Flags().BoolVar(&alertsPost, "post", false, "Post to the configured broadcast destinations")
	digestCmd.Flags().BoolVar(&digestSend, "send", false, "Deliver digests as private messages")
}
