package cli

import (
	"github.com/spf13/cobra"

	"chain-price-alerts/internal/service"
)

var (
	alertChain string
	alertPrice string
	alertEmail string
)

var alertCmd = &cobra.Command{
	Use:   "alert",
	Short: "Manage price alerts",
}

var alertAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register an alert that fires when the price reaches a target",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().AddAlert(cmd.Context(), service.AlertRequest{
			Chain: alertChain,
			Price: alertPrice,
			Email: alertEmail,
		})
	},
}

var alertListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListAlerts(cmd.Context())
	},
}

func init() {
	alertAddCmd.Flags().StringVar(&alertChain, "chain", "", "Chain to watch (ethereum or polygon)")
	alertAddCmd.Flags().StringVar(&alertPrice, "price", "", "Target price in USD")
	alertAddCmd.Flags().StringVar(&alertEmail, "email", "", "Address notified when the target is reached")

	alertCmd.AddCommand(alertAddCmd)
	alertCmd.AddCommand(alertListCmd)
}
