package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"chain-price-alerts/internal/app"
	"chain-price-alerts/internal/service"
)

var (
	pricesChain string
	pricesHours int
)

var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Display recorded prices for a chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		if pricesChain == "" {
			return fmt.Errorf("--chain must be provided")
		}
		return getApp().Prices(cmd.Context(), app.PricesOptions{
			Chain: pricesChain,
			Hours: pricesHours,
		})
	},
}

func init() {
	pricesCmd.Flags().StringVar(&pricesChain, "chain", "", "Chain to display (ethereum or polygon)")
	pricesCmd.Flags().IntVar(&pricesHours, "hours", service.DefaultHistoryHours, "How many hours of history to show")
}
