package cli

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"chain-price-alerts/internal/app"
)

var (
	simulateChain    string
	simulateBaseline string
	simulateCurrent  string
	simulateTarget   string
	simulateEmail    string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Evaluate synthetic prices and send notifications through the configured channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateChain == "" || simulateCurrent == "" {
			return errors.New("--chain and --current must be provided")
		}

		current, err := decimal.NewFromString(simulateCurrent)
		if err != nil {
			return fmt.Errorf("invalid --current value: %w", err)
		}
		opts := app.SimulateOptions{
			Chain:   simulateChain,
			Current: current,
			Email:   simulateEmail,
		}

		if opts.Baseline, err = optionalDecimal("baseline", simulateBaseline); err != nil {
			return err
		}
		if opts.Target, err = optionalDecimal("target", simulateTarget); err != nil {
			return err
		}

		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func optionalDecimal(name, value string) (*decimal.Decimal, error) {
	if value == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s value: %w", name, err)
	}
	if !d.IsPositive() {
		return nil, fmt.Errorf("--%s must be greater than 0", name)
	}
	return &d, nil
}

func init() {
	simulateCmd.Flags().StringVar(&simulateChain, "chain", "", "Chain to simulate (ethereum or polygon)")
	simulateCmd.Flags().StringVar(&simulateBaseline, "baseline", "", "Price one lookback window ago")
	simulateCmd.Flags().StringVar(&simulateCurrent, "current", "", "Current price")
	simulateCmd.Flags().StringVar(&simulateTarget, "target", "", "Alert target price")
	simulateCmd.Flags().StringVar(&simulateEmail, "email", "", "Alert owner address")
}
