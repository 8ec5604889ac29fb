package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"chain-price-alerts/internal/chain"
	"chain-price-alerts/internal/fetcher"
	"chain-price-alerts/internal/storage"
)

const simulationEmail = "simulation@localhost"

// SimulateAlert runs one evaluation against synthetic prices using the
// configured notification channels. Nothing is written to the database.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	c, err := chain.Parse(opts.Chain)
	if err != nil {
		return err
	}
	if opts.Current.IsNegative() {
		return errors.New("current price must not be negative")
	}

	notifier, err := a.newNotifier()
	if err != nil {
		return err
	}

	at := a.now().UTC()
	st := &stores{
		prices: storage.NewMemoryPriceStore(),
		alerts: storage.NewMemoryAlertStore(),
	}

	if opts.Baseline != nil {
		baseline := storage.PriceSample{
			Chain:     c,
			Price:     *opts.Baseline,
			Timestamp: at.Add(-a.Config.Evaluation.Lookback),
		}
		if err := st.prices.Append(ctx, baseline); err != nil {
			return err
		}
	}

	// without a target only the relative change rule can fire
	target := opts.Current.Add(decimal.NewFromInt(1))
	if opts.Target != nil {
		target = *opts.Target
	}
	email := opts.Email
	if email == "" {
		email = simulationEmail
	}
	alert := storage.Alert{Chain: c, TargetPrice: target, Email: email, CreatedAt: at}
	if err := st.alerts.Create(ctx, &alert); err != nil {
		return err
	}

	source := fetcher.NewStatic(map[chain.Chain]decimal.Decimal{c: opts.Current})
	report, err := a.newEvaluator(source, notifier, st).Evaluate(ctx, at)
	if err != nil {
		return err
	}
	a.printEvaluation(report)
	if len(report.Notifications) == 0 {
		fmt.Fprintln(a.Out, "no rule fired")
	}
	return nil
}
