package app

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"chain-price-alerts/internal/service"
)

// Prices prints the samples recorded for a chain over the last opts.Hours hours.
func (a *App) Prices(ctx context.Context, opts PricesOptions) error {
	st, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	defer st.close()

	registry := service.NewRegistry(st.alerts, st.prices, a.Logger)
	samples, err := registry.HourlyPrices(ctx, opts.Chain, opts.Hours)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Fprintln(a.Out, "no samples found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tChain\tPrice (USD)")
	for _, sample := range samples {
		fmt.Fprintf(writer, "%s\t%s\t%s\n",
			sample.Timestamp.UTC().Format(time.RFC3339),
			sample.Chain,
			sample.Price.StringFixed(4),
		)
	}
	return writer.Flush()
}
