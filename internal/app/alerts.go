package app

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"chain-price-alerts/internal/service"
)

// AddAlert registers a price-threshold alert and prints the confirmation.
func (a *App) AddAlert(ctx context.Context, req service.AlertRequest) error {
	st, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	defer st.close()

	confirmation, err := service.NewRegistry(st.alerts, st.prices, a.Logger).RegisterAlert(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "%s (id=%d)\n", confirmation.Message, confirmation.Alert.ID)
	return nil
}

// ListAlerts prints every registered alert.
func (a *App) ListAlerts(ctx context.Context) error {
	st, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	defer st.close()

	alerts, err := st.alerts.ListAll(ctx)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(a.Out, "no alerts registered")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tChain\tTarget (USD)\tEmail\tCreated (UTC)")
	for _, alert := range alerts {
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\n",
			alert.ID,
			alert.Chain,
			alert.TargetPrice.String(),
			alert.Email,
			alert.CreatedAt.UTC().Format(time.RFC3339),
		)
	}
	return writer.Flush()
}
