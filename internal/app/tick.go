package app

import (
	"context"
	"fmt"
)

// SampleOnce runs a single sampling tick and prints what was recorded.
func (a *App) SampleOnce(ctx context.Context) error {
	st, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	defer st.close()

	source, err := a.newPriceSource()
	if err != nil {
		return err
	}

	report, err := a.newSampler(source, st).Sample(ctx)
	if err != nil {
		return err
	}
	if report.Skipped {
		fmt.Fprintln(a.Out, "sampling skipped: another instance holds the lock")
		return nil
	}
	for _, sample := range report.Recorded {
		fmt.Fprintf(a.Out, "%s\t%s\n", sample.Chain, sample.Price.String())
	}
	for _, c := range report.FailedChains() {
		fmt.Fprintf(a.Out, "%s\tfailed: %v\n", c, report.Failed[c])
	}
	if len(report.Recorded) == 0 && len(report.Failed) > 0 {
		return fmt.Errorf("sampling failed for all %d chains", len(report.Failed))
	}
	return nil
}

// EvaluateOnce runs a single evaluation tick against the registered alerts.
func (a *App) EvaluateOnce(ctx context.Context) error {
	st, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	defer st.close()

	source, err := a.newPriceSource()
	if err != nil {
		return err
	}
	notifier, err := a.newNotifier()
	if err != nil {
		return err
	}

	evaluator := a.newEvaluator(source, notifier, st)
	report, err := evaluator.Evaluate(ctx, a.now())
	if err != nil {
		return err
	}
	a.printEvaluation(report)
	return nil
}
