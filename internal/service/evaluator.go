package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"chain-price-alerts/internal/alerting"
	"chain-price-alerts/internal/fetcher"
	"chain-price-alerts/internal/metrics"
	"chain-price-alerts/internal/storage"
)

// Rule names the condition that produced a notification.
type Rule string

const (
	RuleRelativeChange Rule = "relative_change"
	RuleThreshold      Rule = "threshold"
)

var hundred = decimal.NewFromInt(100)

// EvaluatorOptions tune an evaluation tick.
type EvaluatorOptions struct {
	ThresholdPct decimal.Decimal
	Lookback     time.Duration
	OpsEmail     string
	Workers      int
	CallTimeout  time.Duration
}

// Notification is one message the evaluator attempted to send.
type Notification struct {
	AlertID int64
	Rule    Rule
	To      string
	Subject string
	Body    string
	Err     error
}

// AlertFailure records why an alert could not be fully evaluated.
type AlertFailure struct {
	AlertID int64
	Stage   string
	Err     error
}

// EvaluationReport summarises one evaluation tick.
type EvaluationReport struct {
	At            time.Time
	Alerts        int
	Notifications []Notification
	Failures      []AlertFailure
}

// Delivered counts the notifications that were handed to the notifier successfully.
func (r EvaluationReport) Delivered() int {
	n := 0
	for _, note := range r.Notifications {
		if note.Err == nil {
			n++
		}
	}
	return n
}

// Evaluator checks every registered alert against live and historical prices.
type Evaluator struct {
	alerts   storage.AlertStore
	prices   storage.PriceStore
	source   fetcher.PriceSource
	notifier alerting.Notifier
	opts     EvaluatorOptions
	logger   zerolog.Logger
	now      func() time.Time
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(alerts storage.AlertStore, prices storage.PriceStore, source fetcher.PriceSource, notifier alerting.Notifier, opts EvaluatorOptions, logger zerolog.Logger) *Evaluator {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Lookback <= 0 {
		opts.Lookback = time.Hour
	}
	return &Evaluator{
		alerts:   alerts,
		prices:   prices,
		source:   source,
		notifier: notifier,
		opts:     opts,
		logger:   logger.With().Str("component", "evaluator").Logger(),
		now:      time.Now,
	}
}

// Tick adapts Evaluate to the scheduler.
func (e *Evaluator) Tick(ctx context.Context, bucket time.Time) error {
	started := time.Now()
	report, err := e.Evaluate(ctx, e.now())
	if err != nil {
		return err
	}
	metrics.RecordTick("evaluation", time.Since(started), e.now())

	e.logger.Info().
		Time("bucket", bucket).
		Int("alerts", report.Alerts).
		Int("notifications", report.Delivered()).
		Int("failures", len(report.Failures)).
		Msg("evaluation tick complete")
	return nil
}

// Evaluate runs both rules for every alert as of at. Only a failure to list
// alerts is returned; per-alert failures are collected in the report.
func (e *Evaluator) Evaluate(ctx context.Context, at time.Time) (EvaluationReport, error) {
	report := EvaluationReport{At: at.UTC()}

	listCtx, cancel := e.callContext(ctx)
	alerts, err := e.alerts.ListAll(listCtx)
	cancel()
	if err != nil {
		return report, fmt.Errorf("list alerts: %w", err)
	}
	report.Alerts = len(alerts)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(e.opts.Workers)
	for _, alert := range alerts {
		g.Go(func() error {
			notes, failures := e.safeEvaluateAlert(ctx, alert, at)
			metrics.RecordEvaluation(len(failures) > 0)

			mu.Lock()
			report.Notifications = append(report.Notifications, notes...)
			report.Failures = append(report.Failures, failures...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(report.Notifications, func(i, j int) bool {
		if report.Notifications[i].AlertID != report.Notifications[j].AlertID {
			return report.Notifications[i].AlertID < report.Notifications[j].AlertID
		}
		return report.Notifications[i].Rule < report.Notifications[j].Rule
	})
	sort.SliceStable(report.Failures, func(i, j int) bool {
		return report.Failures[i].AlertID < report.Failures[j].AlertID
	})
	return report, nil
}

// safeEvaluateAlert turns a panic in one alert's work into that alert's failure.
func (e *Evaluator) safeEvaluateAlert(ctx context.Context, alert storage.Alert, at time.Time) (notes []Notification, failures []AlertFailure) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Int64("alert_id", alert.ID).Interface("panic", r).Msg("recovered from panic in evaluation")
			failures = append(failures, AlertFailure{AlertID: alert.ID, Stage: "panic", Err: fmt.Errorf("panic: %v", r)})
		}
	}()
	return e.evaluateAlert(ctx, alert, at)
}

func (e *Evaluator) evaluateAlert(ctx context.Context, alert storage.Alert, at time.Time) ([]Notification, []AlertFailure) {
	log := e.logger.With().Int64("alert_id", alert.ID).Str("chain", alert.Chain.String()).Logger()

	var (
		notes    []Notification
		failures []AlertFailure
	)

	baseCtx, cancel := e.callContext(ctx)
	baseline, err := e.prices.ClosestBefore(baseCtx, alert.Chain, at.Add(-e.opts.Lookback))
	cancel()
	if err != nil {
		// the threshold rule does not need a baseline
		log.Error().Err(err).Msg("failed to load baseline price")
		failures = append(failures, AlertFailure{AlertID: alert.ID, Stage: "baseline", Err: err})
		baseline = nil
	}

	fetchCtx, cancel := e.callContext(ctx)
	current, err := e.source.FetchPrice(fetchCtx, alert.Chain)
	cancel()
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch current price")
		return notes, append(failures, AlertFailure{AlertID: alert.ID, Stage: "fetch", Err: err})
	}

	if baseline != nil {
		if pct, ok := RelativeChangePct(baseline.Price, current); ok && pct.GreaterThan(e.opts.ThresholdPct) {
			if e.opts.OpsEmail == "" {
				log.Warn().Str("change_pct", pct.StringFixed(2)).Msg("relative change detected but no operational address configured")
			} else {
				subject, body := relativeChangeMessage(alert, e.opts.ThresholdPct, e.opts.Lookback)
				notes = append(notes, e.send(ctx, log, alert.ID, RuleRelativeChange, e.opts.OpsEmail, subject, body))
			}
		}
	} else {
		log.Debug().Msg("no baseline sample available, skipping relative change rule")
	}

	if ThresholdReached(current, alert.TargetPrice) {
		subject, body := thresholdMessage(alert, current)
		notes = append(notes, e.send(ctx, log, alert.ID, RuleThreshold, alert.Email, subject, body))
	}

	for _, note := range notes {
		if note.Err != nil {
			failures = append(failures, AlertFailure{AlertID: alert.ID, Stage: "notify_" + string(note.Rule), Err: note.Err})
		}
	}
	return notes, failures
}

func (e *Evaluator) send(ctx context.Context, log zerolog.Logger, alertID int64, rule Rule, to, subject, body string) Notification {
	sendCtx, cancel := e.callContext(ctx)
	err := e.notifier.Send(sendCtx, to, subject, body)
	cancel()

	metrics.RecordNotification(string(rule), err)
	if err != nil {
		log.Error().Err(err).Str("rule", string(rule)).Str("to", to).Msg("failed to send notification")
	} else {
		log.Info().Str("rule", string(rule)).Str("to", to).Msg("notification sent")
	}
	return Notification{AlertID: alertID, Rule: rule, To: to, Subject: subject, Body: body, Err: err}
}

func (e *Evaluator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opts.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.opts.CallTimeout)
}

// RelativeChangePct returns the percentage change from baseline to current.
// It reports false when baseline is zero or negative.
func RelativeChangePct(baseline, current decimal.Decimal) (decimal.Decimal, bool) {
	if !baseline.IsPositive() {
		return decimal.Zero, false
	}
	return current.Sub(baseline).Div(baseline).Mul(hundred), true
}

// ThresholdReached reports whether current has reached target.
func ThresholdReached(current, target decimal.Decimal) bool {
	return current.GreaterThanOrEqual(target)
}

func relativeChangeMessage(alert storage.Alert, threshold decimal.Decimal, lookback time.Duration) (string, string) {
	subject := fmt.Sprintf("Price Alert: %s", alert.Chain)
	body := fmt.Sprintf("The price of %s has increased by more than %s%% in the last %s.", alert.Chain, threshold.String(), describeWindow(lookback))
	return subject, body
}

func thresholdMessage(alert storage.Alert, current decimal.Decimal) (string, string) {
	subject := fmt.Sprintf("Price Alert Triggered: %s", alert.Chain)
	body := fmt.Sprintf("The price of %s has reached or exceeded $%s. Current price: $%s", alert.Chain, alert.TargetPrice.String(), current.String())
	return subject, body
}

func describeWindow(d time.Duration) string {
	if d%time.Hour != 0 {
		return d.String()
	}
	hours := int64(d / time.Hour)
	if hours == 1 {
		return "hour"
	}
	return fmt.Sprintf("%d hours", hours)
}
