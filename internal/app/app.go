package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"chain-price-alerts/internal/alerting"
	"chain-price-alerts/internal/config"
	"chain-price-alerts/internal/fetcher"
	"chain-price-alerts/internal/metrics"
	"chain-price-alerts/internal/scheduler"
	"chain-price-alerts/internal/service"
	"chain-price-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer

	clock   func() time.Time
	memOnce sync.Once
	memory  *stores
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		Out:    os.Stdout,
	}
}

func (a *App) now() time.Time {
	if a.clock != nil {
		return a.clock()
	}
	return time.Now()
}

func (a *App) printEvaluation(report service.EvaluationReport) {
	fmt.Fprintf(a.Out, "evaluated %d alerts, delivered %d notifications\n", report.Alerts, report.Delivered())
	for _, note := range report.Notifications {
		status := "sent"
		if note.Err != nil {
			status = "failed: " + note.Err.Error()
		}
		fmt.Fprintf(a.Out, "alert %d\t%s\t%s\t%s\n", note.AlertID, note.Rule, note.To, status)
	}
	for _, failure := range report.Failures {
		fmt.Fprintf(a.Out, "alert %d\t%s failed: %v\n", failure.AlertID, failure.Stage, failure.Err)
	}
}

type stores struct {
	prices  storage.PriceStore
	alerts  storage.AlertStore
	locker  storage.AdvisoryLocker
	migrate func(ctx context.Context) ([]string, error)
	close   func()
}

func (a *App) openStores(ctx context.Context) (*stores, error) {
	switch a.Config.Database.Driver {
	case "postgres":
		pool, err := storage.NewPool(ctx, a.Config.Database)
		if err != nil {
			return nil, err
		}
		store := storage.NewStore(pool)
		return &stores{
			prices:  store,
			alerts:  store,
			locker:  store,
			migrate: store.Migrate,
			close:   store.Close,
		}, nil

	case "mysql":
		store, err := storage.NewGormStore(ctx, a.Config.Database, a.Logger)
		if err != nil {
			return nil, err
		}
		return &stores{
			prices: store,
			alerts: store,
			migrate: func(context.Context) ([]string, error) {
				if err := store.AutoMigrate(); err != nil {
					return nil, err
				}
				return []string{"prices", "alerts"}, nil
			},
			close: func() {
				if err := store.Close(); err != nil {
					a.Logger.Warn().Err(err).Msg("close mysql store")
				}
			},
		}, nil

	case "memory":
		a.memOnce.Do(func() {
			a.Logger.Warn().Msg("database.driver=memory; samples and alerts are lost on exit")
			a.memory = &stores{
				prices:  storage.NewMemoryPriceStore(),
				alerts:  storage.NewMemoryAlertStore(),
				migrate: func(context.Context) ([]string, error) { return nil, nil },
				close:   func() {},
			}
		})
		return a.memory, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", a.Config.Database.Driver)
	}
}

func (a *App) newPriceSource() (fetcher.PriceSource, error) {
	src := a.Config.PriceSource
	switch src.Provider {
	case "moralis":
		return fetcher.NewMoralis(fetcher.MoralisOptions{
			BaseURL:   src.Moralis.BaseURL,
			APIKey:    src.Moralis.APIKey,
			Timeout:   src.Moralis.RequestTimeout,
			UserAgent: src.Moralis.UserAgent,
		}, a.Logger), nil
	case "chainlink":
		return fetcher.NewChainlink(fetcher.ChainlinkOptions{
			RPCURL:       src.Chainlink.RPCURL,
			Timeout:      src.Chainlink.RequestTimeout,
			MaxStaleness: src.Chainlink.MaxStaleness,
		}, a.Logger), nil
	default:
		return nil, fmt.Errorf("unsupported price provider %q", src.Provider)
	}
}

func (a *App) newNotifier() (alerting.Notifier, error) {
	cfg := a.Config.Alerting
	notifiers := make([]alerting.Notifier, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		switch strings.TrimSpace(ch) {
		case "log":
			notifiers = append(notifiers, alerting.NewLogNotifier(a.Logger))
		case "smtp":
			notifiers = append(notifiers, alerting.NewSMTPNotifier(alerting.SMTPOptions{
				Host:     cfg.SMTP.Host,
				Port:     cfg.SMTP.Port,
				Username: cfg.SMTP.Username,
				Password: cfg.SMTP.Password,
				From:     cfg.SMTP.From,
				Timeout:  cfg.SMTP.Timeout,
			}, a.Logger))
		case "telegram":
			notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.BaseURL, cfg.Telegram.Timeout, a.Logger))
		default:
			return nil, fmt.Errorf("unknown alerting channel %q", ch)
		}
	}

	switch len(notifiers) {
	case 0:
		a.Logger.Warn().Msg("no alerting channels configured, using log")
		return alerting.NewLogNotifier(a.Logger), nil
	case 1:
		return notifiers[0], nil
	default:
		return alerting.NewMultiNotifier(notifiers...), nil
	}
}

func (a *App) newSampler(source fetcher.PriceSource, st *stores) *service.Sampler {
	return service.NewSampler(source, st.prices, service.SamplerOptions{
		CallTimeout: a.Config.Scheduler.CallTimeout,
		Locker:      st.locker,
		LockKey:     a.Config.Scheduler.AdvisoryLockKey,
	}, a.Logger)
}

func (a *App) newEvaluator(source fetcher.PriceSource, notifier alerting.Notifier, st *stores) *service.Evaluator {
	eval := a.Config.Evaluation
	return service.NewEvaluator(st.alerts, st.prices, source, notifier, service.EvaluatorOptions{
		ThresholdPct: decimal.NewFromFloat(eval.ThresholdPct),
		Lookback:     eval.Lookback,
		OpsEmail:     eval.OpsEmail,
		Workers:      eval.Workers,
		CallTimeout:  a.Config.Scheduler.CallTimeout,
	}, a.Logger)
}

func (a *App) newScheduler(name string, loop config.LoopConfig) *scheduler.Scheduler {
	return scheduler.New(scheduler.Options{
		Name:         name,
		Interval:     loop.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		RunOnStart:   loop.RunOnStart,
		TickTimeout:  loop.Interval,
	}, a.Logger)
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

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
	if a.Config.Evaluation.OpsEmail == "" {
		a.Logger.Warn().Msg("evaluation.ops_email not configured; relative change notifications are disabled")
	}

	svc := service.New(
		a.newSampler(source, st),
		a.newEvaluator(source, notifier, st),
		a.newScheduler("sampling", a.Config.Scheduler.Sampling),
		a.newScheduler("evaluation", a.Config.Scheduler.Evaluation),
		a.Logger,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Run(gctx)
	})
	if a.Config.Metrics.Enabled {
		g.Go(func() error {
			return metrics.Serve(gctx, a.Config.Metrics.ListenAddr, a.Logger)
		})
	}

	a.Logger.Info().Str("provider", a.Config.PriceSource.Provider).Str("database", a.Config.Database.Driver).Msg("starting monitoring service")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// Migrate prepares the configured database schema.
func (a *App) Migrate(ctx context.Context) error {
	st, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	defer st.close()

	applied, err := st.migrate(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintf(a.Out, "nothing to migrate for driver %s\n", a.Config.Database.Driver)
		return nil
	}
	for _, name := range applied {
		fmt.Fprintf(a.Out, "applied %s\n", name)
	}
	return nil
}

// PricesOptions configure the prices command.
type PricesOptions struct {
	Chain string
	Hours int
}

// ExportOptions hold parameters for exporting historical samples.
type ExportOptions struct {
	Chain     string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// SimulateOptions describe a one-off evaluation against synthetic prices.
type SimulateOptions struct {
	Chain    string
	Baseline *decimal.Decimal
	Current  decimal.Decimal
	Target   *decimal.Decimal
	Email    string
}
