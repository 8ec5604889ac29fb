package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"chain-price-alerts/internal/scheduler"
)

// Service runs the sampling and evaluation loops side by side.
// The loops share no lock; each only touches the stores through their own calls.
type Service struct {
	sampler    *Sampler
	evaluator  *Evaluator
	sampling   *scheduler.Scheduler
	evaluation *scheduler.Scheduler
	logger     zerolog.Logger
}

// New constructs the monitoring service.
func New(sampler *Sampler, evaluator *Evaluator, sampling, evaluation *scheduler.Scheduler, logger zerolog.Logger) *Service {
	return &Service{
		sampler:    sampler,
		evaluator:  evaluator,
		sampling:   sampling,
		evaluation: evaluation,
		logger:     logger.With().Str("component", "service").Logger(),
	}
}

// Run blocks until ctx is cancelled. Cancellation is a clean shutdown and returns nil.
func (s *Service) Run(ctx context.Context) error {
	if s.sampling == nil || s.evaluation == nil {
		return fmt.Errorf("scheduler not configured")
	}
	if s.sampler == nil || s.evaluator == nil {
		return fmt.Errorf("sampler and evaluator are required")
	}

	s.logger.Info().
		Dur("sampling_interval", s.sampling.Interval()).
		Dur("evaluation_interval", s.evaluation.Interval()).
		Msg("starting loops")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.sampling.Run(gctx, s.sampler.Tick)
	})
	g.Go(func() error {
		return s.evaluation.Run(gctx, s.evaluator.Tick)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.logger.Info().Msg("loops stopped")
		return nil
	}
	return err
}
