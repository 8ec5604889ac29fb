package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"chain-price-alerts/internal/chain"
	"chain-price-alerts/internal/fetcher"
	"chain-price-alerts/internal/metrics"
	"chain-price-alerts/internal/storage"
)

// SamplerOptions tune a sampling tick.
type SamplerOptions struct {
	Chains      []chain.Chain
	CallTimeout time.Duration
	Locker      storage.AdvisoryLocker
	LockKey     int64
}

// SampleReport summarises one sampling tick.
type SampleReport struct {
	At       time.Time
	Skipped  bool
	Recorded []storage.PriceSample
	Failed   map[chain.Chain]error
}

// Sampler records one price per supported chain on every tick.
type Sampler struct {
	source fetcher.PriceSource
	store  storage.PriceStore
	opts   SamplerOptions
	logger zerolog.Logger
	now    func() time.Time
}

// NewSampler constructs a Sampler. An empty chain list samples every supported chain.
func NewSampler(source fetcher.PriceSource, store storage.PriceStore, opts SamplerOptions, logger zerolog.Logger) *Sampler {
	if len(opts.Chains) == 0 {
		opts.Chains = chain.Supported()
	}
	return &Sampler{
		source: source,
		store:  store,
		opts:   opts,
		logger: logger.With().Str("component", "sampler").Logger(),
		now:    time.Now,
	}
}

// Tick adapts Sample to the scheduler. Per-chain failures are reported, not returned.
func (s *Sampler) Tick(ctx context.Context, bucket time.Time) error {
	started := time.Now()
	report, err := s.Sample(ctx)
	if err != nil {
		return err
	}
	metrics.RecordTick("sampling", time.Since(started), s.now())

	if report.Skipped {
		return nil
	}
	s.logger.Info().
		Time("bucket", bucket).
		Int("recorded", len(report.Recorded)).
		Int("failed", len(report.Failed)).
		Msg("sampling tick complete")
	return nil
}

// Sample fetches and stores the current price of every configured chain.
// Chains are processed concurrently and a failure never affects another chain.
func (s *Sampler) Sample(ctx context.Context) (SampleReport, error) {
	report := SampleReport{At: s.now().UTC(), Failed: make(map[chain.Chain]error)}

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return report, err
	}
	if !proceed {
		s.logger.Debug().Msg("skip sampling because advisory lock held elsewhere")
		report.Skipped = true
		return report, nil
	}
	if unlock != nil {
		defer unlock()
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, c := range s.opts.Chains {
		g.Go(func() error {
			sample, err := s.safeSampleChain(ctx, c)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[c] = err
				return nil
			}
			report.Recorded = append(report.Recorded, sample)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Recorded, func(i, j int) bool {
		return report.Recorded[i].Chain < report.Recorded[j].Chain
	})
	return report, nil
}

// safeSampleChain turns a panic in one chain's work into that chain's failure.
func (s *Sampler) safeSampleChain(ctx context.Context, c chain.Chain) (sample storage.PriceSample, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while sampling %s: %v", c, r)
			s.logger.Error().Str("chain", c.String()).Interface("panic", r).Msg("recovered from panic in sampling")
		}
	}()
	return s.sampleChain(ctx, c)
}

func (s *Sampler) sampleChain(ctx context.Context, c chain.Chain) (storage.PriceSample, error) {
	log := s.logger.With().Str("chain", c.String()).Logger()

	fetchCtx, cancel := s.callContext(ctx)
	started := time.Now()
	price, err := s.source.FetchPrice(fetchCtx, c)
	took := time.Since(started)
	cancel()
	if err != nil {
		metrics.RecordSample(c.String(), "fetch_error", took)
		log.Error().Err(err).Msg("failed to fetch price")
		return storage.PriceSample{}, err
	}
	if price.IsNegative() {
		err := &fetcher.UpstreamError{Provider: "price_source", Chain: c, Err: fmt.Errorf("negative price %s", price)}
		metrics.RecordSample(c.String(), "fetch_error", took)
		log.Error().Err(err).Msg("rejected price")
		return storage.PriceSample{}, err
	}

	sample := storage.PriceSample{Chain: c, Price: price, Timestamp: s.now().UTC()}

	storeCtx, cancel := s.callContext(ctx)
	err = s.store.Append(storeCtx, sample)
	cancel()
	if err != nil {
		metrics.RecordSample(c.String(), "store_error", took)
		log.Error().Err(err).Msg("failed to store price sample")
		return storage.PriceSample{}, err
	}

	metrics.RecordSample(c.String(), "recorded", took)
	metrics.RecordPrice(c.String(), price.InexactFloat64())
	log.Debug().Str("price", price.String()).Msg("price sample recorded")
	return sample, nil
}

func (s *Sampler) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.CallTimeout)
}

func (s *Sampler) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.opts.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.opts.Locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

// FailedChains lists the chains that failed in report, in stable order.
func (r SampleReport) FailedChains() []chain.Chain {
	out := make([]chain.Chain, 0, len(r.Failed))
	for c := range r.Failed {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
