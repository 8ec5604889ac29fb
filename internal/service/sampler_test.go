package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chain-price-alerts/internal/chain"
	"chain-price-alerts/internal/fetcher"
	"chain-price-alerts/internal/storage"
)

var sampleTime = time.Date(2026, 5, 1, 10, 5, 0, 0, time.UTC)

func newTestSampler(source fetcher.PriceSource, store storage.PriceStore, opts SamplerOptions) *Sampler {
	s := NewSampler(source, store, opts, nopLogger())
	s.now = fixedClock(sampleTime)
	return s
}

func TestSamplerAppendsOneSamplePerChain(t *testing.T) {
	ctx := context.Background()
	source := fetcher.NewStatic(map[chain.Chain]decimal.Decimal{
		chain.Ethereum: dec("2000.5"),
		chain.Polygon:  dec("0"),
	})
	store := storage.NewMemoryPriceStore()

	report, err := newTestSampler(source, store, SamplerOptions{}).Sample(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Recorded, 2)
	assert.Empty(t, report.Failed)

	for _, c := range chain.Supported() {
		got, err := store.Query(ctx, c, sampleTime.Add(-time.Minute))
		require.NoError(t, err)
		require.Len(t, got, 1, "chain %s", c)
		assert.False(t, got[0].Price.IsNegative())
		assert.True(t, got[0].Timestamp.Equal(sampleTime))
	}
}

func TestSamplerIsolatesFetchFailure(t *testing.T) {
	ctx := context.Background()
	source := fetcher.NewStatic(map[chain.Chain]decimal.Decimal{
		chain.Ethereum: dec("2000"),
		chain.Polygon:  dec("0.5"),
	})
	source.Fail(chain.Ethereum, errors.New("provider unreachable"))
	store := storage.NewMemoryPriceStore()

	report, err := newTestSampler(source, store, SamplerOptions{}).Sample(ctx)
	require.NoError(t, err)

	require.Contains(t, report.Failed, chain.Ethereum)
	var upErr *fetcher.UpstreamError
	assert.ErrorAs(t, report.Failed[chain.Ethereum], &upErr)
	assert.Equal(t, []chain.Chain{chain.Ethereum}, report.FailedChains())

	polygon, err := store.Query(ctx, chain.Polygon, time.Time{})
	require.NoError(t, err)
	assert.Len(t, polygon, 1, "polygon must still be sampled")

	eth, err := store.Query(ctx, chain.Ethereum, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, eth)
}

func TestSamplerIsolatesStoreFailure(t *testing.T) {
	ctx := context.Background()
	source := fetcher.NewStatic(map[chain.Chain]decimal.Decimal{
		chain.Ethereum: dec("2000"),
		chain.Polygon:  dec("0.5"),
	})
	mem := storage.NewMemoryPriceStore()
	store := &failingPriceStore{PriceStore: mem, failAppend: map[chain.Chain]bool{chain.Polygon: true}}

	report, err := newTestSampler(source, store, SamplerOptions{}).Sample(ctx)
	require.NoError(t, err)

	var se *storage.StorageError
	assert.ErrorAs(t, report.Failed[chain.Polygon], &se)
	require.Len(t, report.Recorded, 1)
	assert.Equal(t, chain.Ethereum, report.Recorded[0].Chain)
}

func TestSamplerRejectsNegativePrice(t *testing.T) {
	ctx := context.Background()
	source := fetcher.NewStatic(map[chain.Chain]decimal.Decimal{
		chain.Ethereum: dec("-1"),
		chain.Polygon:  dec("0.5"),
	})
	store := storage.NewMemoryPriceStore()

	report, err := newTestSampler(source, store, SamplerOptions{}).Sample(ctx)
	require.NoError(t, err)
	assert.Contains(t, report.Failed, chain.Ethereum)

	eth, err := store.Query(ctx, chain.Ethereum, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, eth)
}

type blockingSource struct {
	block chain.Chain
	price decimal.Decimal
}

func (b blockingSource) FetchPrice(ctx context.Context, c chain.Chain) (decimal.Decimal, error) {
	if c == b.block {
		<-ctx.Done()
		return decimal.Decimal{}, &fetcher.UpstreamError{Provider: "test", Chain: c, Err: ctx.Err()}
	}
	return b.price, nil
}

func TestSamplerCallTimeoutBoundsHungFetch(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryPriceStore()
	sampler := newTestSampler(blockingSource{block: chain.Ethereum, price: dec("0.5")}, store, SamplerOptions{CallTimeout: 30 * time.Millisecond})

	done := make(chan SampleReport, 1)
	go func() {
		report, _ := sampler.Sample(ctx)
		done <- report
	}()

	select {
	case report := <-done:
		assert.ErrorIs(t, report.Failed[chain.Ethereum], context.DeadlineExceeded)
		assert.Len(t, report.Recorded, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("hung fetch stalled the sampling tick")
	}
}

func TestSamplerSkipsWhenLockHeldElsewhere(t *testing.T) {
	source := fetcher.NewStatic(map[chain.Chain]decimal.Decimal{chain.Ethereum: dec("1")})
	store := storage.NewMemoryPriceStore()
	locker := &stubLocker{acquired: false}

	report, err := newTestSampler(source, store, SamplerOptions{Locker: locker, LockKey: 1}).Sample(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Empty(t, report.Recorded)
}

func TestSamplerReleasesLock(t *testing.T) {
	source := fetcher.NewStatic(map[chain.Chain]decimal.Decimal{chain.Ethereum: dec("1"), chain.Polygon: dec("1")})
	locker := &stubLocker{acquired: true}

	err := newTestSampler(source, storage.NewMemoryPriceStore(), SamplerOptions{Locker: locker, LockKey: 1}).Tick(context.Background(), sampleTime)
	require.NoError(t, err)
	assert.True(t, locker.released)
}

func TestSamplerRecoversPanicPerChain(t *testing.T) {
	ctx := context.Background()
	source := &panickingSource{
		PriceSource: fetcher.NewStatic(map[chain.Chain]decimal.Decimal{chain.Polygon: dec("0.5")}),
		panicFor:    map[chain.Chain]bool{chain.Ethereum: true},
	}
	store := storage.NewMemoryPriceStore()

	report, err := newTestSampler(source, store, SamplerOptions{}).Sample(ctx)
	require.NoError(t, err)

	require.Contains(t, report.Failed, chain.Ethereum)
	assert.Contains(t, report.Failed[chain.Ethereum].Error(), "panic")
	require.Len(t, report.Recorded, 1)
	assert.Equal(t, chain.Polygon, report.Recorded[0].Chain)
}
