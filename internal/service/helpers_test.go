package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"chain-price-alerts/internal/chain"
	"chain-price-alerts/internal/fetcher"
	"chain-price-alerts/internal/storage"
)

type sentMessage struct {
	To      string
	Subject string
	Body    string
}

type recordingNotifier struct {
	mu     sync.Mutex
	sent   []sentMessage
	failTo map[string]error
}

func (n *recordingNotifier) Send(_ context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err, ok := n.failTo[to]; ok {
		return err
	}
	n.sent = append(n.sent, sentMessage{To: to, Subject: subject, Body: body})
	return nil
}

func (n *recordingNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]sentMessage, len(n.sent))
	copy(out, n.sent)
	return out
}

type failingPriceStore struct {
	storage.PriceStore
	failAppend map[chain.Chain]bool
	failLookup bool
}

func (s *failingPriceStore) Append(ctx context.Context, sample storage.PriceSample) error {
	if s.failAppend[sample.Chain] {
		return &storage.StorageError{Op: "append price sample", Err: errors.New("disk full")}
	}
	return s.PriceStore.Append(ctx, sample)
}

func (s *failingPriceStore) ClosestBefore(ctx context.Context, c chain.Chain, at time.Time) (*storage.PriceSample, error) {
	if s.failLookup {
		return nil, &storage.StorageError{Op: "closest price before", Err: errors.New("connection reset")}
	}
	return s.PriceStore.ClosestBefore(ctx, c, at)
}

// panickingSource panics for the listed chains and delegates otherwise.
type panickingSource struct {
	fetcher.PriceSource
	panicFor map[chain.Chain]bool
}

func (p *panickingSource) FetchPrice(ctx context.Context, c chain.Chain) (decimal.Decimal, error) {
	if p.panicFor[c] {
		panic("nil feed for " + c.String())
	}
	return p.PriceSource.FetchPrice(ctx, c)
}

type failingAlertStore struct{}

func (failingAlertStore) Create(context.Context, *storage.Alert) error {
	return &storage.StorageError{Op: "create alert", Err: errors.New("read only")}
}

func (failingAlertStore) ListAll(context.Context) ([]storage.Alert, error) {
	return nil, &storage.StorageError{Op: "list alerts", Err: errors.New("connection refused")}
}

type stubLocker struct {
	acquired bool
	released bool
}

func (l *stubLocker) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	if !l.acquired {
		return nil, false, nil
	}
	return func() { l.released = true }, true, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func nopLogger() zerolog.Logger {
	return zerolog.Nop()
}
