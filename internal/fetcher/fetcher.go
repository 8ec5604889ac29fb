package fetcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"chain-price-alerts/internal/chain"
)

// PriceSource retrieves the current USD spot price of a chain's reference token.
// Implementations never retry; every failure is returned as *UpstreamError.
type PriceSource interface {
	FetchPrice(ctx context.Context, c chain.Chain) (decimal.Decimal, error)
}

// UpstreamError reports that the market-data provider could not produce a price.
type UpstreamError struct {
	Provider string
	Chain    chain.Chain
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s price for %s: %v", e.Provider, e.Chain, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func upstream(provider string, c chain.Chain, err error) error {
	return &UpstreamError{Provider: provider, Chain: c, Err: err}
}

// Static serves prices from a fixed table. Chains without an entry fail like an
// unreachable provider.
type Static struct {
	mu     sync.RWMutex
	prices map[chain.Chain]decimal.Decimal
	errs   map[chain.Chain]error
}

// NewStatic builds a Static source from the given prices.
func NewStatic(prices map[chain.Chain]decimal.Decimal) *Static {
	s := &Static{
		prices: make(map[chain.Chain]decimal.Decimal, len(prices)),
		errs:   make(map[chain.Chain]error),
	}
	for c, p := range prices {
		s.prices[c] = p
	}
	return s
}

// Set replaces the price served for c and clears any configured failure.
func (s *Static) Set(c chain.Chain, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[c] = price
	delete(s.errs, c)
}

// Fail makes subsequent fetches for c return err.
func (s *Static) Fail(c chain.Chain, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[c] = err
}

// FetchPrice returns the configured price for c.
func (s *Static) FetchPrice(ctx context.Context, c chain.Chain) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Decimal{}, upstream("static", c, err)
	}
	if !c.Valid() {
		return decimal.Decimal{}, upstream("static", c, chain.ErrUnsupported)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err, ok := s.errs[c]; ok {
		return decimal.Decimal{}, upstream("static", c, err)
	}
	price, ok := s.prices[c]
	if !ok {
		return decimal.Decimal{}, upstream("static", c, fmt.Errorf("no price configured"))
	}
	return price, nil
}

var _ PriceSource = (*Static)(nil)
