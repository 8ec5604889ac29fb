package fetcher

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"chain-price-alerts/internal/chain"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestStaticFetch(t *testing.T) {
	src := NewStatic(map[chain.Chain]decimal.Decimal{chain.Ethereum: decimal.NewFromInt(2000)})

	price, err := src.FetchPrice(context.Background(), chain.Ethereum)
	if err != nil {
		t.Fatalf("configured chain should succeed: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("expected 2000, got %s", price)
	}

	if _, err := src.FetchPrice(context.Background(), chain.Polygon); err == nil {
		t.Fatal("chain without a price should fail")
	}

	_, err = src.FetchPrice(context.Background(), chain.Chain("solana"))
	if !errors.Is(err, chain.ErrUnsupported) {
		t.Fatalf("unsupported chain should wrap ErrUnsupported, got %v", err)
	}
}

func TestStaticFailAndRecover(t *testing.T) {
	src := NewStatic(map[chain.Chain]decimal.Decimal{chain.Polygon: decimal.RequireFromString("0.52")})
	boom := errors.New("provider down")
	src.Fail(chain.Polygon, boom)

	_, err := src.FetchPrice(context.Background(), chain.Polygon)
	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected *UpstreamError, got %T", err)
	}
	if upErr.Chain != chain.Polygon || !errors.Is(err, boom) {
		t.Fatalf("unexpected upstream error: %v", err)
	}

	src.Set(chain.Polygon, decimal.RequireFromString("0.55"))
	price, err := src.FetchPrice(context.Background(), chain.Polygon)
	if err != nil {
		t.Fatalf("Set should clear failure: %v", err)
	}
	if price.String() != "0.55" {
		t.Fatalf("expected 0.55, got %s", price)
	}
}
