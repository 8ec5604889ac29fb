package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"chain-price-alerts/internal/chain"
)

// PriceSample is one observation of a chain's reference-token price.
type PriceSample struct {
	Chain     chain.Chain
	Price     decimal.Decimal
	Timestamp time.Time
}

// Alert is a user-registered price threshold. Alerts are never marked as fired.
type Alert struct {
	ID          int64
	Chain       chain.Chain
	TargetPrice decimal.Decimal
	Email       string
	CreatedAt   time.Time
}

func validateSample(sample PriceSample) error {
	switch {
	case sample.Chain == "":
		return ErrInvalidInput
	case sample.Price.IsNegative():
		return ErrInvalidInput
	case sample.Timestamp.IsZero():
		return ErrInvalidInput
	}
	return nil
}

func validateAlert(alert *Alert) error {
	switch {
	case alert == nil:
		return ErrInvalidInput
	case alert.Chain == "":
		return ErrInvalidInput
	case !alert.TargetPrice.IsPositive():
		return ErrInvalidInput
	case alert.Email == "":
		return ErrInvalidInput
	}
	return nil
}
