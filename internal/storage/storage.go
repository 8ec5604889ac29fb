package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chain-price-alerts/internal/chain"
)

var (
	// ErrNotConfigured indicates the storage backend was not initialised.
	ErrNotConfigured = errors.New("storage: backend not configured")
	// ErrInvalidInput rejects records that violate the persisted schema.
	ErrInvalidInput = errors.New("storage: invalid input")
)

// StorageError wraps any failure of a persistence operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// PriceStore is the append-only price history.
type PriceStore interface {
	// Append persists one sample atomically.
	Append(ctx context.Context, sample PriceSample) error
	// Query returns samples for c with Timestamp >= since, newest first.
	Query(ctx context.Context, c chain.Chain, since time.Time) ([]PriceSample, error)
	// ClosestBefore returns the latest sample with Timestamp <= at, or nil when none exists.
	ClosestBefore(ctx context.Context, c chain.Chain, at time.Time) (*PriceSample, error)
}

// AlertStore persists registered alerts.
type AlertStore interface {
	Create(ctx context.Context, alert *Alert) error
	ListAll(ctx context.Context) ([]Alert, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}
