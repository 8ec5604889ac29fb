package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"chain-price-alerts/internal/chain"
)

const (
	insertPriceSQL = `INSERT INTO prices (
        chain,
        price,
        sampled_at
    ) VALUES (
        $1,$2,$3
    );`

	queryPricesSinceSQL = `SELECT
        chain,
        price::text,
        sampled_at
    FROM prices
    WHERE chain = $1
      AND sampled_at >= $2
    ORDER BY sampled_at DESC, id DESC;`

	closestPriceBeforeSQL = `SELECT
        chain,
        price::text,
        sampled_at
    FROM prices
    WHERE chain = $1
      AND sampled_at <= $2
    ORDER BY sampled_at DESC, id DESC
    LIMIT 1;`

	insertAlertSQL = `INSERT INTO alerts (
        chain,
        target_price,
        email,
        created_at
    ) VALUES (
        $1,$2,$3,$4
    )
    RETURNING id;`

	listAlertsSQL = `SELECT
        id,
        chain,
        target_price::text,
        email,
        created_at
    FROM alerts
    ORDER BY id;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Store implements the price and alert stores on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, &StorageError{Op: "connect", Err: ErrNotConfigured}
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, storageErr("acquire connection", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, storageErr("try advisory lock", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// a failed unlock is released with the session
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// Append persists a single price sample.
func (s *Store) Append(ctx context.Context, sample PriceSample) error {
	if err := validateSample(sample); err != nil {
		return storageErr("append price sample", err)
	}
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, insertPriceSQL,
		string(sample.Chain),
		sample.Price.String(),
		sample.Timestamp.UTC(),
	); err != nil {
		return storageErr("append price sample", err)
	}
	return nil
}

// Query lists samples for c newer than or equal to since, newest first.
func (s *Store) Query(ctx context.Context, c chain.Chain, since time.Time) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, queryPricesSinceSQL, string(c), since.UTC())
	if err != nil {
		return nil, storageErr("query prices", err)
	}
	defer rows.Close()

	samples := make([]PriceSample, 0)
	for rows.Next() {
		sample, scanErr := scanPriceSample(rows)
		if scanErr != nil {
			return nil, storageErr("query prices", scanErr)
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("query prices", err)
	}
	return samples, nil
}

// ClosestBefore returns the latest sample at or before at, or nil.
func (s *Store) ClosestBefore(ctx context.Context, c chain.Chain, at time.Time) (*PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	sample, err := scanPriceSample(pool.QueryRow(ctx, closestPriceBeforeSQL, string(c), at.UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("closest price before", err)
	}
	return &sample, nil
}

// Create persists alert and fills in its ID and creation time.
func (s *Store) Create(ctx context.Context, alert *Alert) error {
	if err := validateAlert(alert); err != nil {
		return storageErr("create alert", err)
	}
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	createdAt := alert.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	createdAt = createdAt.UTC()

	var id int64
	if err := pool.QueryRow(ctx, insertAlertSQL,
		string(alert.Chain),
		alert.TargetPrice.String(),
		alert.Email,
		createdAt,
	).Scan(&id); err != nil {
		return storageErr("create alert", err)
	}

	alert.ID = id
	alert.CreatedAt = createdAt
	return nil
}

// ListAll lists every registered alert in creation order.
func (s *Store) ListAll(ctx context.Context) ([]Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listAlertsSQL)
	if err != nil {
		return nil, storageErr("list alerts", err)
	}
	defer rows.Close()

	alerts := make([]Alert, 0)
	for rows.Next() {
		var (
			rec       Alert
			chainName string
			targetStr string
		)
		if err := rows.Scan(&rec.ID, &chainName, &targetStr, &rec.Email, &rec.CreatedAt); err != nil {
			return nil, storageErr("list alerts", err)
		}
		target, err := decimal.NewFromString(targetStr)
		if err != nil {
			return nil, storageErr("list alerts", fmt.Errorf("parse target price: %w", err))
		}
		rec.Chain = chain.Chain(chainName)
		rec.TargetPrice = target
		alerts = append(alerts, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list alerts", err)
	}
	return alerts, nil
}

func scanPriceSample(row pgx.Row) (PriceSample, error) {
	var (
		chainName string
		priceStr  string
		sampledAt time.Time
	)
	if err := row.Scan(&chainName, &priceStr, &sampledAt); err != nil {
		return PriceSample{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return PriceSample{}, fmt.Errorf("parse price: %w", err)
	}

	return PriceSample{
		Chain:     chain.Chain(chainName),
		Price:     price,
		Timestamp: sampledAt.UTC(),
	}, nil
}

var (
	_ PriceStore     = (*Store)(nil)
	_ AlertStore     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
