package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"chain-price-alerts/internal/chain"
	"chain-price-alerts/internal/config"
)

type priceRecord struct {
	ID        int64           `gorm:"primaryKey;autoIncrement"`
	Chain     string          `gorm:"size:32;not null;index:idx_prices_chain_sampled_at,priority:1"`
	Price     decimal.Decimal `gorm:"type:decimal(38,18);not null"`
	SampledAt time.Time       `gorm:"not null;precision:6;index:idx_prices_chain_sampled_at,priority:2"`
	CreatedAt time.Time       `gorm:"precision:6"`
}

func (priceRecord) TableName() string {
	return "prices"
}

type alertRecord struct {
	ID          int64           `gorm:"primaryKey;autoIncrement"`
	Chain       string          `gorm:"size:32;not null;index"`
	TargetPrice decimal.Decimal `gorm:"type:decimal(38,18);not null"`
	Email       string          `gorm:"size:320;not null"`
	CreatedAt   time.Time       `gorm:"not null;precision:6"`
}

func (alertRecord) TableName() string {
	return "alerts"
}

func (r priceRecord) sample() PriceSample {
	return PriceSample{
		Chain:     chain.Chain(r.Chain),
		Price:     r.Price,
		Timestamp: r.SampledAt.UTC(),
	}
}

func (r alertRecord) alert() Alert {
	return Alert{
		ID:          r.ID,
		Chain:       chain.Chain(r.Chain),
		TargetPrice: r.TargetPrice,
		Email:       r.Email,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

// GormStore implements the price and alert stores on MySQL through GORM.
type GormStore struct {
	conn *gorm.DB
	now  func() time.Time
}

// NewGormStore opens a MySQL connection. The DSN must enable parseTime.
func NewGormStore(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (*GormStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	conn, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{Logger: newGormLogger(log)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewGormStoreFromDB(conn), nil
}

// NewGormStoreFromDB wraps an existing GORM handle.
func NewGormStoreFromDB(conn *gorm.DB) *GormStore {
	return &GormStore{conn: conn, now: time.Now}
}

// Close closes the database connection.
func (s *GormStore) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	sqlDB, err := s.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate creates or updates the prices and alerts tables.
func (s *GormStore) AutoMigrate() error {
	if s == nil || s.conn == nil {
		return &StorageError{Op: "migrate", Err: ErrNotConfigured}
	}
	return storageErr("migrate", s.conn.AutoMigrate(&priceRecord{}, &alertRecord{}))
}

// Append persists a single price sample.
func (s *GormStore) Append(ctx context.Context, sample PriceSample) error {
	if err := validateSample(sample); err != nil {
		return storageErr("append price sample", err)
	}
	rec := priceRecord{
		Chain:     string(sample.Chain),
		Price:     sample.Price,
		SampledAt: sample.Timestamp.UTC(),
	}
	return storageErr("append price sample", s.conn.WithContext(ctx).Create(&rec).Error)
}

// Query lists samples for c newer than or equal to since, newest first.
func (s *GormStore) Query(ctx context.Context, c chain.Chain, since time.Time) ([]PriceSample, error) {
	var records []priceRecord
	result := s.conn.WithContext(ctx).
		Where("chain = ? AND sampled_at >= ?", string(c), since.UTC()).
		Order("sampled_at DESC").
		Order("id DESC").
		Find(&records)
	if result.Error != nil {
		return nil, storageErr("query prices", result.Error)
	}

	samples := make([]PriceSample, 0, len(records))
	for _, rec := range records {
		samples = append(samples, rec.sample())
	}
	return samples, nil
}

// ClosestBefore returns the latest sample at or before at, or nil.
func (s *GormStore) ClosestBefore(ctx context.Context, c chain.Chain, at time.Time) (*PriceSample, error) {
	var rec priceRecord
	result := s.conn.WithContext(ctx).
		Where("chain = ? AND sampled_at <= ?", string(c), at.UTC()).
		Order("sampled_at DESC").
		Order("id DESC").
		Limit(1).
		Take(&rec)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, storageErr("closest price before", result.Error)
	}
	sample := rec.sample()
	return &sample, nil
}

// Create persists alert and fills in its ID and creation time.
func (s *GormStore) Create(ctx context.Context, alert *Alert) error {
	if err := validateAlert(alert); err != nil {
		return storageErr("create alert", err)
	}
	createdAt := alert.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	rec := alertRecord{
		Chain:       string(alert.Chain),
		TargetPrice: alert.TargetPrice,
		Email:       alert.Email,
		CreatedAt:   createdAt.UTC(),
	}
	if err := s.conn.WithContext(ctx).Create(&rec).Error; err != nil {
		return storageErr("create alert", err)
	}

	alert.ID = rec.ID
	alert.CreatedAt = rec.CreatedAt
	return nil
}

// ListAll lists every registered alert in creation order.
func (s *GormStore) ListAll(ctx context.Context) ([]Alert, error) {
	var records []alertRecord
	if err := s.conn.WithContext(ctx).Order("id").Find(&records).Error; err != nil {
		return nil, storageErr("list alerts", err)
	}

	alerts := make([]Alert, 0, len(records))
	for _, rec := range records {
		alerts = append(alerts, rec.alert())
	}
	return alerts, nil
}

// gormLogAdapter routes GORM's printf-style logging into zerolog.
type gormLogAdapter struct {
	log zerolog.Logger
}

func (l gormLogAdapter) Printf(format string, args ...interface{}) {
	l.log.Debug().Msgf(format, args...)
}

func newGormLogger(log zerolog.Logger) logger.Interface {
	return logger.New(
		gormLogAdapter{log: log.With().Str("component", "gorm").Logger()},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

var (
	_ PriceStore = (*GormStore)(nil)
	_ AlertStore = (*GormStore)(nil)
)
