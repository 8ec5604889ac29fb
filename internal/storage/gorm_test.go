package storage

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"chain-price-alerts/internal/chain"
)

func TestGormRecordMapping(t *testing.T) {
	local := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2026, 1, 1, 14, 0, 0, 0, local)

	sample := priceRecord{ID: 7, Chain: "polygon", Price: decimal.RequireFromString("0.5123"), SampledAt: ts}.sample()
	assert.Equal(t, chain.Polygon, sample.Chain)
	assert.Equal(t, "0.5123", sample.Price.String())
	assert.Equal(t, time.UTC, sample.Timestamp.Location())
	assert.True(t, sample.Timestamp.Equal(ts))

	alert := alertRecord{ID: 3, Chain: "ethereum", TargetPrice: decimal.NewFromInt(1500), Email: "a@example.com", CreatedAt: ts}.alert()
	assert.Equal(t, int64(3), alert.ID)
	assert.Equal(t, chain.Ethereum, alert.Chain)
	assert.True(t, alert.TargetPrice.Equal(decimal.NewFromInt(1500)))
}

func TestGormTableNames(t *testing.T) {
	assert.Equal(t, "prices", priceRecord{}.TableName())
	assert.Equal(t, "alerts", alertRecord{}.TableName())
}

func TestGormLogAdapterWritesDebug(t *testing.T) {
	var buf bytes.Buffer
	adapter := gormLogAdapter{log: zerolog.New(&buf).Level(zerolog.DebugLevel)}

	adapter.Printf("slow sql %dms", 250)
	assert.True(t, strings.Contains(buf.String(), "slow sql 250ms"))
}

func TestGormStoreNotConfigured(t *testing.T) {
	var store *GormStore
	assert.ErrorIs(t, store.AutoMigrate(), ErrNotConfigured)
	assert.NoError(t, store.Close())
}
