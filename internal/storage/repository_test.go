package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"chain-price-alerts/internal/chain"
	"chain-price-alerts/internal/config"
)

// setupPostgresStore starts a disposable PostgreSQL container and applies migrations.
func setupPostgresStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests skipped in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("pricewatch"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, config.DatabaseConfig{DSN: dsn, MaxOpenConns: 4})
	require.NoError(t, err)

	store := NewStore(pool)
	t.Cleanup(store.Close)

	applied, err := store.Migrate(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, applied)
	return store
}

func TestPostgresStorePrices(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, sampleAt(chain.Ethereum, "2000", base)))
	require.NoError(t, store.Append(ctx, sampleAt(chain.Ethereum, "2100.123456789", base.Add(5*time.Minute))))
	require.NoError(t, store.Append(ctx, sampleAt(chain.Polygon, "0.5", base)))

	got, err := store.Query(ctx, chain.Ethereum, base)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Price.Equal(decimal.RequireFromString("2100.123456789")))
	assert.True(t, got[0].Timestamp.Equal(base.Add(5*time.Minute)))

	closest, err := store.ClosestBefore(ctx, chain.Ethereum, base.Add(4*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, closest)
	assert.True(t, closest.Price.Equal(decimal.NewFromInt(2000)))

	none, err := store.ClosestBefore(ctx, chain.Ethereum, base.Add(-time.Minute))
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestPostgresStoreAlerts(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	alert := &Alert{Chain: chain.Ethereum, TargetPrice: decimal.NewFromInt(1500), Email: "ops@example.com"}
	require.NoError(t, store.Create(ctx, alert))
	assert.NotZero(t, alert.ID)
	assert.False(t, alert.CreatedAt.IsZero())

	alerts, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.ID, alerts[0].ID)
	assert.True(t, alerts[0].TargetPrice.Equal(decimal.NewFromInt(1500)))
}

func TestPostgresStoreAdvisoryLock(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	unlock, acquired, err := store.TryAdvisoryLock(ctx, 42)
	require.NoError(t, err)
	require.True(t, acquired)

	_, again, err := store.TryAdvisoryLock(ctx, 42)
	require.NoError(t, err)
	assert.False(t, again, "a second session must not acquire a held lock")

	unlock()
}

func TestStoreNotConfigured(t *testing.T) {
	var store *Store
	_, err := store.Query(context.Background(), chain.Ethereum, time.Now())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestMigrationFilesSorted(t *testing.T) {
	files, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "001_init.sql", files[0])
}
