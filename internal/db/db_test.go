package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates a test database connection, or skips the test when
// DATABASE_URL is not set.
func setupTestDB(t *testing.T) (*DB, func()) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("Skipping database test: DATABASE_URL not set")
	}

	ctx := context.Background()
	database, err := New(ctx)
	if err != nil {
		t.Skipf("Skipping database test: failed to connect: %v", err)
	}

	return database, database.Close
}

func TestNew(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	assert.NotNil(t, database)
	assert.NotNil(t, database.Pool())
}

func TestClose(t *testing.T) {
	database, _ := setupTestDB(t)
	database.Close()
}

func TestPing(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	err := database.Ping(context.Background())
	assert.NoError(t, err)
}

func TestHealth(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	err := database.Health(context.Background())
	assert.NoError(t, err)
}

func TestInsertSignalAndGetRecentSignals(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	signal := &Signal{
		ID:           uuid.New(),
		Strategy:     "spatial",
		BuyExchange:  "binance",
		SellExchange: "kraken",
		Symbol:       "BTCUSDT",
		GrossSpread:  0.004,
		NetSpread:    0.0015,
		EstimatedPnL: 12.5,
		Status:       SignalStatusDetected,
		DetectedAt:   time.Now(),
	}

	require.NoError(t, database.InsertSignal(ctx, signal))

	recent, err := database.GetRecentSignals(ctx, 10)
	require.NoError(t, err)

	found := false
	for _, s := range recent {
		if s.ID == signal.ID {
			found = true
			assert.Equal(t, signal.Symbol, s.Symbol)
			assert.Equal(t, SignalStatusDetected, s.Status)
		}
	}
	assert.True(t, found, "inserted signal should appear in GetRecentSignals")
}

func TestUpdateSignalOutcome(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	signal := &Signal{
		ID:           uuid.New(),
		Strategy:     "triangular",
		BuyExchange:  "binance",
		SellExchange: "binance",
		Symbol:       "ETHBTC",
		GrossSpread:  0.002,
		NetSpread:    0.0008,
		EstimatedPnL: 3.2,
		Status:       SignalStatusDetected,
		DetectedAt:   time.Now(),
	}
	require.NoError(t, database.InsertSignal(ctx, signal))

	executedAt := time.Now()
	require.NoError(t, database.UpdateSignalOutcome(ctx, signal.ID, SignalStatusExecuted, 2.9, executedAt))

	recent, err := database.GetRecentSignals(ctx, 10)
	require.NoError(t, err)

	for _, s := range recent {
		if s.ID == signal.ID {
			assert.Equal(t, SignalStatusExecuted, s.Status)
			require.NotNil(t, s.ActualPnL)
			assert.InDelta(t, 2.9, *s.ActualPnL, 0.0001)
		}
	}
}
