package testhelpers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cryptoarb/arbot/internal/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer holds the testcontainer instance and connection details
type PostgresContainer struct {
	Container     *postgres.PostgresContainer
	ConnectionStr string
	DB            *db.DB
	cleanupFuncs  []func()
	t             *testing.T
}

// SetupTestDatabase creates a PostgreSQL testcontainer with TimescaleDB
func SetupTestDatabase(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	// Create PostgreSQL container with TimescaleDB image
	container, err := postgres.Run(ctx,
		"timescale/timescaledb:latest-pg15", // TimescaleDB with PostgreSQL 15
		postgres.WithDatabase("arbot_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("testpassword"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	// Get connection string
	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to get connection string: %v", err)
	}

	// Create test database connection
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to parse connection string: %v", err)
	}

	// Configure connection pool
	config.MaxConns = 5
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	// Create pool
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create connection pool: %v", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to ping database: %v", err)
	}

	database := &db.DB{}
	database.SetPool(pool)

	tc := &PostgresContainer{
		Container:     container,
		ConnectionStr: connStr,
		DB:            database,
		cleanupFuncs:  []func(){},
		t:             t,
	}

	// Set up cleanup
	t.Cleanup(func() {
		tc.Cleanup()
	})

	return tc
}

// ApplyMigrations runs SQL migrations from the migrations directory
func (tc *PostgresContainer) ApplyMigrations(migrationsPath string) error {
	tc.t.Helper()

	ctx := context.Background()
	pool := tc.DB.Pool()

	// Read all migration files in order
	files, err := filepath.Glob(filepath.Join(migrationsPath, "*.sql"))
	if err != nil {
		return fmt.Errorf("failed to list migration files: %w", err)
	}

	// Sort files to ensure they run in order (001, 002, 003, etc.)
	// This works because files are named with numeric prefixes
	sort := func(i, j int) bool {
		return filepath.Base(files[i]) < filepath.Base(files[j])
	}

	// Simple bubble sort for the file list
	for i := 0; i < len(files); i++ {
		for j := i + 1; j < len(files); j++ {
			if !sort(i, j) {
				files[i], files[j] = files[j], files[i]
			}
		}
	}

	// Apply each migration in order
	for _, migrationFile := range files {
		tc.t.Logf("Applying migration: %s", filepath.Base(migrationFile))

		sqlBytes, err := os.ReadFile(migrationFile)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", migrationFile, err)
		}

		schema := string(sqlBytes)

		// Execute schema
		_, err = pool.Exec(ctx, schema)
		if err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", filepath.Base(migrationFile), err)
		}
	}

	return nil
}

// ApplyMigrationsLegacy provides a minimal schema if migration file is not available
func (tc *PostgresContainer) ApplyMigrationsLegacy() error {
	tc.t.Helper()

	ctx := context.Background()
	pool := tc.DB.Pool()

	schema := `
-- Enable extensions
CREATE EXTENSION IF NOT EXISTS timescaledb;

-- Detected arbitrage opportunities
CREATE TABLE IF NOT EXISTS signals (
    id UUID PRIMARY KEY,
    strategy TEXT NOT NULL,
    buy_exchange TEXT NOT NULL,
    sell_exchange TEXT NOT NULL,
    symbol TEXT NOT NULL,
    gross_spread DOUBLE PRECISION NOT NULL,
    net_spread DOUBLE PRECISION NOT NULL,
    estimated_pnl DOUBLE PRECISION NOT NULL,
    actual_pnl DOUBLE PRECISION,
    status TEXT NOT NULL,
    detected_at TIMESTAMP WITH TIME ZONE NOT NULL,
    executed_at TIMESTAMP WITH TIME ZONE,
    metadata JSONB
);

-- One row per submitted leg of a signal
CREATE TABLE IF NOT EXISTS arb_trades (
    id UUID PRIMARY KEY,
    signal_id UUID NOT NULL REFERENCES signals(id),
    exchange TEXT NOT NULL,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    order_type TEXT NOT NULL,
    requested_qty DOUBLE PRECISION NOT NULL,
    filled_qty DOUBLE PRECISION NOT NULL DEFAULT 0,
    requested_price DOUBLE PRECISION NOT NULL,
    filled_price DOUBLE PRECISION NOT NULL DEFAULT 0,
    fee DOUBLE PRECISION NOT NULL DEFAULT 0,
    fee_asset TEXT,
    status TEXT NOT NULL,
    execution_mode TEXT NOT NULL,
    latency_ms BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    filled_at TIMESTAMP WITH TIME ZONE
);

-- Point-in-time per-exchange balance snapshots (hypertable)
CREATE TABLE IF NOT EXISTS portfolio_snapshots (
    timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
    exchange TEXT NOT NULL,
    asset TEXT NOT NULL,
    balance DOUBLE PRECISION NOT NULL,
    usd_value DOUBLE PRECISION NOT NULL
);

-- Daily performance rollups
CREATE TABLE IF NOT EXISTS daily_performance (
    date DATE NOT NULL,
    execution_mode TEXT NOT NULL,
    total_signals INTEGER NOT NULL DEFAULT 0,
    executed_trades INTEGER NOT NULL DEFAULT 0,
    total_pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
    total_fees DOUBLE PRECISION NOT NULL DEFAULT 0,
    net_pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
    sharpe_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
    max_drawdown DOUBLE PRECISION NOT NULL DEFAULT 0,
    win_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
    PRIMARY KEY (date, execution_mode)
);

-- Convert append-only, time-indexed tables to hypertables
SELECT create_hypertable('portfolio_snapshots', 'timestamp', if_not_exists => TRUE);

-- Create indexes
CREATE INDEX IF NOT EXISTS idx_signals_detected_at ON signals(detected_at DESC);
CREATE INDEX IF NOT EXISTS idx_signals_status ON signals(status);
CREATE INDEX IF NOT EXISTS idx_arb_trades_signal_id ON arb_trades(signal_id);
CREATE INDEX IF NOT EXISTS idx_portfolio_snapshots_exchange_asset ON portfolio_snapshots(exchange, asset, timestamp DESC);
`

	// Execute schema
	_, err := pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

// AddCleanup registers a cleanup function to be called during teardown
func (tc *PostgresContainer) AddCleanup(fn func()) {
	tc.cleanupFuncs = append(tc.cleanupFuncs, fn)
}

// Cleanup terminates the container and runs cleanup functions
func (tc *PostgresContainer) Cleanup() {
	ctx := context.Background()

	// Run cleanup functions in reverse order
	for i := len(tc.cleanupFuncs) - 1; i >= 0; i-- {
		tc.cleanupFuncs[i]()
	}

	// Close database connection
	if tc.DB != nil {
		tc.DB.Close()
	}

	// Terminate container
	if tc.Container != nil {
		if err := tc.Container.Terminate(ctx); err != nil {
			tc.t.Logf("Failed to terminate container: %v", err)
		}
	}
}

// TruncateAllTables clears all data from tables (useful for test isolation)
func (tc *PostgresContainer) TruncateAllTables() error {
	ctx := context.Background()
	pool := tc.DB.Pool()

	tables := []string{
		"arb_trades",
		"signals",
		"portfolio_snapshots",
		"daily_performance",
	}

	for _, table := range tables {
		_, err := pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
		if err != nil {
			return fmt.Errorf("failed to truncate %s: %w", table, err)
		}
	}

	return nil
}

// ExecuteSQL executes arbitrary SQL (useful for test setup)
func (tc *PostgresContainer) ExecuteSQL(sql string) error {
	ctx := context.Background()
	pool := tc.DB.Pool()

	_, err := pool.Exec(ctx, sql)
	return err
}
