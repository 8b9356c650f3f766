package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// InsertPortfolioSnapshot persists one (exchange, asset) balance row at a
// point in time. Called periodically by the snapshot ticker.
func (db *DB) InsertPortfolioSnapshot(ctx context.Context, ts time.Time, exchange, asset string, balance, usdValue float64) error {
	query := `
		INSERT INTO portfolio_snapshots (timestamp, exchange, asset, balance, usd_value)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := db.pool.Exec(ctx, query, ts, exchange, asset, balance, usdValue)
	if err != nil {
		log.Error().Err(err).Str("exchange", exchange).Str("asset", asset).Msg("failed to insert portfolio snapshot")
		return fmt.Errorf("failed to insert portfolio snapshot: %w", err)
	}
	return nil
}

// GetLatestPortfolioSnapshots returns the most recent balance row per
// (exchange, asset), for dashboard rendering.
func (db *DB) GetLatestPortfolioSnapshots(ctx context.Context) ([]PortfolioSnapshot, error) {
	query := `
		SELECT DISTINCT ON (exchange, asset) timestamp, exchange, asset, balance, usd_value
		FROM portfolio_snapshots
		ORDER BY exchange, asset, timestamp DESC
	`
	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio snapshots: %w", err)
	}
	defer rows.Close()

	var out []PortfolioSnapshot
	for rows.Next() {
		var s PortfolioSnapshot
		if err := rows.Scan(&s.Timestamp, &s.Exchange, &s.Asset, &s.Balance, &s.USDValue); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PortfolioSnapshot is one balance observation at a point in time.
type PortfolioSnapshot struct {
	Timestamp time.Time
	Exchange  string
	Asset     string
	Balance   float64
	USDValue  float64
}
