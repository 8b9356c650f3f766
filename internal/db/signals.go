package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SignalStatus mirrors types.SignalStatus as the database enum.
type SignalStatus string

const (
	SignalStatusDetected SignalStatus = "Detected"
	SignalStatusExecuted SignalStatus = "Executed"
	SignalStatusMissed   SignalStatus = "Missed"
	SignalStatusRejected SignalStatus = "Rejected"
)

// Signal is the persisted record for one detected arbitrage opportunity.
type Signal struct {
	ID             uuid.UUID
	Strategy       string
	BuyExchange    string
	SellExchange   string
	Symbol         string
	GrossSpread    float64
	NetSpread      float64
	EstimatedPnL   float64
	ActualPnL      *float64
	Status         SignalStatus
	DetectedAt     time.Time
	ExecutedAt     *time.Time
	Metadata       map[string]interface{}
}

// InsertSignal persists a newly detected signal.
func (db *DB) InsertSignal(ctx context.Context, s *Signal) error {
	query := `
		INSERT INTO signals (
			id, strategy, buy_exchange, sell_exchange, symbol,
			gross_spread, net_spread, estimated_pnl, actual_pnl,
			status, detected_at, executed_at, metadata
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
	`
	_, err := db.pool.Exec(ctx, query,
		s.ID, s.Strategy, s.BuyExchange, s.SellExchange, s.Symbol,
		s.GrossSpread, s.NetSpread, s.EstimatedPnL, s.ActualPnL,
		s.Status, s.DetectedAt, s.ExecutedAt, s.Metadata,
	)
	if err != nil {
		log.Error().Err(err).Str("signal_id", s.ID.String()).Msg("failed to insert signal")
		return fmt.Errorf("failed to insert signal: %w", err)
	}
	return nil
}

// UpdateSignalOutcome records the terminal status and actual PnL once a
// signal's execution has settled.
func (db *DB) UpdateSignalOutcome(ctx context.Context, id uuid.UUID, status SignalStatus, actualPnL float64, executedAt time.Time) error {
	query := `
		UPDATE signals
		SET status = $2, actual_pnl = $3, executed_at = $4
		WHERE id = $1
	`
	_, err := db.pool.Exec(ctx, query, id, status, actualPnL, executedAt)
	if err != nil {
		log.Error().Err(err).Str("signal_id", id.String()).Msg("failed to update signal outcome")
		return fmt.Errorf("failed to update signal outcome: %w", err)
	}
	return nil
}

// GetRecentSignals returns the most recently detected signals, newest first.
func (db *DB) GetRecentSignals(ctx context.Context, limit int) ([]*Signal, error) {
	query := `
		SELECT id, strategy, buy_exchange, sell_exchange, symbol,
			gross_spread, net_spread, estimated_pnl, actual_pnl,
			status, detected_at, executed_at, metadata
		FROM signals
		ORDER BY detected_at DESC
		LIMIT $1
	`
	rows, err := db.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var out []*Signal
	for rows.Next() {
		s := &Signal{}
		if err := rows.Scan(&s.ID, &s.Strategy, &s.BuyExchange, &s.SellExchange, &s.Symbol,
			&s.GrossSpread, &s.NetSpread, &s.EstimatedPnL, &s.ActualPnL,
			&s.Status, &s.DetectedAt, &s.ExecutedAt, &s.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
