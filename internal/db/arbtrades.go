package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ArbTradeStatus mirrors types.OrderState as persisted on a Trade row.
type ArbTradeStatus string

const (
	ArbTradeStatusPending   ArbTradeStatus = "PENDING"
	ArbTradeStatusFilled    ArbTradeStatus = "FILLED"
	ArbTradeStatusPartial   ArbTradeStatus = "PARTIAL"
	ArbTradeStatusCancelled ArbTradeStatus = "CANCELLED"
	ArbTradeStatusFailed    ArbTradeStatus = "FAILED"
)

// ArbTrade is the persisted record for one submitted leg.
type ArbTrade struct {
	ID             uuid.UUID
	SignalID       uuid.UUID
	Exchange       string
	Symbol         string
	Side           string
	OrderType      string
	RequestedQty   float64
	FilledQty      float64
	RequestedPrice float64
	FilledPrice    float64
	Fee            float64
	FeeAsset       string
	Status         ArbTradeStatus
	ExecutionMode  string
	LatencyMS      int64
	CreatedAt      time.Time
	FilledAt       *time.Time
}

// InsertArbTrade persists one leg's outcome.
func (db *DB) InsertArbTrade(ctx context.Context, t *ArbTrade) error {
	query := `
		INSERT INTO arb_trades (
			id, signal_id, exchange, symbol, side, order_type,
			requested_qty, filled_qty, requested_price, filled_price,
			fee, fee_asset, status, execution_mode, latency_ms,
			created_at, filled_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
	`
	_, err := db.pool.Exec(ctx, query,
		t.ID, t.SignalID, t.Exchange, t.Symbol, t.Side, t.OrderType,
		t.RequestedQty, t.FilledQty, t.RequestedPrice, t.FilledPrice,
		t.Fee, t.FeeAsset, t.Status, t.ExecutionMode, t.LatencyMS,
		t.CreatedAt, t.FilledAt,
	)
	if err != nil {
		log.Error().Err(err).Str("trade_id", t.ID.String()).Msg("failed to insert arb trade")
		return fmt.Errorf("failed to insert arb trade: %w", err)
	}
	return nil
}

// GetArbTradesBySignal returns every leg recorded for a signal, including
// hedging legs added during partial-imbalance reconciliation.
func (db *DB) GetArbTradesBySignal(ctx context.Context, signalID uuid.UUID) ([]*ArbTrade, error) {
	query := `
		SELECT id, signal_id, exchange, symbol, side, order_type,
			requested_qty, filled_qty, requested_price, filled_price,
			fee, fee_asset, status, execution_mode, latency_ms,
			created_at, filled_at
		FROM arb_trades
		WHERE signal_id = $1
		ORDER BY created_at ASC
	`
	rows, err := db.pool.Query(ctx, query, signalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query arb trades: %w", err)
	}
	defer rows.Close()

	var out []*ArbTrade
	for rows.Next() {
		t := &ArbTrade{}
		if err := rows.Scan(&t.ID, &t.SignalID, &t.Exchange, &t.Symbol, &t.Side, &t.OrderType,
			&t.RequestedQty, &t.FilledQty, &t.RequestedPrice, &t.FilledPrice,
			&t.Fee, &t.FeeAsset, &t.Status, &t.ExecutionMode, &t.LatencyMS,
			&t.CreatedAt, &t.FilledAt); err != nil {
			return nil, fmt.Errorf("failed to scan arb trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
