package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// DailyPerformance is one day's rollup of trading activity.
type DailyPerformance struct {
	Date           time.Time
	ExecutionMode  string
	TotalSignals   int
	ExecutedTrades int
	TotalPnL       float64
	TotalFees      float64
	NetPnL         float64
	SharpeRatio    float64
	MaxDrawdown    float64
	WinRate        float64
}

// UpsertDailyPerformance writes or replaces the rollup row for one
// (date, execution_mode) pair, called by the end-of-day rollup job.
func (db *DB) UpsertDailyPerformance(ctx context.Context, p *DailyPerformance) error {
	query := `
		INSERT INTO daily_performance (
			date, execution_mode, total_signals, executed_trades,
			total_pnl, total_fees, net_pnl, sharpe_ratio, max_drawdown, win_rate
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (date, execution_mode) DO UPDATE SET
			total_signals = EXCLUDED.total_signals,
			executed_trades = EXCLUDED.executed_trades,
			total_pnl = EXCLUDED.total_pnl,
			total_fees = EXCLUDED.total_fees,
			net_pnl = EXCLUDED.net_pnl,
			sharpe_ratio = EXCLUDED.sharpe_ratio,
			max_drawdown = EXCLUDED.max_drawdown,
			win_rate = EXCLUDED.win_rate
	`
	_, err := db.pool.Exec(ctx, query,
		p.Date, p.ExecutionMode, p.TotalSignals, p.ExecutedTrades,
		p.TotalPnL, p.TotalFees, p.NetPnL, p.SharpeRatio, p.MaxDrawdown, p.WinRate,
	)
	if err != nil {
		log.Error().Err(err).Time("date", p.Date).Msg("failed to upsert daily performance")
		return fmt.Errorf("failed to upsert daily performance: %w", err)
	}
	return nil
}

// GetDailyPerformance returns the rollup rows for the last N days.
func (db *DB) GetDailyPerformance(ctx context.Context, executionMode string, days int) ([]*DailyPerformance, error) {
	query := `
		SELECT date, execution_mode, total_signals, executed_trades,
			total_pnl, total_fees, net_pnl, sharpe_ratio, max_drawdown, win_rate
		FROM daily_performance
		WHERE execution_mode = $1 AND date >= NOW() - INTERVAL '1 day' * $2
		ORDER BY date DESC
	`
	rows, err := db.pool.Query(ctx, query, executionMode, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily performance: %w", err)
	}
	defer rows.Close()

	var out []*DailyPerformance
	for rows.Next() {
		p := &DailyPerformance{}
		if err := rows.Scan(&p.Date, &p.ExecutionMode, &p.TotalSignals, &p.ExecutedTrades,
			&p.TotalPnL, &p.TotalFees, &p.NetPnL, &p.SharpeRatio, &p.MaxDrawdown, &p.WinRate); err != nil {
			return nil, fmt.Errorf("failed to scan daily performance: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
