package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/cryptoarb/arbot/internal/db"
	"github.com/cryptoarb/arbot/internal/ledger"
	"github.com/cryptoarb/arbot/internal/marketstate"
	"github.com/cryptoarb/arbot/internal/risk"
)

// runPersistenceLoop periodically snapshots the portfolio and rolls up the
// day's trading performance to Postgres. It is a no-op when database is nil
// (durable persistence unavailable), exiting once ctx is cancelled.
func runPersistenceLoop(ctx context.Context, database *db.DB, book *ledger.Ledger, observer *marketstate.Observer, mode string, done chan struct{}) {
	defer close(done)
	if database == nil {
		return
	}

	snapshotTicker := time.NewTicker(5 * time.Minute)
	defer snapshotTicker.Stop()

	rollupTicker := time.NewTicker(24 * time.Hour)
	defer rollupTicker.Stop()

	usdPrice := medianUSDPrice(observer)

	for {
		select {
		case <-ctx.Done():
			return
		case <-snapshotTicker.C:
			values := make(map[string]decimal.Decimal)
			for _, b := range book.Snapshot() {
				values[b.Asset] = usdPrice(b.Asset)
			}
			book.PersistSnapshot(ctx, values)
		case <-rollupTicker.C:
			if err := rollUpDailyPerformance(ctx, database, mode); err != nil {
				log.Error().Err(err).Msg("daily performance rollup failed")
			}
		}
	}
}

// rollUpDailyPerformance summarizes the last 24 hours of signals into the
// daily_performance table: counts, PnL totals, win rate, and the Sharpe
// ratio/max drawdown computed from the sequence of realized signal outcomes.
func rollUpDailyPerformance(ctx context.Context, database *db.DB, mode string) error {
	signals, err := database.GetRecentSignals(ctx, 10000)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-24 * time.Hour)
	perf := &db.DailyPerformance{
		Date:          time.Now().Truncate(24 * time.Hour),
		ExecutionMode: mode,
	}

	var pnls []float64
	var wins, losses int
	equity := 0.0
	equityCurve := []float64{equity}

	for _, s := range signals {
		if s.DetectedAt.Before(cutoff) {
			continue
		}
		perf.TotalSignals++
		if s.Status != db.SignalStatusExecuted || s.ActualPnL == nil {
			continue
		}

		pnl := *s.ActualPnL
		perf.ExecutedTrades++
		perf.TotalPnL += pnl
		if pnl > 0 {
			wins++
		} else if pnl < 0 {
			losses++
		}

		pnls = append(pnls, pnl)
		equity += pnl
		equityCurve = append(equityCurve, equity)
	}

	perf.NetPnL = perf.TotalPnL - perf.TotalFees
	if total := wins + losses; total > 0 {
		perf.WinRate = float64(wins) / float64(total)
	}
	if sharpe, err := risk.CalculateSharpeRatio(pnls, 0); err == nil {
		perf.SharpeRatio = sharpe
	}
	_, maxDD, _ := risk.CalculateDrawdown(equityCurve)
	perf.MaxDrawdown = maxDD

	return database.UpsertDailyPerformance(ctx, perf)
}
