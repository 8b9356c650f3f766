package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/cryptoarb/arbot/internal/db"
)

// Updater periodically refreshes the trading-performance gauges from
// Postgres, covering the numbers that only make sense as a rollup over time
// (win rate, Sharpe ratio, returns) rather than something the hot path can
// update directly the way it does RealizedPnLUSD/ExposureUSD.
type Updater struct {
	database      *db.DB
	pool          *pgxpool.Pool
	executionMode string
	interval      time.Duration
	stopCh        chan struct{}
}

// NewUpdater creates a new metrics updater. pool is used directly for
// connection-pool gauges; database is used for the daily_performance rollup
// queries.
func NewUpdater(database *db.DB, pool *pgxpool.Pool, executionMode string, interval time.Duration) *Updater {
	return &Updater{
		database:      database,
		pool:          pool,
		executionMode: executionMode,
		interval:      interval,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the metrics update loop
func (u *Updater) Start(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	u.update(ctx)

	for {
		select {
		case <-ticker.C:
			u.update(ctx)
		case <-u.stopCh:
			log.Info().Msg("metrics updater stopped")
			return
		case <-ctx.Done():
			log.Info().Msg("metrics updater context cancelled")
			return
		}
	}
}

// Stop stops the metrics updater
func (u *Updater) Stop() {
	close(u.stopCh)
}

func (u *Updater) update(ctx context.Context) {
	u.updateTradingMetrics(ctx)
	u.updateDatabaseMetrics()
}

// updateTradingMetrics pulls the daily_performance rollup (written by
// rollUpDailyPerformance) and republishes it as gauges so Grafana/alerting
// can read it from Prometheus instead of querying Postgres directly.
func (u *Updater) updateTradingMetrics(ctx context.Context) {
	if u.database == nil {
		return
	}

	rows, err := u.database.GetDailyPerformance(ctx, u.executionMode, 30)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch daily performance for metrics")
		return
	}
	if len(rows) == 0 {
		return
	}

	latest := rows[0]
	TotalPnL.Set(latest.NetPnL)
	WinRate.Set(latest.WinRate)
	SharpeRatio.Set(latest.SharpeRatio)
	CurrentDrawdown.Set(latest.MaxDrawdown)

	u.updateReturnMetrics(rows)
}

// updateReturnMetrics sums net PnL across the trailing 1/7/30 rollup rows.
// rows is ordered newest-first by GetDailyPerformance.
func (u *Updater) updateReturnMetrics(rows []*db.DailyPerformance) {
	var daily, weekly, monthly float64
	for i, r := range rows {
		monthly += r.NetPnL
		if i < 7 {
			weekly += r.NetPnL
		}
		if i < 1 {
			daily += r.NetPnL
		}
	}

	const initialCapital = 10000.0
	DailyReturn.Set(daily / initialCapital)
	WeeklyReturn.Set(weekly / initialCapital)
	MonthlyReturn.Set(monthly / initialCapital)
}

// updateDatabaseMetrics updates database connection pool metrics
func (u *Updater) updateDatabaseMetrics() {
	if u.pool == nil {
		return
	}
	stat := u.pool.Stat()
	UpdateDatabaseConnections(stat.AcquiredConns(), stat.IdleConns())
}
