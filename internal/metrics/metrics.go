package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Trading Performance Metrics, republished from the daily_performance
// rollup by Updater so dashboards can read them from Prometheus instead
// of querying Postgres directly.
var (
	TotalPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptofunk_total_pnl",
		Help: "Total profit and loss in USD",
	})

	WinRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptofunk_win_rate",
		Help: "Win rate as a ratio (0.0 to 1.0)",
	})

	CurrentDrawdown = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptofunk_current_drawdown",
		Help: "Current drawdown as a ratio (0.0 to 1.0)",
	})

	DailyReturn = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptofunk_daily_return",
		Help: "Daily return as a ratio",
	})

	WeeklyReturn = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptofunk_weekly_return",
		Help: "Weekly return as a ratio",
	})

	MonthlyReturn = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptofunk_monthly_return",
		Help: "Monthly return as a ratio",
	})

	SharpeRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptofunk_sharpe_ratio",
		Help: "Sharpe ratio (risk-adjusted return)",
	})
)

// System Health Metrics
var (
	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptofunk_database_connections_active",
		Help: "Number of active database connections",
	})

	DatabaseConnectionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptofunk_database_connections_idle",
		Help: "Number of idle database connections",
	})

	RedisCacheHitRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptofunk_redis_cache_hit_rate",
		Help: "Redis cache hit rate as a ratio (0.0 to 1.0)",
	})

	RedisOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptofunk_redis_operations_total",
		Help: "Total number of Redis operations by type",
	}, []string{"operation"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cryptofunk_api_request_duration_ms",
		Help:    "API request duration in milliseconds",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"method", "path", "status_code"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptofunk_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status_code"})
)

// UpdateDatabaseConnections updates database connection metrics
func UpdateDatabaseConnections(active, idle int32) {
	DatabaseConnectionsActive.Set(float64(active))
	DatabaseConnectionsIdle.Set(float64(idle))
}

// RecordAPIRequest records an API request with duration
func RecordAPIRequest(method, path, statusCode string, durationMs float64) {
	APIRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationMs)
	HTTPRequests.WithLabelValues(method, path, statusCode).Inc()
}

// RecordRedisOperation records a Redis operation
func RecordRedisOperation(operation string) {
	RedisOperations.WithLabelValues(operation).Inc()
}
