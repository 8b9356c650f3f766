package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Arbitrage-engine metrics, namespaced separately from the orchestrator's
// cryptofunk_* series in metrics.go since they describe a different process.
var (
	ConnectorState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arbot_connector_state",
		Help: "Current connector state machine position (1=active state, 0=inactive) per exchange and state label",
	}, []string{"exchange", "state"})

	ConnectorReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbot_connector_reconnects_total",
		Help: "Total reconnect attempts per exchange",
	}, []string{"exchange"})

	SignalsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbot_signals_detected_total",
		Help: "Total signals emitted by a detector strategy",
	}, []string{"strategy"})

	SignalsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbot_signals_executed_total",
		Help: "Total signals that cleared risk and were executed",
	}, []string{"strategy", "outcome"})

	SignalsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbot_signals_rejected_total",
		Help: "Total signals rejected by the risk pipeline",
	}, []string{"reason"})

	OrderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arbot_order_latency_ms",
		Help:    "Time from order submission to the connector's PlaceOrder response in milliseconds",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2000, 5000},
	}, []string{"exchange"})

	RealizedPnLUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arbot_realized_pnl_usd",
		Help: "Cumulative realized profit and loss in USD",
	})

	DrawdownPct = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arbot_drawdown_pct",
		Help: "Current drawdown from the equity high-water mark, as a percentage",
	})

	CircuitBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arbot_circuit_breaker_state",
		Help: "Risk circuit breaker state: 0=closed, 1=tripped",
	})

	ExposureUSD = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arbot_exposure_usd",
		Help: "Current notional exposure in USD, by dimension (coin or exchange) and key",
	}, []string{"dimension", "key"})

	ExchangeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbot_exchange_errors_total",
		Help: "Exchange API errors by exchange and normalized category",
	}, []string{"exchange", "category"})

	AlertsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbot_alerts_suppressed_total",
		Help: "Alerts coalesced by the throttle because an identical alert was already in its window",
	}, []string{"category"})
)
