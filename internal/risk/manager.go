package risk

import (
	"math"
	"sync"
	"time"

	"github.com/cryptoarb/arbot/internal/metrics"
	"github.com/cryptoarb/arbot/internal/types"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Limits holds the position, drawdown, anomaly and circuit-breaker
// thresholds from the `risk` config section.
type Limits struct {
	MaxPositionPerCoinUSD     decimal.Decimal
	MaxPositionPerExchangeUSD decimal.Decimal
	MaxTotalExposureUSD       decimal.Decimal
	WarningThresholdPct       decimal.Decimal

	MaxDrawdownPct  decimal.Decimal
	MaxDailyLossUSD decimal.Decimal
	MaxDailyLossPct decimal.Decimal

	PriceDeviationThresholdPct decimal.Decimal
	MaxSpreadPct               decimal.Decimal
	SpreadStdThreshold         decimal.Decimal
	FlashCrashPct              decimal.Decimal

	ConsecutiveLossLimit int
	CooldownMinutes      int
}

// ExposureSource answers the current notional exposure per coin and per
// exchange, and total exposure, so the Position Limits stage can evaluate
// headroom without owning the ledger itself.
type ExposureSource interface {
	ExposureForCoin(asset string) decimal.Decimal
	ExposureForExchange(exchange string) decimal.Decimal
	TotalExposure() decimal.Decimal
	CurrentEquity() decimal.Decimal
}

// PriceObserver supplies the rolling cross-exchange view the Anomaly stage
// needs: a median price for a symbol, the recent price change on one
// exchange for flash-crash comparison, and cross-exchange spread statistics.
type PriceObserver interface {
	MedianPrice(symbol string) (decimal.Decimal, bool)
	RecentPriceChangePct(exchange, symbol string, lookback time.Duration) (decimal.Decimal, bool)
	SpreadStats(exchangeA, exchangeB, symbol string) (mean, stddev decimal.Decimal, ok bool)
}

// Manager runs the four-stage serial risk pipeline, short-circuiting on
// the first stage that rejects.
type Manager struct {
	limits   Limits
	exposure ExposureSource
	prices   PriceObserver

	mu          sync.Mutex
	hwm         decimal.Decimal
	dayStart    time.Time
	startEquity decimal.Decimal
	dailyPnL    decimal.Decimal

	breaker consecutiveLossBreaker
}

type consecutiveLossBreaker struct {
	state types.CircuitState
}

// NewManager constructs a risk pipeline; hwm/startEquity are seeded from
// the current ledger equity at startup.
func NewManager(limits Limits, exposure ExposureSource, prices PriceObserver, startEquity decimal.Decimal) *Manager {
	return &Manager{
		limits:      limits,
		exposure:    exposure,
		prices:      prices,
		hwm:         startEquity,
		dayStart:    dayBucket(time.Now()),
		startEquity: startEquity,
	}
}

func dayBucket(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Evaluate runs the signal through all four stages. executionMode
// distinguishes Paper (logs would-be rejections from a tripped breaker
// instead of enforcing them) from Live.
func (m *Manager) Evaluate(signal *types.Signal, executionMode string) types.RiskDecision {
	m.rollDayIfNeeded()

	if d := m.checkPositionLimits(signal); !d.Approved {
		return d
	}
	if d := m.checkDrawdown(); !d.Approved {
		return d
	}
	if d := m.checkAnomaly(signal); !d.Approved {
		return d
	}
	return m.checkCircuitBreaker(executionMode, signal)
}

// --- Stage 1: Position Limits ---

func (m *Manager) checkPositionLimits(signal *types.Signal) types.RiskDecision {
	notional := signal.NotionalUSD

	for _, leg := range signal.Legs {
		coinExposure := m.exposure.ExposureForCoin(leg.Symbol).Add(notional)
		if coinExposure.GreaterThan(m.limits.MaxPositionPerCoinUSD) {
			headroom := m.limits.MaxPositionPerCoinUSD.Sub(m.exposure.ExposureForCoin(leg.Symbol))
			if reduced, ok := reduceToHeadroom(notional, headroom); ok {
				notional = decimal.Min(notional, reduced)
				continue
			}
			return types.RiskDecision{Approved: false, Reason: "max_position_per_coin_exceeded"}
		}

		exchExposure := m.exposure.ExposureForExchange(leg.Exchange).Add(notional)
		if exchExposure.GreaterThan(m.limits.MaxPositionPerExchangeUSD) {
			headroom := m.limits.MaxPositionPerExchangeUSD.Sub(m.exposure.ExposureForExchange(leg.Exchange))
			if reduced, ok := reduceToHeadroom(notional, headroom); ok {
				notional = decimal.Min(notional, reduced)
				continue
			}
			return types.RiskDecision{Approved: false, Reason: "max_position_per_exchange_exceeded"}
		}
	}

	total := m.exposure.TotalExposure().Add(notional)
	if total.GreaterThan(m.limits.MaxTotalExposureUSD) {
		headroom := m.limits.MaxTotalExposureUSD.Sub(m.exposure.TotalExposure())
		reduced, ok := reduceToHeadroom(notional, headroom)
		if !ok {
			return types.RiskDecision{Approved: false, Reason: "max_total_exposure_exceeded"}
		}
		notional = decimal.Min(notional, reduced)
	}

	warningLine := m.limits.MaxTotalExposureUSD.Mul(m.limits.WarningThresholdPct).Div(decimal.NewFromInt(100))
	if total.GreaterThan(warningLine) {
		log.Warn().
			Str("signal_id", signal.ID.String()).
			Str("total_exposure", total.String()).
			Msg("exposure crossed warning threshold")
	}

	return types.RiskDecision{Approved: true, AdjustedNotionalUSD: notional}
}

// reduceToHeadroom returns the requested notional capped at headroom,
// rejecting if headroom is below an economic minimum ($10).
func reduceToHeadroom(requested, headroom decimal.Decimal) (decimal.Decimal, bool) {
	economicMin := decimal.NewFromInt(10)
	if headroom.LessThan(economicMin) {
		return decimal.Zero, false
	}
	return decimal.Min(requested, headroom), true
}

// --- Stage 2: Drawdown Monitor ---

func (m *Manager) checkDrawdown() types.RiskDecision {
	m.mu.Lock()
	defer m.mu.Unlock()

	equity := m.exposure.CurrentEquity()
	if equity.GreaterThan(m.hwm) {
		m.hwm = equity
	}

	if m.hwm.IsZero() {
		return types.RiskDecision{Approved: true}
	}

	drawdownPct := m.hwm.Sub(equity).Div(m.hwm).Mul(decimal.NewFromInt(100))
	drawdownF, _ := drawdownPct.Float64()
	metrics.DrawdownPct.Set(drawdownF)
	if drawdownPct.GreaterThanOrEqual(m.limits.MaxDrawdownPct) {
		return types.RiskDecision{Approved: false, Reason: "max_drawdown_exceeded"}
	}

	if !m.limits.MaxDailyLossUSD.IsZero() && m.dailyPnL.LessThanOrEqual(m.limits.MaxDailyLossUSD.Neg()) {
		return types.RiskDecision{Approved: false, Reason: "max_daily_loss_usd_exceeded"}
	}
	if !m.limits.MaxDailyLossPct.IsZero() && !m.startEquity.IsZero() {
		dailyLossPct := m.dailyPnL.Div(m.startEquity).Mul(decimal.NewFromInt(100))
		if dailyLossPct.LessThanOrEqual(m.limits.MaxDailyLossPct.Neg()) {
			return types.RiskDecision{Approved: false, Reason: "max_daily_loss_pct_exceeded"}
		}
	}

	return types.RiskDecision{Approved: true}
}

func (m *Manager) rollDayIfNeeded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	today := dayBucket(time.Now())
	if today.After(m.dayStart) {
		m.dayStart = today
		m.dailyPnL = decimal.Zero
		m.startEquity = m.exposure.CurrentEquity()
	}
}

// RecordPnL feeds a closed trade's realized PnL back into the daily
// counter and the consecutive-loss circuit breaker.
func (m *Manager) RecordPnL(pnl decimal.Decimal) {
	m.mu.Lock()
	m.dailyPnL = m.dailyPnL.Add(pnl)
	m.mu.Unlock()

	m.breaker.record(pnl, m.limits.ConsecutiveLossLimit, m.limits.CooldownMinutes)
}

func (b *consecutiveLossBreaker) record(pnl decimal.Decimal, limit, cooldownMinutes int) {
	if pnl.LessThanOrEqual(decimal.Zero) {
		b.state.ConsecutiveLosses++
		if b.state.ConsecutiveLosses >= limit && b.state.TrippedAt == nil {
			now := time.Now()
			cooldown := now.Add(time.Duration(cooldownMinutes) * time.Minute)
			b.state.TrippedAt = &now
			b.state.CooldownUntil = &cooldown
			log.Error().Int("consecutive_losses", b.state.ConsecutiveLosses).Msg("circuit breaker tripped")
		}
		return
	}
	b.state.ConsecutiveLosses = 0
}

// ResetBreaker is the operator reset control-surface action.
func (m *Manager) ResetBreaker() {
	m.breaker.state = types.CircuitState{}
}

// BreakerState exposes the current state for metrics/dashboard.
func (m *Manager) BreakerState() types.CircuitState {
	return m.breaker.state
}

// --- Stage 3: Anomaly Detector ---

func (m *Manager) checkAnomaly(signal *types.Signal) types.RiskDecision {
	if m.prices == nil {
		return types.RiskDecision{Approved: true}
	}

	for _, leg := range signal.Legs {
		if median, ok := m.prices.MedianPrice(leg.Symbol); ok && !median.IsZero() {
			deviation := leg.TargetPrice.Sub(median).Abs().Div(median).Mul(decimal.NewFromInt(100))
			if deviation.GreaterThan(m.limits.PriceDeviationThresholdPct) {
				return types.RiskDecision{Approved: false, Reason: "price_deviation"}
			}
		}

		if change, ok := m.prices.RecentPriceChangePct(leg.Exchange, leg.Symbol, 10*time.Second); ok {
			if change.Abs().GreaterThan(m.limits.FlashCrashPct) {
				return types.RiskDecision{Approved: false, Reason: "flash_crash"}
			}
		}
	}

	if signal.GrossSpreadPct.GreaterThan(m.limits.MaxSpreadPct) {
		return types.RiskDecision{Approved: false, Reason: "max_spread_exceeded"}
	}

	if len(signal.Legs) == 2 {
		mean, stddev, ok := m.prices.SpreadStats(signal.Legs[0].Exchange, signal.Legs[1].Exchange, signal.Legs[0].Symbol)
		if ok && !stddev.IsZero() {
			zScore := signal.GrossSpreadPct.Sub(mean).Div(stddev).Abs()
			threshold := decimal.NewFromFloat(m.limits.SpreadStdThreshold.InexactFloat64())
			if zScore.GreaterThan(threshold) {
				return types.RiskDecision{Approved: false, Reason: "spread_std_exceeded"}
			}
		}
	}

	return types.RiskDecision{Approved: true}
}

// --- Stage 4: Circuit Breaker ---

func (m *Manager) checkCircuitBreaker(executionMode string, signal *types.Signal) types.RiskDecision {
	m.mu.Lock()
	tripped := m.breaker.state.TrippedAt != nil
	cooldownUntil := m.breaker.state.CooldownUntil
	m.mu.Unlock()

	if tripped && cooldownUntil != nil && time.Now().After(*cooldownUntil) {
		m.mu.Lock()
		m.breaker.state = types.CircuitState{}
		m.mu.Unlock()
		tripped = false
		log.Info().Msg("circuit breaker cooldown elapsed, resuming")
	}

	if !tripped {
		return types.RiskDecision{Approved: true, AdjustedNotionalUSD: signal.NotionalUSD}
	}

	if executionMode == "paper" {
		log.Info().Str("signal_id", signal.ID.String()).Msg("paper mode: would reject on tripped circuit breaker")
		return types.RiskDecision{Approved: true, AdjustedNotionalUSD: signal.NotionalUSD}
	}

	return types.RiskDecision{Approved: false, Reason: "circuit_breaker_tripped"}
}

// DrawdownFromCalculator converts a CalculateDrawdown result
// (float64, legacy from the dashboard/reporting path) into the decimal
// percentage this manager's checkDrawdown expects.
func DrawdownFromCalculator(currentDD float64) decimal.Decimal {
	if math.IsNaN(currentDD) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(currentDD * 100)
}
