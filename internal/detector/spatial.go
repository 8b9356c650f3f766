// Package detector implements the Spatial and Triangular opportunity
// detectors, subscribing to Market State change events and emitting
// Signal values.
package detector

import (
	"time"

	"github.com/cryptoarb/arbot/internal/marketstate"
	"github.com/cryptoarb/arbot/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// FeeLookup resolves the per-exchange taker fee rate, keyed by exchange
// name, used to net spreads and cycle returns.
type FeeLookup func(exchange string) decimal.Decimal

// CooldownCheck reports whether an (exchangeA, exchangeB, symbol) pair is
// currently under a per-pair cooldown because it was recently dispatched
// for execution (see CooldownTracker).
type CooldownCheck func(exchangeA, exchangeB, symbol string) bool

// SpatialConfig holds detector.spatial from config.
type SpatialConfig struct {
	Enabled       bool
	MinSpreadPct  decimal.Decimal
	MinDepthUSD   decimal.Decimal
	MaxLatencyMS  int64
}

// SpatialDetector enumerates ordered exchange pairs for each configured
// symbol and emits the single best-qualifying Signal per symbol per cycle.
type SpatialDetector struct {
	cfg       SpatialConfig
	market    *marketstate.State
	exchanges []string
	symbols   []string
	fee       FeeLookup
	cooldown  CooldownCheck
	sizer     Sizer
}

// NewSpatialDetector wires a detector against the shared Market State.
func NewSpatialDetector(cfg SpatialConfig, market *marketstate.State, exchanges, symbols []string, fee FeeLookup, cooldown CooldownCheck, sizer Sizer) *SpatialDetector {
	return &SpatialDetector{
		cfg:       cfg,
		market:    market,
		exchanges: exchanges,
		symbols:   symbols,
		fee:       fee,
		cooldown:  cooldown,
		sizer:     sizer,
	}
}

type candidate struct {
	signal  *types.Signal
	score   decimal.Decimal
}

// Scan runs one detection cycle across all configured symbols, returning at
// most one Signal per symbol (the tie-break winner among qualifying pairs).
func (d *SpatialDetector) Scan() []*types.Signal {
	if !d.cfg.Enabled {
		return nil
	}

	signals := make([]*types.Signal, 0, len(d.symbols))
	for _, symbol := range d.symbols {
		best := d.scanSymbol(symbol)
		if best != nil {
			signals = append(signals, best)
		}
	}
	return signals
}

func (d *SpatialDetector) scanSymbol(symbol string) *types.Signal {
	var winner *candidate

	for _, exA := range d.exchanges {
		for _, exB := range d.exchanges {
			if exA == exB {
				continue
			}
			if d.cooldown != nil && d.cooldown(exA, exB, symbol) {
				continue
			}

			topA, okA := d.market.Snapshot(exA, symbol)
			topB, okB := d.market.Snapshot(exB, symbol)
			if !okA || !okB {
				continue
			}

			c := d.evaluate(symbol, exA, exB, topA, topB)
			if c == nil {
				continue
			}
			if winner == nil || c.score.GreaterThan(winner.score) {
				winner = c
			}
		}
	}

	if winner == nil {
		return nil
	}
	return winner.signal
}

func (d *SpatialDetector) evaluate(symbol, exA, exB string, topA, topB types.TopOfBook) *candidate {
	if topA.BestAsk.IsZero() || topB.BestBid.IsZero() {
		return nil
	}

	grossSpreadPct := topB.BestBid.Sub(topA.BestAsk).Div(topA.BestAsk).Mul(decimal.NewFromInt(100))

	feeA := decimal.Zero
	feeB := decimal.Zero
	if d.fee != nil {
		feeA = d.fee(exA)
		feeB = d.fee(exB)
	}

	bookA, okA := d.market.BookSnapshot(exA, symbol)
	bookB, okB := d.market.BookSnapshot(exB, symbol)
	if !okA || !okB {
		return nil
	}

	targetNotional := d.sizer.TargetNotional(bookA.Asks, bookB.Bids, topA.BestAsk)
	slippageEst := estimateSlippage(bookA.Asks, bookB.Bids, targetNotional)

	netSpreadPct := grossSpreadPct.Sub(feeA.Mul(decimal.NewFromInt(100))).Sub(feeB.Mul(decimal.NewFromInt(100))).Sub(slippageEst)

	if netSpreadPct.LessThan(d.cfg.MinSpreadPct) {
		return nil
	}

	depthA := depthUSD(bookA.Asks, topA.BestAsk)
	depthB := depthUSD(bookB.Bids, topB.BestBid)
	availableDepth := decimal.Min(depthA, depthB)
	if availableDepth.LessThan(d.cfg.MinDepthUSD) {
		return nil
	}

	if latencyExceeds(topA, d.cfg.MaxLatencyMS) || latencyExceeds(topB, d.cfg.MaxLatencyMS) {
		return nil
	}

	maxQty := d.sizer.LegMaxQty(decimal.Min(availableDepth, targetNotional), topA.BestAsk)

	signal := &types.Signal{
		ID:             uuid.New(),
		Strategy:       types.StrategySpatial,
		GrossSpreadPct: grossSpreadPct,
		NetSpreadPct:   netSpreadPct,
		NotionalUSD:    decimal.Min(availableDepth, targetNotional),
		DetectedTS:     time.Now(),
		Status:         types.SignalDetected,
		Legs: []types.Leg{
			{Exchange: exA, Symbol: symbol, Side: types.SideBuy, TargetPrice: topA.BestAsk, MaxQty: maxQty},
			{Exchange: exB, Symbol: symbol, Side: types.SideSell, TargetPrice: topB.BestBid, MaxQty: maxQty},
		},
		Metadata: map[string]string{"buy_exchange": exA, "sell_exchange": exB},
	}
	signal.EstimatedPnLUSD = netSpreadPct.Div(decimal.NewFromInt(100)).Mul(signal.NotionalUSD)

	score := netSpreadPct.Mul(availableDepth)
	log.Debug().
		Str("symbol", symbol).
		Str("buy", exA).
		Str("sell", exB).
		Str("net_spread_pct", netSpreadPct.String()).
		Msg("spatial candidate qualifies")

	return &candidate{signal: signal, score: score}
}

func latencyExceeds(top types.TopOfBook, maxMS int64) bool {
	if maxMS <= 0 {
		return false
	}
	return top.LatencyMS() > maxMS
}

// depthUSD sums qty*price across levels at or better than the top price,
// stopping once the next level would be materially worse (a coarse depth
// proxy; the sizer walks the book precisely when computing fills).
func depthUSD(levels []types.PriceLevel, topPrice decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	tolerance := decimal.NewFromFloat(1.005) // within 0.5% of best price counts as "at or better"
	bound := topPrice.Mul(tolerance)
	lower := topPrice.Mul(decimal.NewFromFloat(0.995))
	for _, l := range levels {
		if l.Price.GreaterThan(bound) || l.Price.LessThan(lower) {
			break
		}
		total = total.Add(l.Qty.Mul(l.Price))
	}
	return total
}

// estimateSlippage approximates the percentage cost of walking both books
// to fill targetNotional, as a simple linear depth-consumption model.
func estimateSlippage(asks, bids []types.PriceLevel, targetNotional decimal.Decimal) decimal.Decimal {
	askImpact := slippageOneSide(asks, targetNotional)
	bidImpact := slippageOneSide(bids, targetNotional)
	return askImpact.Add(bidImpact)
}

func slippageOneSide(levels []types.PriceLevel, targetNotional decimal.Decimal) decimal.Decimal {
	if len(levels) == 0 || targetNotional.IsZero() {
		return decimal.Zero
	}
	remaining := targetNotional
	filledNotional := decimal.Zero
	filledQty := decimal.Zero
	topPrice := levels[0].Price

	for _, l := range levels {
		levelNotional := l.Qty.Mul(l.Price)
		takeNotional := decimal.Min(remaining, levelNotional)
		if takeNotional.IsZero() {
			break
		}
		filledNotional = filledNotional.Add(takeNotional)
		filledQty = filledQty.Add(takeNotional.Div(l.Price))
		remaining = remaining.Sub(takeNotional)
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
	}
	if filledQty.IsZero() {
		return decimal.Zero
	}
	avgPrice := filledNotional.Div(filledQty)
	return avgPrice.Sub(topPrice).Abs().Div(topPrice).Mul(decimal.NewFromInt(100))
}
