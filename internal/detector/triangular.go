package detector

import (
	"fmt"
	"time"

	"github.com/cryptoarb/arbot/internal/marketstate"
	"github.com/cryptoarb/arbot/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Hop is one leg of a declared triangular cycle, e.g. BTC/USDT bought with
// USDT. Side is fixed by the path declaration, not derived at runtime.
type Hop struct {
	Symbol string
	Side   types.OrderSide
}

// Path is a three-leg cycle on a single exchange that must return to its
// starting asset. Validated at load time for path closure.
type Path struct {
	Exchange string
	Hops     [3]Hop
}

// ValidateClosed checks that chaining the three hops' base/quote assets
// returns to the asset the cycle started on, rejecting ambiguous paths
// rather than guessing hop direction.
func (p Path) ValidateClosed() error {
	asset, err := startingAsset(p.Hops[0])
	if err != nil {
		return err
	}
	start := asset

	for i, hop := range p.Hops {
		base, quote, err := splitSymbol(hop.Symbol)
		if err != nil {
			return fmt.Errorf("path hop %d: %w", i, err)
		}

		var next string
		switch {
		case hop.Side == types.SideBuy && quote == asset:
			next = base
		case hop.Side == types.SideSell && base == asset:
			next = quote
		default:
			return fmt.Errorf("path hop %d (%s %s): does not consume asset %s", i, hop.Side, hop.Symbol, asset)
		}
		asset = next
	}

	if asset != start {
		return fmt.Errorf("path does not close: started on %s, ended on %s", start, asset)
	}
	return nil
}

func startingAsset(h Hop) (string, error) {
	base, quote, err := splitSymbol(h.Symbol)
	if err != nil {
		return "", err
	}
	if h.Side == types.SideBuy {
		return quote, nil
	}
	return base, nil
}

func splitSymbol(symbol string) (base, quote string, err error) {
	for i := 0; i < len(symbol); i++ {
		if symbol[i] == '/' {
			return symbol[:i], symbol[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("symbol %q is not in BASE/QUOTE form", symbol)
}

// TriangularConfig holds detector.triangular from config.
type TriangularConfig struct {
	Enabled      bool
	MinProfitPct decimal.Decimal
	Paths        []Path
}

// TriangularDetector evaluates each configured cycle's product of effective
// rates net of taker fees.
type TriangularDetector struct {
	cfg    TriangularConfig
	market *marketstate.State
	fee    FeeLookup
	sizer  Sizer
}

// BuildPaths derives every closed three-leg cycle reachable from the
// configured symbol list on a single exchange. It tries each ordered triple
// of distinct symbols under each side pattern in hopSideCombos and keeps only the
// ones ValidateClosed accepts, so a symbol list missing the cross pair a
// cycle needs (e.g. ETH/BTC alongside BTC/USDT and ETH/USDT) simply yields
// no path for that triple rather than a malformed one.
func BuildPaths(exchange string, symbols []string) []Path {
	var paths []Path
	for i := 0; i < len(symbols); i++ {
		for j := 0; j < len(symbols); j++ {
			if j == i {
				continue
			}
			for k := 0; k < len(symbols); k++ {
				if k == i || k == j {
					continue
				}
				for _, sides := range hopSideCombos {
					p := Path{
						Exchange: exchange,
						Hops: [3]Hop{
							{Symbol: symbols[i], Side: sides[0]},
							{Symbol: symbols[j], Side: sides[1]},
							{Symbol: symbols[k], Side: sides[2]},
						},
					}
					if err := p.ValidateClosed(); err == nil {
						paths = append(paths, p)
					}
				}
			}
		}
	}
	return paths
}

var hopSideCombos = [][3]types.OrderSide{
	{types.SideBuy, types.SideBuy, types.SideSell},
	{types.SideBuy, types.SideSell, types.SideSell},
	{types.SideSell, types.SideBuy, types.SideBuy},
	{types.SideSell, types.SideSell, types.SideBuy},
}

// NewTriangularDetector wires a detector against the shared Market State.
// Paths failing ValidateClosed are dropped with a logged warning rather
// than causing startup failure, since a single bad path shouldn't disable
// the others.
func NewTriangularDetector(cfg TriangularConfig, market *marketstate.State, fee FeeLookup, sizer Sizer) *TriangularDetector {
	valid := cfg.Paths[:0]
	for _, p := range cfg.Paths {
		if err := p.ValidateClosed(); err != nil {
			log.Warn().Str("exchange", p.Exchange).Err(err).Msg("triangular path rejected at load")
			continue
		}
		valid = append(valid, p)
	}
	cfg.Paths = valid

	return &TriangularDetector{cfg: cfg, market: market, fee: fee, sizer: sizer}
}

// Scan evaluates every configured path once.
func (d *TriangularDetector) Scan() []*types.Signal {
	if !d.cfg.Enabled {
		return nil
	}

	var signals []*types.Signal
	for _, p := range d.cfg.Paths {
		if s := d.evaluate(p); s != nil {
			signals = append(signals, s)
		}
	}
	return signals
}

func (d *TriangularDetector) evaluate(p Path) *types.Signal {
	feeRate := decimal.Zero
	if d.fee != nil {
		feeRate = d.fee(p.Exchange)
	}

	cycleReturn := decimal.NewFromInt(1)
	legs := make([]types.Leg, 0, 3)
	oldestTop := time.Now()

	for _, hop := range p.Hops {
		top, ok := d.market.Snapshot(p.Exchange, hop.Symbol)
		if !ok {
			return nil
		}
		if top.EventTS.Before(oldestTop) {
			oldestTop = top.EventTS
		}

		var rate decimal.Decimal
		var price decimal.Decimal
		if hop.Side == types.SideBuy {
			price = top.BestAsk
			rate = decimal.NewFromInt(1).Div(price)
		} else {
			price = top.BestBid
			rate = price
		}
		rate = rate.Mul(decimal.NewFromInt(1).Sub(feeRate))
		cycleReturn = cycleReturn.Mul(rate)

		legs = append(legs, types.Leg{
			Exchange:    p.Exchange,
			Symbol:      hop.Symbol,
			Side:        hop.Side,
			TargetPrice: price,
		})
	}

	threshold := decimal.NewFromInt(1).Add(d.cfg.MinProfitPct.Div(decimal.NewFromInt(100)))
	if cycleReturn.LessThan(threshold) {
		return nil
	}

	targetNotional := d.sizer.MaxPositionPerCoinUSD
	for i := range legs {
		legs[i].MaxQty = d.sizer.LegMaxQty(targetNotional, legs[i].TargetPrice)
	}

	netPct := cycleReturn.Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100))

	signal := &types.Signal{
		ID:              uuid.New(),
		Strategy:        types.StrategyTriangular,
		Legs:            legs,
		GrossSpreadPct:  netPct,
		NetSpreadPct:    netPct,
		EstimatedPnLUSD: cycleReturn.Sub(decimal.NewFromInt(1)).Mul(targetNotional),
		NotionalUSD:     targetNotional,
		DetectedTS:      oldestTop,
		Status:          types.SignalDetected,
		Metadata:        map[string]string{"exchange": p.Exchange},
	}

	log.Debug().
		Str("exchange", p.Exchange).
		Str("cycle_return", cycleReturn.String()).
		Msg("triangular candidate qualifies")

	return signal
}
