package detector

import (
	"github.com/cryptoarb/arbot/internal/types"
	"github.com/shopspring/decimal"
)

// Sizer computes the target notional and per-leg max quantity for a
// candidate opportunity.
type Sizer struct {
	MaxPositionPerCoinUSD decimal.Decimal
	MinDepthUSD           decimal.Decimal
}

// TargetNotional starts at min(max_position_per_coin_usd, min_depth_usd*10)
// and is reduced to the shallower side's available depth if necessary.
func (s Sizer) TargetNotional(asksA, bidsB []types.PriceLevel, refPrice decimal.Decimal) decimal.Decimal {
	ceiling := decimal.Min(s.MaxPositionPerCoinUSD, s.MinDepthUSD.Mul(decimal.NewFromInt(10)))

	depthA := depthUSD(asksA, refPrice)
	depthB := depthUSD(bidsB, refPrice)
	shallow := decimal.Min(depthA, depthB)

	return decimal.Min(ceiling, shallow)
}

// LegMaxQty converts a notional amount into a quantity at the given price.
func (s Sizer) LegMaxQty(notional, price decimal.Decimal) decimal.Decimal {
	if price.IsZero() {
		return decimal.Zero
	}
	return notional.Div(price)
}
