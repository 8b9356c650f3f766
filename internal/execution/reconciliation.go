package execution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cryptoarb/arbot/internal/db"
	"github.com/cryptoarb/arbot/internal/exchange"
	"github.com/cryptoarb/arbot/internal/metrics"
	"github.com/cryptoarb/arbot/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// OutcomeKind classifies how a signal's legs settled.
type OutcomeKind string

const (
	OutcomeBothFilled         OutcomeKind = "both_filled"
	OutcomePartialImbalance   OutcomeKind = "partial_imbalance_hedged"
	OutcomeOneFilledOneFailed OutcomeKind = "one_filled_one_failed_hedged"
	OutcomeBothFailed         OutcomeKind = "both_failed"
)

// Outcome is the settled result of executing one Signal.
type Outcome struct {
	Kind        OutcomeKind
	Signal      *types.Signal
	Orders      []*types.Order
	HedgeOrders []*types.Order
	RealizedPnL decimal.Decimal
}

// reconcile tracks every leg to a terminal state, classifies the outcome,
// flattens any naked exposure left by a partial or one-sided fill, then
// feeds the realized PnL to the ledger and risk manager.
func (e *Engine) reconcile(ctx context.Context, signal *types.Signal, legs []legResult) (*Outcome, error) {
	orders := make([]*types.Order, 0, len(legs))
	for _, lr := range legs {
		if lr.err != nil || lr.order == nil {
			continue
		}
		conn, ok := e.connectors.Get(lr.leg.Exchange)
		if !ok {
			continue
		}
		orders = append(orders, e.TrackToTerminal(ctx, conn, lr.order))
	}

	// Any leg whose submission errored outright never produced an order;
	// represent it as a zero-fill failed order so outcome classification
	// below sees a uniform []*types.Order.
	for _, lr := range legs {
		if lr.err != nil {
			orders = append(orders, &types.Order{
				Exchange: lr.leg.Exchange,
				Symbol:   lr.leg.Symbol,
				Side:     lr.leg.Side,
				State:    types.OrderFailed,
			})
		}
	}

	outcome := &Outcome{Signal: signal, Orders: orders}

	filled := filledOrders(orders)
	failed := countFailed(orders)

	switch {
	case len(filled) == len(orders) && fillImbalance(orders).IsZero():
		// every leg filled and, for two-leg signals, matching quantity.
		outcome.Kind = OutcomeBothFilled
		outcome.RealizedPnL = realizedPnL(orders)

	case len(filled) == 0:
		outcome.Kind = OutcomeBothFailed
		outcome.RealizedPnL = decimal.Zero

	case failed == 0:
		// both legs produced fills but at mismatched quantities.
		outcome.Kind = OutcomePartialImbalance
		outcome.RealizedPnL = realizedPnL(orders)
		if hedge, err := e.hedgeImbalance(ctx, filled[0], fillImbalance(orders)); err == nil && hedge != nil {
			outcome.HedgeOrders = append(outcome.HedgeOrders, hedge)
		}

	default:
		// at least one leg filled, at least one leg failed/cancelled outright.
		outcome.Kind = OutcomeOneFilledOneFailed
		outcome.RealizedPnL = realizedPnL(orders)
		if hedge, err := e.hedgeFlatten(ctx, filled[0]); err == nil && hedge != nil {
			outcome.HedgeOrders = append(outcome.HedgeOrders, hedge)
		}
	}

	e.applyToBooks(orders, outcome)
	e.persist(ctx, signal, outcome)

	if e.ledger != nil {
		e.ledger.RecordRealizedPnL(outcome.RealizedPnL)
	}
	if e.onPnL != nil {
		e.onPnL(outcome.RealizedPnL)
	}

	metrics.SignalsExecuted.WithLabelValues(string(signal.Strategy), string(outcome.Kind)).Inc()
	metrics.RealizedPnLUSD.Add(mustFloat64(outcome.RealizedPnL))

	return outcome, nil
}

func mustFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func filledOrders(orders []*types.Order) []*types.Order {
	out := make([]*types.Order, 0, len(orders))
	for _, o := range orders {
		if o.State == types.OrderFilled || o.State == types.OrderPartiallyFilled {
			out = append(out, o)
		}
	}
	return out
}

func countFailed(orders []*types.Order) int {
	n := 0
	for _, o := range orders {
		if o.State == types.OrderFailed || o.State == types.OrderCancelled {
			n++
		}
	}
	return n
}

// fillImbalance is the absolute difference between the first and second
// leg's filled quantity; zero when both legs filled the same quantity.
func fillImbalance(orders []*types.Order) decimal.Decimal {
	if len(orders) < 2 {
		return decimal.Zero
	}
	diff := orders[0].FilledQty.Sub(orders[1].FilledQty)
	if diff.IsNegative() {
		return diff.Neg()
	}
	return diff
}

// realizedPnL computes sell_notional - buy_notional across every order;
// fees are not deducted.
func realizedPnL(orders []*types.Order) decimal.Decimal {
	pnl := decimal.Zero
	for _, o := range orders {
		notional := o.FilledQty.Mul(o.FilledPrice)
		switch o.Side {
		case types.SideSell:
			pnl = pnl.Add(notional)
		case types.SideBuy:
			pnl = pnl.Sub(notional)
		}
	}
	return pnl
}

// hedgeImbalance submits an immediate counter-order on the already-filled
// side's exchange, sized to the unmatched quantity, to close a partial
// imbalance between two legs.
func (e *Engine) hedgeImbalance(ctx context.Context, filledLeg *types.Order, imbalance decimal.Decimal) (*types.Order, error) {
	return e.hedge(ctx, filledLeg, imbalance)
}

// hedgeFlatten submits a full counter-order on the filled exchange to
// flatten the entire position when the other leg failed outright.
func (e *Engine) hedgeFlatten(ctx context.Context, filledLeg *types.Order) (*types.Order, error) {
	return e.hedge(ctx, filledLeg, filledLeg.FilledQty)
}

func (e *Engine) hedge(ctx context.Context, filledLeg *types.Order, qty decimal.Decimal) (*types.Order, error) {
	conn, ok := e.connectors.Get(filledLeg.Exchange)
	if !ok {
		return nil, fmt.Errorf("no connector for hedge on %s", filledLeg.Exchange)
	}
	counterSide := types.SideSell
	if filledLeg.Side == types.SideSell {
		counterSide = types.SideBuy
	}
	spec := exchange.LegSpec{
		Symbol: filledLeg.Symbol,
		Side:   counterSide,
		Type:   types.OrderTypeIOC,
		Qty:    types.PriceLevel{Qty: qty},
	}
	order, err := conn.PlaceOrder(ctx, spec)
	if err != nil {
		log.Error().Err(err).Str("exchange", filledLeg.Exchange).Str("symbol", filledLeg.Symbol).
			Msg("hedge order failed, naked exposure remains open")
		return nil, err
	}
	e.registerOpen(order)
	log.Warn().Str("exchange", filledLeg.Exchange).Str("symbol", filledLeg.Symbol).
		Str("qty", qty.String()).Msg("submitted hedge order to flatten naked exposure")
	return e.TrackToTerminal(ctx, conn, order), nil
}

// applyToBooks records every filled order (legs and hedges) against the
// ledger, crediting/debiting base and quote assets per fill.
func (e *Engine) applyToBooks(orders []*types.Order, outcome *Outcome) {
	if e.ledger == nil {
		return
	}
	for _, o := range append(append([]*types.Order{}, orders...), outcome.HedgeOrders...) {
		if o.FilledQty.IsZero() {
			continue
		}
		base, quote, err := splitSymbol(o.Symbol)
		if err != nil {
			log.Warn().Err(err).Str("symbol", o.Symbol).Msg("cannot apply fill to ledger, unparseable symbol")
			continue
		}
		fee := o.FilledQty.Mul(o.FilledPrice).Mul(decimal.NewFromFloat(0.001))
		if err := e.ledger.ApplyFill(o.Exchange, base, quote, o.Side, o.FilledQty, o.FilledPrice, fee, quote); err != nil {
			log.Error().Err(err).Str("order_id", o.ID.String()).Msg("ledger rejected fill")
		}
	}
}

// persist writes the settled signal and each order leg to the database.
func (e *Engine) persist(ctx context.Context, signal *types.Signal, outcome *Outcome) {
	if e.db == nil {
		return
	}
	status := db.SignalStatusExecuted
	if outcome.Kind == OutcomeBothFailed {
		status = db.SignalStatusMissed
	}
	pnl, _ := outcome.RealizedPnL.Float64()
	now := time.Now()
	if err := e.db.UpdateSignalOutcome(ctx, signal.ID, status, pnl, now); err != nil {
		log.Error().Err(err).Str("signal_id", signal.ID.String()).Msg("failed to persist signal outcome")
	}

	for _, o := range append(append([]*types.Order{}, outcome.Orders...), outcome.HedgeOrders...) {
		reqPrice, _ := o.RequestedPrice.Float64()
		filledPrice, _ := o.FilledPrice.Float64()
		reqQty, _ := o.RequestedQty.Float64()
		filledQty, _ := o.FilledQty.Float64()
		t := &db.ArbTrade{
			ID:             uuid.New(),
			SignalID:       signal.ID,
			Exchange:       o.Exchange,
			Symbol:         o.Symbol,
			Side:           string(o.Side),
			OrderType:      string(o.Type),
			RequestedQty:   reqQty,
			FilledQty:      filledQty,
			RequestedPrice: reqPrice,
			FilledPrice:    filledPrice,
			Status:         arbTradeStatus(o.State),
			ExecutionMode:  string(e.mode),
			CreatedAt:      o.CreatedAt,
			FilledAt:       o.FilledAt,
		}
		if err := e.db.InsertArbTrade(ctx, t); err != nil {
			log.Error().Err(err).Str("signal_id", signal.ID.String()).Msg("failed to persist trade leg")
		}
	}
}

// arbTradeStatus maps a domain OrderState onto the persisted trade status
// vocabulary, which uses PARTIAL rather than PARTIALLY_FILLED.
func arbTradeStatus(s types.OrderState) db.ArbTradeStatus {
	switch s {
	case types.OrderFilled:
		return db.ArbTradeStatusFilled
	case types.OrderPartiallyFilled:
		return db.ArbTradeStatusPartial
	case types.OrderCancelled:
		return db.ArbTradeStatusCancelled
	case types.OrderFailed:
		return db.ArbTradeStatusFailed
	default:
		return db.ArbTradeStatusPending
	}
}

// splitSymbol divides a "BASE/QUOTE" symbol into its two assets.
func splitSymbol(symbol string) (base, quote string, err error) {
	parts := strings.SplitN(symbol, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed symbol %q, expected BASE/QUOTE", symbol)
	}
	return parts[0], parts[1], nil
}
