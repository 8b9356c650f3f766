package exchange

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cryptoarb/arbot/internal/marketstate"
	"github.com/cryptoarb/arbot/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// FeeSchedule is the maker/taker fee pair applied to a SimConnector fill,
// adapted from the paper-trading fee configuration the mock exchange used
// to hardcode per exchange.
type FeeSchedule struct {
	Maker decimal.Decimal
	Taker decimal.Decimal
}

// DefaultFeeSchedule mirrors Binance's spot default (10 bps each side).
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		Maker: decimal.NewFromFloat(0.001),
		Taker: decimal.NewFromFloat(0.001),
	}
}

// SimConnector is the Paper execution-mode Connector: it never talks to a
// real exchange, but fills orders by walking the real depth held in Market
// State, so paper PnL reflects actual book liquidity rather than a flat
// slippage formula.
type SimConnector struct {
	exchange string
	fees     FeeSchedule
	market   *marketstate.State

	mu      sync.RWMutex
	orders  map[uuid.UUID]*types.Order
	fills   map[uuid.UUID][]types.Fill
	balance map[string]types.Balance

	state atomic.Value
}

// NewSimConnector creates a paper connector labeled as the given exchange
// (so signals that route through it still carry a real exchange identity
// for reporting) backed by the shared market view.
func NewSimConnector(exchange string, fees FeeSchedule, market *marketstate.State) *SimConnector {
	c := &SimConnector{
		exchange: exchange,
		fees:     fees,
		market:   market,
		orders:   make(map[uuid.UUID]*types.Order),
		fills:    make(map[uuid.UUID][]types.Fill),
		balance:  make(map[string]types.Balance),
	}
	c.state.Store(StateDisconnected)
	return c
}

func (c *SimConnector) Name() string { return c.exchange }

func (c *SimConnector) State() ConnState { return c.state.Load().(ConnState) }

func (c *SimConnector) Connect(ctx context.Context) error {
	c.state.Store(StateStreaming)
	return nil
}

// Subscribe is a no-op: the SimConnector reads whatever the real connectors
// already published to the shared Market State for this exchange.
func (c *SimConnector) Subscribe(ctx context.Context, symbols []string, depth int) error {
	c.state.Store(StateSubscribed)
	c.state.Store(StateStreaming)
	return nil
}

// PlaceOrder fills against the current book snapshot: LIMIT/IOC legs walk
// the book up to the requested price, MARKET legs walk until quantity is
// satisfied or depth is exhausted.
func (c *SimConnector) PlaceOrder(ctx context.Context, spec LegSpec) (*types.Order, error) {
	book, ok := c.market.BookSnapshot(c.exchange, spec.Symbol)
	if !ok {
		return nil, fmt.Errorf("sim connector: no market data for %s/%s", c.exchange, spec.Symbol)
	}

	levels := book.Asks
	if spec.Side == types.SideSell {
		levels = book.Bids
	}

	filledQty, filledNotional := walkBook(levels, spec.Qty.Qty, spec.Type, spec.Qty.Price, spec.Side)

	now := time.Now()
	order := &types.Order{
		ID:             uuid.New(),
		Exchange:       c.exchange,
		Symbol:         spec.Symbol,
		Side:           spec.Side,
		Type:           spec.Type,
		RequestedQty:   spec.Qty.Qty,
		RequestedPrice: spec.Qty.Price,
		FilledQty:      filledQty,
		CreatedAt:      now,
	}

	switch {
	case filledQty.IsZero():
		order.State = types.OrderFailed
	case filledQty.Equal(spec.Qty.Qty):
		order.State = types.OrderFilled
		order.FilledAt = &now
	default:
		if spec.Type == types.OrderTypeIOC {
			order.State = types.OrderPartiallyFilled
			order.FilledAt = &now
		} else {
			order.State = types.OrderOpen
		}
	}

	if !filledQty.IsZero() {
		order.FilledPrice = filledNotional.Div(filledQty)
		fee := filledNotional.Mul(c.fees.Taker)
		c.mu.Lock()
		c.fills[order.ID] = append(c.fills[order.ID], types.Fill{
			OrderID: order.ID,
			Qty:     filledQty,
			Price:   order.FilledPrice,
			Fee:     fee,
			IsMaker: false,
			TS:      now,
		})
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.orders[order.ID] = order
	c.mu.Unlock()

	log.Debug().
		Str("exchange", c.exchange).
		Str("symbol", spec.Symbol).
		Str("state", string(order.State)).
		Str("filled_qty", filledQty.String()).
		Msg("sim connector order simulated")

	return order, nil
}

// walkBook consumes price levels from best to worst until target qty is
// reached, a limit price boundary is crossed, or depth runs out.
func walkBook(levels []types.PriceLevel, targetQty decimal.Decimal, orderType types.OrderType, limitPrice decimal.Decimal, side types.OrderSide) (decimal.Decimal, decimal.Decimal) {
	remaining := targetQty
	filledQty := decimal.Zero
	filledNotional := decimal.Zero

	for _, lvl := range levels {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		if orderType != types.OrderTypeMarket && !limitPrice.IsZero() {
			if side == types.SideBuy && lvl.Price.GreaterThan(limitPrice) {
				break
			}
			if side == types.SideSell && lvl.Price.LessThan(limitPrice) {
				break
			}
		}

		take := decimal.Min(remaining, lvl.Qty)
		filledQty = filledQty.Add(take)
		filledNotional = filledNotional.Add(take.Mul(lvl.Price))
		remaining = remaining.Sub(take)
	}

	return filledQty, filledNotional
}

func (c *SimConnector) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	id, err := uuid.Parse(orderID)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	order, ok := c.orders[id]
	if !ok {
		return false, fmt.Errorf("sim connector: order not found: %s", orderID)
	}
	if order.State.IsTerminal() {
		return false, nil
	}
	order.State = types.OrderCancelled
	return true, nil
}

func (c *SimConnector) GetBalances(ctx context.Context) (map[string]types.Balance, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]types.Balance, len(c.balance))
	for k, v := range c.balance {
		out[k] = v
	}
	return out, nil
}

// SeedBalance lets tests and the backtest harness initialize starting
// capital without routing through PlaceOrder.
func (c *SimConnector) SeedBalance(asset string, free decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balance[asset] = types.Balance{Exchange: c.exchange, Asset: asset, Free: free}
}

func (c *SimConnector) Close() error {
	c.state.Store(StateDisconnected)
	return nil
}

var _ Connector = (*SimConnector)(nil)
