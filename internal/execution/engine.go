// Package execution submits the two legs of an approved Signal, tracks
// order state to a terminal outcome, and reconciles fills. Paper and
// Live share the same Engine and OutcomeReconciler; only leg submission
// differs, via the exchange.Connector each leg's exchange resolves to.
package execution

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cryptoarb/arbot/internal/arberr"
	"github.com/cryptoarb/arbot/internal/db"
	"github.com/cryptoarb/arbot/internal/exchange"
	"github.com/cryptoarb/arbot/internal/ledger"
	"github.com/cryptoarb/arbot/internal/metrics"
	"github.com/cryptoarb/arbot/internal/types"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// HaltSwitch is a shared flag the control surface trips to stop the engine
// from submitting any new orders, without tearing down connectors or
// losing track of already-open orders (see Engine.CancelAll).
type HaltSwitch struct {
	halted atomic.Bool
}

// Halt stops new order submission.
func (h *HaltSwitch) Halt() { h.halted.Store(true) }

// Resume allows order submission again.
func (h *HaltSwitch) Resume() { h.halted.Store(false) }

// Halted reports the current state.
func (h *HaltSwitch) Halted() bool { return h.halted.Load() }

// Mode selects which of the three execution strategies an Engine runs
// as. Backtest is driven by the historical tick replay harness
// (pkg/backtest) through the same Connector/Engine contract; it is not a
// distinct code path here.
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// Connectors resolves an exchange name to its Connector, shared by every
// pipeline stage that needs to reach an exchange.
type Connectors interface {
	Get(exchange string) (exchange.Connector, bool)
}

// Engine submits both legs of an approved Signal concurrently, tracks them
// to a terminal state, and reconciles the outcome.
type Engine struct {
	mode         Mode
	connectors   Connectors
	ledger       *ledger.Ledger
	exposure     *ledger.Exposure
	db           *db.DB
	orderTimeout time.Duration
	maxLatency   time.Duration
	onPnL        func(decimal.Decimal)
	halt         *HaltSwitch

	openMu sync.Mutex
	open   map[string]openOrder // orderID -> exchange, for emergency-stop cancellation
}

type openOrder struct {
	exchange string
	orderID  string
}

// New constructs an Engine for the given mode. halt may be nil, in which
// case the engine never refuses submission on its own.
func New(mode Mode, connectors Connectors, l *ledger.Ledger, exposure *ledger.Exposure, database *db.DB, orderTimeout, maxLatency time.Duration, onPnL func(decimal.Decimal), halt *HaltSwitch) *Engine {
	return &Engine{
		mode:         mode,
		connectors:   connectors,
		ledger:       l,
		exposure:     exposure,
		open:         make(map[string]openOrder),
		db:           database,
		orderTimeout: orderTimeout,
		maxLatency:   maxLatency,
		onPnL:        onPnL,
		halt:         halt,
	}
}

// legResult is the terminal outcome of submitting and tracking one leg.
type legResult struct {
	leg   types.Leg
	order *types.Order
	err   error
}

// Execute submits every leg of the signal concurrently, shares a single
// deadline (max_latency_ms) across them, and reconciles the outcome.
func (e *Engine) Execute(ctx context.Context, signal *types.Signal, decision types.RiskDecision) (*Outcome, error) {
	if e.halt != nil && e.halt.Halted() {
		return nil, fmt.Errorf("execution engine halted")
	}

	deadline, cancel := context.WithTimeout(ctx, e.maxLatency)
	defer cancel()

	results := make(chan legResult, len(signal.Legs))
	for _, leg := range signal.Legs {
		leg := leg
		go func() {
			order, err := e.submitLeg(deadline, signal, leg, decision)
			results <- legResult{leg: leg, order: order, err: err}
		}()
	}

	outcomes := make([]legResult, 0, len(signal.Legs))
	for range signal.Legs {
		outcomes = append(outcomes, <-results)
	}

	return e.reconcile(ctx, signal, outcomes)
}

func (e *Engine) submitLeg(ctx context.Context, signal *types.Signal, leg types.Leg, decision types.RiskDecision) (*types.Order, error) {
	conn, ok := e.connectors.Get(leg.Exchange)
	if !ok {
		return nil, fmt.Errorf("no connector configured for exchange %s", leg.Exchange)
	}

	qty := leg.MaxQty
	if !decision.AdjustedNotionalUSD.IsZero() && !decision.AdjustedNotionalUSD.Equal(signal.NotionalUSD) {
		ratio := decision.AdjustedNotionalUSD.Div(signal.NotionalUSD)
		qty = qty.Mul(ratio)
	}

	orderType := types.OrderTypeIOC
	if e.mode == ModePaper {
		orderType = types.OrderTypeMarket
	}

	spec := exchange.LegSpec{
		Symbol: leg.Symbol,
		Side:   leg.Side,
		Type:   orderType,
		Qty:    types.PriceLevel{Price: leg.TargetPrice, Qty: qty},
	}

	submitStart := time.Now()
	order, err := conn.PlaceOrder(ctx, spec)
	if err != nil {
		log.Warn().Err(err).Str("exchange", leg.Exchange).Str("symbol", leg.Symbol).Msg("leg submission failed")
		metrics.ExchangeErrors.WithLabelValues(leg.Exchange, string(arberr.Classify(err))).Inc()
		return nil, arberr.Wrap(arberr.Classify(err), signal.ID.String(), err)
	}
	metrics.OrderLatency.WithLabelValues(leg.Exchange).Observe(float64(time.Since(submitStart).Milliseconds()))
	order.SignalID = signal.ID
	e.registerOpen(order)
	return order, nil
}

func (e *Engine) registerOpen(order *types.Order) {
	if order.ExchangeID == "" {
		return
	}
	e.openMu.Lock()
	e.open[order.ID.String()] = openOrder{exchange: order.Exchange, orderID: order.ExchangeID}
	e.openMu.Unlock()
}

func (e *Engine) deregisterOpen(order *types.Order) {
	e.openMu.Lock()
	delete(e.open, order.ID.String())
	e.openMu.Unlock()
}

// Halt stops this engine from accepting new Execute calls immediately.
func (e *Engine) Halt() {
	if e.halt != nil {
		e.halt.Halt()
	}
}

// Resume allows Execute calls again.
func (e *Engine) Resume() {
	if e.halt != nil {
		e.halt.Resume()
	}
}

// CancelAll submits a cancellation for every order the engine currently
// considers open, for use by the emergency-stop control operation. It
// returns one error per order that could not be confirmed cancelled
// within ctx's deadline; the caller is expected to pass a context bounded
// to the 10 second emergency-stop budget.
func (e *Engine) CancelAll(ctx context.Context) []error {
	e.openMu.Lock()
	snapshot := make([]openOrder, 0, len(e.open))
	for _, o := range e.open {
		snapshot = append(snapshot, o)
	}
	e.openMu.Unlock()

	var errs []error
	for _, o := range snapshot {
		conn, ok := e.connectors.Get(o.exchange)
		if !ok {
			errs = append(errs, fmt.Errorf("no connector for %s, cannot cancel order %s", o.exchange, o.orderID))
			continue
		}
		if _, err := conn.CancelOrder(ctx, o.orderID); err != nil {
			errs = append(errs, fmt.Errorf("cancel %s on %s: %w", o.orderID, o.exchange, err))
		}
	}
	return errs
}

// TrackToTerminal polls an order until it reaches a terminal state or
// order_timeout elapses, at which point it submits a cancellation and
// treats the order as Cancelled locally. Live connectors that also expose
// a user-data stream short-circuit this by delivering terminal states
// faster than the poll interval.
func (e *Engine) TrackToTerminal(ctx context.Context, conn exchange.Connector, order *types.Order) *types.Order {
	defer e.deregisterOpen(order)

	deadline := time.Now().Add(e.orderTimeout)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		if order.State.IsTerminal() {
			return order
		}
		if time.Now().After(deadline) {
			if _, err := conn.CancelOrder(ctx, order.ExchangeID); err != nil {
				log.Warn().Err(err).Str("order_id", order.ID.String()).Msg("cancel after order_timeout failed")
			}
			order.State = types.OrderCancelled
			return order
		}
		select {
		case <-ctx.Done():
			order.State = types.OrderCancelled
			return order
		case <-ticker.C:
		}
	}
}
