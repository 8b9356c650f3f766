// Package types holds the core data model shared across the arbitrage
// pipeline: order books, signals, risk decisions, orders, fills, balances
// and the circuit breaker state. Every price, quantity, fee, and PnL field
// is a shopspring/decimal.Decimal rather than a float to keep arithmetic
// exact across the many leg computations a single signal touches.
package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Strategy identifies which detector produced a Signal.
type Strategy string

const (
	StrategySpatial    Strategy = "spatial"
	StrategyTriangular Strategy = "triangular"
)

// OrderSide is the direction of a leg or order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderType is the execution style requested for a leg.
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeIOC    OrderType = "IOC"
	OrderTypeMarket OrderType = "MARKET"
)

// OrderState is the lifecycle state of a submitted order.
type OrderState string

const (
	OrderPending         OrderState = "PENDING"
	OrderOpen            OrderState = "OPEN"
	OrderFilled          OrderState = "FILLED"
	OrderPartiallyFilled OrderState = "PARTIALLY_FILLED"
	OrderCancelled       OrderState = "CANCELLED"
	OrderFailed          OrderState = "FAILED"
)

// IsTerminal reports whether the order will never change state again.
func (s OrderState) IsTerminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderFailed:
		return true
	default:
		return false
	}
}

// SignalStatus tracks a Signal from detection through settlement.
type SignalStatus string

const (
	SignalDetected SignalStatus = "Detected"
	SignalExecuted SignalStatus = "Executed"
	SignalMissed   SignalStatus = "Missed"
	SignalRejected SignalStatus = "Rejected"
)

// PriceLevel is one row of an order book side.
type PriceLevel struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// OrderBook is the canonical, exchange-agnostic order book for one
// (exchange, symbol) pair. Bids are sorted descending by price, asks
// ascending. Each OrderBook is exclusively owned by the connector that
// wrote it; consumers see immutable snapshots (see Snapshot).
type OrderBook struct {
	Exchange  string
	Symbol    string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Sequence  int64
	EventTS   time.Time
	IngressTS time.Time
}

// Valid reports whether the book satisfies the normalization invariant:
// best bid below best ask, at least one level on each side.
func (b *OrderBook) Valid() bool {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return false
	}
	return b.Bids[0].Price.LessThan(b.Asks[0].Price)
}

// TopOfBook is the derived best-bid/best-ask view of an OrderBook.
type TopOfBook struct {
	Exchange    string
	Symbol      string
	BestBid     decimal.Decimal
	BestBidQty  decimal.Decimal
	BestAsk     decimal.Decimal
	BestAskQty  decimal.Decimal
	EventTS     time.Time
	IngressTS   time.Time
	SeqVersion  int64
}

// TopOfBookFrom derives a TopOfBook from a normalized OrderBook.
func TopOfBookFrom(b *OrderBook) TopOfBook {
	return TopOfBook{
		Exchange:   b.Exchange,
		Symbol:     b.Symbol,
		BestBid:    b.Bids[0].Price,
		BestBidQty: b.Bids[0].Qty,
		BestAsk:    b.Asks[0].Price,
		BestAskQty: b.Asks[0].Qty,
		EventTS:    b.EventTS,
		IngressTS:  b.IngressTS,
		SeqVersion: b.Sequence,
	}
}

// LatencyMS returns ingress-minus-event latency in milliseconds.
func (t TopOfBook) LatencyMS() int64 {
	return t.IngressTS.Sub(t.EventTS).Milliseconds()
}

// Leg is one side of a Signal: a symbol/exchange/side/price/qty the
// execution engine must submit as an order.
type Leg struct {
	Exchange     string
	Symbol       string
	Side         OrderSide
	TargetPrice  decimal.Decimal
	MaxQty       decimal.Decimal
}

// Signal is an emitted arbitrage opportunity, one or more legs, awaiting
// risk approval and execution.
type Signal struct {
	ID              uuid.UUID
	Strategy        Strategy
	Legs            []Leg
	GrossSpreadPct  decimal.Decimal
	NetSpreadPct    decimal.Decimal
	EstimatedPnLUSD decimal.Decimal
	NotionalUSD     decimal.Decimal
	DetectedTS      time.Time
	ExecutedTS      *time.Time
	Status          SignalStatus
	Metadata        map[string]string
}

// RiskDecision is the transient verdict produced by the risk pipeline for
// one Signal.
type RiskDecision struct {
	Approved            bool
	Reason              string
	AdjustedNotionalUSD decimal.Decimal
}

// Order is one submitted leg of a Signal.
type Order struct {
	ID             uuid.UUID
	SignalID       uuid.UUID
	Exchange       string
	Symbol         string
	Side           OrderSide
	Type           OrderType
	RequestedQty   decimal.Decimal
	RequestedPrice decimal.Decimal
	FilledQty      decimal.Decimal
	FilledPrice    decimal.Decimal
	State          OrderState
	ExchangeID     string
	CreatedAt      time.Time
	FilledAt       *time.Time
}

// Remaining is the unfilled quantity still outstanding on the order.
func (o *Order) Remaining() decimal.Decimal {
	return o.RequestedQty.Sub(o.FilledQty)
}

// Fill is one append-only execution event against an Order.
type Fill struct {
	OrderID         uuid.UUID
	ExchangeFillID  string
	Qty             decimal.Decimal
	Price           decimal.Decimal
	Fee             decimal.Decimal
	FeeAsset        string
	IsMaker         bool
	TS              time.Time
}

// Balance is an exchange-scoped asset balance.
type Balance struct {
	Exchange string
	Asset    string
	Free     decimal.Decimal
	Locked   decimal.Decimal
}

// Total is free plus locked.
func (b Balance) Total() decimal.Decimal {
	return b.Free.Add(b.Locked)
}

// Position is a derived cross-exchange exposure figure, computed from
// balances and open orders; it is never stored independently.
type Position struct {
	Asset             string
	TotalFreeUSD      decimal.Decimal
	TotalExposureUSD  decimal.Decimal
}

// CircuitState is the mutable state of the consecutive-loss circuit
// breaker inside the risk manager. It is distinct from the ambient
// gobreaker-backed breakers guarding the database and alert-delivery
// paths (internal/risk.CircuitBreakerManager).
type CircuitState struct {
	ConsecutiveLosses int
	TrippedAt         *time.Time
	CooldownUntil     *time.Time
}

// Tripped reports whether the breaker is currently open.
func (c CircuitState) Tripped() bool {
	return c.TrippedAt != nil
}

// Trade is the persisted outward record for one submitted order.
type Trade struct {
	ID             uuid.UUID
	SignalID       uuid.UUID
	Exchange       string
	Symbol         string
	Side           OrderSide
	OrderType      OrderType
	RequestedQty   decimal.Decimal
	FilledQty      decimal.Decimal
	RequestedPrice decimal.Decimal
	FilledPrice    decimal.Decimal
	Fee            decimal.Decimal
	FeeAsset       string
	Status         string
	ExecutionMode  string
	LatencyMS      int64
	CreatedAt      time.Time
	FilledAt       *time.Time
}
