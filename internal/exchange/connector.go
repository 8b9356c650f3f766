package exchange

import (
	"context"

	"github.com/cryptoarb/arbot/internal/types"
)

// ConnState is a position in the connector state machine:
// Disconnected -> Connecting -> Subscribed -> Streaming -> {Reconnecting | Closing}.
type ConnState string

const (
	StateDisconnected ConnState = "Disconnected"
	StateConnecting   ConnState = "Connecting"
	StateSubscribed   ConnState = "Subscribed"
	StateStreaming    ConnState = "Streaming"
	StateReconnecting ConnState = "Reconnecting"
	StateClosing      ConnState = "Closing"
	StateDegraded     ConnState = "Degraded"
)

// LegSpec describes one order the execution engine wants a connector to
// place, independent of the connector's wire format.
type LegSpec struct {
	Symbol   string
	Side     types.OrderSide
	Type     types.OrderType
	Qty      types.PriceLevel // reuse PriceLevel{Price,Qty}: Price is the limit/IOC price, Qty the quantity
	Deadline context.Context
}

// Connector is the capability set every exchange implementation conforms
// to. There is no inheritance beyond conforming to this interface; wire
// format differences are entirely internal to each implementation.
type Connector interface {
	// Name returns the exchange identifier used as a config/label key.
	Name() string

	// Connect establishes the websocket session and REST credentials.
	Connect(ctx context.Context) error

	// Subscribe starts streaming order-book and trade updates for the
	// given symbols at the requested depth, publishing normalized
	// TopOfBook/OrderBook updates to the configured Market State.
	Subscribe(ctx context.Context, symbols []string, depth int) error

	// PlaceOrder submits one leg and returns the resulting domain Order.
	PlaceOrder(ctx context.Context, spec LegSpec) (*types.Order, error)

	// CancelOrder cancels an open order by its internal id.
	CancelOrder(ctx context.Context, orderID string) (bool, error)

	// GetBalances returns current free/locked balances keyed by asset.
	GetBalances(ctx context.Context) (map[string]types.Balance, error)

	// State reports the connector's current state-machine position.
	State() ConnState

	// Close tears down the websocket session and releases resources.
	Close() error
}
