package exchange

import (
	"context"
)

// Exchange is the wire-level order interface BinanceExchange implements;
// Connector wraps it with the market-data and balance methods the
// arbitrage pipeline needs.
type Exchange interface {
	// PlaceOrder places a new order
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResponse, error)

	// CancelOrder cancels an existing order
	CancelOrder(ctx context.Context, orderID string) (*Order, error)

	// GetOrder retrieves order details
	GetOrder(ctx context.Context, orderID string) (*Order, error)

	// GetOrderFills retrieves all fills for an order
	GetOrderFills(ctx context.Context, orderID string) ([]Fill, error)

	// SetMarketPrice sets the current market price for a symbol (sim exchange only)
	SetMarketPrice(symbol string, price float64)
}
