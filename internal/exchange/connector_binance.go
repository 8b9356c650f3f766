package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/cryptoarb/arbot/internal/arberr"
	"github.com/cryptoarb/arbot/internal/marketstate"
	"github.com/cryptoarb/arbot/internal/types"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// BinanceConnector adapts the wire-level BinanceExchange (REST order
// placement, retry logic, user-data stream) to the Connector capability
// set, and adds the market-data order-book stream that the REST-only
// BinanceExchange never needed.
type BinanceConnector struct {
	rest *BinanceExchange

	market *marketstate.State
	books  map[string]*BookState
	booksM sync.Mutex

	state   atomic.Value // ConnState
	reconn  ReconnectPolicy
	wsConn  *websocket.Conn
	stop    chan struct{}
	wg      sync.WaitGroup
	symbols []string
	depth   int
}

// NewBinanceConnector wraps an existing BinanceExchange REST client and a
// shared Market State sink.
func NewBinanceConnector(rest *BinanceExchange, market *marketstate.State) *BinanceConnector {
	c := &BinanceConnector{
		rest:   rest,
		market: market,
		books:  make(map[string]*BookState),
		reconn: DefaultReconnectPolicy(),
		stop:   make(chan struct{}),
	}
	c.state.Store(StateDisconnected)
	return c
}

func (c *BinanceConnector) Name() string { return "binance" }

func (c *BinanceConnector) State() ConnState { return c.state.Load().(ConnState) }

func (c *BinanceConnector) setState(s ConnState) { c.state.Store(s) }

// Connect verifies REST credentials are usable before streaming begins.
func (c *BinanceConnector) Connect(ctx context.Context) error {
	c.setState(StateConnecting)
	if _, err := c.rest.client.NewServerTimeService().Do(ctx); err != nil {
		c.setState(StateDisconnected)
		return arberr.Wrap(arberr.Transient, "", fmt.Errorf("binance connect: %w", err))
	}
	return nil
}

// Subscribe opens the combined depth stream for the requested symbols and
// runs the normalization + resync loop until Close or a fatal error.
func (c *BinanceConnector) Subscribe(ctx context.Context, symbols []string, depth int) error {
	c.symbols = symbols
	c.depth = depth
	for _, sym := range symbols {
		c.booksM.Lock()
		c.books[strings.ToUpper(sym)] = NewBookState("binance", strings.ToUpper(sym))
		c.booksM.Unlock()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_ = RunWithReconnect(ctx, "binance-depth", &c.reconn, c.streamOnce, func() {
			c.setState(StateDegraded)
		})
	}()

	// Wait briefly for the first successful handshake before returning, so
	// callers can treat a Subscribe error as "never connected" rather than
	// racing the background goroutine.
	deadline := time.After(5 * time.Second)
	for {
		switch c.State() {
		case StateSubscribed, StateStreaming:
			return nil
		case StateDegraded:
			return fmt.Errorf("binance connector degraded before first subscription ack")
		}
		select {
		case <-deadline:
			return nil // proceed optimistically; reconnect loop keeps retrying
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (c *BinanceConnector) streamURL() string {
	streams := make([]string, 0, len(c.symbols))
	for _, s := range c.symbols {
		streams = append(streams, strings.ToLower(s)+"@depth@100ms")
	}
	u := url.URL{
		Scheme:   "wss",
		Host:     "stream.binance.com:9443",
		Path:     "/stream",
		RawQuery: "streams=" + strings.Join(streams, "/"),
	}
	return u.String()
}

type depthStreamEnvelope struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol        string     `json:"s"`
		FirstUpdateID int64      `json:"U"`
		FinalUpdateID int64      `json:"u"`
		Bids          [][]string `json:"b"`
		Asks          [][]string `json:"a"`
	} `json:"data"`
}

func (c *BinanceConnector) streamOnce(ctx context.Context) error {
	c.setState(StateConnecting)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.streamURL(), nil)
	if err != nil {
		return err
	}
	c.wsConn = conn
	defer conn.Close()

	if err := c.primeSnapshots(ctx); err != nil {
		return err
	}

	c.setState(StateSubscribed)
	c.setState(StateStreaming)
	c.reconn.Reset()

	lastMsg := time.Now()
	heartbeat := time.NewTicker(10 * time.Second)
	defer heartbeat.Stop()

	msgCh := make(chan []byte, 256)
	errCh := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			msgCh <- data
		}
	}()

	for {
		select {
		case <-ctx.Done():
			c.setState(StateClosing)
			return ctx.Err()
		case <-c.stop:
			c.setState(StateClosing)
			return nil
		case err := <-errCh:
			c.setState(StateReconnecting)
			return err
		case <-heartbeat.C:
			if time.Since(lastMsg) > 20*time.Second {
				c.setState(StateReconnecting)
				return fmt.Errorf("binance depth stream: missed heartbeat")
			}
		case data := <-msgCh:
			lastMsg = time.Now()
			c.handleDepthMessage(data)
		}
	}
}

func (c *BinanceConnector) primeSnapshots(ctx context.Context) error {
	for _, sym := range c.symbols {
		snap, err := c.rest.client.NewDepthService().Symbol(strings.ToUpper(sym)).Limit(c.depthOrDefault()).Do(ctx)
		if err != nil {
			return arberr.Wrap(arberr.Transient, "", err)
		}
		bids := bidsToLevels(snap.Bids)
		asks := asksToLevels(snap.Asks)

		c.booksM.Lock()
		bs := c.books[strings.ToUpper(sym)]
		c.booksM.Unlock()
		if bs == nil {
			continue
		}
		book := bs.ApplySnapshot(snap.LastUpdateID, bids, asks, time.Now())
		if book.Valid() {
			c.market.Publish(book)
		}
	}
	return nil
}

func (c *BinanceConnector) depthOrDefault() int {
	if c.depth <= 0 {
		return 20
	}
	return c.depth
}

func bidsToLevels(raw []binance.Bid) []types.PriceLevel {
	out := make([]types.PriceLevel, 0, len(raw))
	for _, b := range raw {
		price, err1 := decimal.NewFromString(b.Price)
		qty, err2 := decimal.NewFromString(b.Quantity)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, types.PriceLevel{Price: price, Qty: qty})
	}
	return out
}

func asksToLevels(raw []binance.Ask) []types.PriceLevel {
	out := make([]types.PriceLevel, 0, len(raw))
	for _, a := range raw {
		price, err1 := decimal.NewFromString(a.Price)
		qty, err2 := decimal.NewFromString(a.Quantity)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, types.PriceLevel{Price: price, Qty: qty})
	}
	return out
}

func (c *BinanceConnector) handleDepthMessage(data []byte) {
	var env depthStreamEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Msg("binance depth message decode failed")
		return
	}
	sym := strings.ToUpper(env.Data.Symbol)

	c.booksM.Lock()
	bs := c.books[sym]
	c.booksM.Unlock()
	if bs == nil {
		return
	}

	bidLevels := stringPairsToLevels(env.Data.Bids)
	askLevels := stringPairsToLevels(env.Data.Asks)

	book, resync := bs.ApplyUpdate(env.Data.FinalUpdateID, bidLevels, askLevels, time.Now())
	if resync {
		log.Warn().Str("symbol", sym).Msg("sequence gap detected, requesting resync")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.primeSnapshots(ctx)
		return
	}
	if book != nil && book.Valid() {
		c.market.Publish(book)
	}
}

func stringPairsToLevels(raw [][]string) []types.PriceLevel {
	out := make([]types.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) != 2 {
			continue
		}
		price, err1 := decimal.NewFromString(pair[0])
		qty, err2 := decimal.NewFromString(pair[1])
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, types.PriceLevel{Price: price, Qty: qty})
	}
	return out
}

// PlaceOrder submits a market or limit order via the wrapped REST client.
// IOC legs are sent as GTC limit orders: PlaceOrderRequest carries no
// time-in-force, so an unfilled remainder rests on the book until the
// engine cancels it after order_timeout.
func (c *BinanceConnector) PlaceOrder(ctx context.Context, spec LegSpec) (*types.Order, error) {
	req := PlaceOrderRequest{
		Symbol:   spec.Symbol,
		Side:     OrderSide(spec.Side),
		Type:     orderTypeToWire(spec.Type),
		Quantity: mustFloat(spec.Qty.Qty),
		Price:    mustFloat(spec.Qty.Price),
	}
	resp, err := c.rest.PlaceOrder(ctx, req)
	if err != nil {
		return nil, arberr.Wrap(classifyBinanceErr(err), "", err)
	}
	return &types.Order{
		ID:             uuid.New(),
		Exchange:       "binance",
		Symbol:         spec.Symbol,
		Side:           spec.Side,
		Type:           spec.Type,
		RequestedQty:   spec.Qty.Qty,
		RequestedPrice: spec.Qty.Price,
		State:          wireStatusToState(resp.Status),
		ExchangeID:     resp.OrderID,
		CreatedAt:      time.Now(),
	}, nil
}

func (c *BinanceConnector) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	_, err := c.rest.CancelOrder(ctx, orderID)
	if err != nil {
		return false, arberr.Wrap(classifyBinanceErr(err), orderID, err)
	}
	return true, nil
}

func (c *BinanceConnector) GetBalances(ctx context.Context) (map[string]types.Balance, error) {
	acct, err := c.rest.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, arberr.Wrap(arberr.Transient, "", err)
	}
	out := make(map[string]types.Balance, len(acct.Balances))
	for _, b := range acct.Balances {
		free, _ := decimal.NewFromString(b.Free)
		locked, _ := decimal.NewFromString(b.Locked)
		out[b.Asset] = types.Balance{Exchange: "binance", Asset: b.Asset, Free: free, Locked: locked}
	}
	return out, nil
}

func (c *BinanceConnector) Close() error {
	c.setState(StateClosing)
	close(c.stop)
	if c.wsConn != nil {
		_ = c.wsConn.Close()
	}
	c.wg.Wait()
	c.setState(StateDisconnected)
	return nil
}

func orderTypeToWire(t types.OrderType) OrderType {
	switch t {
	case types.OrderTypeMarket:
		return OrderTypeMarket
	default:
		return OrderTypeLimit
	}
}

func wireStatusToState(s OrderStatus) types.OrderState {
	switch s {
	case OrderStatusFilled:
		return types.OrderFilled
	case OrderStatusPartiallyFilled:
		return types.OrderPartiallyFilled
	case OrderStatusCancelled:
		return types.OrderCancelled
	case OrderStatusRejected:
		return types.OrderFailed
	case OrderStatusOpen:
		return types.OrderOpen
	default:
		return types.OrderPending
	}
}

func classifyBinanceErr(err error) arberr.Category {
	return arberr.Classify(err)
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

var _ Connector = (*BinanceConnector)(nil)
