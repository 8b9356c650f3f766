// Package ledger tracks per-exchange balances and realized PnL in memory
// with durable append to Postgres. Risk reads a consistent snapshot on
// every call; Execution is the only writer.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/cryptoarb/arbot/internal/db"
	"github.com/cryptoarb/arbot/internal/metrics"
	"github.com/cryptoarb/arbot/internal/types"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Ledger is the single writer for balances and realized PnL; the risk
// manager's ExposureSource and PriceObserver interfaces are satisfied by
// wrapping a Ledger (see Exposure in this package).
type Ledger struct {
	mu sync.RWMutex

	balances map[string]types.Balance // key: exchange|asset
	realized decimal.Decimal
	db       *db.DB
}

func balanceKey(exchange, asset string) string { return exchange + "|" + asset }

// New creates an empty ledger; durable persistence is optional (nil db is
// valid for tests and backtests).
func New(database *db.DB) *Ledger {
	return &Ledger{
		balances: make(map[string]types.Balance),
		db:       database,
	}
}

// Seed sets a starting balance without going through a fill, used at
// startup to load exchange account balances.
func (l *Ledger) Seed(exchange, asset string, free, locked decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[balanceKey(exchange, asset)] = types.Balance{Exchange: exchange, Asset: asset, Free: free, Locked: locked}
}

// ApplyFill updates the balance for one side of a trade: buying increases
// the base asset and decreases the quote asset (minus fee); selling is the
// mirror. The caller is responsible for splitting symbol into base/quote.
func (l *Ledger) ApplyFill(exchange, baseAsset, quoteAsset string, side types.OrderSide, qty, price, fee decimal.Decimal, feeAsset string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	notional := qty.Mul(price)
	baseKey := balanceKey(exchange, baseAsset)
	quoteKey := balanceKey(exchange, quoteAsset)

	base := l.balances[baseKey]
	quote := l.balances[quoteKey]

	switch side {
	case types.SideBuy:
		base.Free = base.Free.Add(qty)
		quote.Free = quote.Free.Sub(notional)
	case types.SideSell:
		base.Free = base.Free.Sub(qty)
		quote.Free = quote.Free.Add(notional)
	}

	feeKey := balanceKey(exchange, feeAsset)
	feeBal := l.balances[feeKey]
	switch feeKey {
	case baseKey:
		base.Free = base.Free.Sub(fee)
	case quoteKey:
		quote.Free = quote.Free.Sub(fee)
	default:
		feeBal.Free = feeBal.Free.Sub(fee)
	}

	if base.Free.IsNegative() || quote.Free.IsNegative() {
		return invariantViolation("negative balance after fill")
	}

	base.Exchange, base.Asset = exchange, baseAsset
	quote.Exchange, quote.Asset = exchange, quoteAsset
	feeBal.Exchange, feeBal.Asset = exchange, feeAsset

	l.balances[feeKey] = feeBal
	l.balances[baseKey] = base
	l.balances[quoteKey] = quote
	return nil
}

func invariantViolation(msg string) error {
	return &ledgerError{msg: msg}
}

type ledgerError struct{ msg string }

func (e *ledgerError) Error() string { return e.msg }

// RecordRealizedPnL appends a realized PnL delta from a closed signal.
func (l *Ledger) RecordRealizedPnL(pnl decimal.Decimal) {
	l.mu.Lock()
	l.realized = l.realized.Add(pnl)
	l.mu.Unlock()
}

// RealizedPnL returns the cumulative realized PnL.
func (l *Ledger) RealizedPnL() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.realized
}

// Snapshot returns a copy of all balances for dashboard/portfolio use.
func (l *Ledger) Snapshot() []types.Balance {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.Balance, 0, len(l.balances))
	for _, b := range l.balances {
		out = append(out, b)
	}
	return out
}

// PersistSnapshot appends a portfolio snapshot row per balance. usdValue is
// supplied by the caller since the ledger itself has no price source.
func (l *Ledger) PersistSnapshot(ctx context.Context, usdValue map[string]decimal.Decimal) {
	if l.db == nil {
		return
	}
	now := time.Now()
	for _, b := range l.Snapshot() {
		val := usdValue[b.Asset]
		if err := l.db.InsertPortfolioSnapshot(ctx, now, b.Exchange, b.Asset, b.Total(), val); err != nil {
			log.Error().Err(err).Str("exchange", b.Exchange).Str("asset", b.Asset).Msg("failed to persist portfolio snapshot")
		}
	}
}

// Exposure adapts a Ledger (plus a USD price source) to the risk package's
// ExposureSource interface without the risk package importing ledger
// directly, keeping the dependency direction leaf-to-root.
type Exposure struct {
	L            *Ledger
	USDPrice     func(asset string) decimal.Decimal
	StartEquity  decimal.Decimal
	PerCoin      map[string]decimal.Decimal // live running exposure, updated by execution
	PerExchange  map[string]decimal.Decimal
	TotalUSD     decimal.Decimal
	mu           sync.RWMutex
	sessionStart time.Time
}

// NewExposure builds a risk-facing exposure view over a ledger.
func NewExposure(l *Ledger, usdPrice func(string) decimal.Decimal) *Exposure {
	return &Exposure{
		L:            l,
		USDPrice:     usdPrice,
		PerCoin:      make(map[string]decimal.Decimal),
		PerExchange:  make(map[string]decimal.Decimal),
		sessionStart: time.Now(),
	}
}

func (e *Exposure) ExposureForCoin(asset string) decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.PerCoin[asset]
}

func (e *Exposure) ExposureForExchange(exchange string) decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.PerExchange[exchange]
}

func (e *Exposure) TotalExposure() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.TotalUSD
}

// CurrentEquity sums every balance's free+locked value converted to USD.
func (e *Exposure) CurrentEquity() decimal.Decimal {
	total := decimal.Zero
	for _, b := range e.L.Snapshot() {
		price := e.USDPrice(b.Asset)
		total = total.Add(b.Total().Mul(price))
	}
	return total
}

// AddExposure is called by the execution engine when an order is opened,
// and with a negative delta when it closes, keeping the Position Limits
// stage's headroom checks current.
func (e *Exposure) AddExposure(asset, exchange string, deltaUSD decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.PerCoin[asset] = e.PerCoin[asset].Add(deltaUSD)
	e.PerExchange[exchange] = e.PerExchange[exchange].Add(deltaUSD)
	e.TotalUSD = e.TotalUSD.Add(deltaUSD)

	coinF, _ := e.PerCoin[asset].Float64()
	metrics.ExposureUSD.WithLabelValues("coin", asset).Set(coinF)
	exchangeF, _ := e.PerExchange[exchange].Float64()
	metrics.ExposureUSD.WithLabelValues("exchange", exchange).Set(exchangeF)
}
