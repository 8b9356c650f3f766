package exchange

import (
	"sort"
	"time"

	"github.com/cryptoarb/arbot/internal/types"
	"github.com/shopspring/decimal"
)

// BookState tracks one (exchange, symbol) pair's local order-book copy so
// incremental updates can be applied level-by-level with a sequence check.
// Not safe for concurrent use; each connector owns one BookState per symbol
// on its own goroutine.
type BookState struct {
	Exchange string
	Symbol   string
	bids     map[string]decimal.Decimal // price string -> qty
	asks     map[string]decimal.Decimal
	lastSeq  int64
	synced   bool
}

// NewBookState creates an unsynced book; the next ApplySnapshot call
// establishes the baseline.
func NewBookState(exchange, symbol string) *BookState {
	return &BookState{
		Exchange: exchange,
		Symbol:   symbol,
		bids:     make(map[string]decimal.Decimal),
		asks:     make(map[string]decimal.Decimal),
	}
}

// ApplySnapshot replaces the entire local book. Idempotent: applying the
// same snapshot twice yields the same resulting OrderBook.
func (b *BookState) ApplySnapshot(seq int64, bids, asks []types.PriceLevel, eventTS time.Time) *types.OrderBook {
	b.bids = make(map[string]decimal.Decimal, len(bids))
	b.asks = make(map[string]decimal.Decimal, len(asks))
	for _, l := range bids {
		b.bids[l.Price.String()] = l.Qty
	}
	for _, l := range asks {
		b.asks[l.Price.String()] = l.Qty
	}
	b.lastSeq = seq
	b.synced = true
	return b.materialize(eventTS)
}

// ApplyUpdate applies an incremental diff. A zero quantity removes the
// level. Returns (book, resyncNeeded); resyncNeeded is true on a detected
// sequence gap, and the caller must request a fresh snapshot before
// trusting further updates.
func (b *BookState) ApplyUpdate(seq int64, bidUpdates, askUpdates []types.PriceLevel, eventTS time.Time) (*types.OrderBook, bool) {
	if !b.synced {
		return nil, true
	}
	if b.lastSeq != 0 && seq != b.lastSeq+1 {
		b.synced = false
		return nil, true
	}

	for _, l := range bidUpdates {
		applyLevel(b.bids, l)
	}
	for _, l := range askUpdates {
		applyLevel(b.asks, l)
	}
	b.lastSeq = seq
	return b.materialize(eventTS), false
}

func applyLevel(side map[string]decimal.Decimal, l types.PriceLevel) {
	if l.Qty.IsZero() {
		delete(side, l.Price.String())
		return
	}
	side[l.Price.String()] = l.Qty
}

func (b *BookState) materialize(eventTS time.Time) *types.OrderBook {
	now := time.Now()
	book := &types.OrderBook{
		Exchange:  b.Exchange,
		Symbol:    b.Symbol,
		Bids:      levelsFromMap(b.bids, true),
		Asks:      levelsFromMap(b.asks, false),
		Sequence:  b.lastSeq,
		EventTS:   eventTS,
		IngressTS: now,
	}
	if book.EventTS.IsZero() {
		book.EventTS = now
	}
	return book
}

func levelsFromMap(side map[string]decimal.Decimal, descending bool) []types.PriceLevel {
	levels := make([]types.PriceLevel, 0, len(side))
	for priceStr, qty := range side {
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			continue
		}
		levels = append(levels, types.PriceLevel{Price: price, Qty: qty})
	}
	sort.Slice(levels, func(i, j int) bool {
		if descending {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})
	return levels
}
