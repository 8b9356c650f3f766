package execution

import (
	"sync"

	"github.com/cryptoarb/arbot/internal/types"
	"github.com/rs/zerolog/log"
)

// FillTracker deduplicates fill events arriving from two sources for the
// same order — a REST poll and a user-data websocket stream — by
// exchange_fill_id, and folds each new fill into the order's cumulative
// filled qty/price.
type FillTracker struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewFillTracker returns an empty tracker.
func NewFillTracker() *FillTracker {
	return &FillTracker{seen: make(map[string]struct{})}
}

// Apply folds fill into order if its ExchangeFillID has not been recorded
// before, updating the order's weighted-average fill price and state. It
// reports whether the fill was new.
func (t *FillTracker) Apply(order *types.Order, fill types.Fill) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if fill.ExchangeFillID != "" {
		if _, dup := t.seen[fill.ExchangeFillID]; dup {
			log.Debug().Str("fill_id", fill.ExchangeFillID).Msg("duplicate fill event discarded")
			return false
		}
		t.seen[fill.ExchangeFillID] = struct{}{}
	}

	prevQty := order.FilledQty
	prevNotional := prevQty.Mul(order.FilledPrice)
	newNotional := fill.Qty.Mul(fill.Price)

	order.FilledQty = prevQty.Add(fill.Qty)
	if !order.FilledQty.IsZero() {
		order.FilledPrice = prevNotional.Add(newNotional).Div(order.FilledQty)
	}

	switch {
	case order.FilledQty.GreaterThanOrEqual(order.RequestedQty):
		order.State = types.OrderFilled
	case order.FilledQty.IsPositive():
		order.State = types.OrderPartiallyFilled
	}
	ts := fill.TS
	order.FilledAt = &ts
	return true
}

// Forget drops dedup state for an order's fill IDs once it reaches a
// terminal state and has been persisted, bounding the tracker's memory.
func (t *FillTracker) Forget(fillIDs ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range fillIDs {
		delete(t.seen, id)
	}
}
