package marketstate

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cryptoarb/arbot/internal/types"
	"github.com/shopspring/decimal"
)

// sample is one timestamped mid-price or spread observation kept for the
// rolling windows Observer answers queries from.
type sample struct {
	ts    time.Time
	value decimal.Decimal
}

// Observer answers the risk pipeline's PriceObserver questions (median
// cross-exchange price, recent price change, spread stability) by
// recording a bounded history of mid prices off the same ChangeEvent
// stream Subscribe already publishes, rather than polling Snapshot on a
// timer. Anomaly detection reads a snapshot of this history; it never
// blocks the writer side of State.
type Observer struct {
	state     *State
	exchanges []string

	mu      sync.Mutex
	prices  map[string][]sample // key: exchange|symbol
	spreads map[string][]sample // key: exchangeA|exchangeB|symbol

	maxSamples int
}

// NewObserver starts recording mid-price history for the given exchanges by
// subscribing to state's change feed. Each query caller supplies its own
// lookback window; samples are kept by count (maxSamples) rather than age.
func NewObserver(state *State, exchanges []string) *Observer {
	o := &Observer{
		state:      state,
		exchanges:  exchanges,
		prices:     make(map[string][]sample),
		spreads:    make(map[string][]sample),
		maxSamples: 512,
	}
	ch, _ := state.Subscribe(256)
	go o.run(ch)
	return o
}

func (o *Observer) run(ch <-chan ChangeEvent) {
	for ev := range ch {
		top, ok := o.state.Snapshot(ev.Exchange, ev.Symbol)
		if !ok {
			continue
		}
		o.recordPrice(ev.Exchange, ev.Symbol, top)
		o.recordSpreads(ev.Symbol, top)
	}
}

func mid(top types.TopOfBook) (decimal.Decimal, bool) {
	if top.BestBid.IsZero() || top.BestAsk.IsZero() {
		return decimal.Zero, false
	}
	return top.BestBid.Add(top.BestAsk).Div(decimal.NewFromInt(2)), true
}

func (o *Observer) recordPrice(exchange, symbol string, top types.TopOfBook) {
	m, ok := mid(top)
	if !ok {
		return
	}
	k := key(exchange, symbol)
	o.mu.Lock()
	o.prices[k] = appendBounded(o.prices[k], sample{ts: top.EventTS, value: m}, o.maxSamples)
	o.mu.Unlock()
}

func (o *Observer) recordSpreads(symbol string, top types.TopOfBook) {
	m, ok := mid(top)
	if !ok {
		return
	}
	for _, other := range o.exchanges {
		if other == top.Exchange {
			continue
		}
		otherTop, ok := o.state.Snapshot(other, symbol)
		if !ok {
			continue
		}
		otherMid, ok := mid(otherTop)
		if !ok {
			continue
		}
		spread := m.Sub(otherMid).Abs()
		k := spreadKey(top.Exchange, other, symbol)
		o.mu.Lock()
		o.spreads[k] = appendBounded(o.spreads[k], sample{ts: top.EventTS, value: spread}, o.maxSamples)
		o.mu.Unlock()
	}
}

func spreadKey(a, b, symbol string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b + "|" + symbol
}

func appendBounded(s []sample, v sample, max int) []sample {
	s = append(s, v)
	if len(s) > max {
		s = s[len(s)-max:]
	}
	return s
}

// MedianPrice returns the median of the latest known mid price across every
// exchange carrying symbol.
func (o *Observer) MedianPrice(symbol string) (decimal.Decimal, bool) {
	var mids []decimal.Decimal
	for _, ex := range o.exchanges {
		top, ok := o.state.Snapshot(ex, symbol)
		if !ok {
			continue
		}
		if m, ok := mid(top); ok {
			mids = append(mids, m)
		}
	}
	if len(mids) == 0 {
		return decimal.Zero, false
	}
	sort.Slice(mids, func(i, j int) bool { return mids[i].LessThan(mids[j]) })
	n := len(mids)
	if n%2 == 1 {
		return mids[n/2], true
	}
	return mids[n/2-1].Add(mids[n/2]).Div(decimal.NewFromInt(2)), true
}

// RecentPriceChangePct compares the current mid price against the oldest
// sample still inside lookback, for flash-crash detection.
func (o *Observer) RecentPriceChangePct(exchange, symbol string, lookback time.Duration) (decimal.Decimal, bool) {
	k := key(exchange, symbol)
	o.mu.Lock()
	samples := append([]sample(nil), o.prices[k]...)
	o.mu.Unlock()
	if len(samples) == 0 {
		return decimal.Zero, false
	}

	cutoff := time.Now().Add(-lookback)
	var oldest sample
	found := false
	for _, s := range samples {
		if s.ts.After(cutoff) {
			oldest = s
			found = true
			break
		}
	}
	if !found {
		return decimal.Zero, false
	}

	latest := samples[len(samples)-1]
	if oldest.value.IsZero() {
		return decimal.Zero, false
	}
	pct := latest.value.Sub(oldest.value).Div(oldest.value).Mul(decimal.NewFromInt(100))
	return pct, true
}

// SpreadStats returns the mean and population standard deviation of the
// recorded mid-price spread between two exchanges for symbol, used to flag
// a spread that has widened beyond its normal range.
func (o *Observer) SpreadStats(exchangeA, exchangeB, symbol string) (mean, stddev decimal.Decimal, ok bool) {
	k := spreadKey(exchangeA, exchangeB, symbol)
	o.mu.Lock()
	samples := append([]sample(nil), o.spreads[k]...)
	o.mu.Unlock()
	if len(samples) < 2 {
		return decimal.Zero, decimal.Zero, false
	}

	sum := 0.0
	for _, s := range samples {
		f, _ := s.value.Float64()
		sum += f
	}
	avg := sum / float64(len(samples))

	var variance float64
	for _, s := range samples {
		f, _ := s.value.Float64()
		variance += (f - avg) * (f - avg)
	}
	variance /= float64(len(samples))

	return decimal.NewFromFloat(avg), decimal.NewFromFloat(math.Sqrt(variance)), true
}
