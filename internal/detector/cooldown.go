package detector

import (
	"sync"
	"time"
)

// CooldownTracker implements CooldownCheck by remembering the last time a
// given (exchangeA, exchangeB, symbol) pair was dispatched for execution,
// and reporting it as still cooling down within window. This stops a
// single persistent spread from re-triggering execution on every scan tick
// once it has already been acted on.
type CooldownTracker struct {
	window time.Duration

	mu       sync.Mutex
	lastFire map[string]time.Time
}

// NewCooldownTracker builds a tracker with the given cooldown window.
func NewCooldownTracker(window time.Duration) *CooldownTracker {
	return &CooldownTracker{window: window, lastFire: make(map[string]time.Time)}
}

func pairKey(exchangeA, exchangeB, symbol string) string {
	if exchangeA > exchangeB {
		exchangeA, exchangeB = exchangeB, exchangeA
	}
	return exchangeA + "|" + exchangeB + "|" + symbol
}

// Blocked satisfies CooldownCheck: true means the pair fired within window
// and should be skipped this scan.
func (c *CooldownTracker) Blocked(exchangeA, exchangeB, symbol string) bool {
	if c.window <= 0 {
		return false
	}
	k := pairKey(exchangeA, exchangeB, symbol)

	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.lastFire[k]
	return ok && time.Since(last) < c.window
}

// RecordFire marks the pair as just dispatched, starting a fresh cooldown.
func (c *CooldownTracker) RecordFire(exchangeA, exchangeB, symbol string) {
	k := pairKey(exchangeA, exchangeB, symbol)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastFire[k] = time.Now()
}
