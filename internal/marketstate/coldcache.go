package marketstate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cryptoarb/arbot/internal/metrics"
	"github.com/cryptoarb/arbot/internal/types"
	"github.com/rs/zerolog/log"
)

// ColdCache durably mirrors top-of-book snapshots to Redis so a restarted
// process (or the dashboard, which never holds an in-process Snapshot) has
// something to read immediately, without sitting on the hot Publish path:
// writes are queued and flushed by a single background worker.
type ColdCache struct {
	rm  *metrics.RedisMetrics
	ttl time.Duration
	ch  chan types.TopOfBook
}

// NewColdCache wraps an instrumented Redis client. A nil client disables
// the cache entirely; Publish callers don't need to special-case it.
func NewColdCache(rm *metrics.RedisMetrics, ttl time.Duration) *ColdCache {
	if rm == nil {
		return nil
	}
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return &ColdCache{rm: rm, ttl: ttl, ch: make(chan types.TopOfBook, 1024)}
}

// enqueue drops the update rather than blocking the connector goroutine
// that called Publish when the worker is falling behind.
func (c *ColdCache) enqueue(top types.TopOfBook) {
	if c == nil {
		return
	}
	select {
	case c.ch <- top:
	default:
		log.Debug().Str("exchange", top.Exchange).Str("symbol", top.Symbol).
			Msg("cold cache queue full, dropping snapshot")
	}
}

// Run drains the queue into Redis until ctx is cancelled.
func (c *ColdCache) Run(ctx context.Context) {
	if c == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case top := <-c.ch:
			if err := c.set(ctx, top); err != nil {
				log.Warn().Err(err).Str("exchange", top.Exchange).Str("symbol", top.Symbol).
					Msg("failed to write cold cache snapshot")
			}
		}
	}
}

func (c *ColdCache) set(ctx context.Context, top types.TopOfBook) error {
	data, err := json.Marshal(top)
	if err != nil {
		return fmt.Errorf("marshal top of book: %w", err)
	}
	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return c.rm.Set(cacheCtx, c.buildKey(top.Exchange, top.Symbol), data, c.ttl)
}

// Get reads the last durably cached TopOfBook for (exchange, symbol),
// for restart recovery or a dashboard that has no live connector.
func (c *ColdCache) Get(ctx context.Context, exchange, symbol string) (types.TopOfBook, bool) {
	if c == nil {
		return types.TopOfBook{}, false
	}
	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	raw, err := c.rm.Get(cacheCtx, c.buildKey(exchange, symbol))
	if err != nil {
		return types.TopOfBook{}, false
	}
	var top types.TopOfBook
	if err := json.Unmarshal([]byte(raw), &top); err != nil {
		log.Warn().Err(err).Str("exchange", exchange).Str("symbol", symbol).
			Msg("failed to unmarshal cold cache snapshot")
		return types.TopOfBook{}, false
	}
	return top, true
}

// Health reports whether the underlying Redis connection is reachable.
func (c *ColdCache) Health(ctx context.Context) error {
	if c == nil {
		return nil
	}
	cacheCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.rm.Client().Ping(cacheCtx).Err()
}

func (c *ColdCache) buildKey(exchange, symbol string) string {
	return fmt.Sprintf("arbot:book:%s:%s", exchange, symbol)
}
