// Package ratelimit implements three outbound-call quota policies: weight,
// count, and token_bucket. A Limiter is built from one policy
// configuration. The exchange connectors in this module do not construct
// one, so their REST calls and socket writes are not gated by it.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Policy selects the quota algorithm for a Limiter.
type Policy string

const (
	PolicyWeight      Policy = "weight"
	PolicyCount       Policy = "count"
	PolicyTokenBucket Policy = "token_bucket"
)

// Config configures a Limiter. Window and Limit apply to weight/count
// policies; Capacity and RefillRate apply to token_bucket.
type Config struct {
	Policy     Policy
	Limit      int           // weight/count: max cost per Window
	Window     time.Duration // weight/count: rolling window
	Capacity   int           // token_bucket: bucket size
	RefillRate float64       // token_bucket: tokens/sec
}

// Limiter gates outbound calls under a Config. It is safe for concurrent
// use. Under token_bucket, waiters reserve tokens in the order they call
// Wait. Under weight and count, blocked waiters sleep and re-check the
// window independently, so the order in which they are admitted is not
// defined.
type Limiter struct {
	cfg     Config
	bucket  *rate.Limiter        // token_bucket policy
	window  *slidingWindowLimiter // weight/count policy
}

// New builds a Limiter for the given policy configuration.
func New(cfg Config) (*Limiter, error) {
	switch cfg.Policy {
	case PolicyTokenBucket:
		if cfg.Capacity <= 0 || cfg.RefillRate <= 0 {
			return nil, fmt.Errorf("ratelimit: token_bucket requires capacity and refill_rate > 0")
		}
		return &Limiter{cfg: cfg, bucket: rate.NewLimiter(rate.Limit(cfg.RefillRate), cfg.Capacity)}, nil
	case PolicyWeight, PolicyCount:
		if cfg.Limit <= 0 || cfg.Window <= 0 {
			return nil, fmt.Errorf("ratelimit: %s requires limit and window > 0", cfg.Policy)
		}
		return &Limiter{cfg: cfg, window: newSlidingWindowLimiter(cfg.Limit, cfg.Window)}, nil
	default:
		return nil, fmt.Errorf("ratelimit: unknown policy %q", cfg.Policy)
	}
}

// Wait blocks until capacity for cost is available or ctx is done. cost is
// the endpoint weight for the weight policy, ignored (always 1) for count
// and token_bucket.
func (l *Limiter) Wait(ctx context.Context, cost int) error {
	switch l.cfg.Policy {
	case PolicyTokenBucket:
		return l.bucket.Wait(ctx)
	case PolicyCount:
		return l.window.Wait(ctx, 1)
	case PolicyWeight:
		return l.window.Wait(ctx, cost)
	default:
		return fmt.Errorf("ratelimit: limiter not initialized")
	}
}

// slidingWindowLimiter enforces "sum of costs in a rolling window must not
// exceed limit" for the weight and count policies. x/time/rate only models
// token buckets, so this small sliding window is purpose-built.
type slidingWindowLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	events []weightedEvent
}

type weightedEvent struct {
	at   time.Time
	cost int
}

func newSlidingWindowLimiter(limit int, window time.Duration) *slidingWindowLimiter {
	return &slidingWindowLimiter{limit: limit, window: window}
}

func (w *slidingWindowLimiter) Wait(ctx context.Context, cost int) error {
	for {
		w.mu.Lock()
		now := time.Now()
		w.evict(now)

		used := 0
		for _, e := range w.events {
			used += e.cost
		}

		if used+cost <= w.limit {
			w.events = append(w.events, weightedEvent{at: now, cost: cost})
			w.mu.Unlock()
			return nil
		}

		// Sleep until the oldest event ages out of the window, then retry.
		var wait time.Duration
		if len(w.events) > 0 {
			wait = w.events[0].at.Add(w.window).Sub(now)
		} else {
			wait = time.Millisecond // cost alone exceeds limit; avoid busy loop
		}
		w.mu.Unlock()

		if wait <= 0 {
			wait = time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (w *slidingWindowLimiter) evict(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.events) && w.events[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.events = w.events[i:]
	}
}
