package alerts

import (
	"context"
	"sync"

	"github.com/cryptoarb/arbot/internal/metrics"
	"golang.org/x/time/rate"
)

// Throttle wraps an Alerter and coalesces repeated alerts of the same
// category within a window, so a flapping connector or a sustained
// anomaly doesn't flood the delivery channel with near-duplicate alerts.
// Category defaults to the alert title, since titles are drawn from a
// bounded set of call sites, not arbitrary free text.
type Throttle struct {
	next   Alerter
	window rate.Limit

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewThrottle wraps next, allowing at most one alert per category every
// window's worth of time (window is expressed as events per second, same
// convention as rate.Limit; use rate.Every(d) to build one from a
// duration).
func NewThrottle(next Alerter, window rate.Limit) *Throttle {
	return &Throttle{next: next, window: window, limiters: make(map[string]*rate.Limiter)}
}

// Send drops the alert if an identical-category alert already passed
// through within the current window, otherwise forwards it.
func (t *Throttle) Send(ctx context.Context, alert Alert) error {
	category := alert.Title
	if c, ok := alert.Metadata["category"].(string); ok && c != "" {
		category = c
	}

	if !t.allow(category) {
		metrics.AlertsSuppressed.WithLabelValues(category).Inc()
		return nil
	}
	return t.next.Send(ctx, alert)
}

func (t *Throttle) allow(category string) bool {
	t.mu.Lock()
	limiter, ok := t.limiters[category]
	if !ok {
		limiter = rate.NewLimiter(t.window, 1)
		t.limiters[category] = limiter
	}
	t.mu.Unlock()

	return limiter.Allow()
}
