package exchange

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/cryptoarb/arbot/internal/metrics"
	"github.com/rs/zerolog/log"
)

// ReconnectPolicy implements an exponential backoff schedule: base
// reconnect_delay_s, exponential up to 60s, jittered, marking the
// connector Degraded after max_reconnect_attempts consecutive failures.
type ReconnectPolicy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int

	attempts atomic.Int32
}

// DefaultReconnectPolicy returns the spec's documented defaults.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		BaseDelay:   5 * time.Second,
		MaxDelay:    60 * time.Second,
		MaxAttempts: 10,
	}
}

// NextDelay returns the backoff duration for the current attempt and
// increments the attempt counter. It reports degraded=true once
// MaxAttempts consecutive failures have been recorded.
func (p *ReconnectPolicy) NextDelay() (delay time.Duration, degraded bool) {
	n := p.attempts.Add(1)
	if int(n) > p.MaxAttempts {
		return 0, true
	}

	base := float64(p.BaseDelay) * float64(int64(1)<<uint(n-1))
	if base > float64(p.MaxDelay) {
		base = float64(p.MaxDelay)
	}
	jitter := base * (0.5 + rand.Float64()*0.5)
	return time.Duration(jitter), false
}

// Reset clears the attempt counter on a successful reconnect.
func (p *ReconnectPolicy) Reset() {
	p.attempts.Store(0)
}

// RunWithReconnect calls connect repeatedly, applying backoff between
// attempts, until it succeeds, ctx is cancelled, or the policy reports
// the connector as degraded. The onDegraded callback is invoked exactly
// once if the attempt budget is exhausted.
func RunWithReconnect(ctx context.Context, label string, policy *ReconnectPolicy, connect func(context.Context) error, onDegraded func()) error {
	firstAttempt := true
	for {
		if !firstAttempt {
			metrics.ConnectorReconnects.WithLabelValues(label).Inc()
		}
		firstAttempt = false

		err := connect(ctx)
		if err == nil {
			policy.Reset()
			metrics.ConnectorState.WithLabelValues(label, "connected").Set(1)
			metrics.ConnectorState.WithLabelValues(label, "degraded").Set(0)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay, degraded := policy.NextDelay()
		if degraded {
			log.Error().Str("connector", label).Int("max_attempts", policy.MaxAttempts).Msg("connector degraded after repeated reconnect failures")
			metrics.ConnectorState.WithLabelValues(label, "connected").Set(0)
			metrics.ConnectorState.WithLabelValues(label, "degraded").Set(1)
			if onDegraded != nil {
				onDegraded()
			}
			return err
		}

		log.Warn().Str("connector", label).Err(err).Dur("backoff", delay).Msg("reconnect attempt failed, backing off")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
