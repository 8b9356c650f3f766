package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

type recordingAlerter struct {
	sent []Alert
}

func (r *recordingAlerter) Send(ctx context.Context, alert Alert) error {
	r.sent = append(r.sent, alert)
	return nil
}

func TestThrottle_SuppressesWithinWindow(t *testing.T) {
	rec := &recordingAlerter{}
	throttle := NewThrottle(rec, rate.Every(time.Hour))

	alert := Alert{Title: "exchange connection error", Severity: SeverityCritical}

	err := throttle.Send(context.Background(), alert)
	assert.NoError(t, err)
	err = throttle.Send(context.Background(), alert)
	assert.NoError(t, err)

	assert.Len(t, rec.sent, 1, "second identical alert within the window should be suppressed")
}

func TestThrottle_DistinctCategoriesNotCoalesced(t *testing.T) {
	rec := &recordingAlerter{}
	throttle := NewThrottle(rec, rate.Every(time.Hour))

	err := throttle.Send(context.Background(), Alert{Title: "exchange connection error"})
	assert.NoError(t, err)
	err = throttle.Send(context.Background(), Alert{Title: "risk circuit breaker tripped"})
	assert.NoError(t, err)

	assert.Len(t, rec.sent, 2)
}

func TestThrottle_AllowsAgainAfterWindow(t *testing.T) {
	rec := &recordingAlerter{}
	throttle := NewThrottle(rec, rate.Every(10*time.Millisecond))

	alert := Alert{Title: "exchange connection error"}
	_ = throttle.Send(context.Background(), alert)
	time.Sleep(30 * time.Millisecond)
	_ = throttle.Send(context.Background(), alert)

	assert.Len(t, rec.sent, 2)
}

func TestThrottle_MetadataCategoryOverridesTitle(t *testing.T) {
	rec := &recordingAlerter{}
	throttle := NewThrottle(rec, rate.Every(time.Hour))

	first := Alert{Title: "generic", Metadata: map[string]interface{}{"category": "binance"}}
	second := Alert{Title: "generic", Metadata: map[string]interface{}{"category": "kraken"}}

	_ = throttle.Send(context.Background(), first)
	_ = throttle.Send(context.Background(), second)

	assert.Len(t, rec.sent, 2, "distinct categories sharing a title should not be coalesced")
}
