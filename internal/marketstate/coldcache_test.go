package marketstate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cryptoarb/arbot/internal/metrics"
	"github.com/cryptoarb/arbot/internal/types"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestColdCache(t *testing.T) (*ColdCache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rm := metrics.NewRedisMetrics(client)

	return NewColdCache(rm, time.Minute), mr
}

func TestNewColdCache_NilClientDisablesCache(t *testing.T) {
	assert.Nil(t, NewColdCache(nil, time.Minute))
}

func TestColdCache_SetAndGet(t *testing.T) {
	cache, mr := newTestColdCache(t)
	defer mr.Close()

	top := types.TopOfBook{
		Exchange:   "binance",
		Symbol:     "BTCUSDT",
		BestBid:    decimal.NewFromFloat(50000),
		BestBidQty: decimal.NewFromFloat(1.5),
		BestAsk:    decimal.NewFromFloat(50010),
		BestAskQty: decimal.NewFromFloat(2.0),
		EventTS:    time.Now(),
		IngressTS:  time.Now(),
	}

	ctx := context.Background()
	require.NoError(t, cache.set(ctx, top))

	got, ok := cache.Get(ctx, "binance", "BTCUSDT")
	require.True(t, ok)
	assert.True(t, top.BestBid.Equal(got.BestBid))
	assert.True(t, top.BestAsk.Equal(got.BestAsk))
}

func TestColdCache_GetMiss(t *testing.T) {
	cache, mr := newTestColdCache(t)
	defer mr.Close()

	_, ok := cache.Get(context.Background(), "binance", "ETHUSDT")
	assert.False(t, ok)
}

func TestColdCache_RunDrainsQueue(t *testing.T) {
	cache, mr := newTestColdCache(t)
	defer mr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cache.Run(ctx)

	top := types.TopOfBook{Exchange: "kraken", Symbol: "ETHUSDT", BestBid: decimal.NewFromFloat(3000)}
	cache.enqueue(top)

	require.Eventually(t, func() bool {
		_, ok := cache.Get(context.Background(), "kraken", "ETHUSDT")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestColdCache_Health(t *testing.T) {
	cache, mr := newTestColdCache(t)
	defer mr.Close()

	assert.NoError(t, cache.Health(context.Background()))

	mr.Close()
	assert.Error(t, cache.Health(context.Background()))
}

func TestColdCache_NilReceiverIsSafe(t *testing.T) {
	var cache *ColdCache
	assert.NotPanics(t, func() {
		cache.enqueue(types.TopOfBook{})
		cache.Run(context.Background())
		_, ok := cache.Get(context.Background(), "x", "y")
		assert.False(t, ok)
		assert.NoError(t, cache.Health(context.Background()))
	})
}
