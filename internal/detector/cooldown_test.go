package detector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCooldownTracker_BlocksWithinWindow(t *testing.T) {
	c := NewCooldownTracker(time.Minute)

	assert.False(t, c.Blocked("binance", "kraken", "BTC/USDT"))

	c.RecordFire("binance", "kraken", "BTC/USDT")
	assert.True(t, c.Blocked("binance", "kraken", "BTC/USDT"))
}

func TestCooldownTracker_PairOrderIndependent(t *testing.T) {
	c := NewCooldownTracker(time.Minute)

	c.RecordFire("binance", "kraken", "BTC/USDT")
	assert.True(t, c.Blocked("kraken", "binance", "BTC/USDT"))
}

func TestCooldownTracker_DoesNotBlockOtherSymbols(t *testing.T) {
	c := NewCooldownTracker(time.Minute)

	c.RecordFire("binance", "kraken", "BTC/USDT")
	assert.False(t, c.Blocked("binance", "kraken", "ETH/USDT"))
}

func TestCooldownTracker_ZeroWindowNeverBlocks(t *testing.T) {
	c := NewCooldownTracker(0)

	c.RecordFire("binance", "kraken", "BTC/USDT")
	assert.False(t, c.Blocked("binance", "kraken", "BTC/USDT"))
}

func TestCooldownTracker_ExpiresAfterWindow(t *testing.T) {
	c := NewCooldownTracker(10 * time.Millisecond)

	c.RecordFire("binance", "kraken", "BTC/USDT")
	assert.True(t, c.Blocked("binance", "kraken", "BTC/USDT"))

	time.Sleep(25 * time.Millisecond)
	assert.False(t, c.Blocked("binance", "kraken", "BTC/USDT"))
}
