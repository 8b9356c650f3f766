package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPaths_FindsClosedCycle(t *testing.T) {
	symbols := []string{"BTC/USDT", "ETH/USDT", "ETH/BTC"}

	paths := BuildPaths("binance", symbols)

	assert.NotEmpty(t, paths, "expected at least one closed cycle across BTC/USDT, ETH/USDT, ETH/BTC")
	for _, p := range paths {
		assert.NoError(t, p.ValidateClosed())
		assert.Equal(t, "binance", p.Exchange)
	}
}

func TestBuildPaths_NoCycleWithoutCrossPair(t *testing.T) {
	symbols := []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"}

	paths := BuildPaths("binance", symbols)

	assert.Empty(t, paths, "three quote-only pairs share no closing cross-pair, so no cycle should validate")
}

func TestBuildPaths_EmptySymbolsYieldsNoPaths(t *testing.T) {
	paths := BuildPaths("binance", nil)
	assert.Empty(t, paths)
}
