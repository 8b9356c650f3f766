package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateSharpeRatio(t *testing.T) {
	t.Run("empty returns", func(t *testing.T) {
		_, err := CalculateSharpeRatio(nil, 0)
		require.Error(t, err)
	})

	t.Run("zero variance", func(t *testing.T) {
		_, err := CalculateSharpeRatio([]float64{0.01, 0.01, 0.01}, 0)
		require.Error(t, err)
	})

	t.Run("positive returns beat a zero risk-free rate", func(t *testing.T) {
		returns := []float64{0.01, 0.015, 0.008, 0.012, 0.02}
		sharpe, err := CalculateSharpeRatio(returns, 0)
		require.NoError(t, err)
		assert.Greater(t, sharpe, 0.0)
	})
}

func TestCalculateVaR(t *testing.T) {
	t.Run("empty returns", func(t *testing.T) {
		_, _, err := CalculateVaR(nil, 0.95)
		require.Error(t, err)
	})

	t.Run("invalid confidence level", func(t *testing.T) {
		_, _, err := CalculateVaR([]float64{0.01, -0.02}, 1.5)
		require.Error(t, err)
	})

	t.Run("worst losses drive VaR upward", func(t *testing.T) {
		returns := []float64{0.05, 0.02, -0.01, -0.08, 0.01, -0.03, 0.04, -0.02, 0.0, -0.05}
		varValue, cvarValue, err := CalculateVaR(returns, 0.90)
		require.NoError(t, err)
		assert.Greater(t, varValue, 0.0)
		assert.GreaterOrEqual(t, cvarValue, varValue)
	})
}

func TestCalculateDrawdown(t *testing.T) {
	t.Run("empty curve", func(t *testing.T) {
		current, max, peak := CalculateDrawdown(nil)
		assert.Zero(t, current)
		assert.Zero(t, max)
		assert.Zero(t, peak)
	})

	t.Run("drawdown from a peak", func(t *testing.T) {
		curve := []float64{100, 120, 90, 95, 110}
		current, max, peak := CalculateDrawdown(curve)
		assert.InDelta(t, 120.0, peak, 0.001)
		assert.InDelta(t, 0.25, max, 0.001) // (120-90)/120
		assert.InDelta(t, (120.0-110.0)/120.0, current, 0.001)
	})

	t.Run("new high has zero drawdown", func(t *testing.T) {
		curve := []float64{100, 110, 120}
		current, _, _ := CalculateDrawdown(curve)
		assert.Zero(t, current)
	})
}

func TestCalculateStdDev(t *testing.T) {
	assert.Zero(t, calculateStdDev(nil))
	stdDev := calculateStdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.False(t, math.IsNaN(stdDev))
	assert.Greater(t, stdDev, 0.0)
}
