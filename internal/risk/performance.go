package risk

import (
	"fmt"
	"math"
	"slices"
)

// CalculateSharpeRatio computes the annualized Sharpe ratio from a series of
// daily returns: (annualized mean return - risk-free rate) / annualized
// standard deviation. Used by the daily performance rollup.
func CalculateSharpeRatio(returns []float64, riskFreeRate float64) (float64, error) {
	if len(returns) == 0 {
		return 0, fmt.Errorf("returns array is empty")
	}

	stdDev := calculateStdDev(returns)
	if stdDev == 0 {
		return 0, fmt.Errorf("standard deviation is zero")
	}

	sum := 0.0
	for _, r := range returns {
		sum += r
	}
	meanReturn := sum / float64(len(returns))

	// Trading days per year: 252
	annualizedReturn := meanReturn * 252.0
	annualizedStdDev := stdDev * math.Sqrt(252.0)

	return (annualizedReturn - riskFreeRate) / annualizedStdDev, nil
}

// CalculateVaR computes Value at Risk and Conditional VaR from historical
// returns using the historical simulation method at the given confidence
// level (e.g. 0.95 for 95%).
func CalculateVaR(returns []float64, confidenceLevel float64) (varValue, cvarValue float64, err error) {
	if len(returns) == 0 {
		return 0, 0, fmt.Errorf("returns array is empty")
	}
	if confidenceLevel <= 0 || confidenceLevel >= 1 {
		return 0, 0, fmt.Errorf("confidence level must be between 0 and 1")
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	slices.Sort(sorted)

	percentile := 1 - confidenceLevel
	index := int(float64(len(sorted)) * percentile)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	varValue = -sorted[index]

	var cvarSum float64
	for i := 0; i <= index; i++ {
		cvarSum += sorted[i]
	}
	if index >= 0 {
		cvarValue = -cvarSum / float64(index+1)
	}

	return varValue, cvarValue, nil
}

// CalculateDrawdown returns the current drawdown, maximum drawdown, and peak
// value observed over an equity curve (cumulative PnL or balance series).
func CalculateDrawdown(equityCurve []float64) (currentDD, maxDD, peakEquity float64) {
	if len(equityCurve) == 0 {
		return 0, 0, 0
	}

	peak := equityCurve[0]
	current := equityCurve[len(equityCurve)-1]

	for _, equity := range equityCurve {
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}

	if current < peak && peak > 0 {
		currentDD = (peak - current) / peak
	}

	return currentDD, maxDD, peak
}

// calculateStdDev returns the sample standard deviation (Bessel's correction)
// of a slice of values.
func calculateStdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	if len(values) > 1 {
		variance /= float64(len(values) - 1)
	} else {
		variance /= float64(len(values))
	}

	return math.Sqrt(variance)
}
