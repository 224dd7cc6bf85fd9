// Package indicator provides the moving-average calculations used by the
// trading engine: fast/slow SMAs for crossover detection and a long trend
// average from which the risk-adjusted buy ceiling is derived.
package indicator

import "math"

// Trend window used for the market average behind the risk line. The low
// minimum lets the trend line become available early at the cost of a
// noisier first reading.
const (
	TrendPeriod    = 50
	TrendMinPoints = 10
)

// SMA returns the arithmetic mean of the last period elements of series.
// ok=false when fewer than minPoints values are available. Between
// minPoints and period values, the average is taken over all available
// elements (the relaxed-minimum policy).
func SMA(series []float64, period, minPoints int) (value float64, ok bool) {
	if len(series) < minPoints || minPoints <= 0 {
		return 0, false
	}
	n := period
	if len(series) < n {
		n = len(series)
	}
	var sum float64
	for _, v := range series[len(series)-n:] {
		sum += v
	}
	return sum / float64(n), true
}

// Periods derives the fast and slow SMA periods from the dips sensitivity.
// Lower sensitivity stretches both windows, smoothing out noise.
func Periods(dipsSensitivity float64) (fast, slow int) {
	fast = int(math.Round(5 + (100-dipsSensitivity)*0.45))
	slow = int(math.Round(15 + (100-dipsSensitivity)*0.85))
	return fast, slow
}

// RiskLine scales the market average into a buy ceiling. Risk level 50 is
// neutral (buy at or under the trend average); 10 only buys 20% below it;
// 90 may buy 20% above it.
func RiskLine(marketAverage, riskLevel float64) float64 {
	return marketAverage * (1 + (riskLevel-50)/200)
}
