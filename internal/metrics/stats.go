// Package metrics implements the risk and return statistics used by both
// the rolling-window analysis and the backtest simulator. All inputs are
// daily simple returns; annualization assumes 252 trading days.
package metrics

import (
	"math"
	"sort"

	"github.com/quantfolio/portfolio-backend/pkg/types"
)

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// SampleStd is the (n-1)-denominator standard deviation, 0 when n < 2.
func SampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := Mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// PopulationStd is the n-denominator standard deviation, 0 when empty.
func PopulationStd(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := Mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}

// PopulationVariance is the n-denominator variance, 0 when empty.
func PopulationVariance(xs []float64) float64 {
	s := PopulationStd(xs)
	return s * s
}

// Percentile computes the p-th percentile (0..100) with linear
// interpolation between order statistics.
func Percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// AnnualizedReturn is the mean daily return scaled to a year.
func AnnualizedReturn(returns []float64) float64 {
	return Mean(returns) * types.TradingDaysPerYear
}

// AnnualizedStd is the sample daily volatility scaled to a year, floored
// at zero before the square root.
func AnnualizedStd(returns []float64) float64 {
	v := SampleStd(returns)
	variance := v * v * types.TradingDaysPerYear
	return math.Sqrt(math.Max(variance, 0))
}

// MaxDrawdown is the most negative peak-to-trough decline of the
// compounded return path. Always <= 0.
func MaxDrawdown(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	cumulative := 1.0
	peak := math.Inf(-1)
	worst := 0.0
	for _, r := range returns {
		cumulative *= 1 + r
		if cumulative > peak {
			peak = cumulative
		}
		dd := (cumulative - peak) / peak
		if dd < worst {
			worst = dd
		}
	}
	return worst
}

// DownsideDeviation is the annualized population deviation of returns
// below the daily target. Fewer than two qualifying observations yield 0.
func DownsideDeviation(returns []float64, annualTarget float64) float64 {
	dailyTarget := annualTarget / types.TradingDaysPerYear
	var downside []float64
	for _, r := range returns {
		if r < dailyTarget {
			downside = append(downside, r)
		}
	}
	if len(downside) <= 1 {
		return 0
	}
	return PopulationStd(downside) * math.Sqrt(types.TradingDaysPerYear)
}

// TrackingError is the annualized sample deviation of the return spread.
// The two series must already be aligned.
func TrackingError(portfolio, benchmark []float64) float64 {
	if len(portfolio) != len(benchmark) || len(portfolio) == 0 {
		return 0
	}
	diff := make([]float64, len(portfolio))
	for i := range portfolio {
		diff[i] = portfolio[i] - benchmark[i]
	}
	return SampleStd(diff) * math.Sqrt(types.TradingDaysPerYear)
}

// WinLoss computes the win rate and the average-win to average-loss ratio.
// Flat days count against the win rate; a zero average loss yields ratio 0.
func WinLoss(returns []float64) (winRate, profitLossRatio float64) {
	if len(returns) == 0 {
		return 0, 0
	}
	var wins, losses []float64
	for _, r := range returns {
		switch {
		case r > 0:
			wins = append(wins, r)
		case r < 0:
			losses = append(losses, r)
		}
	}
	winRate = float64(len(wins)) / float64(len(returns))
	avgWin := Mean(wins)
	avgLoss := math.Abs(Mean(losses))
	if avgLoss > 0 {
		profitLossRatio = avgWin / avgLoss
	}
	return winRate, profitLossRatio
}
