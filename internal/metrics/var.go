package metrics

import (
	"math"
	"sort"
)

// minVaRObservations is the smallest sample the percentile VaR accepts.
const minVaRObservations = 5

// ewmaDecay is the RiskMetrics decay factor for window-weighted risk.
const ewmaDecay = 0.94

// VaRCVaR95 estimates one-day 95% VaR and CVaR from a daily return sample.
// VaR is the 5th percentile; CVaR averages the excess tail below it, or
// equals VaR when the strict tail is empty. Both are negative in losses.
// Fewer than minVaRObservations observations yield (0, 0).
func VaRCVaR95(returns []float64) (varValue, cvarValue float64) {
	if len(returns) < minVaRObservations {
		return 0, 0
	}
	varValue = Percentile(returns, 5)

	var tail []float64
	for _, r := range returns {
		if r < varValue {
			tail = append(tail, r)
		}
	}
	if len(tail) == 0 {
		return varValue, varValue
	}
	cvarValue = Mean(tail)
	if math.IsNaN(cvarValue) {
		cvarValue = varValue
	}
	return varValue, cvarValue
}

// SortedVaR reads the tail-probability order statistic from an already
// sorted ascending return slice.
func SortedVaR(sorted []float64, tailProb float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(tailProb * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// SortedCVaR averages the returns below the tail-probability cut of an
// already sorted ascending return slice. An empty cut yields 0.
func SortedCVaR(sorted []float64, tailProb float64) float64 {
	idx := int(tailProb * float64(len(sorted)))
	if idx == 0 {
		return 0
	}
	if idx > len(sorted) {
		idx = len(sorted)
	}
	m := Mean(sorted[:idx])
	if math.IsNaN(m) {
		return 0
	}
	return m
}

// SortReturns returns an ascending copy of the sample for the Sorted*
// estimators.
func SortReturns(returns []float64) []float64 {
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	return sorted
}

// WindowRisk is one rolling window's VaR/CVaR pair.
type WindowRisk struct {
	VaR  float64
	CVaR float64
}

// EWMAWindowRisk blends per-window VaR/CVaR values with exponentially
// decaying weights so recent windows dominate. Weights are normalized over
// the sample; an empty slice yields (0, 0).
func EWMAWindowRisk(windows []WindowRisk) (varValue, cvarValue float64) {
	n := len(windows)
	if n == 0 {
		return 0, 0
	}
	weights := make([]float64, n)
	var total float64
	for i := range windows {
		weights[i] = math.Pow(ewmaDecay, float64(n-1-i))
		total += weights[i]
	}
	for i, w := range windows {
		varValue += w.VaR * weights[i] / total
		cvarValue += w.CVaR * weights[i] / total
	}
	return varValue, cvarValue
}
