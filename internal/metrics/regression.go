package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/quantfolio/portfolio-backend/pkg/types"
)

// minRegressionPoints is the fewest aligned observations an OLS fit will
// accept before falling back to the neutral (beta=1) result.
const minRegressionPoints = 10

// BetaAlpha regresses daily portfolio excess returns on benchmark excess
// returns. It returns (beta, annualized alpha, correlation); when fewer
// than minRegressionPoints observations are available, or the fitted beta
// is not finite, it returns the neutral (1, 0, 0).
func BetaAlpha(portfolio, benchmark []float64, riskFreeRate float64) (beta, alpha, correlation float64) {
	if len(portfolio) != len(benchmark) || len(portfolio) < minRegressionPoints {
		return 1.0, 0.0, 0.0
	}

	dailyRf := riskFreeRate / types.TradingDaysPerYear
	x := make([]float64, len(benchmark))
	y := make([]float64, len(portfolio))
	for i := range portfolio {
		x[i] = benchmark[i] - dailyRf
		y[i] = portfolio[i] - dailyRf
	}

	intercept, slope := stat.LinearRegression(x, y, nil, false)
	if math.IsNaN(slope) || math.IsInf(slope, 0) {
		return 1.0, 0.0, 0.0
	}
	corr := stat.Correlation(x, y, nil)
	if math.IsNaN(corr) {
		corr = 0
	}
	return slope, intercept * types.TradingDaysPerYear, corr
}

// UpsideDownsideBeta splits the aligned sample at the benchmark mean and
// fits a covariance-ratio beta on each side. A side with one or fewer
// observations, or zero benchmark variance, keeps the neutral beta of 1.
func UpsideDownsideBeta(portfolio, benchmark []float64) (upside, downside float64) {
	upside, downside = 1.0, 1.0
	if len(portfolio) != len(benchmark) || len(benchmark) == 0 {
		return upside, downside
	}
	benchMean := Mean(benchmark)

	var portUp, benchUp, portDown, benchDown []float64
	for i, b := range benchmark {
		switch {
		case b > benchMean:
			portUp = append(portUp, portfolio[i])
			benchUp = append(benchUp, b)
		case b < benchMean:
			portDown = append(portDown, portfolio[i])
			benchDown = append(benchDown, b)
		}
	}
	if len(benchUp) > 1 {
		if v := PopulationVariance(benchUp); v > 0 {
			upside = stat.Covariance(portUp, benchUp, nil) / v
		}
	}
	if len(benchDown) > 1 {
		if v := PopulationVariance(benchDown); v > 0 {
			downside = stat.Covariance(portDown, benchDown, nil) / v
		}
	}
	return upside, downside
}
