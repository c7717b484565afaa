// Package optimizer implements the rolling-window portfolio construction:
// a minimum-downside-risk solve and a maximum-Sortino solve over a
// semi-covariance risk model, with deterministic fallbacks when the
// constrained problems cannot be satisfied.
package optimizer

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/quantfolio/portfolio-backend/internal/timeseries"
	"github.com/quantfolio/portfolio-backend/pkg/types"
)

// varianceFloor keeps semi-variance diagonals strictly positive so the
// inverse-variance fallback and the Sortino denominator stay defined.
const varianceFloor = 1e-8

// ExpectedReturns annualizes the mean daily return of each column.
func ExpectedReturns(returns *timeseries.Table) []float64 {
	out := make([]float64, returns.NumCodes())
	for j, code := range returns.Codes {
		col := returns.Column(code)
		var sum float64
		for _, v := range col.Values {
			sum += v
		}
		if n := len(col.Values); n > 0 {
			out[j] = sum / float64(n) * types.TradingDaysPerYear
		}
	}
	return out
}

// SemiCovariance builds the annualized downside co-movement matrix: returns
// at or above the daily target are zeroed before the centered cross
// products are averaged. With one or fewer rows it degrades to the full
// sample covariance. Diagonal entries are floored at varianceFloor.
func SemiCovariance(returns *timeseries.Table, target float64) *mat.SymDense {
	n := returns.NumDates()
	k := returns.NumCodes()

	if n <= 1 {
		return sampleCovariance(returns)
	}

	// Column-major downside matrix, centered on the target.
	downside := make([][]float64, k)
	for j, code := range returns.Codes {
		col := returns.Column(code)
		d := make([]float64, n)
		for i, v := range col.Values {
			if v < target {
				d[i] = v - target
			}
		}
		downside[j] = d
	}

	cov := mat.NewSymDense(k, nil)
	for a := 0; a < k; a++ {
		for b := a; b < k; b++ {
			var dot float64
			for i := 0; i < n; i++ {
				dot += downside[a][i] * downside[b][i]
			}
			cov.SetSym(a, b, dot/float64(n)*types.TradingDaysPerYear)
		}
	}
	floorDiagonal(cov)
	return cov
}

func sampleCovariance(returns *timeseries.Table) *mat.SymDense {
	k := returns.NumCodes()
	n := returns.NumDates()
	data := mat.NewDense(n, k, nil)
	for j, code := range returns.Codes {
		col := returns.Column(code)
		for i, v := range col.Values {
			data.Set(i, j, v)
		}
	}
	cov := mat.NewSymDense(k, nil)
	stat.CovarianceMatrix(cov, data, nil)
	for a := 0; a < k; a++ {
		for b := a; b < k; b++ {
			cov.SetSym(a, b, cov.At(a, b)*types.TradingDaysPerYear)
		}
	}
	floorDiagonal(cov)
	return cov
}

func floorDiagonal(cov *mat.SymDense) {
	k, _ := cov.Dims()
	for i := 0; i < k; i++ {
		if cov.At(i, i) < varianceFloor {
			cov.SetSym(i, i, varianceFloor)
		}
	}
}

// portfolioVariance evaluates w' S w.
func portfolioVariance(weights []float64, cov *mat.SymDense) float64 {
	k := len(weights)
	var total float64
	for a := 0; a < k; a++ {
		for b := 0; b < k; b++ {
			total += weights[a] * cov.At(a, b) * weights[b]
		}
	}
	return total
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
