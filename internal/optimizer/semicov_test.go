package optimizer

import (
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/quantfolio/portfolio-backend/internal/timeseries"
	"github.com/quantfolio/portfolio-backend/pkg/types"
)

func returnsTable(t *testing.T, cols map[string][]float64) *timeseries.Table {
	t.Helper()
	var rows []types.PriceRow
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for code, vals := range cols {
		for i, v := range vals {
			rows = append(rows, types.PriceRow{Code: code, Date: base.AddDate(0, 0, i), Close: v})
		}
	}
	return timeseries.BuildTable(rows, zap.NewNop())
}

func TestSemiCovarianceIgnoresUpside(t *testing.T) {
	// One column never loses: its semi-variance is only the floor.
	tab := returnsTable(t, map[string][]float64{
		"UP":   {0.01, 0.02, 0.03, 0.01},
		"DOWN": {-0.01, -0.02, 0.01, -0.03},
	})
	cov := SemiCovariance(tab, 0)

	// Codes sort alphabetically: DOWN is column 0, UP is column 1.
	if got := cov.At(1, 1); got != varianceFloor {
		t.Errorf("all-upside column should hit the variance floor, got %g", got)
	}
	if got := cov.At(0, 0); got <= varianceFloor {
		t.Errorf("losing column should carry real semi-variance, got %g", got)
	}
}

func TestSemiCovarianceAnnualization(t *testing.T) {
	tab := returnsTable(t, map[string][]float64{"A": {-0.02, -0.02, -0.02}})
	cov := SemiCovariance(tab, 0)
	// Every observation is -0.02: E[d^2] = 4e-4, annualized by 252.
	want := 0.0004 * 252
	if math.Abs(cov.At(0, 0)-want) > 1e-12 {
		t.Errorf("expected %f, got %f", want, cov.At(0, 0))
	}
}

func TestSemiCovarianceSymmetric(t *testing.T) {
	tab := returnsTable(t, map[string][]float64{
		"A": {-0.01, 0.02, -0.03},
		"B": {-0.02, -0.01, 0.01},
	})
	cov := SemiCovariance(tab, 0)
	if cov.At(0, 1) != cov.At(1, 0) {
		t.Errorf("matrix must be symmetric")
	}
}

func TestExpectedReturnsAnnualized(t *testing.T) {
	tab := returnsTable(t, map[string][]float64{"A": {0.001, 0.002, 0.003}})
	got := ExpectedReturns(tab)[0]
	want := 0.002 * types.TradingDaysPerYear
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("expected %f, got %f", want, got)
	}
}
