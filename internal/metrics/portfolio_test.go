package metrics

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/quantfolio/portfolio-backend/internal/timeseries"
)

func makeSeries(values []float64) timeseries.Series {
	dates := make([]time.Time, len(values))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range dates {
		dates[i] = base.AddDate(0, 0, i)
	}
	return timeseries.NewSeries(dates, values)
}

func TestPortfolioMetricsNoBenchmark(t *testing.T) {
	calc := NewCalculator(zap.NewNop())
	port := makeSeries([]float64{0.01, -0.02, 0.015, 0.005, -0.01, 0.02})

	m := calc.PortfolioMetrics(port, timeseries.Series{}, 0.03, nil)

	if m.TrackingError != 0 {
		t.Errorf("no benchmark should neutralize tracking error, got %f", m.TrackingError)
	}
	if m.BenchmarkCorrelation != 0 {
		t.Errorf("no benchmark should zero correlation, got %f", m.BenchmarkCorrelation)
	}
	if m.UpsideBeta != 1.0 || m.DownsideBeta != 1.0 {
		t.Errorf("no benchmark should keep neutral betas, got %f and %f", m.UpsideBeta, m.DownsideBeta)
	}
	if m.ExpectedReturn == 0 {
		t.Errorf("expected return should still be computed")
	}
	if m.VaR != 0 || m.CVaR != 0 {
		t.Errorf("nil window risk must leave VaR/CVaR at 0")
	}
}

func TestPortfolioMetricsZeroVolGuards(t *testing.T) {
	calc := NewCalculator(zap.NewNop())
	port := makeSeries([]float64{0.001, 0.001, 0.001})

	m := calc.PortfolioMetrics(port, timeseries.Series{}, 0.03, nil)
	if m.SharpeRatio != 0 {
		t.Errorf("zero volatility must guard Sharpe to 0, got %f", m.SharpeRatio)
	}
	if m.SortinoRatio != 0 {
		t.Errorf("no downside must guard Sortino to 0, got %f", m.SortinoRatio)
	}
	if m.CalmarRatio != 0 {
		t.Errorf("no drawdown must guard Calmar to 0, got %f", m.CalmarRatio)
	}
}

func TestPortfolioMetricsWindowRiskFlows(t *testing.T) {
	calc := NewCalculator(zap.NewNop())
	port := makeSeries([]float64{0.01, -0.01, 0.02})
	m := calc.PortfolioMetrics(port, timeseries.Series{}, 0, []WindowRisk{{VaR: -0.03, CVaR: -0.05}})
	if !almost(m.VaR, -0.03, 1e-12) || !almost(m.CVaR, -0.05, 1e-12) {
		t.Errorf("single window risk must pass through, got %f, %f", m.VaR, m.CVaR)
	}
}

func TestRegressionViewFallback(t *testing.T) {
	calc := NewCalculator(zap.NewNop())
	view := calc.RegressionView([]float64{0.01}, nil, 0)
	if view.Beta != 1.0 || view.Alpha != 0.0 || view.RSquare != 0.0 {
		t.Errorf("missing benchmark must yield the neutral view, got %+v", view)
	}
}
