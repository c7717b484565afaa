package metrics

import (
	"math"
	"testing"

	"go.uber.org/zap"
)

func TestDailyReturns(t *testing.T) {
	values := []float64{1000, 1100, 990}
	returns := DailyReturns(values)
	if returns[0] != 0 {
		t.Errorf("first day must be 0, got %f", returns[0])
	}
	if !almost(returns[1], 0.10, 1e-12) {
		t.Errorf("expected 0.10, got %f", returns[1])
	}
	if !almost(returns[2], -0.10, 1e-12) {
		t.Errorf("expected -0.10, got %f", returns[2])
	}
}

func TestDailyReturnsNonPositivePrevious(t *testing.T) {
	returns := DailyReturns([]float64{0, 500})
	if returns[1] != 0 {
		t.Errorf("non-positive previous value must yield 0, got %f", returns[1])
	}
}

func TestCalculateTotalAndAnnualized(t *testing.T) {
	bc := NewBacktestCalculator(zap.NewNop())
	values := []float64{1000, 1010, 1020, 1030, 1050}
	m := bc.Calculate(values)

	totalReturn, _ := m.TotalReturn.Float64()
	if !almost(totalReturn, 0.05, 1e-9) {
		t.Errorf("expected total return 0.05, got %f", totalReturn)
	}

	annualized, _ := m.AnnualizedReturn.Float64()
	want := math.Pow(1.05, 252.0/5.0) - 1
	if !almost(annualized, want, 1e-9) {
		t.Errorf("expected annualized %f, got %f", want, annualized)
	}
}

func TestCalculateFlatPath(t *testing.T) {
	bc := NewBacktestCalculator(zap.NewNop())
	m := bc.Calculate([]float64{1000, 1000, 1000})

	if tr, _ := m.TotalReturn.Float64(); tr != 0 {
		t.Errorf("flat path must have zero total return, got %f", tr)
	}
	if sr, _ := m.SharpeRatio.Float64(); sr != 0 {
		t.Errorf("zero volatility must guard Sharpe, got %f", sr)
	}
	if dd, _ := m.MaxDrawdown.Float64(); dd != 0 {
		t.Errorf("flat path has no drawdown, got %f", dd)
	}
}

func TestCalculateTailRiskOrdering(t *testing.T) {
	bc := NewBacktestCalculator(zap.NewNop())

	// 120 daily returns with a genuine loss tail: two deep losses, a
	// -2% drop every tenth day, small gains otherwise.
	values := []float64{1000}
	v := 1000.0
	for i := 0; i < 120; i++ {
		r := 0.003
		switch {
		case i == 37:
			r = -0.06
		case i == 81:
			r = -0.05
		case i%10 == 5:
			r = -0.02
		}
		v *= 1 + r
		values = append(values, v)
	}
	m := bc.Calculate(values)

	var95, _ := m.VaR95.Float64()
	var99, _ := m.VaR99.Float64()
	cvar95, _ := m.CVaR95.Float64()
	cvar99, _ := m.CVaR99.Float64()

	if var95 >= 0 {
		t.Fatalf("loss tail must give negative VaR95, got %f", var95)
	}
	if var99 > var95 {
		t.Errorf("VaR99 must not exceed VaR95: %f vs %f", var99, var95)
	}
	if cvar95 > var95 {
		t.Errorf("CVaR95 must not exceed VaR95: %f vs %f", cvar95, var95)
	}
	if cvar99 > var99 {
		t.Errorf("CVaR99 must not exceed VaR99: %f vs %f", cvar99, var99)
	}
}

func TestCalculateShortSampleCVaRZero(t *testing.T) {
	bc := NewBacktestCalculator(zap.NewNop())
	// 3 observations: the 5% cut truncates to index 0, CVaR must be 0.
	m := bc.Calculate([]float64{1000, 990, 1005})
	if cv, _ := m.CVaR95.Float64(); cv != 0 {
		t.Errorf("truncated tail must yield CVaR 0, got %f", cv)
	}
}

func TestCalculateEmpty(t *testing.T) {
	bc := NewBacktestCalculator(zap.NewNop())
	m := bc.Calculate(nil)
	if !m.TotalReturn.IsZero() {
		t.Errorf("empty path must produce the zero battery")
	}
}
