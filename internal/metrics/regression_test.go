package metrics

import (
	"math"
	"testing"
)

func TestBetaAlphaTooFewPoints(t *testing.T) {
	x := []float64{0.01, 0.02, 0.03}
	beta, alpha, corr := BetaAlpha(x, x, 0)
	if beta != 1.0 || alpha != 0.0 || corr != 0.0 {
		t.Errorf("short sample must fall back to neutral, got %f, %f, %f", beta, alpha, corr)
	}
}

func TestBetaAlphaPerfectTracking(t *testing.T) {
	bench := make([]float64, 20)
	port := make([]float64, 20)
	for i := range bench {
		bench[i] = math.Sin(float64(i)) / 100
		port[i] = 2 * bench[i] // beta 2, alpha 0
	}
	beta, alpha, corr := BetaAlpha(port, bench, 0)
	if !almost(beta, 2.0, 1e-9) {
		t.Errorf("expected beta 2, got %f", beta)
	}
	if !almost(alpha, 0, 1e-9) {
		t.Errorf("expected alpha 0, got %f", alpha)
	}
	if !almost(corr, 1.0, 1e-9) {
		t.Errorf("expected correlation 1, got %f", corr)
	}
}

func TestBetaAlphaRiskFreeShiftsIntercept(t *testing.T) {
	bench := make([]float64, 30)
	port := make([]float64, 30)
	for i := range bench {
		bench[i] = math.Cos(float64(i)) / 50
		port[i] = bench[i] + 0.001 // constant daily edge
	}
	_, alpha, _ := BetaAlpha(port, bench, 0)
	if !almost(alpha, 0.001*252, 1e-9) {
		t.Errorf("expected annualized alpha %f, got %f", 0.001*252, alpha)
	}
}

func TestUpsideDownsideBetaSymmetric(t *testing.T) {
	bench := []float64{-0.02, -0.01, 0.01, 0.02, -0.03, 0.03}
	port := make([]float64, len(bench))
	for i, b := range bench {
		port[i] = 1.5 * b
	}
	up, down := UpsideDownsideBeta(port, bench)
	// Sample covariance over population variance inflates a true slope of
	// 1.5 by n/(n-1); each side has 3 observations here.
	want := 1.5 * 3.0 / 2.0
	if !almost(up, want, 1e-9) || !almost(down, want, 1e-9) {
		t.Errorf("expected %f on both sides, got %f and %f", want, up, down)
	}
}

func TestUpsideDownsideBetaSparseSide(t *testing.T) {
	// Only one observation above the mean: upside beta stays neutral.
	bench := []float64{-0.01, -0.012, -0.011, 0.05}
	port := []float64{-0.02, -0.024, -0.022, 0.10}
	up, _ := UpsideDownsideBeta(port, bench)
	if up != 1.0 {
		t.Errorf("sparse upside must stay neutral, got %f", up)
	}
}
