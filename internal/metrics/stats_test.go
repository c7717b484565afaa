package metrics

import (
	"math"
	"testing"
)

func almost(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestMaxDrawdown(t *testing.T) {
	// 100 -> 110 -> 88 -> 99: trough is 88/110 - 1 = -20%.
	returns := []float64{0, 0.10, -0.20, 0.125}
	got := MaxDrawdown(returns)
	if !almost(got, -0.20, 1e-12) {
		t.Errorf("expected -0.20, got %f", got)
	}
}

func TestMaxDrawdownMonotonicUp(t *testing.T) {
	if got := MaxDrawdown([]float64{0.01, 0.02, 0.01}); got != 0 {
		t.Errorf("no drawdown expected, got %f", got)
	}
}

func TestDownsideDeviationTooFewObservations(t *testing.T) {
	if got := DownsideDeviation([]float64{0.01, 0.02, -0.01}, 0); got != 0 {
		t.Errorf("one qualifying observation should yield 0, got %f", got)
	}
}

func TestDownsideDeviationPositive(t *testing.T) {
	returns := []float64{-0.01, -0.03, 0.02, 0.01}
	got := DownsideDeviation(returns, 0)
	// population std of {-0.01, -0.03} is 0.01, annualized by sqrt(252).
	want := 0.01 * math.Sqrt(252)
	if !almost(got, want, 1e-12) {
		t.Errorf("expected %f, got %f", want, got)
	}
}

func TestPercentileInterpolation(t *testing.T) {
	xs := []float64{1, 2, 3, 4}
	if got := Percentile(xs, 50); !almost(got, 2.5, 1e-12) {
		t.Errorf("median of 1..4 should be 2.5, got %f", got)
	}
	if got := Percentile(xs, 0); got != 1 {
		t.Errorf("0th percentile should be min, got %f", got)
	}
	if got := Percentile(xs, 100); got != 4 {
		t.Errorf("100th percentile should be max, got %f", got)
	}
}

func TestWinLoss(t *testing.T) {
	returns := []float64{0.02, -0.01, 0.04, 0, -0.02}
	winRate, plRatio := WinLoss(returns)
	if !almost(winRate, 0.4, 1e-12) {
		t.Errorf("expected win rate 0.4, got %f", winRate)
	}
	// avg win 0.03, avg loss 0.015.
	if !almost(plRatio, 2.0, 1e-12) {
		t.Errorf("expected P/L ratio 2.0, got %f", plRatio)
	}
}

func TestWinLossNoLosses(t *testing.T) {
	_, plRatio := WinLoss([]float64{0.01, 0.02})
	if plRatio != 0 {
		t.Errorf("zero average loss must yield ratio 0, got %f", plRatio)
	}
}

func TestTrackingErrorIdenticalSeries(t *testing.T) {
	r := []float64{0.01, -0.02, 0.005}
	if got := TrackingError(r, r); got != 0 {
		t.Errorf("identical series should track perfectly, got %f", got)
	}
}
