package optimizer

import (
	"math"
	"testing"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/quantfolio/portfolio-backend/pkg/types"
)

func newTestSolver() *Solver {
	return NewSolver(zap.NewNop(), types.DefaultAnalysisConfig())
}

func checkWeightInvariants(t *testing.T, w []float64, cfg *types.AnalysisConfig) {
	t.Helper()
	var sum float64
	for i, v := range w {
		sum += v
		if v < cfg.MinWeight-1e-6 || v > cfg.MaxWeight+1e-6 {
			t.Errorf("weight %d = %f outside [%f, %f]", i, v, cfg.MinWeight, cfg.MaxWeight)
		}
	}
	if math.Abs(sum-1) > 1e-6 {
		t.Errorf("weights sum to %f, want 1", sum)
	}
}

func diagCov(diag ...float64) *mat.SymDense {
	cov := mat.NewSymDense(len(diag), nil)
	for i, v := range diag {
		cov.SetSym(i, i, v)
	}
	return cov
}

func TestMinDownsideRiskPrefersLowVariance(t *testing.T) {
	s := newTestSolver()
	cov := diagCov(0.01, 0.20)
	expected := []float64{0.10, 0.10}

	w := s.MinDownsideRisk(cov, expected, 0.03)
	checkWeightInvariants(t, w, s.cfg)
	if w[0] <= w[1] {
		t.Errorf("low-variance asset should dominate, got %v", w)
	}
}

func TestMaxSortinoPrefersHighExcessReturn(t *testing.T) {
	s := newTestSolver()
	cov := diagCov(0.04, 0.04)
	expected := []float64{0.20, 0.02}

	w := s.MaxSortino(cov, expected, 0.03)
	checkWeightInvariants(t, w, s.cfg)
	if w[0] <= w[1] {
		t.Errorf("high-excess asset should dominate, got %v", w)
	}
}

func TestSolveSingleAsset(t *testing.T) {
	s := newTestSolver()
	w := s.MinDownsideRisk(diagCov(0.05), []float64{0.10}, 0.02)
	if len(w) != 1 || w[0] != 1.0 {
		t.Errorf("single asset must get the full budget, got %v", w)
	}
}

func TestReturnConstraintDegradesGracefully(t *testing.T) {
	// Every asset loses money: the constrained solve is infeasible, the
	// cascade must still produce a valid allocation.
	s := newTestSolver()
	cov := diagCov(0.02, 0.03, 0.04)
	expected := []float64{-0.10, -0.15, -0.20}

	w := s.MinDownsideRisk(cov, expected, 0.03)
	checkWeightInvariants(t, w, s.cfg)
}

func TestSortinoScoreFallbackAllNegative(t *testing.T) {
	s := newTestSolver()
	cov := diagCov(0.02, 0.03)
	w := s.sortinoScoreWeights(cov, []float64{-0.10, -0.05}, 0.03)
	// All scores clip to zero, equal weights take over.
	if math.Abs(w[0]-0.5) > 1e-12 || math.Abs(w[1]-0.5) > 1e-12 {
		t.Errorf("all-negative scores must fall back to equal weights, got %v", w)
	}
}

func TestInverseVarianceWeights(t *testing.T) {
	s := newTestSolver()
	w := s.inverseVarianceWeights(diagCov(0.01, 0.03))
	if math.Abs(w[0]+w[1]-1) > 1e-12 {
		t.Errorf("fallback weights must sum to 1, got %v", w)
	}
	if w[0] <= w[1] {
		t.Errorf("lower variance should earn more weight, got %v", w)
	}
}

func TestProjectBoundedRestoresBudget(t *testing.T) {
	s := newTestSolver()
	w := s.projectBounded([]float64{0.9, 0.9, -0.5})
	checkWeightInvariants(t, w, s.cfg)
}
