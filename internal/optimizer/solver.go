package optimizer

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/quantfolio/portfolio-backend/pkg/types"
)

// Outcome classifies a single solve attempt so callers can pick the right
// fallback instead of inspecting error strings.
type Outcome int

const (
	// Success means the solver converged to a feasible weight vector.
	Success Outcome = iota
	// Infeasible means the solver converged but the minimum-return
	// constraint could not be met.
	Infeasible
	// NumericalFailure means the solver did not converge at all.
	NumericalFailure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Infeasible:
		return "infeasible"
	default:
		return "numerical_failure"
	}
}

// penaltyWeight scales the quadratic penalties that stand in for the hard
// constraints during the derivative-free solve.
const penaltyWeight = 1e4

// Solver runs the two portfolio constructions over one window's risk model.
type Solver struct {
	logger *zap.Logger
	cfg    *types.AnalysisConfig
}

// NewSolver creates a solver with the given window configuration.
func NewSolver(logger *zap.Logger, cfg *types.AnalysisConfig) *Solver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = types.DefaultAnalysisConfig()
	}
	return &Solver{logger: logger, cfg: cfg}
}

// attempt is the raw result of one penalized solve.
type attempt struct {
	weights []float64
	outcome Outcome
}

// MinDownsideRisk minimizes the portfolio semi-variance subject to the
// weight bounds and, first, the minimum-return constraint. The fallback
// cascade is: constrained solve, unconstrained solve, inverse
// semi-variance weights.
func (s *Solver) MinDownsideRisk(cov *mat.SymDense, expectedReturns []float64, riskFreeRate float64) []float64 {
	objective := func(w []float64) float64 {
		return portfolioVariance(w, cov)
	}

	required := riskFreeRate + s.cfg.ReturnPremium
	if a := s.solve(objective, expectedReturns, &required); a.outcome == Success {
		s.logger.Info("min downside risk solve satisfied return constraint",
			zap.Float64("expected_return", dot(a.weights, expectedReturns)),
			zap.Float64("min_required", required))
		return a.weights
	} else {
		s.logger.Warn("constrained min downside risk solve failed, retrying unconstrained",
			zap.String("outcome", a.outcome.String()))
	}

	if a := s.solve(objective, expectedReturns, nil); a.outcome == Success {
		return a.weights
	}
	s.logger.Warn("min downside risk solve failed, using inverse semi-variance weights")
	return s.inverseVarianceWeights(cov)
}

// MaxSortino maximizes the Sortino ratio over the same feasible set with
// the same cascade; its terminal fallback scores assets by excess return
// over semi-variance.
func (s *Solver) MaxSortino(cov *mat.SymDense, expectedReturns []float64, riskFreeRate float64) []float64 {
	objective := func(w []float64) float64 {
		ret := dot(w, expectedReturns)
		downsideStd := math.Sqrt(math.Max(portfolioVariance(w, cov), varianceFloor))
		return -(ret - riskFreeRate) / downsideStd
	}

	required := riskFreeRate + s.cfg.ReturnPremium
	if a := s.solve(objective, expectedReturns, &required); a.outcome == Success {
		s.logger.Info("max sortino solve satisfied return constraint",
			zap.Float64("expected_return", dot(a.weights, expectedReturns)),
			zap.Float64("min_required", required))
		return a.weights
	} else {
		s.logger.Warn("constrained max sortino solve failed, retrying unconstrained",
			zap.String("outcome", a.outcome.String()))
	}

	if a := s.solve(objective, expectedReturns, nil); a.outcome == Success {
		return a.weights
	}
	s.logger.Warn("max sortino solve failed, using excess-return score weights")
	return s.sortinoScoreWeights(cov, expectedReturns, riskFreeRate)
}

// solve runs one penalized Nelder-Mead minimization. minReturn, when
// non-nil, adds the minimum-return inequality; the attempt is Infeasible
// when the projected solution still violates it.
func (s *Solver) solve(objective func([]float64) float64, expectedReturns []float64, minReturn *float64) attempt {
	n := len(expectedReturns)
	if n == 0 {
		return attempt{outcome: NumericalFailure}
	}
	if n == 1 {
		w := []float64{1.0}
		return attempt{weights: w, outcome: s.classify(w, expectedReturns, minReturn)}
	}

	penalized := func(w []float64) float64 {
		v := objective(w)
		var sum float64
		for _, wi := range w {
			sum += wi
			if wi < s.cfg.MinWeight {
				d := s.cfg.MinWeight - wi
				v += penaltyWeight * d * d
			}
			if wi > s.cfg.MaxWeight {
				d := wi - s.cfg.MaxWeight
				v += penaltyWeight * d * d
			}
		}
		d := sum - 1
		v += penaltyWeight * d * d
		if minReturn != nil {
			if short := *minReturn - dot(w, expectedReturns); short > 0 {
				v += penaltyWeight * short * short
			}
		}
		return v
	}

	x0 := make([]float64, n)
	for i := range x0 {
		x0[i] = 1.0 / float64(n)
	}

	problem := optimize.Problem{Func: penalized}
	result, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
	if err != nil {
		s.logger.Debug("solver did not converge", zap.Error(err))
		return attempt{outcome: NumericalFailure}
	}
	for _, v := range result.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return attempt{outcome: NumericalFailure}
		}
	}

	w := s.projectBounded(result.X)
	return attempt{weights: w, outcome: s.classify(w, expectedReturns, minReturn)}
}

func (s *Solver) classify(w []float64, expectedReturns []float64, minReturn *float64) Outcome {
	if minReturn != nil && dot(w, expectedReturns) < *minReturn {
		return Infeasible
	}
	return Success
}

// projectBounded maps a raw solver point onto the bounded simplex: clamp
// to [MinWeight, MaxWeight], then repeatedly redistribute the budget
// residual over the assets that still have slack. The result sums to 1
// within 1e-9 whenever n*MinWeight <= 1 <= n*MaxWeight.
func (s *Solver) projectBounded(raw []float64) []float64 {
	n := len(raw)
	w := make([]float64, n)
	for i, v := range raw {
		w[i] = math.Min(math.Max(v, s.cfg.MinWeight), s.cfg.MaxWeight)
	}

	for iter := 0; iter < n+1; iter++ {
		var sum float64
		for _, v := range w {
			sum += v
		}
		residual := 1 - sum
		if math.Abs(residual) <= 1e-12 {
			break
		}
		var free []int
		for i, v := range w {
			if residual > 0 && v < s.cfg.MaxWeight {
				free = append(free, i)
			} else if residual < 0 && v > s.cfg.MinWeight {
				free = append(free, i)
			}
		}
		if len(free) == 0 {
			break
		}
		share := residual / float64(len(free))
		for _, i := range free {
			w[i] = math.Min(math.Max(w[i]+share, s.cfg.MinWeight), s.cfg.MaxWeight)
		}
	}
	return w
}

// inverseVarianceWeights weights assets by the reciprocal of their
// semi-variance, or equally when every diagonal is non-positive.
func (s *Solver) inverseVarianceWeights(cov *mat.SymDense) []float64 {
	n, _ := cov.Dims()
	inv := make([]float64, n)
	var total float64
	for i := 0; i < n; i++ {
		if v := cov.At(i, i); v > 0 {
			inv[i] = 1 / v
			total += inv[i]
		}
	}
	if total <= 0 {
		return equalWeights(n)
	}
	for i := range inv {
		inv[i] /= total
	}
	return inv
}

// sortinoScoreWeights scores each asset by its excess return over its own
// semi-variance, clips negatives to zero, and normalizes; an all-zero
// score falls back to equal weights.
func (s *Solver) sortinoScoreWeights(cov *mat.SymDense, expectedReturns []float64, riskFreeRate float64) []float64 {
	n := len(expectedReturns)
	scores := make([]float64, n)
	var total float64
	for i := 0; i < n; i++ {
		if v := cov.At(i, i); v > 0 {
			scores[i] = math.Max((expectedReturns[i]-riskFreeRate)/v, 0)
			total += scores[i]
		}
	}
	if total <= 0 {
		return equalWeights(n)
	}
	for i := range scores {
		scores[i] /= total
	}
	return scores
}

func equalWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}
	return w
}
