package optimizer

import (
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/quantfolio/portfolio-backend/internal/metrics"
	"github.com/quantfolio/portfolio-backend/internal/timeseries"
	"github.com/quantfolio/portfolio-backend/pkg/types"
)

// minForwardDays is the smallest forward sample a window's out-of-sample
// evaluation will run on; shorter remainders record zero returns and risk.
const minForwardDays = 5

// WindowResult is one rolling window's solves and their out-of-sample
// evaluation over the following step.
type WindowResult struct {
	Date              time.Time
	MinDownsideWeight map[string]float64
	MaxSortinoWeight  map[string]float64
	MinDownsideReturn float64
	MaxSortinoReturn  float64
	MinDownsideRisk   metrics.WindowRisk
	MaxSortinoRisk    metrics.WindowRisk
	ExpectedReturns   map[string]float64
	Covariance        map[string]map[string]float64
}

// RollingResult aggregates every window of a rolling optimization run.
type RollingResult struct {
	Windows []WindowResult
}

// Dates lists each window's end date in order.
func (r *RollingResult) Dates() []time.Time {
	out := make([]time.Time, len(r.Windows))
	for i, w := range r.Windows {
		out[i] = w.Date
	}
	return out
}

// ReturnSeries extracts one variant's out-of-sample return series indexed
// by window date.
func (r *RollingResult) ReturnSeries(variant types.PortfolioType) timeseries.Series {
	values := make([]float64, len(r.Windows))
	for i, w := range r.Windows {
		if variant == types.PortfolioMaxSortino {
			values[i] = w.MaxSortinoReturn
		} else {
			values[i] = w.MinDownsideReturn
		}
	}
	return timeseries.NewSeries(r.Dates(), values)
}

// RiskSeries extracts one variant's per-window VaR/CVaR pairs in order.
func (r *RollingResult) RiskSeries(variant types.PortfolioType) []metrics.WindowRisk {
	out := make([]metrics.WindowRisk, len(r.Windows))
	for i, w := range r.Windows {
		if variant == types.PortfolioMaxSortino {
			out[i] = w.MaxSortinoRisk
		} else {
			out[i] = w.MinDownsideRisk
		}
	}
	return out
}

// LatestWeights returns the final window's weights for a variant, or nil
// when no window was produced.
func (r *RollingResult) LatestWeights(variant types.PortfolioType) map[string]float64 {
	if len(r.Windows) == 0 {
		return nil
	}
	last := r.Windows[len(r.Windows)-1]
	if variant == types.PortfolioMaxSortino {
		return last.MaxSortinoWeight
	}
	return last.MinDownsideWeight
}

// Rolling runs the windowed optimization over a close-price table.
//
// The window advances by StepDays; each window's weights are evaluated on
// up to BacktestDays of subsequent data. The table must cover at least
// WindowDays+BacktestDays rows or an InsufficientDataError is returned.
func (s *Solver) Rolling(prices *timeseries.Table, riskFreeRate float64) (*RollingResult, error) {
	windowDays := s.cfg.WindowDays()
	stepDays := s.cfg.StepDays()
	backtestDays := s.cfg.BacktestDays()

	totalDays := prices.NumDates()
	if required := windowDays + backtestDays; totalDays < required {
		return nil, &types.InsufficientDataError{
			ActualDays:   totalDays,
			RequiredDays: required,
			Context:      "rolling optimization",
		}
	}

	s.logger.Info("rolling optimization started",
		zap.Int("total_days", totalDays),
		zap.Int("window_days", windowDays),
		zap.Int("step_days", stepDays))

	result := &RollingResult{}
	for startIdx := 0; startIdx < totalDays-windowDays; startIdx += stepDays {
		endIdx := startIdx + windowDays

		window := prices.SliceRows(startIdx, endIdx)
		windowDate := window.Dates[len(window.Dates)-1]
		windowReturns := window.Returns()

		expected := ExpectedReturns(windowReturns)
		semiCov := SemiCovariance(windowReturns, 0)

		minDownside := s.MinDownsideRisk(semiCov, expected, riskFreeRate)
		maxSortino := s.MaxSortino(semiCov, expected, riskFreeRate)

		wr := WindowResult{
			Date:              windowDate,
			MinDownsideWeight: weightMap(prices.Codes, minDownside),
			MaxSortinoWeight:  weightMap(prices.Codes, maxSortino),
			ExpectedReturns:   weightMap(prices.Codes, expected),
			Covariance:        covarianceMap(prices.Codes, semiCov),
		}

		remaining := totalDays - endIdx
		if remaining >= minForwardDays {
			forwardDays := remaining
			if forwardDays > backtestDays {
				forwardDays = backtestDays
			}
			forward := prices.SliceRows(endIdx, endIdx+forwardDays).Returns()
			// The first forward row has no prior close inside the slice;
			// drop it rather than count a synthetic zero.
			forwardObserved := forward.SliceRows(1, forward.NumDates())

			mdSeries := forwardObserved.Dot(wr.MinDownsideWeight)
			msSeries := forwardObserved.Dot(wr.MaxSortinoWeight)

			wr.MinDownsideReturn = metrics.Mean(mdSeries.Values)
			wr.MaxSortinoReturn = metrics.Mean(msSeries.Values)

			v, cv := metrics.VaRCVaR95(mdSeries.Values)
			wr.MinDownsideRisk = metrics.WindowRisk{VaR: v, CVaR: cv}
			v, cv = metrics.VaRCVaR95(msSeries.Values)
			wr.MaxSortinoRisk = metrics.WindowRisk{VaR: v, CVaR: cv}
		} else {
			s.logger.Debug("window evaluation skipped",
				zap.Int("remaining_days", remaining),
				zap.Int("min_required", minForwardDays))
		}

		result.Windows = append(result.Windows, wr)
	}

	s.logger.Info("rolling optimization finished",
		zap.Int("windows", len(result.Windows)),
		zap.Any("latest_min_downside_weights", result.LatestWeights(types.PortfolioMinDownsideRisk)),
		zap.Any("latest_max_sortino_weights", result.LatestWeights(types.PortfolioMaxSortino)))
	return result, nil
}

func weightMap(codes []string, weights []float64) map[string]float64 {
	out := make(map[string]float64, len(codes))
	for i, c := range codes {
		if i < len(weights) {
			out[c] = weights[i]
		}
	}
	return out
}

func covarianceMap(codes []string, cov *mat.SymDense) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(codes))
	for i, ci := range codes {
		row := make(map[string]float64, len(codes))
		for j, cj := range codes {
			row[cj] = cov.At(i, j)
		}
		out[ci] = row
	}
	return out
}
