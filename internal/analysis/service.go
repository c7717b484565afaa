// Package analysis orchestrates the rolling-window portfolio analysis:
// price loading, benchmark and risk-free resolution, the optimization
// run, and the composition of the response payload.
package analysis

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/quantfolio/portfolio-backend/internal/metrics"
	"github.com/quantfolio/portfolio-backend/internal/optimizer"
	"github.com/quantfolio/portfolio-backend/internal/timeseries"
	"github.com/quantfolio/portfolio-backend/pkg/types"
)

// minLookbackYears pads short lookback requests so every analysis has
// enough history for at least a handful of windows.
const minLookbackYears = 5

// minBetaWindows is the smallest window count a variant regression runs on.
const minBetaWindows = 10

// capThreshold marks weights reported as capped in the metadata notes.
const capThreshold = 0.9

// PriceSource supplies instrument close history.
type PriceSource interface {
	PricesForCodes(ctx context.Context, codes []string, start, end time.Time) ([]types.PriceRow, error)
}

// MarketContext resolves the benchmark and risk-free context of a run.
type MarketContext interface {
	Determine(ctx context.Context, holdings []types.Holding) string
	Returns(ctx context.Context, code string, start, end time.Time) (timeseries.Series, error)
	RiskFreeRate(ctx context.Context, start, end time.Time, userRate *float64) (float64, *types.RiskFreeRateInfo, error)
}

// Service runs portfolio analyses.
type Service struct {
	logger *zap.Logger
	cfg    *types.AnalysisConfig
	prices PriceSource
	market MarketContext
	solver *optimizer.Solver
	calc   *metrics.Calculator
}

// NewService creates an analysis service.
func NewService(logger *zap.Logger, cfg *types.AnalysisConfig, prices PriceSource, market MarketContext) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = types.DefaultAnalysisConfig()
	}
	return &Service{
		logger: logger,
		cfg:    cfg,
		prices: prices,
		market: market,
		solver: optimizer.NewSolver(logger, cfg),
		calc:   metrics.NewCalculator(logger),
	}
}

// Run executes one analysis request end to end. A portfolio without any
// price data is a (Success=false, empty portfolios) response rather than
// an error; insufficient history for the rolling windows is an error.
func (s *Service) Run(ctx context.Context, req *types.AnalysisRequest) (*types.AnalysisResponse, error) {
	started := time.Now()

	lookbackYears := req.LookbackYears
	if lookbackYears < minLookbackYears {
		lookbackYears = minLookbackYears
	}
	analysisEnd := time.Now().UTC()
	analysisStart := analysisEnd.AddDate(0, 0, -types.TradingDaysPerYear*lookbackYears)

	codes := make([]string, len(req.Holdings))
	for i, h := range req.Holdings {
		codes[i] = h.Code
	}

	rows, err := s.prices.PricesForCodes(ctx, codes, analysisStart, analysisEnd)
	if err != nil {
		return nil, fmt.Errorf("price retrieval failed: %w", err)
	}
	table := timeseries.BuildTable(rows, s.logger).Select(codes)
	if table.IsEmpty() {
		s.logger.Warn("no price data for requested holdings", zap.Strings("codes", codes))
		return &types.AnalysisResponse{
			Success: false,
			Metadata: types.AnalysisMetadata{
				Period:        types.AnalysisPeriod{Start: analysisStart, End: analysisEnd},
				Notes:         "No price data available for requested holdings.",
				ExecutionTime: time.Since(started).Seconds(),
				PortfolioID:   req.PortfolioID,
				Timestamp:     time.Now().UTC(),
			},
		}, nil
	}

	benchCode := req.Benchmark
	if benchCode == "" {
		benchCode = s.market.Determine(ctx, req.Holdings)
	}
	benchReturns, err := s.market.Returns(ctx, benchCode, analysisStart, analysisEnd)
	if err != nil {
		s.logger.Warn("benchmark returns unavailable, continuing without benchmark",
			zap.String("benchmark", benchCode), zap.Error(err))
		benchReturns = timeseries.Series{}
	}

	riskFreeRate, rfInfo, rfErr := s.market.RiskFreeRate(ctx, analysisStart, analysisEnd, req.RiskFreeRate)
	if rfErr != nil {
		// An analysis stays useful with a zero rate; the backtest path
		// treats the same failure as fatal.
		s.logger.Warn("risk-free rate retrieval failed, continuing with 0", zap.Error(rfErr))
		riskFreeRate = 0
	} else {
		s.logger.Info("risk-free rate resolved",
			zap.Float64("annual_rate", riskFreeRate),
			zap.String("rate_type", rfInfo.RateType),
			zap.String("reason", rfInfo.SelectionReason))
	}

	if !benchReturns.IsEmpty() {
		aligned, alignedReturns := table.AlignWithSeries(benchReturns)
		if aligned.NumDates() == 0 {
			s.logger.Warn("no common dates between portfolio and benchmark",
				zap.String("benchmark", benchCode))
			benchReturns = timeseries.Series{}
		} else {
			s.logger.Info("synchronized portfolio and benchmark series",
				zap.Int("before", table.NumDates()), zap.Int("after", aligned.NumDates()))
			table, benchReturns = aligned, alignedReturns
		}
	}

	rolling, err := s.solver.Rolling(table, riskFreeRate)
	if err != nil {
		return nil, err
	}

	alignedBench := alignBenchmarkForward(benchReturns, rolling.Dates())

	portfolios := []types.PortfolioData{
		s.userPortfolio(req, table, benchReturns, riskFreeRate, benchCode),
		s.variantPortfolio(types.PortfolioMinDownsideRisk, rolling, alignedBench, riskFreeRate, benchCode),
		s.variantPortfolio(types.PortfolioMaxSortino, rolling, alignedBench, riskFreeRate, benchCode),
	}

	stockDetails := s.stockDetails(rolling, benchCode, benchReturns, table)

	var benchInfo *types.BenchmarkInfo
	if !benchReturns.IsEmpty() {
		benchInfo = &types.BenchmarkInfo{
			Code:       benchCode,
			Return:     metrics.AnnualizedReturn(benchReturns.Values),
			Volatility: metrics.AnnualizedStd(benchReturns.Values),
		}
	}

	actualStart, actualEnd := analysisStart, analysisEnd
	if table.NumDates() > 0 {
		actualStart = table.Dates[0]
		actualEnd = table.Dates[table.NumDates()-1]
	}

	executionTime := time.Since(started).Seconds()
	s.logger.Info("portfolio analysis completed",
		zap.Float64("execution_time_s", executionTime),
		zap.Int("windows", len(rolling.Windows)))

	return &types.AnalysisResponse{
		Success: true,
		Metadata: types.AnalysisMetadata{
			RiskFreeRateUsed: riskFreeRate,
			Period:           types.AnalysisPeriod{Start: actualStart, End: actualEnd},
			Notes:            s.buildNotes(benchCode, rolling, analysisStart, analysisEnd, actualStart, actualEnd, benchReturns),
			ExecutionTime:    executionTime,
			PortfolioID:      req.PortfolioID,
			Timestamp:        time.Now().UTC(),
		},
		Benchmark:    benchInfo,
		Portfolios:   portfolios,
		StockDetails: stockDetails,
	}, nil
}

// alignBenchmarkForward maps each window date to the mean of the following
// month of benchmark returns, matching the out-of-sample horizon the
// window's weights were evaluated on. A date past the benchmark history
// contributes 0.
func alignBenchmarkForward(benchmark timeseries.Series, windowDates []time.Time) timeseries.Series {
	if benchmark.IsEmpty() || len(windowDates) == 0 {
		return timeseries.Series{}
	}
	values := make([]float64, len(windowDates))
	for i, date := range windowDates {
		sum, n := 0.0, 0
		for j, bd := range benchmark.Dates {
			if !bd.After(date) {
				continue
			}
			sum += benchmark.Values[j]
			n++
			if n == types.TradingDaysPerMonth {
				break
			}
		}
		if n > 0 {
			values[i] = sum / float64(n)
		}
	}
	return timeseries.NewSeries(windowDates, values)
}

func (s *Service) variantPortfolio(
	variant types.PortfolioType,
	rolling *optimizer.RollingResult,
	alignedBench timeseries.Series,
	riskFreeRate float64,
	benchCode string,
) types.PortfolioData {
	portSeries := rolling.ReturnSeries(variant)

	var beta *types.BetaAnalysis
	if !alignedBench.IsEmpty() && portSeries.Len() >= minBetaWindows {
		// Raw regression of window returns on the forward benchmark; the
		// excess-return adjustment stays in the metrics battery.
		beta = s.calc.RegressionView(portSeries.Values, alignedBench.Values, 0)
	}

	return types.PortfolioData{
		Type:                variant,
		Weights:             rolling.LatestWeights(variant),
		BetaAnalysis:        beta,
		Metrics:             s.calc.PortfolioMetrics(portSeries, alignedBench, riskFreeRate, rolling.RiskSeries(variant)),
		BenchmarkComparison: s.variantComparison(variant, rolling, alignedBench, benchCode),
	}
}

// variantComparison attributes a variant's excess return over the
// benchmark: selection is the weighted spread of the latest window's
// expected returns over the benchmark, timing is the remainder of the
// expected excess.
func (s *Service) variantComparison(
	variant types.PortfolioType,
	rolling *optimizer.RollingResult,
	alignedBench timeseries.Series,
	benchCode string,
) *types.BenchmarkComparison {
	if alignedBench.IsEmpty() || len(rolling.Windows) == 0 {
		return nil
	}
	portSeries := rolling.ReturnSeries(variant)

	benchAnnual := metrics.AnnualizedReturn(alignedBench.Values)
	benchVol := metrics.AnnualizedStd(alignedBench.Values)
	portAnnual := metrics.AnnualizedReturn(portSeries.Values)
	portVol := metrics.AnnualizedStd(portSeries.Values)

	relativeVol := 1.0
	if benchVol > 0 {
		relativeVol = portVol / benchVol
	}

	last := rolling.Windows[len(rolling.Windows)-1]
	weights := rolling.LatestWeights(variant)
	selection, expectedTotal := 0.0, 0.0
	for code, w := range weights {
		expected := last.ExpectedReturns[code]
		expectedTotal += w * expected
		selection += w * (expected - benchAnnual)
	}
	timing := (expectedTotal - benchAnnual) - selection

	return &types.BenchmarkComparison{
		BenchmarkCode:       benchCode,
		BenchmarkReturn:     benchAnnual,
		BenchmarkVolatility: benchVol,
		ExcessReturn:        portAnnual - benchAnnual,
		RelativeVolatility:  relativeVol,
		SecuritySelection:   selection,
		TimingEffect:        timing,
	}
}

func (s *Service) userPortfolio(
	req *types.AnalysisRequest,
	table *timeseries.Table,
	benchReturns timeseries.Series,
	riskFreeRate float64,
	benchCode string,
) types.PortfolioData {
	weights := s.userWeights(req.Holdings, table)

	data := types.PortfolioData{
		Type:    types.PortfolioUser,
		Weights: weights,
	}
	if !benchReturns.IsEmpty() {
		// The user book carries no regression history of its own; report
		// the neutral view against the benchmark.
		data.BetaAnalysis = types.DefaultBetaAnalysis()
	}
	if len(weights) == 0 {
		return data
	}

	userReturns := dailyPortfolioReturns(table, weights)
	port, bench := userReturns, timeseries.Series{}
	if !benchReturns.IsEmpty() {
		port, bench = timeseries.Align(userReturns, benchReturns)
	}

	data.Metrics = s.calc.PortfolioMetrics(port, bench, riskFreeRate, nil)
	data.BenchmarkComparison = s.userComparison(req.Holdings, table, benchReturns, benchCode)
	return data
}

// userWeights values each holding at the latest close and normalizes.
// Holdings without a usable price are excluded with a warning.
func (s *Service) userWeights(holdings []types.Holding, table *timeseries.Table) map[string]float64 {
	lastIdx := table.NumDates() - 1
	values := make(map[string]float64, len(holdings))
	total := 0.0
	for _, h := range holdings {
		if !table.HasCode(h.Code) {
			s.logger.Warn("holding has no price data, excluded from weights", zap.String("code", h.Code))
			continue
		}
		price := table.At(lastIdx, h.Code)
		if math.IsNaN(price) {
			s.logger.Warn("holding has no latest price, excluded from weights", zap.String("code", h.Code))
			continue
		}
		value := price * float64(h.Quantity)
		values[h.Code] = value
		total += value
	}
	if total <= 0 {
		s.logger.Warn("total portfolio value not positive", zap.Float64("total", total))
		return map[string]float64{}
	}
	weights := make(map[string]float64, len(values))
	for code, v := range values {
		weights[code] = v / total
	}
	return weights
}

// userComparison attributes the user book's excess return per holding:
// each position contributes its weight times its return spread over the
// benchmark, the unexplained remainder is timing.
func (s *Service) userComparison(
	holdings []types.Holding,
	table *timeseries.Table,
	benchReturns timeseries.Series,
	benchCode string,
) *types.BenchmarkComparison {
	if benchReturns.IsEmpty() {
		return nil
	}

	var totalQty int64
	available := make([]string, 0, len(holdings))
	for _, h := range holdings {
		if table.HasCode(h.Code) {
			available = append(available, h.Code)
			totalQty += h.Quantity
		}
	}
	if len(available) == 0 || totalQty <= 0 {
		return nil
	}
	weights := make(map[string]float64, len(available))
	for _, h := range holdings {
		if table.HasCode(h.Code) {
			weights[h.Code] = float64(h.Quantity) / float64(totalQty)
		}
	}

	userReturns := dailyPortfolioReturns(table, weights)
	port, bench := timeseries.Align(userReturns, benchReturns)
	if port.IsEmpty() {
		return nil
	}

	benchAnnual := metrics.AnnualizedReturn(bench.Values)
	benchVol := metrics.AnnualizedStd(bench.Values)
	portAnnual := metrics.AnnualizedReturn(port.Values)
	portVol := metrics.AnnualizedStd(port.Values)
	excess := portAnnual - benchAnnual

	relativeVol := 1.0
	if benchVol > 0 {
		relativeVol = portVol / benchVol
	}

	returns := table.Returns()
	selection := 0.0
	for _, code := range available {
		stock, _ := timeseries.Align(dropFirst(returns.Column(code)), bench)
		selection += weights[code] * (metrics.AnnualizedReturn(stock.Values) - benchAnnual)
	}

	return &types.BenchmarkComparison{
		BenchmarkCode:       benchCode,
		BenchmarkReturn:     benchAnnual,
		BenchmarkVolatility: benchVol,
		ExcessReturn:        excess,
		RelativeVolatility:  relativeVol,
		SecuritySelection:   selection,
		TimingEffect:        excess - selection,
	}
}

// stockDetails summarizes each held instrument from the latest window's
// risk model: annualized expected return, semi-deviation, correlation to
// the max-Sortino portfolio, and a daily-return regression against the
// benchmark. Nil without a benchmark.
func (s *Service) stockDetails(
	rolling *optimizer.RollingResult,
	benchCode string,
	benchReturns timeseries.Series,
	table *timeseries.Table,
) map[string]*types.StockDetails {
	if benchCode == "" || benchReturns.IsEmpty() || len(rolling.Windows) == 0 {
		return nil
	}
	last := rolling.Windows[len(rolling.Windows)-1]
	msWeights := rolling.LatestWeights(types.PortfolioMaxSortino)

	portVariance := 0.0
	for ci, wi := range msWeights {
		for cj, wj := range msWeights {
			portVariance += wi * wj * last.Covariance[ci][cj]
		}
	}
	portStd := 1.0
	if portVariance > 0 {
		portStd = math.Sqrt(portVariance)
	}

	details := make(map[string]*types.StockDetails, len(table.Codes))
	for _, code := range table.Codes {
		volatility := math.Sqrt(last.Covariance[code][code])

		stockPortCov := 0.0
		for other, w := range msWeights {
			stockPortCov += w * last.Covariance[code][other]
		}
		correlation := 0.0
		if volatility > 0 && portStd > 0 {
			correlation = stockPortCov / (volatility * portStd)
		}

		stockReturns := dropFirst(table.ColumnObserved(code).PctChange())
		alignedStock, alignedBench := timeseries.Align(stockReturns, benchReturns)
		details[code] = &types.StockDetails{
			ExpectedReturn:         last.ExpectedReturns[code],
			Volatility:             volatility,
			CorrelationToPortfolio: correlation,
			BetaAnalysis:           s.calc.RegressionView(alignedStock.Values, alignedBench.Values, 0),
		}
	}
	return details
}

// buildNotes assembles the run-parameter summary the caller stores with
// the result.
func (s *Service) buildNotes(
	benchCode string,
	rolling *optimizer.RollingResult,
	requestedStart, requestedEnd, actualStart, actualEnd time.Time,
	benchReturns timeseries.Series,
) string {
	benchRange := "[..]"
	if !benchReturns.IsEmpty() {
		benchRange = fmt.Sprintf("[%s..%s]",
			benchReturns.Dates[0].Format("2006-01-02"),
			benchReturns.Dates[len(benchReturns.Dates)-1].Format("2006-01-02"))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "benchmark=%s, window_years=%g, step_months=%g, backtest_months=%g, windows=%d",
		benchCode, s.cfg.WindowYears, s.cfg.StepMonths, s.cfg.BacktestMonths, len(rolling.Windows))
	fmt.Fprintf(&b, ", requested=[%s..%s], actual=[%s..%s], benchmark_range=%s",
		requestedStart.Format("2006-01-02"), requestedEnd.Format("2006-01-02"),
		actualStart.Format("2006-01-02"), actualEnd.Format("2006-01-02"), benchRange)
	fmt.Fprintf(&b, ", weight_constraints=[min=%.0f%%, max=%.0f%%]",
		s.cfg.MinWeight*100, s.cfg.MaxWeight*100)

	capped, floored := s.boundaryAssets(rolling)
	if len(capped) > 0 {
		fmt.Fprintf(&b, ", weight_cap_applied=%.1f, capped_assets=%v", capThreshold, capped)
	}
	if len(floored) > 0 {
		fmt.Fprintf(&b, ", weight_floor_applied=%.2f, floored_assets=%v", s.cfg.MinWeight, floored)
		b.WriteString(", WARNING: some assets sit at the minimum weight; consider revising the holding mix.")
	}
	return b.String()
}

// boundaryAssets lists assets whose latest weights sit at the cap or the
// floor in either optimized variant.
func (s *Service) boundaryAssets(rolling *optimizer.RollingResult) (capped, floored []string) {
	seenCap := map[string]bool{}
	seenFloor := map[string]bool{}
	for _, variant := range []types.PortfolioType{types.PortfolioMaxSortino, types.PortfolioMinDownsideRisk} {
		for code, w := range rolling.LatestWeights(variant) {
			if w >= capThreshold-1e-9 && !seenCap[code] {
				seenCap[code] = true
				capped = append(capped, code)
			}
			if math.Abs(w-s.cfg.MinWeight) < 1e-3 && !seenFloor[code] {
				seenFloor[code] = true
				floored = append(floored, code)
			}
		}
	}
	sort.Strings(capped)
	sort.Strings(floored)
	return capped, floored
}

// dailyPortfolioReturns is the weighted daily return series of the table,
// with the synthetic first row removed.
func dailyPortfolioReturns(table *timeseries.Table, weights map[string]float64) timeseries.Series {
	series := table.Returns().Dot(weights)
	return dropFirst(series)
}

func dropFirst(s timeseries.Series) timeseries.Series {
	if s.Len() <= 1 {
		return timeseries.Series{}
	}
	return s.Slice(1, s.Len())
}
