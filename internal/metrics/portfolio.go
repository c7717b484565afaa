package metrics

import (
	"math"

	"go.uber.org/zap"

	"github.com/quantfolio/portfolio-backend/internal/timeseries"
	"github.com/quantfolio/portfolio-backend/pkg/types"
)

// Calculator computes the full analysis metrics bundle for a portfolio
// variant against its benchmark.
type Calculator struct {
	logger *zap.Logger
}

// NewCalculator creates a metrics calculator.
func NewCalculator(logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{logger: logger}
}

// PortfolioMetrics builds the complete metrics battery for one variant.
// portfolio and benchmark must already be aligned to the same dates; an
// empty benchmark degrades the relative metrics to their neutral values
// (beta 1, tracking error 0, correlation 0) instead of failing.
// windowRisk carries the per-window VaR/CVaR pairs of the rolling
// optimization; nil leaves both at 0.
func (c *Calculator) PortfolioMetrics(
	portfolio, benchmark timeseries.Series,
	riskFreeRate float64,
	windowRisk []WindowRisk,
) *types.AnalysisMetrics {
	returns := portfolio.Values

	expectedReturn := AnnualizedReturn(returns)
	stdDeviation := AnnualizedStd(returns)

	beta, _, correlation := 1.0, 0.0, 0.0
	trackingError := 0.0
	upsideBeta, downsideBeta := 1.0, 1.0
	benchmarkAnnualReturn := 0.0
	if !benchmark.IsEmpty() {
		beta, _, correlation = BetaAlpha(returns, benchmark.Values, riskFreeRate)
		trackingError = TrackingError(returns, benchmark.Values)
		upsideBeta, downsideBeta = UpsideDownsideBeta(returns, benchmark.Values)
		benchmarkAnnualReturn = AnnualizedReturn(benchmark.Values)
	} else {
		c.logger.Debug("no benchmark series, relative metrics neutral")
	}

	sharpe := 0.0
	if stdDeviation > 0 {
		sharpe = (expectedReturn - riskFreeRate) / stdDeviation
	}
	treynor := 0.0
	if beta != 0 {
		treynor = (expectedReturn - riskFreeRate) / beta
	}

	downsideDev := DownsideDeviation(returns, 0)
	sortino := 0.0
	if downsideDev > 0 {
		sortino = (expectedReturn - riskFreeRate) / downsideDev
	}

	maxDD := MaxDrawdown(returns)
	calmar := 0.0
	if maxDD != 0 {
		calmar = expectedReturn / math.Abs(maxDD)
	}

	information := 0.0
	if trackingError > 0 {
		information = (expectedReturn - benchmarkAnnualReturn) / trackingError
	}

	varValue, cvarValue := EWMAWindowRisk(windowRisk)

	return &types.AnalysisMetrics{
		ExpectedReturn:       expectedReturn,
		StdDeviation:         stdDeviation,
		TrackingError:        trackingError,
		SharpeRatio:          sharpe,
		TreynorRatio:         treynor,
		SortinoRatio:         sortino,
		CalmarRatio:          calmar,
		InformationRatio:     information,
		MaxDrawdown:          maxDD,
		DownsideDeviation:    downsideDev,
		UpsideBeta:           upsideBeta,
		DownsideBeta:         downsideBeta,
		VaR:                  varValue,
		CVaR:                 cvarValue,
		BenchmarkCorrelation: correlation,
	}
}

// RegressionView packages a beta regression into the response shape, using
// the squared correlation as the fit quality.
func (c *Calculator) RegressionView(portfolio, benchmark []float64, riskFreeRate float64) *types.BetaAnalysis {
	if len(benchmark) == 0 {
		return types.DefaultBetaAnalysis()
	}
	beta, alpha, corr := BetaAlpha(portfolio, benchmark, riskFreeRate)
	return &types.BetaAnalysis{Beta: beta, RSquare: corr * corr, Alpha: alpha}
}
