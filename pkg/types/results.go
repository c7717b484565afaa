package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// BetaAnalysis is the regression view of a portfolio or instrument against
// its benchmark.
type BetaAnalysis struct {
	Beta    float64 `json:"beta"`
	RSquare float64 `json:"r_square"`
	Alpha   float64 `json:"alpha"`
}

// DefaultBetaAnalysis is the fallback when a regression cannot be fitted.
func DefaultBetaAnalysis() *BetaAnalysis {
	return &BetaAnalysis{Beta: 1.0, RSquare: 0.0, Alpha: 0.0}
}

// AnalysisMetrics is the full performance bundle for one portfolio variant.
// All values are recomputed from return series on every call.
type AnalysisMetrics struct {
	ExpectedReturn       float64 `json:"expected_return"`
	StdDeviation         float64 `json:"std_deviation"`
	TrackingError        float64 `json:"tracking_error"`
	SharpeRatio          float64 `json:"sharpe_ratio"`
	TreynorRatio         float64 `json:"treynor_ratio"`
	SortinoRatio         float64 `json:"sortino_ratio"`
	CalmarRatio          float64 `json:"calmar_ratio"`
	InformationRatio     float64 `json:"information_ratio"`
	MaxDrawdown          float64 `json:"max_drawdown"`
	DownsideDeviation    float64 `json:"downside_deviation"`
	UpsideBeta           float64 `json:"upside_beta"`
	DownsideBeta         float64 `json:"downside_beta"`
	VaR                  float64 `json:"var_value"`
	CVaR                 float64 `json:"cvar_value"`
	BenchmarkCorrelation float64 `json:"correlation_with_benchmark"`
}

// StockDetails is the per-instrument view in an analysis response.
type StockDetails struct {
	ExpectedReturn         float64       `json:"expected_return"`
	Volatility             float64       `json:"volatility"`
	CorrelationToPortfolio float64       `json:"correlation_to_portfolio"`
	BetaAnalysis           *BetaAnalysis `json:"beta_analysis,omitempty"`
}

// BenchmarkComparison breaks down a variant's performance relative to the
// benchmark, including a simple selection/timing attribution.
type BenchmarkComparison struct {
	BenchmarkCode       string  `json:"benchmark_code"`
	BenchmarkReturn     float64 `json:"benchmark_return"`
	BenchmarkVolatility float64 `json:"benchmark_volatility"`
	ExcessReturn        float64 `json:"excess_return"`
	RelativeVolatility  float64 `json:"relative_volatility"`
	SecuritySelection   float64 `json:"security_selection"`
	TimingEffect        float64 `json:"timing_effect"`
}

// PortfolioData is one variant (user, min_downside_risk, max_sortino) in an
// analysis response.
type PortfolioData struct {
	Type                PortfolioType        `json:"type"`
	Weights             map[string]float64   `json:"weights"`
	BetaAnalysis        *BetaAnalysis        `json:"beta_analysis,omitempty"`
	Metrics             *AnalysisMetrics     `json:"metrics,omitempty"`
	BenchmarkComparison *BenchmarkComparison `json:"benchmark_comparison,omitempty"`
}

// BenchmarkInfo summarizes the benchmark series used by an analysis.
type BenchmarkInfo struct {
	Code       string  `json:"code"`
	Return     float64 `json:"return"`
	Volatility float64 `json:"volatility"`
}

// AnalysisPeriod is the effective period an analysis covered.
type AnalysisPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// AnalysisMetadata carries run-level facts the caller reports verbatim.
type AnalysisMetadata struct {
	RiskFreeRateUsed float64        `json:"risk_free_rate_used"`
	Period           AnalysisPeriod `json:"period"`
	Notes            string         `json:"notes,omitempty"`
	ExecutionTime    float64        `json:"execution_time"`
	PortfolioID      int64          `json:"portfolio_id"`
	Timestamp        time.Time      `json:"timestamp"`
}

// AnalysisResponse is the full optimization-analysis result.
type AnalysisResponse struct {
	Success      bool                     `json:"success"`
	Metadata     AnalysisMetadata         `json:"metadata"`
	Benchmark    *BenchmarkInfo           `json:"benchmark,omitempty"`
	Portfolios   []PortfolioData          `json:"portfolios"`
	StockDetails map[string]*StockDetails `json:"stock_details,omitempty"`
}

// HoldingSnapshot is one position in a portfolio snapshot.
type HoldingSnapshot struct {
	ID       int    `json:"id"`
	StockID  string `json:"stock_id"`
	Quantity int64  `json:"quantity"`
}

// PortfolioSnapshot is the aggregate of one backtest run. Immutable once
// returned.
type PortfolioSnapshot struct {
	PortfolioID  int64             `json:"portfolio_id"`
	BaseValue    decimal.Decimal   `json:"base_value"`
	CurrentValue decimal.Decimal   `json:"current_value"`
	StartAt      time.Time         `json:"start_at"`
	EndAt        time.Time         `json:"end_at"`
	CreatedAt    time.Time         `json:"created_at"`
	Holdings     []HoldingSnapshot `json:"holdings"`
}

// BacktestMetrics is the risk/return battery for a completed backtest.
type BacktestMetrics struct {
	TotalReturn      decimal.Decimal `json:"total_return"`
	AnnualizedReturn decimal.Decimal `json:"annualized_return"`
	Volatility       decimal.Decimal `json:"volatility"`
	SharpeRatio      decimal.Decimal `json:"sharpe_ratio"`
	MaxDrawdown      decimal.Decimal `json:"max_drawdown"`
	VaR95            decimal.Decimal `json:"var_95"`
	VaR99            decimal.Decimal `json:"var_99"`
	CVaR95           decimal.Decimal `json:"cvar_95"`
	CVaR99           decimal.Decimal `json:"cvar_99"`
	WinRate          decimal.Decimal `json:"win_rate"`
	ProfitLossRatio  decimal.Decimal `json:"profit_loss_ratio"`
}

// BenchmarkMetrics compares a backtest against its benchmark index.
// Return and volatility values are in percent.
type BenchmarkMetrics struct {
	BenchmarkTotalReturn  float64 `json:"benchmark_total_return"`
	BenchmarkVolatility   float64 `json:"benchmark_volatility"`
	BenchmarkMaxPrice     float64 `json:"benchmark_max_price"`
	BenchmarkMinPrice     float64 `json:"benchmark_min_price"`
	Alpha                 float64 `json:"alpha"`
	BenchmarkDailyAverage float64 `json:"benchmark_daily_average"`
}

// StockDailyData is one instrument's row in a daily result summary.
type StockDailyData struct {
	Code                  string  `json:"stock_code"`
	Date                  string  `json:"date"`
	ClosePrice            float64 `json:"close_price"`
	ReturnSinceCost       float64 `json:"daily_return"`
	PortfolioWeight       float64 `json:"portfolio_weight"`
	PortfolioContribution float64 `json:"portfolio_contribution"`
	Quantity              int64   `json:"quantity"`
	AvgPrice              float64 `json:"avg_price"`
}

// DailySummary is one trading date's result rows.
type DailySummary struct {
	Date           string           `json:"date"`
	Stocks         []StockDailyData `json:"stocks"`
	PortfolioValue float64          `json:"portfolio_value"`
}

// RiskFreeRateInfo documents which risk-free series fed a run.
type RiskFreeRateInfo struct {
	RateType        string  `json:"rate_type"`
	AnnualRate      float64 `json:"annual_rate"`
	SelectionReason string  `json:"selection_reason"`
}

// BacktestResponse is the full backtest result.
type BacktestResponse struct {
	Success          bool              `json:"success"`
	Snapshot         PortfolioSnapshot `json:"portfolio_snapshot"`
	Metrics          *BacktestMetrics  `json:"metrics,omitempty"`
	BenchmarkMetrics *BenchmarkMetrics `json:"benchmark_metrics,omitempty"`
	ResultSummary    []DailySummary    `json:"result_summary"`
	ExecutionLogs    []ExecutionLog    `json:"execution_logs"`
	ResultStatus     ResultStatus      `json:"result_status"`
	RiskFreeRateInfo *RiskFreeRateInfo `json:"risk_free_rate_info,omitempty"`
	ExecutionTime    float64           `json:"execution_time"`
	BacktestID       *int64            `json:"backtest_id,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
}
