package metrics

import (
	"math"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantfolio/portfolio-backend/pkg/types"
)

// BacktestCalculator derives the performance battery from a simulated
// portfolio value path.
type BacktestCalculator struct {
	logger *zap.Logger
}

// NewBacktestCalculator creates a backtest metrics calculator.
func NewBacktestCalculator(logger *zap.Logger) *BacktestCalculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BacktestCalculator{logger: logger}
}

// DailyReturns converts a portfolio value path to daily simple returns.
// The first day is 0; a non-positive previous value also yields 0.
func DailyReturns(values []float64) []float64 {
	returns := make([]float64, len(values))
	for i := 1; i < len(values); i++ {
		if values[i-1] > 0 {
			returns[i] = (values[i] - values[i-1]) / values[i-1]
		}
	}
	return returns
}

// Calculate builds the full battery from the daily value path of a
// completed simulation. The path must be non-empty.
func (bc *BacktestCalculator) Calculate(values []float64) *types.BacktestMetrics {
	if len(values) == 0 {
		return &types.BacktestMetrics{}
	}
	returns := DailyReturns(values)

	initial, final := values[0], values[len(values)-1]
	totalReturn := 0.0
	if initial > 0 {
		totalReturn = (final - initial) / initial
	}
	bc.logger.Info("portfolio return computed",
		zap.Float64("initial_value", initial),
		zap.Float64("final_value", final),
		zap.Float64("total_return_pct", totalReturn*100))

	days := float64(len(returns))
	annualized := math.Pow(1+totalReturn, types.TradingDaysPerYear/days) - 1

	volatility := PopulationStd(returns) * math.Sqrt(types.TradingDaysPerYear)

	sharpe := 0.0
	if volatility > 0 {
		sharpe = annualized / volatility
	}

	maxDD := MaxDrawdown(returns)
	var95, var99, cvar95, cvar99 := bc.tailRisk(returns)
	winRate, plRatio := WinLoss(returns)

	return &types.BacktestMetrics{
		TotalReturn:      decimal.NewFromFloat(totalReturn),
		AnnualizedReturn: decimal.NewFromFloat(annualized),
		Volatility:       decimal.NewFromFloat(volatility),
		SharpeRatio:      decimal.NewFromFloat(sharpe),
		MaxDrawdown:      decimal.NewFromFloat(maxDD),
		VaR95:            decimal.NewFromFloat(var95),
		VaR99:            decimal.NewFromFloat(var99),
		CVaR95:           decimal.NewFromFloat(cvar95),
		CVaR99:           decimal.NewFromFloat(cvar99),
		WinRate:          decimal.NewFromFloat(winRate),
		ProfitLossRatio:  decimal.NewFromFloat(plRatio),
	}
}

// tailRisk runs the four tail estimators concurrently over one shared
// sorted copy of the sample.
func (bc *BacktestCalculator) tailRisk(returns []float64) (var95, var99, cvar95, cvar99 float64) {
	sorted := SortReturns(returns)

	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); var95 = SortedVaR(sorted, 0.05) }()
	go func() { defer wg.Done(); var99 = SortedVaR(sorted, 0.01) }()
	go func() { defer wg.Done(); cvar95 = SortedCVaR(sorted, 0.05) }()
	go func() { defer wg.Done(); cvar99 = SortedCVaR(sorted, 0.01) }()
	wg.Wait()
	return var95, var99, cvar95, cvar99
}
