// Package backtest simulates a fixed-quantity portfolio day by day over
// historical closes, applying stop-loss and take-profit rules.
package backtest

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/quantfolio/portfolio-backend/internal/metrics"
	"github.com/quantfolio/portfolio-backend/internal/timeseries"
	"github.com/quantfolio/portfolio-backend/pkg/types"
)

// Minimum history each rule needs before it can fire.
const (
	minBetaHistory = 2
	minMDDHistory  = 2
	minVaRHistory  = 10
)

// dayState is one simulated day the rule evaluator can look back on.
type dayState struct {
	date        time.Time
	value       float64
	dailyReturn float64
}

// ruleEvaluator applies the configured trading rules to the running
// simulation state. Stop-loss rules run before take-profit rules; within a
// list, the first trigger wins and liquidates the portfolio.
type ruleEvaluator struct {
	logger    *zap.Logger
	rules     *types.TradingRules
	benchmark timeseries.Series
}

func newRuleEvaluator(logger *zap.Logger, rules *types.TradingRules, benchmark timeseries.Series) *ruleEvaluator {
	return &ruleEvaluator{logger: logger, rules: rules, benchmark: benchmark}
}

// evaluate checks every rule against the history up to and including the
// current day. It returns the triggered logs (at most one) and whether the
// portfolio must liquidate.
func (e *ruleEvaluator) evaluate(
	date time.Time,
	history []dayState,
	individualReturns map[string]float64,
) (bool, []types.ExecutionLog) {
	if e.rules == nil {
		return false, nil
	}
	currentValue := 0.0
	if len(history) > 0 {
		currentValue = history[len(history)-1].value
	}

	for _, rule := range e.rules.StopLoss {
		triggered, value := e.checkStopLoss(rule, history)
		if triggered {
			return true, []types.ExecutionLog{{
				Date:           date,
				Action:         types.ActionStopLoss,
				Category:       rule.Category,
				Value:          value,
				Threshold:      rule.Threshold,
				Reason:         fmt.Sprintf("%s stop loss: %.4f breached %.4f", rule.Category, value, rule.Threshold),
				PortfolioValue: currentValue,
			}}
		}
	}
	for _, rule := range e.rules.TakeProfit {
		triggered, value := e.checkTakeProfit(rule, individualReturns)
		if triggered {
			return true, []types.ExecutionLog{{
				Date:           date,
				Action:         types.ActionTakeProfit,
				Category:       rule.Category,
				Value:          value,
				Threshold:      rule.Threshold,
				Reason:         fmt.Sprintf("%s take profit: %.4f exceeded %.4f", rule.Category, value, rule.Threshold),
				PortfolioValue: currentValue,
			}}
		}
	}
	return false, nil
}

func (e *ruleEvaluator) checkStopLoss(rule types.TradingRule, history []dayState) (bool, float64) {
	switch rule.Category {
	case types.RuleBeta:
		return e.checkBeta(history, rule.Threshold)
	case types.RuleMDD:
		return e.checkMDD(history, rule.Threshold)
	case types.RuleVaR:
		return e.checkVaR(history, rule.Threshold)
	case types.RuleLossLimit:
		return e.checkLossLimit(history, rule.Threshold)
	default:
		e.logger.Warn("unknown stop loss category", zap.String("category", string(rule.Category)))
		return false, 0
	}
}

func (e *ruleEvaluator) checkTakeProfit(rule types.TradingRule, individualReturns map[string]float64) (bool, float64) {
	switch rule.Category {
	case types.RuleOneProfit:
		return e.checkOneProfit(individualReturns, rule.Threshold)
	default:
		e.logger.Warn("unknown take profit category", zap.String("category", string(rule.Category)))
		return false, 0
	}
}

// checkBeta fires when the absolute portfolio beta against the benchmark
// exceeds the threshold. Both series need at least two observations; they
// are truncated to their common tail length first.
func (e *ruleEvaluator) checkBeta(history []dayState, threshold float64) (bool, float64) {
	if e.benchmark.IsEmpty() || len(history) < minBetaHistory || e.benchmark.Len() < minBetaHistory {
		return false, 0
	}

	n := len(history)
	if e.benchmark.Len() < n {
		n = e.benchmark.Len()
	}
	port := make([]float64, n)
	for i := 0; i < n; i++ {
		port[i] = history[len(history)-n+i].dailyReturn
	}
	bench := e.benchmark.Slice(e.benchmark.Len()-n, e.benchmark.Len()).Values

	benchVar := metrics.PopulationVariance(bench)
	beta := 1.0
	if benchVar > 0 {
		beta = stat.Covariance(port, bench, nil) / benchVar
	}
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return false, 0
	}
	return math.Abs(beta) > threshold, math.Abs(beta)
}

// checkMDD fires when the running maximum drawdown exceeds the threshold.
func (e *ruleEvaluator) checkMDD(history []dayState, threshold float64) (bool, float64) {
	if len(history) < minMDDHistory {
		return false, 0
	}
	returns := make([]float64, len(history))
	for i := 1; i < len(history); i++ {
		if prev := history[i-1].value; prev != 0 {
			returns[i] = (history[i].value - prev) / prev
		}
	}
	maxDD := math.Abs(metrics.MaxDrawdown(returns))
	return maxDD > threshold, maxDD
}

// checkVaR fires when the absolute historical 95% VaR of the daily returns
// exceeds the threshold. Requires ten days of history.
func (e *ruleEvaluator) checkVaR(history []dayState, threshold float64) (bool, float64) {
	if len(history) < minVaRHistory {
		return false, 0
	}
	returns := make([]float64, len(history))
	for i, h := range history {
		returns[i] = h.dailyReturn
	}
	varAbs := math.Abs(metrics.Percentile(returns, 5))
	return varAbs > threshold, varAbs
}

// checkLossLimit fires when the total return since the first simulated day
// falls below the (negative) threshold.
func (e *ruleEvaluator) checkLossLimit(history []dayState, threshold float64) (bool, float64) {
	if len(history) < 1 {
		return false, 0
	}
	initial := history[0].value
	if initial <= 0 {
		return false, 0
	}
	current := history[len(history)-1].value
	totalReturn := (current - initial) / initial
	return totalReturn < threshold, totalReturn
}

// checkOneProfit fires when any single position's return since its cost
// basis exceeds the threshold.
func (e *ruleEvaluator) checkOneProfit(individualReturns map[string]float64, threshold float64) (bool, float64) {
	if len(individualReturns) == 0 {
		return false, 0
	}
	maxReturn := math.Inf(-1)
	for _, r := range individualReturns {
		if r > maxReturn {
			maxReturn = r
		}
	}
	return maxReturn > threshold, maxReturn
}
