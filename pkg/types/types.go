// Package types provides shared type definitions for the portfolio backend.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// RuleCategory identifies a trading rule check.
type RuleCategory string

const (
	RuleBeta      RuleCategory = "BETA"
	RuleMDD       RuleCategory = "MDD"
	RuleVaR       RuleCategory = "VAR"
	RuleLossLimit RuleCategory = "LOSS_LIMIT"
	RuleOneProfit RuleCategory = "ONEPROFIT"
)

// RuleAction is the action recorded when a rule fires.
type RuleAction string

const (
	ActionStopLoss   RuleAction = "STOP_LOSS"
	ActionTakeProfit RuleAction = "TAKE_PROFIT"
)

// ResultStatus is the terminal state of a backtest run.
type ResultStatus string

const (
	StatusCompleted  ResultStatus = "COMPLETED"
	StatusLiquidated ResultStatus = "LIQUIDATED"
)

// PortfolioType distinguishes the portfolio variants in an analysis response.
type PortfolioType string

const (
	PortfolioUser            PortfolioType = "user"
	PortfolioMinDownsideRisk PortfolioType = "min_downside_risk"
	PortfolioMaxSortino      PortfolioType = "max_sortino"
)

// Market identifies the listing market of an instrument.
type Market string

const (
	MarketKOSPI  Market = "KOSPI"
	MarketKOSDAQ Market = "KOSDAQ"
	MarketOther  Market = "OTHER"
)

// RateTenor identifies a treasury reference rate series.
type RateTenor string

const (
	TenorTB1Y RateTenor = "TB1Y"
	TenorTB3Y RateTenor = "TB3Y"
	TenorTB5Y RateTenor = "TB5Y"
)

// Holding is one position in a portfolio. Quantity is mutated to zero only
// at a liquidation event; everything else is immutable for the run.
type Holding struct {
	Code      string           `json:"code"`
	Quantity  int64            `json:"quantity"`
	AvgPrice  *decimal.Decimal `json:"avg_price,omitempty"`
	CurrValue *decimal.Decimal `json:"current_value,omitempty"`
}

// TradingRule is a single (category, threshold) pair.
type TradingRule struct {
	Category  RuleCategory `json:"category"`
	Threshold float64      `json:"value"`
}

// TradingRules holds ordered stop-loss and take-profit rule lists.
// Evaluation order matters: first trigger wins.
type TradingRules struct {
	StopLoss   []TradingRule `json:"stopLoss,omitempty"`
	TakeProfit []TradingRule `json:"takeProfit,omitempty"`
}

// ExecutionLog records one trading-rule trigger. The list is append-only;
// a liquidating entry terminates the backtest it belongs to.
type ExecutionLog struct {
	Date           time.Time    `json:"date"`
	Action         RuleAction   `json:"action"`
	Category       RuleCategory `json:"category"`
	Value          float64      `json:"value"`
	Threshold      float64      `json:"threshold"`
	Reason         string       `json:"reason"`
	PortfolioValue float64      `json:"portfolio_value"`
}

// PriceRow is one raw daily close observation as delivered by the store.
type PriceRow struct {
	Code  string    `json:"code"`
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// BenchmarkRow is one daily benchmark index close.
type BenchmarkRow struct {
	IndexCode string    `json:"index_code"`
	Date      time.Time `json:"date"`
	Close     float64   `json:"close"`
}

// RateRow is one treasury rate observation. Rate is the annualized rate in
// percent (e.g. 3.26 for 3.26%).
type RateRow struct {
	Tenor RateTenor `json:"rate_type"`
	Date  time.Time `json:"date"`
	Rate  float64   `json:"rate"`
}

// Instrument is listing metadata used for benchmark selection.
type Instrument struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Market Market `json:"market"`
}

// AnalysisRequest asks for a rolling-window optimization analysis.
type AnalysisRequest struct {
	Holdings      []Holding `json:"holdings"`
	PortfolioID   int64     `json:"portfolio_id"`
	CallbackURL   string    `json:"callback_url,omitempty"`
	LookbackYears int       `json:"lookback_years,omitempty"`
	Benchmark     string    `json:"benchmark,omitempty"`
	RiskFreeRate  *float64  `json:"risk_free_rate,omitempty"`
}

// BacktestRequest asks for a day-by-day portfolio simulation.
type BacktestRequest struct {
	Start         time.Time     `json:"start"`
	End           time.Time     `json:"end"`
	Holdings      []Holding     `json:"holdings"`
	Rules         *TradingRules `json:"rules,omitempty"`
	RiskFreeRate  *float64      `json:"risk_free_rate,omitempty"`
	BenchmarkCode string        `json:"benchmark_code,omitempty"`
	BacktestID    *int64        `json:"backtest_id,omitempty"`
	CallbackURL   string        `json:"callback_url,omitempty"`
}
