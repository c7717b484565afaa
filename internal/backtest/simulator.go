package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantfolio/portfolio-backend/internal/metrics"
	"github.com/quantfolio/portfolio-backend/internal/timeseries"
	"github.com/quantfolio/portfolio-backend/pkg/types"
)

// defaultBenchmark backs a backtest whose request names no index.
const defaultBenchmark = "KOSPI"

// PriceSource supplies instrument close history for a simulation.
type PriceSource interface {
	PricesForCodes(ctx context.Context, codes []string, start, end time.Time) ([]types.PriceRow, error)
	AvailableRange(code string) (start, end time.Time, err error)
}

// MarketContext supplies the benchmark and risk-free context of a run.
type MarketContext interface {
	Returns(ctx context.Context, code string, start, end time.Time) (timeseries.Series, error)
	Closes(ctx context.Context, code string, start, end time.Time) (timeseries.Series, error)
	RiskFreeRate(ctx context.Context, start, end time.Time, userRate *float64) (float64, *types.RiskFreeRateInfo, error)
}

// Simulator runs fixed-quantity day-by-day backtests.
type Simulator struct {
	logger *zap.Logger
	prices PriceSource
	market MarketContext
	calc   *metrics.BacktestCalculator
}

// NewSimulator creates a backtest simulator.
func NewSimulator(logger *zap.Logger, prices PriceSource, market MarketContext) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{
		logger: logger,
		prices: prices,
		market: market,
		calc:   metrics.NewBacktestCalculator(logger),
	}
}

// Run executes one backtest request end to end: price loading, cost-basis
// resolution, the daily valuation loop with rule evaluation, and the
// metrics battery over the produced value path.
func (s *Simulator) Run(ctx context.Context, req *types.BacktestRequest) (*types.BacktestResponse, error) {
	started := time.Now()
	s.logger.Info("starting backtest",
		zap.Int("holdings", len(req.Holdings)),
		zap.Time("start", req.Start),
		zap.Time("end", req.End))

	codes := make([]string, len(req.Holdings))
	quantities := make(map[string]int64, len(req.Holdings))
	for i, h := range req.Holdings {
		codes[i] = h.Code
		quantities[h.Code] = h.Quantity
	}

	rows, err := s.prices.PricesForCodes(ctx, codes, req.Start, req.End)
	if err != nil {
		return nil, fmt.Errorf("price retrieval failed: %w", err)
	}
	if len(rows) == 0 {
		return nil, s.missingAll(req)
	}

	avgPrices, err := s.resolveCostBasis(req, rows)
	if err != nil {
		return nil, err
	}

	table := timeseries.BuildTable(rows, s.logger)
	table = table.Select(codes)
	if table.IsEmpty() {
		return nil, s.missingAll(req)
	}

	benchCode := req.BenchmarkCode
	if benchCode == "" {
		benchCode = defaultBenchmark
	}
	benchReturns, err := s.market.Returns(ctx, benchCode, req.Start, req.End)
	if err != nil {
		return nil, &types.UpstreamError{Source: "benchmark", Err: err}
	}
	if benchReturns.IsEmpty() {
		return nil, &types.UpstreamError{
			Source: "benchmark",
			Err:    fmt.Errorf("no benchmark returns for %s over requested period", benchCode),
		}
	}
	_, rfInfo, err := s.market.RiskFreeRate(ctx, req.Start, req.End, req.RiskFreeRate)
	if err != nil {
		return nil, &types.UpstreamError{Source: "risk_free", Err: err}
	}

	var evaluator *ruleEvaluator
	if req.Rules != nil {
		evaluator = newRuleEvaluator(s.logger, req.Rules, benchReturns)
	}

	var (
		history       []dayState
		summaries     []types.DailySummary
		executionLogs []types.ExecutionLog
		status        = types.StatusCompleted
	)

	for i, date := range table.Dates {
		individualReturns := make(map[string]float64)
		currentValue := 0.0
		for _, code := range table.Codes {
			price := table.At(i, code)
			if math.IsNaN(price) {
				continue
			}
			currentValue += price * float64(quantities[code])
			if basis, ok := avgPrices[code]; ok && basis > 0 {
				individualReturns[code] = (price - basis) / basis
			}
		}

		dailyReturn := 0.0
		if len(history) > 0 {
			if prev := history[len(history)-1].value; prev > 0 {
				dailyReturn = (currentValue - prev) / prev
			}
		}
		history = append(history, dayState{date: date, value: currentValue, dailyReturn: dailyReturn})

		if evaluator != nil {
			triggered, logs := evaluator.evaluate(date, history, individualReturns)
			if triggered {
				executionLogs = append(executionLogs, logs...)
				status = types.StatusLiquidated
				for code := range quantities {
					quantities[code] = 0
				}
				s.logger.Info("portfolio liquidated by trading rule",
					zap.Time("date", date),
					zap.String("category", string(logs[0].Category)))
				break
			}
		}

		summaries = append(summaries, s.dailySummary(table, i, date, quantities, avgPrices, currentValue, dailyReturn))
	}

	if len(summaries) == 0 {
		return nil, fmt.Errorf("backtest produced no daily results to evaluate")
	}

	summaryValues := make([]float64, len(summaries))
	for i, ds := range summaries {
		summaryValues[i] = ds.PortfolioValue
	}
	battery := s.calc.Calculate(summaryValues)
	benchMetrics := s.benchmarkMetrics(ctx, benchCode, req, benchReturns, summaries)

	snapshot := s.snapshot(req, history)
	execTime := time.Since(started).Seconds()

	s.logger.Info("backtest completed",
		zap.Float64("execution_time_s", execTime),
		zap.String("result_status", string(status)),
		zap.String("total_return", battery.TotalReturn.String()))

	return &types.BacktestResponse{
		Success:          true,
		Snapshot:         snapshot,
		Metrics:          battery,
		BenchmarkMetrics: benchMetrics,
		ResultSummary:    summaries,
		ExecutionLogs:    executionLogs,
		ResultStatus:     status,
		RiskFreeRateInfo: rfInfo,
		ExecutionTime:    execTime,
		BacktestID:       req.BacktestID,
		Timestamp:        time.Now().UTC(),
	}, nil
}

// resolveCostBasis maps every holding to its cost basis: the explicit
// average price when given, otherwise the first available close. A holding
// with neither is a MissingDataError carrying the stored range diagnostics.
func (s *Simulator) resolveCostBasis(req *types.BacktestRequest, rows []types.PriceRow) (map[string]float64, error) {
	firstClose := make(map[string]types.PriceRow)
	for _, r := range rows {
		if cur, ok := firstClose[r.Code]; !ok || r.Date.Before(cur.Date) {
			firstClose[r.Code] = r
		}
	}

	avgPrices := make(map[string]float64, len(req.Holdings))
	for _, h := range req.Holdings {
		if h.AvgPrice != nil {
			avgPrices[h.Code] = h.AvgPrice.InexactFloat64()
			continue
		}
		first, ok := firstClose[h.Code]
		if !ok {
			s.logger.Error("no price data found for holding", zap.String("code", h.Code))
			return nil, s.missingOne(req, h.Code)
		}
		avgPrices[h.Code] = first.Close
		s.logger.Info("using first trading day close as cost basis",
			zap.String("code", h.Code),
			zap.Float64("price", first.Close),
			zap.Time("date", first.Date))
	}
	return avgPrices, nil
}

func (s *Simulator) dailySummary(
	table *timeseries.Table,
	row int,
	date time.Time,
	quantities map[string]int64,
	avgPrices map[string]float64,
	portfolioValue, dailyReturn float64,
) types.DailySummary {
	var stocks []types.StockDailyData
	for _, code := range table.Codes {
		price := table.At(row, code)
		if math.IsNaN(price) {
			continue
		}
		value := price * float64(quantities[code])
		weight := 0.0
		if portfolioValue > 0 {
			weight = value / portfolioValue
		}
		sinceCost := 0.0
		if basis, ok := avgPrices[code]; ok && basis > 0 {
			sinceCost = (price - basis) / basis
		}
		contribution := 0.0
		if weight > 0 {
			contribution = dailyReturn * weight
		}
		stocks = append(stocks, types.StockDailyData{
			Code:                  code,
			Date:                  date.Format("2006-01-02"),
			ClosePrice:            price,
			ReturnSinceCost:       sinceCost,
			PortfolioWeight:       weight,
			PortfolioContribution: contribution,
			Quantity:              quantities[code],
			AvgPrice:              avgPrices[code],
		})
	}
	return types.DailySummary{
		Date:           date.Format("2006-01-02"),
		Stocks:         stocks,
		PortfolioValue: portfolioValue,
	}
}

// benchmarkMetrics builds the benchmark comparison block; any failure
// degrades to nil rather than failing the run.
func (s *Simulator) benchmarkMetrics(
	ctx context.Context,
	benchCode string,
	req *types.BacktestRequest,
	benchReturns timeseries.Series,
	summaries []types.DailySummary,
) *types.BenchmarkMetrics {
	if benchReturns.IsEmpty() {
		return nil
	}

	cumulative := 1.0
	for _, r := range benchReturns.Values {
		cumulative *= 1 + r
	}
	totalReturn := (cumulative - 1) * 100
	volatility := metrics.SampleStd(benchReturns.Values) * math.Sqrt(types.TradingDaysPerYear) * 100

	maxPrice, minPrice := 0.0, 0.0
	if closes, err := s.market.Closes(ctx, benchCode, req.Start, req.End); err == nil && !closes.IsEmpty() {
		maxPrice, minPrice = closes.Values[0], closes.Values[0]
		for _, p := range closes.Values {
			if p > maxPrice {
				maxPrice = p
			}
			if p < minPrice {
				minPrice = p
			}
		}
	} else if err != nil {
		s.logger.Error("failed to get benchmark prices", zap.Error(err))
	}

	portReturns := make([]float64, len(summaries))
	for i, ds := range summaries {
		var daily float64
		for _, stock := range ds.Stocks {
			daily += stock.PortfolioContribution
		}
		portReturns[i] = daily
	}

	alpha := 0.0
	if len(portReturns) == benchReturns.Len() {
		alpha = (metrics.Mean(portReturns) - metrics.Mean(benchReturns.Values)) * types.TradingDaysPerYear * 100
	}

	return &types.BenchmarkMetrics{
		BenchmarkTotalReturn:  totalReturn,
		BenchmarkVolatility:   volatility,
		BenchmarkMaxPrice:     maxPrice,
		BenchmarkMinPrice:     minPrice,
		Alpha:                 alpha,
		BenchmarkDailyAverage: metrics.Mean(benchReturns.Values) * 100,
	}
}

func (s *Simulator) snapshot(req *types.BacktestRequest, history []dayState) types.PortfolioSnapshot {
	portfolioID := time.Now().Unix()
	if req.BacktestID != nil {
		portfolioID = *req.BacktestID
	}

	holdings := make([]types.HoldingSnapshot, len(req.Holdings))
	for i, h := range req.Holdings {
		holdings[i] = types.HoldingSnapshot{ID: i + 1, StockID: h.Code, Quantity: h.Quantity}
	}

	snap := types.PortfolioSnapshot{
		PortfolioID: portfolioID,
		StartAt:     req.Start,
		EndAt:       req.End,
		CreatedAt:   time.Now().UTC(),
		Holdings:    holdings,
	}
	if len(history) > 0 {
		snap.BaseValue = decimal.NewFromFloat(history[0].value)
		snap.CurrentValue = decimal.NewFromFloat(history[len(history)-1].value)
		snap.StartAt = history[0].date
		snap.EndAt = history[len(history)-1].date
	}
	return snap
}

// missingAll reports every holding as missing over the requested period.
func (s *Simulator) missingAll(req *types.BacktestRequest) error {
	period := fmt.Sprintf("%s ~ %s", req.Start.Format("2006-01-02"), req.End.Format("2006-01-02"))
	missing := make([]types.MissingInstrument, len(req.Holdings))
	for i, h := range req.Holdings {
		missing[i] = s.missingInstrument(h.Code, req)
	}
	return &types.MissingDataError{
		Instruments:     missing,
		RequestedPeriod: period,
		TotalRequested:  len(req.Holdings),
	}
}

func (s *Simulator) missingOne(req *types.BacktestRequest, code string) error {
	period := fmt.Sprintf("%s ~ %s", req.Start.Format("2006-01-02"), req.End.Format("2006-01-02"))
	return &types.MissingDataError{
		Instruments:     []types.MissingInstrument{s.missingInstrument(code, req)},
		RequestedPeriod: period,
		TotalRequested:  1,
	}
}

func (s *Simulator) missingInstrument(code string, req *types.BacktestRequest) types.MissingInstrument {
	mi := types.MissingInstrument{
		Code:           code,
		RequestedStart: req.Start,
		RequestedEnd:   req.End,
	}
	if from, to, err := s.prices.AvailableRange(code); err == nil {
		mi.AvailableFrom = &from
		mi.AvailableTo = &to
	}
	return mi
}
