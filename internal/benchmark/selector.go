// Package benchmark decides which index a portfolio should be measured
// against, loads its return series, and resolves the risk-free rate for an
// analysis period.
package benchmark

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quantfolio/portfolio-backend/internal/timeseries"
	"github.com/quantfolio/portfolio-backend/pkg/types"
)

// DefaultBenchmark is used when no market clearly dominates a portfolio or
// no listing metadata is available.
const DefaultBenchmark = "KOSPI"

// dominanceShare is the market share at which an index is chosen outright.
const dominanceShare = 0.6

// MarketSource resolves listing metadata and index history.
type MarketSource interface {
	Instruments(ctx context.Context, codes []string) ([]types.Instrument, error)
	BenchmarkCloses(ctx context.Context, code string, start, end time.Time) ([]types.BenchmarkRow, error)
	Rates(ctx context.Context, tenor types.RateTenor, start, end time.Time) ([]types.RateRow, error)
}

// Service selects benchmarks and risk-free rates for analyses.
type Service struct {
	logger *zap.Logger
	source MarketSource
}

// NewService creates a benchmark service.
func NewService(logger *zap.Logger, source MarketSource) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger, source: source}
}

// Determine picks the benchmark index for a set of holdings by market
// composition: a market holding at least 60% of the instruments wins, then
// the larger share wins, then KOSPI.
func (s *Service) Determine(ctx context.Context, holdings []types.Holding) string {
	if len(holdings) == 0 {
		return DefaultBenchmark
	}

	codes := make([]string, len(holdings))
	for i, h := range holdings {
		codes[i] = h.Code
	}

	instruments, err := s.source.Instruments(ctx, codes)
	if err != nil {
		s.logger.Error("failed to resolve listing metadata", zap.Error(err))
		return DefaultBenchmark
	}

	counts := map[types.Market]int{}
	for _, inst := range instruments {
		switch inst.Market {
		case types.MarketKOSPI, types.MarketKOSDAQ:
			counts[inst.Market]++
		default:
			counts[types.MarketOther]++
		}
	}

	selected := selectByShare(counts)
	s.logger.Info("benchmark determined",
		zap.Int("portfolio_size", len(holdings)),
		zap.Any("market_distribution", counts),
		zap.String("selected_benchmark", selected))
	return selected
}

func selectByShare(counts map[types.Market]int) string {
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return DefaultBenchmark
	}

	kospiShare := float64(counts[types.MarketKOSPI]) / float64(total)
	kosdaqShare := float64(counts[types.MarketKOSDAQ]) / float64(total)

	switch {
	case kospiShare >= dominanceShare:
		return "KOSPI"
	case kosdaqShare >= dominanceShare:
		return "KOSDAQ"
	case kospiShare > kosdaqShare:
		return "KOSPI"
	case kosdaqShare > kospiShare:
		return "KOSDAQ"
	default:
		return DefaultBenchmark
	}
}

// Closes loads an index's raw close series over [start, end]. Missing
// history yields an empty series.
func (s *Service) Closes(ctx context.Context, code string, start, end time.Time) (timeseries.Series, error) {
	rows, err := s.source.BenchmarkCloses(ctx, code, start, end)
	if err != nil {
		return timeseries.Series{}, fmt.Errorf("benchmark retrieval failed for %s: %w", code, err)
	}
	dates := make([]time.Time, len(rows))
	closes := make([]float64, len(rows))
	for i, r := range rows {
		dates[i] = r.Date
		closes[i] = r.Close
	}
	return timeseries.NewSeries(dates, closes), nil
}

// Returns loads an index's daily return series over [start, end]. Missing
// history yields an empty series with a warning, never an error: callers
// degrade to benchmark-free metrics.
func (s *Service) Returns(ctx context.Context, code string, start, end time.Time) (timeseries.Series, error) {
	rows, err := s.source.BenchmarkCloses(ctx, code, start, end)
	if err != nil {
		return timeseries.Series{}, fmt.Errorf("benchmark retrieval failed for %s: %w", code, err)
	}
	if len(rows) == 0 {
		s.logger.Warn("no benchmark data found",
			zap.String("benchmark_code", code),
			zap.Time("start", start),
			zap.Time("end", end))
		return timeseries.Series{}, nil
	}

	dates := make([]time.Time, len(rows))
	closes := make([]float64, len(rows))
	for i, r := range rows {
		dates[i] = r.Date
		closes[i] = r.Close
	}
	returns := timeseries.NewSeries(dates, closes).PctChange()

	s.logger.Info("benchmark returns retrieved",
		zap.String("benchmark_code", code),
		zap.Int("data_points", returns.Len()))
	return returns, nil
}
