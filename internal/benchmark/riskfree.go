package benchmark

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quantfolio/portfolio-backend/pkg/types"
)

// Treasury tenor cutoffs in calendar days.
const (
	tenorCutoff1Y = 365
	tenorCutoff3Y = 1095
)

// SelectTenor picks the treasury series whose maturity best matches the
// analysis horizon.
func SelectTenor(start, end time.Time) types.RateTenor {
	days := int(end.Sub(start).Hours() / 24)
	switch {
	case days < tenorCutoff1Y:
		return types.TenorTB1Y
	case days < tenorCutoff3Y:
		return types.TenorTB3Y
	default:
		return types.TenorTB5Y
	}
}

// RiskFreeRate resolves the annualized risk-free rate for a period. A
// user-supplied rate is passed through verbatim; otherwise the matching
// treasury tenor is averaged over the period. A retrieval failure is
// returned as an error for the caller to decide on; genuine absence of
// tenor data for the period degrades to 0.0 with a warning.
func (s *Service) RiskFreeRate(ctx context.Context, start, end time.Time, userRate *float64) (float64, *types.RiskFreeRateInfo, error) {
	if userRate != nil {
		s.logger.Info("using user-specified risk-free rate", zap.Float64("rate", *userRate))
		return *userRate, &types.RiskFreeRateInfo{
			RateType:        "USER_PROVIDED",
			AnnualRate:      *userRate,
			SelectionReason: "user_specified",
		}, nil
	}

	tenor := SelectTenor(start, end)
	days := int(end.Sub(start).Hours() / 24)
	info := &types.RiskFreeRateInfo{
		RateType:        string(tenor),
		SelectionReason: fmt.Sprintf("auto_selected_by_period_%d_days", days),
	}

	rows, err := s.source.Rates(ctx, tenor, start, end)
	if err != nil {
		s.logger.Error("treasury rate retrieval failed", zap.Error(err))
		return 0.0, info, fmt.Errorf("treasury rate retrieval for %s failed: %w", tenor, err)
	}
	if len(rows) == 0 {
		s.logger.Warn("no treasury data available, defaulting risk-free rate to 0",
			zap.String("tenor", string(tenor)))
		return 0.0, info, nil
	}

	var sum float64
	for _, r := range rows {
		sum += r.Rate
	}
	// Stored rates are annual percentages; average then scale to a ratio.
	annualRate := sum / float64(len(rows)) / 100

	s.logger.Info("risk-free rate calculated",
		zap.String("tenor", string(tenor)),
		zap.Int("data_points", len(rows)),
		zap.Float64("annual_rate", annualRate))

	info.AnnualRate = annualRate
	return annualRate, info, nil
}
