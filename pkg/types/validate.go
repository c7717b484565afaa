package types

import "fmt"

// MaxAnalysisHoldings bounds the analysis portfolio size. The optimizer
// enforces a 5% minimum weight per instrument, so more than 20 instruments
// makes the bound constraints infeasible.
const MaxAnalysisHoldings = 20

var validRuleCategories = map[RuleCategory]RuleAction{
	RuleBeta:      ActionStopLoss,
	RuleMDD:       ActionStopLoss,
	RuleVaR:       ActionStopLoss,
	RuleLossLimit: ActionStopLoss,
	RuleOneProfit: ActionTakeProfit,
}

func validateHoldings(holdings []Holding) []string {
	var errs []string
	if len(holdings) == 0 {
		errs = append(errs, "holdings must not be empty")
	}
	for _, h := range holdings {
		if h.Code == "" {
			errs = append(errs, "holding with empty instrument code")
		}
		if h.Quantity < 1 {
			errs = append(errs, fmt.Sprintf("quantity must be positive for %s", h.Code))
		}
		if h.AvgPrice != nil && h.AvgPrice.IsNegative() {
			errs = append(errs, fmt.Sprintf("avg_price must not be negative for %s", h.Code))
		}
	}
	return errs
}

// Validate checks structural validity of an analysis request.
func (r *AnalysisRequest) Validate() error {
	errs := validateHoldings(r.Holdings)
	if len(r.Holdings) > MaxAnalysisHoldings {
		errs = append(errs, fmt.Sprintf("at most %d holdings supported (5%% minimum weight constraint), got %d",
			MaxAnalysisHoldings, len(r.Holdings)))
	}
	if r.LookbackYears < 0 || r.LookbackYears > 10 {
		errs = append(errs, fmt.Sprintf("lookback_years must be unset or in [1,10], got %d", r.LookbackYears))
	}
	if len(errs) > 0 {
		return &ValidationError{Problems: errs}
	}
	return nil
}

// Validate checks structural validity of a backtest request.
func (r *BacktestRequest) Validate() error {
	errs := validateHoldings(r.Holdings)
	if !r.Start.Before(r.End) {
		errs = append(errs, fmt.Sprintf("start date %s must be before end date %s",
			r.Start.Format("2006-01-02"), r.End.Format("2006-01-02")))
	}
	if r.Rules != nil {
		for _, rule := range r.Rules.StopLoss {
			if action, ok := validRuleCategories[rule.Category]; !ok || action != ActionStopLoss {
				errs = append(errs, fmt.Sprintf("unknown stop-loss rule category %q", rule.Category))
			}
		}
		for _, rule := range r.Rules.TakeProfit {
			if action, ok := validRuleCategories[rule.Category]; !ok || action != ActionTakeProfit {
				errs = append(errs, fmt.Sprintf("unknown take-profit rule category %q", rule.Category))
			}
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Problems: errs}
	}
	return nil
}
