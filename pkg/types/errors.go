package types

import (
	"fmt"
	"strings"
	"time"
)

// MissingInstrument describes one instrument with no usable price history
// for the requested period, plus whatever range the store does have.
type MissingInstrument struct {
	Code           string     `json:"stock_code"`
	RequestedStart time.Time  `json:"start_date"`
	RequestedEnd   time.Time  `json:"end_date"`
	AvailableFrom  *time.Time `json:"available_from,omitempty"`
	AvailableTo    *time.Time `json:"available_to,omitempty"`
}

// MissingDataError reports required price history absent for one or more
// instruments. Raised rather than defaulted: the caller needs the detail to
// tell the end user which instruments and periods are the problem.
type MissingDataError struct {
	Instruments     []MissingInstrument
	RequestedPeriod string
	TotalRequested  int
}

func (e *MissingDataError) Error() string {
	codes := make([]string, 0, len(e.Instruments))
	for _, m := range e.Instruments {
		codes = append(codes, m.Code)
	}
	return fmt.Sprintf("no price data for %d/%d instruments (%s) over %s",
		len(e.Instruments), e.TotalRequested, strings.Join(codes, ", "), e.RequestedPeriod)
}

// InsufficientDataError reports that data exists but is too short for a
// calculation that has no defined fallback.
type InsufficientDataError struct {
	ActualDays   int
	RequiredDays int
	Context      string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: need at least %d days, got %d",
		e.Context, e.RequiredDays, e.ActualDays)
}

// ValidationError reports structurally invalid caller input. Surfaced
// immediately, never silently corrected.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "validation failed: " + e.Problems[0]
	}
	return fmt.Sprintf("validation failed: %d problems: %s",
		len(e.Problems), strings.Join(e.Problems, "; "))
}

// UpstreamError reports a failure retrieving benchmark or risk-free data.
// Fatal for backtests (trading rules depend on it); the analysis path
// degrades the affected outputs instead.
type UpstreamError struct {
	Source string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("failed to retrieve %s data: %v", e.Source, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
