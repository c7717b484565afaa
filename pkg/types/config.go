// Package types provides configuration types for the portfolio backend.
package types

import "time"

// TradingDaysPerYear is the annualization base for daily return series.
const TradingDaysPerYear = 252

// TradingDaysPerMonth is the step base for rolling windows.
const TradingDaysPerMonth = 21

// AnalysisConfig shapes the rolling-window optimization.
type AnalysisConfig struct {
	WindowYears    float64 `json:"windowYears"`
	StepMonths     float64 `json:"stepMonths"`
	BacktestMonths float64 `json:"backtestMonths"`
	MinWeight      float64 `json:"minWeight"`
	MaxWeight      float64 `json:"maxWeight"`
	// ReturnPremium is the minimum spread over the risk-free rate the
	// constrained solves demand before falling back.
	ReturnPremium float64 `json:"returnPremium"`
}

// DefaultAnalysisConfig returns the production window parameters.
func DefaultAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{
		WindowYears:    1,
		StepMonths:     0.5,
		BacktestMonths: 3,
		MinWeight:      0.05,
		MaxWeight:      1.0,
		ReturnPremium:  0.005,
	}
}

// WindowDays converts the window length to trading days.
func (c *AnalysisConfig) WindowDays() int {
	return int(TradingDaysPerYear * c.WindowYears)
}

// StepDays converts the step length to trading days.
func (c *AnalysisConfig) StepDays() int {
	return int(TradingDaysPerMonth * c.StepMonths)
}

// BacktestDays converts the forward evaluation length to trading days.
func (c *AnalysisConfig) BacktestDays() int {
	return int(TradingDaysPerMonth * c.BacktestMonths)
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host          string        `json:"host"`
	Port          int           `json:"port"`
	ReadTimeout   time.Duration `json:"readTimeout"`
	WriteTimeout  time.Duration `json:"writeTimeout"`
	EnableMetrics bool          `json:"enableMetrics"`
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:          "localhost",
		Port:          8080,
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  120 * time.Second,
		EnableMetrics: true,
	}
}

// DataConfig configures the market data store.
type DataConfig struct {
	DataDir string `json:"dataDir"`
}
