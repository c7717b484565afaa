// Package main provides the entry point for the portfolio backend server:
// rolling-window portfolio optimization, the analysis metrics engine, and
// the rule-driven backtest simulator behind one HTTP API.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/quantfolio/portfolio-backend/internal/analysis"
	"github.com/quantfolio/portfolio-backend/internal/api"
	"github.com/quantfolio/portfolio-backend/internal/backtest"
	"github.com/quantfolio/portfolio-backend/internal/benchmark"
	"github.com/quantfolio/portfolio-backend/internal/data"
	"github.com/quantfolio/portfolio-backend/internal/workers"
	"github.com/quantfolio/portfolio-backend/pkg/types"
)

func main() {
	configFile := flag.String("config", "", "Config file path (optional)")
	host := flag.String("host", "", "Server host (overrides config)")
	port := flag.Int("port", 0, "Server port (overrides config)")
	dataDir := flag.String("data", "", "Data directory (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		panic(err)
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dataDir != "" {
		cfg.Data.DataDir = *dataDir
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := setupLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting portfolio backend",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("data_dir", cfg.Data.DataDir),
	)

	store, err := data.NewStore(logger, cfg.Data.DataDir)
	if err != nil {
		logger.Fatal("failed to initialize data store", zap.Error(err))
	}

	market := benchmark.NewService(logger, store)
	analysisService := analysis.NewService(logger, &cfg.Analysis, store, market)
	simulator := backtest.NewSimulator(logger, store, market)

	pool := workers.NewPool(logger, workers.DefaultPoolConfig("jobs"))
	pool.Start()

	server := api.NewServer(logger, &cfg.Server, analysisService, simulator, pool)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server stopped", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("server shutdown failed", zap.Error(err))
	}
	if err := pool.Stop(); err != nil {
		logger.Warn("worker pool shutdown failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// appConfig is the full server configuration, populated from defaults,
// then an optional config file, then PORTFOLIO_* environment variables.
type appConfig struct {
	Server   types.ServerConfig   `mapstructure:"server"`
	Data     types.DataConfig     `mapstructure:"data"`
	Analysis types.AnalysisConfig `mapstructure:"analysis"`
	LogLevel string               `mapstructure:"logLevel"`
}

func loadConfig(path string) (*appConfig, error) {
	v := viper.New()

	server := types.DefaultServerConfig()
	analysisCfg := types.DefaultAnalysisConfig()
	v.SetDefault("server.host", server.Host)
	v.SetDefault("server.port", server.Port)
	v.SetDefault("server.readTimeout", server.ReadTimeout)
	v.SetDefault("server.writeTimeout", server.WriteTimeout)
	v.SetDefault("server.enableMetrics", server.EnableMetrics)
	v.SetDefault("data.dataDir", "./data")
	v.SetDefault("analysis.windowYears", analysisCfg.WindowYears)
	v.SetDefault("analysis.stepMonths", analysisCfg.StepMonths)
	v.SetDefault("analysis.backtestMonths", analysisCfg.BacktestMonths)
	v.SetDefault("analysis.minWeight", analysisCfg.MinWeight)
	v.SetDefault("analysis.maxWeight", analysisCfg.MaxWeight)
	v.SetDefault("analysis.returnPremium", analysisCfg.ReturnPremium)
	v.SetDefault("logLevel", "info")

	v.SetEnvPrefix("PORTFOLIO")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg appConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
