// Package api provides the HTTP server for analysis and backtest runs.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/quantfolio/portfolio-backend/internal/workers"
	"github.com/quantfolio/portfolio-backend/pkg/types"
)

// AnalysisRunner executes one analysis request.
type AnalysisRunner interface {
	Run(ctx context.Context, req *types.AnalysisRequest) (*types.AnalysisResponse, error)
}

// BacktestRunner executes one backtest request.
type BacktestRunner interface {
	Run(ctx context.Context, req *types.BacktestRequest) (*types.BacktestResponse, error)
}

// JobStatus is the lifecycle state of an asynchronous run.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// JobState tracks one asynchronous analysis or backtest.
type JobState struct {
	ID      string      `json:"id"`
	Kind    string      `json:"kind"`
	Status  JobStatus   `json:"status"`
	Started time.Time   `json:"started"`
	Result  interface{} `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Server is the HTTP API server.
type Server struct {
	mu         sync.RWMutex
	logger     *zap.Logger
	config     *types.ServerConfig
	router     *mux.Router
	httpServer *http.Server
	analysis   AnalysisRunner
	backtest   BacktestRunner
	pool       *workers.Pool
	callbacks  *http.Client
	jobs       map[string]*JobState
}

// NewServer creates the API server.
func NewServer(
	logger *zap.Logger,
	config *types.ServerConfig,
	analysisRunner AnalysisRunner,
	backtestRunner BacktestRunner,
	pool *workers.Pool,
) *Server {
	if config == nil {
		config = types.DefaultServerConfig()
	}
	server := &Server{
		logger:    logger,
		config:    config,
		router:    mux.NewRouter(),
		analysis:  analysisRunner,
		backtest:  backtestRunner,
		pool:      pool,
		callbacks: &http.Client{Timeout: 10 * time.Second},
		jobs:      make(map[string]*JobState),
	}
	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/v1/analysis", s.handleAnalysis).Methods("POST")
	s.router.HandleFunc("/api/v1/backtest", s.handleBacktest).Methods("POST")
	s.router.HandleFunc("/api/v1/jobs/{id}", s.handleGetJob).Methods("GET")
	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}
}

// Handler returns the CORS-wrapped root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.logger.Info("starting API server", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) putJob(job *JobState) {
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
}

func (s *Server) setJobStatus(id string, status JobStatus) {
	s.mu.Lock()
	if job, ok := s.jobs[id]; ok {
		job.Status = status
	}
	s.mu.Unlock()
}

func (s *Server) finishJob(id string, result interface{}, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return
	}
	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
		return
	}
	job.Status = JobCompleted
	job.Result = result
}

// getJob returns a copy so callers can serialize it without holding the
// lock against a concurrent finishJob.
func (s *Server) getJob(id string) (JobState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return JobState{}, false
	}
	return *job, true
}
