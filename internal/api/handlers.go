package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/quantfolio/portfolio-backend/pkg/types"
)

// errorBody is the JSON error envelope for every failed request.
type errorBody struct {
	Error    string      `json:"error"`
	Problems []string    `json:"problems,omitempty"`
	Details  interface{} `json:"details,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Unix(),
	}
	if s.pool != nil {
		resp["pool"] = s.pool.Stats()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req types.AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "analysis", started, &types.ValidationError{Problems: []string{"invalid request body: " + err.Error()}})
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, "analysis", started, err)
		return
	}

	if req.CallbackURL != "" {
		s.submitJob(w, "analysis", req.CallbackURL, func(ctx context.Context) (interface{}, error) {
			return s.analysis.Run(ctx, &req)
		})
		return
	}

	resp, err := s.analysis.Run(r.Context(), &req)
	if err != nil {
		s.writeError(w, "analysis", started, err)
		return
	}
	observeRequest("analysis", http.StatusOK, started)
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req types.BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "backtest", started, &types.ValidationError{Problems: []string{"invalid request body: " + err.Error()}})
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, "backtest", started, err)
		return
	}

	if req.CallbackURL != "" {
		s.submitJob(w, "backtest", req.CallbackURL, func(ctx context.Context) (interface{}, error) {
			return s.backtest.Run(ctx, &req)
		})
		return
	}

	resp, err := s.backtest.Run(r.Context(), &req)
	if err != nil {
		s.writeError(w, "backtest", started, err)
		return
	}
	observeRequest("backtest", http.StatusOK, started)
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, ok := s.getJob(id)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: "job not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

// submitJob queues an asynchronous run and answers immediately with the
// job handle. The result is delivered to the callback URL and kept in the
// job table for polling.
func (s *Server) submitJob(w http.ResponseWriter, kind, callbackURL string, run func(ctx context.Context) (interface{}, error)) {
	job := &JobState{
		ID:      uuid.New().String(),
		Kind:    kind,
		Status:  JobPending,
		Started: time.Now().UTC(),
	}
	s.putJob(job)

	err := s.pool.SubmitFunc(func() error {
		s.setJobStatus(job.ID, JobRunning)
		jobStarted := time.Now()

		result, runErr := run(context.Background())
		s.finishJob(job.ID, result, runErr)
		observeJob(kind, runErr == nil, jobStarted)

		s.deliverCallback(callbackURL, job.ID, kind, result, runErr)
		return runErr
	})
	if err != nil {
		s.mu.Lock()
		delete(s.jobs, job.ID)
		s.mu.Unlock()
		s.logger.Warn("job submission rejected", zap.String("kind", kind), zap.Error(err))
		s.writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
		return
	}

	s.logger.Info("job accepted",
		zap.String("job_id", job.ID),
		zap.String("kind", kind),
		zap.String("callback_url", callbackURL))
	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":  job.ID,
		"status":  JobPending,
		"started": job.Started,
	})
}

// deliverCallback POSTs the run outcome to the caller's URL. Delivery is
// best effort; a failure is logged and the result stays pollable.
func (s *Server) deliverCallback(url, jobID, kind string, result interface{}, runErr error) {
	payload := map[string]interface{}{
		"job_id": jobID,
		"kind":   kind,
	}
	if runErr != nil {
		payload["success"] = false
		payload["error"] = runErr.Error()
	} else {
		payload["success"] = true
		payload["result"] = result
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("callback payload marshal failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	resp, err := s.callbacks.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		s.logger.Error("callback delivery failed",
			zap.String("job_id", jobID),
			zap.String("url", url),
			zap.Error(err))
		return
	}
	defer resp.Body.Close()
	s.logger.Info("callback delivered",
		zap.String("job_id", jobID),
		zap.String("url", url),
		zap.Int("status", resp.StatusCode))
}

// writeError maps domain errors onto HTTP statuses: invalid input is 400,
// missing market data 404, short history 422, upstream feeds 502.
func (s *Server) writeError(w http.ResponseWriter, endpoint string, started time.Time, err error) {
	var (
		validation   *types.ValidationError
		missing      *types.MissingDataError
		insufficient *types.InsufficientDataError
		upstream     *types.UpstreamError
	)
	status := http.StatusInternalServerError
	body := errorBody{Error: err.Error()}

	switch {
	case errors.As(err, &validation):
		status = http.StatusBadRequest
		body.Problems = validation.Problems
	case errors.As(err, &missing):
		status = http.StatusNotFound
		body.Details = missing.Instruments
	case errors.As(err, &insufficient):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &upstream):
		status = http.StatusBadGateway
	}

	s.logger.Warn("request failed",
		zap.String("endpoint", endpoint),
		zap.Int("status", status),
		zap.Error(err))
	observeRequest(endpoint, status, started)
	s.writeJSON(w, status, body)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("response encoding failed", zap.Error(err))
	}
}
