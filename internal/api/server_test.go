package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/quantfolio/portfolio-backend/internal/workers"
	"github.com/quantfolio/portfolio-backend/pkg/types"
)

type fakeAnalysis struct {
	resp *types.AnalysisResponse
	err  error
}

func (f *fakeAnalysis) Run(ctx context.Context, req *types.AnalysisRequest) (*types.AnalysisResponse, error) {
	return f.resp, f.err
}

type fakeBacktest struct {
	resp *types.BacktestResponse
	err  error
}

func (f *fakeBacktest) Run(ctx context.Context, req *types.BacktestRequest) (*types.BacktestResponse, error) {
	return f.resp, f.err
}

func testServer(t *testing.T, a AnalysisRunner, b BacktestRunner) (*Server, *workers.Pool) {
	t.Helper()
	pool := workers.NewPool(zap.NewNop(), &workers.PoolConfig{
		Name: "test", NumWorkers: 2, QueueSize: 8,
		TaskTimeout: time.Second, ShutdownTimeout: time.Second,
	})
	pool.Start()
	t.Cleanup(func() { pool.Stop() })

	cfg := types.DefaultServerConfig()
	cfg.EnableMetrics = false
	return NewServer(zap.NewNop(), cfg, a, b, pool), pool
}

func analysisBody() []byte {
	body, _ := json.Marshal(types.AnalysisRequest{
		Holdings:    []types.Holding{{Code: "005930", Quantity: 10}},
		PortfolioID: 1,
	})
	return body
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := testServer(t, &fakeAnalysis{}, &fakeBacktest{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if payload["status"] != "healthy" {
		t.Errorf("unexpected status %v", payload["status"])
	}
}

func TestAnalysisSync(t *testing.T) {
	srv, _ := testServer(t, &fakeAnalysis{resp: &types.AnalysisResponse{Success: true}}, &fakeBacktest{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/analysis", bytes.NewReader(analysisBody())))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp types.AnalysisResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !resp.Success {
		t.Error("expected success flag to round-trip")
	}
}

func TestAnalysisValidationFailure(t *testing.T) {
	srv, _ := testServer(t, &fakeAnalysis{}, &fakeBacktest{})
	body, _ := json.Marshal(types.AnalysisRequest{}) // no holdings
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/analysis", bytes.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var payload errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(payload.Problems) == 0 {
		t.Error("expected problem list in validation error")
	}
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"missing data", &types.MissingDataError{RequestedPeriod: "2024-01-01 ~ 2024-06-01"}, http.StatusNotFound},
		{"insufficient data", &types.InsufficientDataError{ActualDays: 10, RequiredDays: 315}, http.StatusUnprocessableEntity},
		{"upstream", &types.UpstreamError{Source: "benchmark", Err: errors.New("down")}, http.StatusBadGateway},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := testServer(t, &fakeAnalysis{err: tc.err}, &fakeBacktest{})
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/analysis", bytes.NewReader(analysisBody())))
			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestBacktestSync(t *testing.T) {
	srv, _ := testServer(t, &fakeAnalysis{}, &fakeBacktest{resp: &types.BacktestResponse{
		Success:      true,
		ResultStatus: types.StatusCompleted,
	}})
	body, _ := json.Marshal(types.BacktestRequest{
		Start:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Holdings: []types.Holding{{Code: "005930", Quantity: 10}},
	})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/backtest", bytes.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp types.BacktestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.ResultStatus != types.StatusCompleted {
		t.Errorf("unexpected status %s", resp.ResultStatus)
	}
}

func TestAsyncJobWithCallback(t *testing.T) {
	var mu sync.Mutex
	var delivered map[string]interface{}
	done := make(chan struct{})
	callback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		json.NewDecoder(r.Body).Decode(&delivered)
		close(done)
	}))
	defer callback.Close()

	srv, _ := testServer(t, &fakeAnalysis{resp: &types.AnalysisResponse{Success: true}}, &fakeBacktest{})
	body, _ := json.Marshal(types.AnalysisRequest{
		Holdings:    []types.Holding{{Code: "005930", Quantity: 10}},
		CallbackURL: callback.URL,
	})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/analysis", bytes.NewReader(body)))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var accepted map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &accepted); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	jobID, _ := accepted["job_id"].(string)
	if jobID == "" {
		t.Fatal("expected a job id")
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("callback never delivered")
	}

	mu.Lock()
	if delivered["success"] != true {
		t.Errorf("expected successful callback payload, got %v", delivered)
	}
	if delivered["job_id"] != jobID {
		t.Errorf("callback job id mismatch: %v vs %s", delivered["job_id"], jobID)
	}
	mu.Unlock()

	// The result stays pollable after delivery.
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec = httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/jobs/"+jobID, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for job poll, got %d", rec.Code)
		}
		var job JobState
		if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if job.Status == JobCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never completed, status %s", job.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestJobNotFound(t *testing.T) {
	srv, _ := testServer(t, &fakeAnalysis{}, &fakeBacktest{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/jobs/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestAsyncRejectedWhenPoolStopped(t *testing.T) {
	srv, pool := testServer(t, &fakeAnalysis{}, &fakeBacktest{})
	pool.Stop()

	body, _ := json.Marshal(types.AnalysisRequest{
		Holdings:    []types.Holding{{Code: "005930", Quantity: 10}},
		CallbackURL: "http://localhost:1/callback",
	})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/analysis", bytes.NewReader(body)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 from a stopped pool, got %d", rec.Code)
	}
}
