package workers

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testConfig() *PoolConfig {
	return &PoolConfig{
		Name:            "test",
		NumWorkers:      4,
		QueueSize:       16,
		TaskTimeout:     time.Second,
		ShutdownTimeout: time.Second,
	}
}

func TestPoolRunsSubmittedTasks(t *testing.T) {
	pool := NewPool(zap.NewNop(), testConfig())
	pool.Start()
	defer pool.Stop()

	var ran atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		if err := pool.SubmitFunc(func() error {
			defer wg.Done()
			ran.Add(1)
			return nil
		}); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}
	wg.Wait()

	if got := ran.Load(); got != 10 {
		t.Errorf("expected 10 tasks to run, got %d", got)
	}
}

func TestPoolRejectsWhenStopped(t *testing.T) {
	pool := NewPool(zap.NewNop(), testConfig())
	if err := pool.Submit(TaskFunc(func() error { return nil })); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("expected ErrPoolStopped before Start, got %v", err)
	}

	pool.Start()
	if err := pool.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := pool.Submit(TaskFunc(func() error { return nil })); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("expected ErrPoolStopped after Stop, got %v", err)
	}
}

func TestPoolSubmitWaitReturnsTaskError(t *testing.T) {
	pool := NewPool(zap.NewNop(), testConfig())
	pool.Start()
	defer pool.Stop()

	want := errors.New("job failed")
	if err := pool.SubmitWait(TaskFunc(func() error { return want })); !errors.Is(err, want) {
		t.Errorf("expected task error back, got %v", err)
	}
}

func TestPoolSurvivesPanic(t *testing.T) {
	pool := NewPool(zap.NewNop(), testConfig())
	pool.Start()
	defer pool.Stop()

	err := pool.SubmitWait(TaskFunc(func() error { panic("boom") }))
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PanicError, got %v", err)
	}

	// The pool must still accept and run work afterwards.
	if err := pool.SubmitWait(TaskFunc(func() error { return nil })); err != nil {
		t.Errorf("pool unusable after panic: %v", err)
	}
	if stats := pool.Stats(); stats.PanicRecovered != 1 {
		t.Errorf("expected one recovered panic, got %d", stats.PanicRecovered)
	}
}

func TestPoolQueueBackpressure(t *testing.T) {
	cfg := testConfig()
	cfg.NumWorkers = 1
	cfg.QueueSize = 1
	pool := NewPool(zap.NewNop(), cfg)
	pool.Start()
	defer pool.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	if err := pool.SubmitFunc(func() error {
		close(started)
		<-release
		return nil
	}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	<-started

	// Worker is busy: one slot in the queue, then full.
	if err := pool.SubmitFunc(func() error { return nil }); err != nil {
		t.Fatalf("queue slot should be free: %v", err)
	}
	if err := pool.SubmitFunc(func() error { return nil }); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
	close(release)
}

func TestPoolStats(t *testing.T) {
	pool := NewPool(zap.NewNop(), testConfig())
	pool.Start()
	defer pool.Stop()

	if err := pool.SubmitWait(TaskFunc(func() error { return nil })); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if err := pool.SubmitWait(TaskFunc(func() error { return errors.New("no") })); err == nil {
		t.Fatal("expected error back")
	}

	stats := pool.Stats()
	if stats.TasksSubmitted != 2 {
		t.Errorf("expected 2 submitted, got %d", stats.TasksSubmitted)
	}
	if stats.TasksCompleted != 1 || stats.TasksFailed != 1 {
		t.Errorf("expected 1 completed and 1 failed, got %d/%d", stats.TasksCompleted, stats.TasksFailed)
	}
}
