// Package workers runs analysis and backtest jobs on a bounded pool of
// goroutines so a burst of API requests cannot fork an unbounded number
// of optimizer runs.
package workers

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of work submitted to the pool.
type Task interface {
	Execute() error
}

// TaskFunc adapts a plain function to the Task interface.
type TaskFunc func() error

func (f TaskFunc) Execute() error { return f() }

// PoolConfig configures the job pool.
type PoolConfig struct {
	Name            string
	NumWorkers      int
	QueueSize       int
	TaskTimeout     time.Duration // per-job budget; a rolling analysis can run minutes
	ShutdownTimeout time.Duration
}

// DefaultPoolConfig sizes the pool for CPU-bound optimizer jobs.
func DefaultPoolConfig(name string) *PoolConfig {
	return &PoolConfig{
		Name:            name,
		NumWorkers:      runtime.NumCPU(),
		QueueSize:       64,
		TaskTimeout:     5 * time.Minute,
		ShutdownTimeout: 10 * time.Second,
	}
}

// PoolStats is a point-in-time snapshot of pool counters.
type PoolStats struct {
	TasksSubmitted int64         `json:"tasks_submitted"`
	TasksCompleted int64         `json:"tasks_completed"`
	TasksFailed    int64         `json:"tasks_failed"`
	TasksTimeout   int64         `json:"tasks_timeout"`
	PanicRecovered int64         `json:"panic_recovered"`
	QueueLength    int           `json:"queue_length"`
	Uptime         time.Duration `json:"uptime"`
}

// Pool manages the worker goroutines and the shared task queue.
type Pool struct {
	logger *zap.Logger
	config *PoolConfig

	taskQueue chan Task
	wg        sync.WaitGroup

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	tasksSubmitted atomic.Int64
	tasksCompleted atomic.Int64
	tasksFailed    atomic.Int64
	tasksTimeout   atomic.Int64
	panicRecovered atomic.Int64
	startTime      time.Time
}

// NewPool creates a stopped pool; call Start before submitting.
func NewPool(logger *zap.Logger, config *PoolConfig) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config == nil {
		config = DefaultPoolConfig("default")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		logger:    logger,
		config:    config,
		taskQueue: make(chan Task, config.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Start launches the worker goroutines. Calling Start twice is a no-op.
func (p *Pool) Start() {
	if p.running.Swap(true) {
		return
	}
	p.logger.Info("starting worker pool",
		zap.String("name", p.config.Name),
		zap.Int("workers", p.config.NumWorkers),
		zap.Int("queue_size", p.config.QueueSize))

	for i := 0; i < p.config.NumWorkers; i++ {
		p.wg.Add(1)
		go p.run(p.logger.With(zap.Int("worker_id", i)))
	}
}

func (p *Pool) run(logger *zap.Logger) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.executeTask(logger, task)
		}
	}
}

// executeTask runs one task with the configured timeout. A panicking job
// is recorded and counted as failed; it must not take the worker down.
func (p *Pool) executeTask(logger *zap.Logger, task Task) {
	ctx, cancel := context.WithTimeout(p.ctx, p.config.TaskTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.panicRecovered.Add(1)
				logger.Error("worker recovered from panic", zap.Any("panic", r))
				done <- &PanicError{Recovered: r}
			}
		}()
		done <- task.Execute()
	}()

	select {
	case err := <-done:
		if err != nil {
			p.tasksFailed.Add(1)
			logger.Warn("task failed", zap.Error(err))
		} else {
			p.tasksCompleted.Add(1)
		}
	case <-ctx.Done():
		p.tasksTimeout.Add(1)
		logger.Warn("task timed out", zap.Duration("timeout", p.config.TaskTimeout))
	}
}

// Submit enqueues a task without blocking. A full queue is an error so
// the API layer can answer with backpressure instead of hanging.
func (p *Pool) Submit(task Task) error {
	if !p.running.Load() {
		return ErrPoolStopped
	}
	select {
	case p.taskQueue <- task:
		p.tasksSubmitted.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitFunc submits a plain function as a task.
func (p *Pool) SubmitFunc(fn func() error) error {
	return p.Submit(TaskFunc(fn))
}

// SubmitWait submits a task and blocks until it has run.
func (p *Pool) SubmitWait(task Task) error {
	if !p.running.Load() {
		return ErrPoolStopped
	}
	done := make(chan error, 1)
	if err := p.Submit(TaskFunc(func() error {
		err := task.Execute()
		done <- err
		return err
	})); err != nil {
		return err
	}
	return <-done
}

// Stop cancels the workers and waits up to ShutdownTimeout for them to
// drain. Queued but unstarted tasks are dropped.
func (p *Pool) Stop() error {
	if !p.running.Swap(false) {
		return nil
	}
	p.logger.Info("stopping worker pool", zap.String("name", p.config.Name))
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped", zap.String("name", p.config.Name))
		return nil
	case <-time.After(p.config.ShutdownTimeout):
		p.logger.Warn("worker pool shutdown timed out",
			zap.String("name", p.config.Name),
			zap.Duration("timeout", p.config.ShutdownTimeout))
		return ErrShutdownTimeout
	}
}

// IsRunning reports whether Start has been called without a later Stop.
func (p *Pool) IsRunning() bool { return p.running.Load() }

// QueueLength returns the number of queued, unstarted tasks.
func (p *Pool) QueueLength() int { return len(p.taskQueue) }

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		TasksSubmitted: p.tasksSubmitted.Load(),
		TasksCompleted: p.tasksCompleted.Load(),
		TasksFailed:    p.tasksFailed.Load(),
		TasksTimeout:   p.tasksTimeout.Load(),
		PanicRecovered: p.panicRecovered.Load(),
		QueueLength:    len(p.taskQueue),
		Uptime:         time.Since(p.startTime),
	}
}

var (
	ErrPoolStopped     = &PoolError{Message: "pool is stopped"}
	ErrQueueFull       = &PoolError{Message: "task queue is full"}
	ErrShutdownTimeout = &PoolError{Message: "shutdown timed out"}
)

// PoolError is a sentinel pool condition.
type PoolError struct {
	Message string
}

func (e *PoolError) Error() string { return e.Message }

// PanicError wraps a recovered panic from a task.
type PanicError struct {
	Recovered interface{}
}

func (e *PanicError) Error() string { return "panic recovered" }
