package parallel

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// maxWorkerCap bounds the pool regardless of configuration.
const maxWorkerCap = 8

// TaskResult is the outcome of one executed task.
type TaskResult struct {
	TaskID   string        `json:"task_id"`
	Success  bool          `json:"success"`
	Output   any           `json:"-"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ms"`
}

// BatchResult aggregates a batch of task results.
type BatchResult struct {
	Results   []TaskResult  `json:"results"`
	TotalTime time.Duration `json:"total_time_ms"`
	Speedup   float64       `json:"parallel_speedup"`
}

// AllSuccess reports whether every task succeeded.
func (b *BatchResult) AllSuccess() bool {
	for _, r := range b.Results {
		if !r.Success {
			return false
		}
	}
	return true
}

// Failures returns the failed results.
func (b *BatchResult) Failures() []TaskResult {
	var failed []TaskResult
	for _, r := range b.Results {
		if !r.Success {
			failed = append(failed, r)
		}
	}
	return failed
}

// RunFunc executes one decomposed task.
type RunFunc func(ctx context.Context, task Task) (any, error)

// Executor runs decomposed tasks over a bounded worker pool. Partial
// failures are collected, never propagated: one language failing does
// not stop the others.
type Executor struct {
	maxWorkers  int
	taskTimeout time.Duration
}

// NewExecutor creates an executor with the given pool size, capped at 8.
// taskTimeout bounds each task; zero disables the per-task timeout.
func NewExecutor(maxWorkers int, taskTimeout time.Duration) *Executor {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	if maxWorkers > maxWorkerCap {
		maxWorkers = maxWorkerCap
	}
	return &Executor{maxWorkers: maxWorkers, taskTimeout: taskTimeout}
}

// Execute runs the tasks concurrently and reports per-task results in
// task order, total wall time, and the speedup over sequential time.
func (e *Executor) Execute(ctx context.Context, tasks []Task, run RunFunc) BatchResult {
	batch := BatchResult{Speedup: 1.0}
	if len(tasks) == 0 {
		return batch
	}

	batch.Results = make([]TaskResult, len(tasks))
	start := time.Now()

	var mu sync.Mutex
	sequential := time.Duration(0)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxWorkers)
	for i, task := range tasks {
		g.Go(func() error {
			worker := NewWorker(task.ID)
			wr := worker.Run(gctx, func(wctx context.Context) (any, error) {
				return run(wctx, task)
			}, e.taskTimeout)

			batch.Results[i] = TaskResult{
				TaskID:   task.ID,
				Success:  wr.State == StateCompleted,
				Output:   wr.Output,
				Error:    wr.Error,
				Duration: wr.Duration,
			}
			mu.Lock()
			sequential += wr.Duration
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	batch.TotalTime = time.Since(start)
	if batch.TotalTime > 0 && sequential > 0 {
		batch.Speedup = float64(sequential) / float64(batch.TotalTime)
	}
	return batch
}

// ExecuteSequential runs the tasks one at a time, as a fallback and as
// the baseline the parallel speedup is measured against.
func (e *Executor) ExecuteSequential(ctx context.Context, tasks []Task, run RunFunc) BatchResult {
	batch := BatchResult{Speedup: 1.0}
	start := time.Now()
	for _, task := range tasks {
		worker := NewWorker(task.ID)
		wr := worker.Run(ctx, func(wctx context.Context) (any, error) {
			return run(wctx, task)
		}, e.taskTimeout)
		batch.Results = append(batch.Results, TaskResult{
			TaskID:   task.ID,
			Success:  wr.State == StateCompleted,
			Output:   wr.Output,
			Error:    wr.Error,
			Duration: wr.Duration,
		})
	}
	batch.TotalTime = time.Since(start)
	return batch
}
