package parallel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// WorkerState reflects how a worker's execution ended.
type WorkerState string

const (
	StateIdle      WorkerState = "idle"
	StateRunning   WorkerState = "running"
	StateCompleted WorkerState = "completed"
	StateFailed    WorkerState = "failed"
	StateTimedOut  WorkerState = "timed_out"
	StateCancelled WorkerState = "cancelled"
)

// WorkerResult is the structured outcome of one worker execution.
type WorkerResult struct {
	WorkerID string        `json:"worker_id"`
	State    WorkerState   `json:"state"`
	Output   any           `json:"-"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ms"`
}

// Worker runs a single function with timeout and cancellation. The
// function runs in its own goroutine; cancellation is cooperative, so
// a function that ignores its context keeps running after the worker
// reports TimedOut or Cancelled.
type Worker struct {
	id string

	mu     sync.Mutex
	cancel context.CancelFunc
	state  WorkerState
}

// NewWorker creates a worker. An empty id gets a generated one.
func NewWorker(id string) *Worker {
	if id == "" {
		id = uuid.NewString()
	}
	return &Worker{id: id, state: StateIdle}
}

// ID returns the worker identifier.
func (w *Worker) ID() string { return w.id }

// State returns the worker's last known state.
func (w *Worker) State() WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) setState(s WorkerState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Run executes fn, waiting at most timeout. A zero timeout waits
// indefinitely (until ctx is done).
func (w *Worker) Run(ctx context.Context, fn func(ctx context.Context) (any, error), timeout time.Duration) WorkerResult {
	runCtx := ctx
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(ctx, timeout)
		defer cancelTimeout()
	}
	runCtx, cancelRun := context.WithCancel(runCtx)
	defer cancelRun()
	w.mu.Lock()
	w.cancel = cancelRun
	w.state = StateRunning
	w.mu.Unlock()
	start := time.Now()

	type outcome struct {
		output any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		out, err := fn(runCtx)
		done <- outcome{out, err}
	}()

	select {
	case o := <-done:
		duration := time.Since(start)
		if o.err != nil {
			w.setState(StateFailed)
			return WorkerResult{WorkerID: w.id, State: StateFailed, Error: o.err.Error(), Duration: duration}
		}
		w.setState(StateCompleted)
		return WorkerResult{WorkerID: w.id, State: StateCompleted, Output: o.output, Duration: duration}

	case <-runCtx.Done():
		duration := time.Since(start)
		if ctx.Err() != nil || runCtx.Err() == context.Canceled {
			w.setState(StateCancelled)
			return WorkerResult{WorkerID: w.id, State: StateCancelled, Error: runCtx.Err().Error(), Duration: duration}
		}
		w.setState(StateTimedOut)
		return WorkerResult{
			WorkerID: w.id,
			State:    StateTimedOut,
			Error:    fmt.Sprintf("timed out after %s", timeout),
			Duration: duration,
		}
	}
}

// Cancel signals the running function to stop.
func (w *Worker) Cancel() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
