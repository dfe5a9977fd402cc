package parallel

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDecomposeGeneration(t *testing.T) {
	plan := NewDecomposer().DecomposeGeneration([]string{"python", "rust", "verilog"})
	if plan.TaskCount() != 3 {
		t.Fatalf("TaskCount() = %d, want 3", plan.TaskCount())
	}
	if plan.MaxParallelism() != 3 {
		t.Fatalf("MaxParallelism() = %d, want 3", plan.MaxParallelism())
	}
	for _, task := range plan.Tasks {
		if len(task.Dependencies) != 0 {
			t.Errorf("generation task %s has dependencies %v", task.ID, task.Dependencies)
		}
		if !strings.HasPrefix(task.ID, "gen_") {
			t.Errorf("task ID %q missing gen_ prefix", task.ID)
		}
	}
}

func TestDecomposeGenerationDefaultsToAllLanguages(t *testing.T) {
	plan := NewDecomposer().DecomposeGeneration(nil)
	if plan.TaskCount() != len(AllLanguages) {
		t.Fatalf("TaskCount() = %d, want %d", plan.TaskCount(), len(AllLanguages))
	}
}

func TestDecomposeVerification(t *testing.T) {
	plan := NewDecomposer().DecomposeVerification([]string{"rust"})
	if plan.TaskCount() != 1 {
		t.Fatalf("TaskCount() = %d, want 1", plan.TaskCount())
	}
	task := plan.Tasks[0]
	if task.ID != "verify_rust" || len(task.Dependencies) != 1 || task.Dependencies[0] != "gen_rust" {
		t.Fatalf("unexpected verification task: %+v", task)
	}
}

func TestDecomposeFullPipeline(t *testing.T) {
	plan := NewDecomposer().DecomposeFullPipeline([]string{"python", "verilog"}, true)

	// validate, diff, 2 gen, 2 verify, hardware_sim, metrics
	if plan.TaskCount() != 8 {
		t.Fatalf("TaskCount() = %d, want 8", plan.TaskCount())
	}
	if len(plan.Groups) != 5 {
		t.Fatalf("len(Groups) = %d, want 5", len(plan.Groups))
	}
	// Widest wave is verify+hardware.
	if plan.MaxParallelism() != 3 {
		t.Errorf("MaxParallelism() = %d, want 3", plan.MaxParallelism())
	}

	byID := make(map[string]Task)
	for _, task := range plan.Tasks {
		byID[task.ID] = task
	}
	hw, ok := byID["hardware_sim"]
	if !ok {
		t.Fatal("hardware_sim task missing")
	}
	if len(hw.Dependencies) != 1 || hw.Dependencies[0] != "gen_verilog" {
		t.Errorf("hardware_sim dependencies = %v, want [gen_verilog]", hw.Dependencies)
	}
	metrics := byID["metrics"]
	if len(metrics.Dependencies) != 3 {
		t.Errorf("metrics dependencies = %v, want all verification tasks", metrics.Dependencies)
	}
}

func TestDecomposeFullPipelineNoHardware(t *testing.T) {
	plan := NewDecomposer().DecomposeFullPipeline([]string{"python"}, false)
	for _, task := range plan.Tasks {
		if task.ID == "hardware_sim" {
			t.Fatal("hardware_sim present with includeHardware=false")
		}
	}
}

func TestWorkerCompletes(t *testing.T) {
	w := NewWorker("gen_python")
	result := w.Run(context.Background(), func(ctx context.Context) (any, error) {
		return "generated", nil
	}, time.Second)

	if result.State != StateCompleted {
		t.Fatalf("State = %s, want %s", result.State, StateCompleted)
	}
	if result.Output != "generated" {
		t.Errorf("Output = %v, want generated", result.Output)
	}
	if w.State() != StateCompleted {
		t.Errorf("worker State() = %s, want %s", w.State(), StateCompleted)
	}
}

func TestWorkerFails(t *testing.T) {
	w := NewWorker("")
	result := w.Run(context.Background(), func(ctx context.Context) (any, error) {
		return nil, errors.New("borrow checker rejected the fix")
	}, time.Second)

	if result.State != StateFailed {
		t.Fatalf("State = %s, want %s", result.State, StateFailed)
	}
	if result.Error == "" {
		t.Error("Error is empty")
	}
	if w.ID() == "" {
		t.Error("empty worker id was not generated")
	}
}

func TestWorkerTimesOut(t *testing.T) {
	w := NewWorker("slow")
	result := w.Run(context.Background(), func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, 20*time.Millisecond)

	if result.State != StateTimedOut {
		t.Fatalf("State = %s, want %s", result.State, StateTimedOut)
	}
}

func TestWorkerCancel(t *testing.T) {
	w := NewWorker("cancelled")
	go func() {
		time.Sleep(10 * time.Millisecond)
		w.Cancel()
	}()
	result := w.Run(context.Background(), func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, time.Second)

	if result.State != StateCancelled {
		t.Fatalf("State = %s, want %s", result.State, StateCancelled)
	}
}

func TestExecutePartialFailure(t *testing.T) {
	tasks := NewDecomposer().DecomposeGeneration([]string{"python", "rust", "c"}).Tasks
	batch := NewExecutor(4, time.Second).Execute(context.Background(), tasks, func(ctx context.Context, task Task) (any, error) {
		if task.Language == "rust" {
			return nil, errors.New("codegen failed")
		}
		return task.Language, nil
	})

	if batch.AllSuccess() {
		t.Fatal("AllSuccess() = true with a failing task")
	}
	failures := batch.Failures()
	if len(failures) != 1 || failures[0].TaskID != "gen_rust" {
		t.Fatalf("Failures() = %v, want [gen_rust]", failures)
	}
	if len(batch.Results) != 3 {
		t.Fatalf("len(Results) = %d, want 3: one failure must not block others", len(batch.Results))
	}
	// Results keep task order.
	for i, task := range tasks {
		if batch.Results[i].TaskID != task.ID {
			t.Errorf("Results[%d] = %s, want %s", i, batch.Results[i].TaskID, task.ID)
		}
	}
}

func TestExecuteEmpty(t *testing.T) {
	batch := NewExecutor(4, 0).Execute(context.Background(), nil, nil)
	if len(batch.Results) != 0 || batch.Speedup != 1.0 {
		t.Fatalf("empty batch = %+v", batch)
	}
}

func TestExecutorCapsWorkers(t *testing.T) {
	e := NewExecutor(64, 0)
	if e.maxWorkers != maxWorkerCap {
		t.Fatalf("maxWorkers = %d, want %d", e.maxWorkers, maxWorkerCap)
	}
}

func TestExecuteSequential(t *testing.T) {
	tasks := NewDecomposer().DecomposeGeneration([]string{"python", "rust"}).Tasks
	batch := NewExecutor(4, time.Second).ExecuteSequential(context.Background(), tasks, func(ctx context.Context, task Task) (any, error) {
		return task.Language, nil
	})
	if !batch.AllSuccess() {
		t.Fatalf("sequential batch failed: %+v", batch.Results)
	}
	if batch.Speedup != 1.0 {
		t.Errorf("Speedup = %v, want 1.0", batch.Speedup)
	}
}
