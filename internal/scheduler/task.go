package scheduler

// TaskState represents the current state of a task.
type TaskState int

const (
	TaskPending   TaskState = iota // Waiting for dependencies
	TaskRunning                    // Currently executing
	TaskCompleted                  // Finished successfully
	TaskFailed                     // Finished with error
	TaskSkipped                    // Intentionally not run
)

// String returns the lowercase name of the state.
func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	case TaskSkipped:
		return "skipped"
	}
	return "unknown"
}

// Terminal reports whether the state is final. A task that reached a
// terminal state never transitions again.
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskSkipped
}

// Task represents a unit of work in the DAG.
type Task struct {
	ID              string            // Unique identifier
	Stage           string            // Pipeline stage this task belongs to
	DependsOn       []string          // Task IDs this task depends on
	State           TaskState
	EstimatedTokens int               // Estimated token cost (critical path budgeting)
	Metadata        map[string]string // Arbitrary metadata attached at insertion
	Result          map[string]any    // Output payload (populated after completion)
	Err             error             // Error if failed
}
