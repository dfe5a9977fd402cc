package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gammazero/toposort"
)

// Sentinel errors for graph construction and ordering failures.
// Both are fatal to a pipeline run: a graph that triggers either is unusable.
var (
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrCycleDetected     = errors.New("cycle detected")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// DAG is a directed acyclic graph of pipeline tasks. Tasks declare their
// dependencies explicitly at insertion time; the DAG enforces execution
// ordering and owns all task state transitions.
type DAG struct {
	mu         sync.RWMutex
	tasks      map[string]*Task    // All tasks indexed by ID
	order      []string            // Insertion order of task IDs
	dependents map[string][]string // Maps taskID -> tasks that depend on it
}

// NewDAG creates an empty DAG.
func NewDAG() *DAG {
	return &DAG{
		tasks:      make(map[string]*Task),
		dependents: make(map[string][]string),
	}
}

// AddTask adds a task to the DAG. Every dependency must already be present:
// adding a task whose dependency is unknown fails with ErrUnknownDependency.
// Returns an error if the task ID already exists.
func (d *DAG) AddTask(task *Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %q already exists", task.ID)
	}

	for _, depID := range task.DependsOn {
		if _, exists := d.tasks[depID]; !exists {
			return fmt.Errorf("task %q depends on %q: %w", task.ID, depID, ErrUnknownDependency)
		}
	}

	d.tasks[task.ID] = task
	d.order = append(d.order, task.ID)

	// Build dependents map for efficient downstream lookup
	for _, depID := range task.DependsOn {
		d.dependents[depID] = append(d.dependents[depID], task.ID)
	}

	return nil
}

// AddDependency adds an edge between two existing tasks. Unlike AddTask, the
// edge may point backwards in insertion order, so this can introduce a cycle;
// TopologicalOrder reports it.
func (d *DAG) AddDependency(taskID, depID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}
	if _, exists := d.tasks[depID]; !exists {
		return fmt.Errorf("task %q depends on %q: %w", taskID, depID, ErrUnknownDependency)
	}

	for _, existing := range task.DependsOn {
		if existing == depID {
			return nil
		}
	}
	task.DependsOn = append(task.DependsOn, depID)
	d.dependents[depID] = append(d.dependents[depID], taskID)
	return nil
}

// TopologicalOrder returns task IDs ordered so that every task appears after
// all of its dependencies. Fails with ErrCycleDetected if the graph is not
// acyclic.
func (d *DAG) TopologicalOrder() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.topologicalOrderLocked()
}

func (d *DAG) topologicalOrderLocked() ([]string, error) {
	var edges []toposort.Edge
	for _, taskID := range d.order {
		task := d.tasks[taskID]
		if len(task.DependsOn) == 0 {
			// Task with no dependencies - edge from nil ensures inclusion
			edges = append(edges, toposort.Edge{nil, taskID})
			continue
		}
		for _, depID := range task.DependsOn {
			// Edge (depID, taskID) means depID must come before taskID
			edges = append(edges, toposort.Edge{depID, taskID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCycleDetected, err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	// Catch disconnected components lost by the sort
	if len(order) != len(d.tasks) {
		found := make(map[string]bool, len(order))
		for _, id := range order {
			found[id] = true
		}
		var missing []string
		for _, taskID := range d.order {
			if !found[taskID] {
				missing = append(missing, taskID)
			}
		}
		return nil, fmt.Errorf("topological sort lost %d tasks: %s", len(missing), strings.Join(missing, ", "))
	}

	return order, nil
}

// ReadyTasks returns all pending tasks whose dependencies have all completed.
// A failed or skipped dependency does NOT make a dependent ready: cascading
// Skipped state downstream is the caller's responsibility, which keeps
// partial-failure semantics under caller control.
func (d *DAG) ReadyTasks() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ready := []*Task{}
	for _, taskID := range d.order {
		task := d.tasks[taskID]
		if task.State != TaskPending {
			continue
		}

		depsMet := true
		for _, depID := range task.DependsOn {
			dep, exists := d.tasks[depID]
			if !exists || dep.State != TaskCompleted {
				depsMet = false
				break
			}
		}

		if depsMet {
			ready = append(ready, cloneTask(task))
		}
	}
	return ready
}

// MarkRunning transitions a pending task to running.
func (d *DAG) MarkRunning(taskID string) error {
	return d.transition(taskID, TaskRunning, nil, nil)
}

// MarkCompleted transitions a task to completed and stores its result payload.
func (d *DAG) MarkCompleted(taskID string, result map[string]any) error {
	return d.transition(taskID, TaskCompleted, result, nil)
}

// MarkFailed transitions a task to failed and stores the error.
func (d *DAG) MarkFailed(taskID string, taskErr error) error {
	return d.transition(taskID, TaskFailed, nil, taskErr)
}

// MarkSkipped transitions a task to skipped. Callers use this to cascade
// failure downstream when a dependency failed.
func (d *DAG) MarkSkipped(taskID string) error {
	return d.transition(taskID, TaskSkipped, nil, nil)
}

func (d *DAG) transition(taskID string, to TaskState, result map[string]any, taskErr error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}

	if task.State.Terminal() {
		return fmt.Errorf("task %q already %s: %w", taskID, task.State, ErrInvalidTransition)
	}
	if to == TaskRunning && task.State != TaskPending {
		return fmt.Errorf("task %q is %s, cannot mark running: %w", taskID, task.State, ErrInvalidTransition)
	}

	task.State = to
	if result != nil {
		task.Result = result
	}
	if taskErr != nil {
		task.Err = taskErr
	}
	return nil
}

// Get returns a copy of the task by ID.
func (d *DAG) Get(taskID string) (*Task, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return nil, false
	}
	return cloneTask(task), true
}

// Tasks returns copies of all tasks in insertion order.
func (d *DAG) Tasks() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tasks := make([]*Task, 0, len(d.tasks))
	for _, taskID := range d.order {
		tasks = append(tasks, cloneTask(d.tasks[taskID]))
	}
	return tasks
}

// Dependents returns the IDs of tasks that directly depend on the given task.
func (d *DAG) Dependents(taskID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.dependents[taskID]...)
}

// Complete reports whether every task has reached a terminal state.
func (d *DAG) Complete() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, task := range d.tasks {
		if !task.State.Terminal() {
			return false
		}
	}
	return true
}

// HasFailures reports whether any task failed.
func (d *DAG) HasFailures() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, task := range d.tasks {
		if task.State == TaskFailed {
			return true
		}
	}
	return false
}

// CriticalPath returns the longest dependency chain through the DAG,
// dependencies first. Returns an error if the graph contains a cycle.
func (d *DAG) CriticalPath() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(d.tasks) == 0 {
		return nil, nil
	}

	order, err := d.topologicalOrderLocked()
	if err != nil {
		return nil, err
	}

	// Longest path (in edge count) ending at each node
	dist := make(map[string]int, len(d.tasks))
	prev := make(map[string]string, len(d.tasks))

	for _, taskID := range order {
		for _, depID := range d.tasks[taskID].DependsOn {
			if dist[depID]+1 > dist[taskID] {
				dist[taskID] = dist[depID] + 1
				prev[taskID] = depID
			}
		}
	}

	end := order[0]
	for _, taskID := range order {
		if dist[taskID] > dist[end] {
			end = taskID
		}
	}

	var path []string
	for current := end; ; {
		path = append(path, current)
		p, ok := prev[current]
		if !ok {
			break
		}
		current = p
	}

	// Reverse into dependency-first order
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// CriticalPathTokens returns the estimated token total along the critical path.
func (d *DAG) CriticalPathTokens() (int, error) {
	path, err := d.CriticalPath()
	if err != nil {
		return 0, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	total := 0
	for _, taskID := range path {
		if task, ok := d.tasks[taskID]; ok {
			total += task.EstimatedTokens
		}
	}
	return total, nil
}

// Summary returns per-state task counts.
func (d *DAG) Summary() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	counts := make(map[string]int)
	for _, task := range d.tasks {
		counts[task.State.String()]++
	}
	return counts
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	if task.DependsOn != nil {
		cp.DependsOn = append([]string(nil), task.DependsOn...)
	}
	if task.Metadata != nil {
		cp.Metadata = make(map[string]string, len(task.Metadata))
		for k, v := range task.Metadata {
			cp.Metadata[k] = v
		}
	}
	if task.Result != nil {
		cp.Result = make(map[string]any, len(task.Result))
		for k, v := range task.Result {
			cp.Result[k] = v
		}
	}
	return &cp
}
