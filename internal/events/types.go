package events

import (
	"time"
)

// Type identifies a pipeline event in the fixed catalogue.
type Type string

const (
	TaskReady      Type = "task_ready"
	TaskStarted    Type = "task_started"
	TaskCompleted  Type = "task_completed"
	TaskFailed     Type = "task_failed"
	TaskSkipped    Type = "task_skipped"
	FeedbackStart  Type = "feedback_start"
	FeedbackResult Type = "feedback_result"
	FixApplied     Type = "fix_applied"
	BudgetWarning  Type = "budget_warning"
	PipelineDone   Type = "pipeline_done"
)

// Event is an immutable record of a pipeline state transition. Created at
// emission, appended to the bus history, never mutated afterwards.
type Event struct {
	Type      Type
	Payload   map[string]any
	Source    string
	Timestamp time.Time
}

// New creates an event stamped with the current time.
func New(eventType Type, payload map[string]any, source string) Event {
	return Event{
		Type:      eventType,
		Payload:   payload,
		Source:    source,
		Timestamp: time.Now().UTC(),
	}
}
