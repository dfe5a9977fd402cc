package contextwin

import "time"

// Segment types.
const (
	TypeSchema         = "schema"
	TypeKBEntry        = "kb_entry"
	TypePreviousOutput = "previous_output"
	TypeErrorContext   = "error_context"
)

// Estimator converts content to an approximate token count.
type Estimator func(content string) int

// DefaultEstimator uses the rough 4-characters-per-token heuristic.
func DefaultEstimator(content string) int {
	return len(content) / 4
}

// Segment is one tracked portion of the context window: a schema
// section, a knowledge base entry, a previous stage output.
type Segment struct {
	ID           string    `json:"segment_id"`
	Content      string    `json:"-"`
	Type         string    `json:"segment_type"`
	TaskAffinity []string  `json:"task_affinity"`
	TokenCount   int       `json:"token_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	AccessCount  int       `json:"access_count"`
	Relevance    float64   `json:"relevance_score"`
}

func (s *Segment) touch(now time.Time) {
	s.LastAccessed = now
	s.AccessCount++
}

func (s *Segment) hasAffinity(taskType string) bool {
	for _, a := range s.TaskAffinity {
		if a == taskType {
			return true
		}
	}
	return false
}
