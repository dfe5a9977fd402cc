package knowledge

import (
	"time"
)

// Pattern provenance values.
const (
	SourceSeed    = "seed"    // Shipped with the pipeline
	SourceLearned = "learned" // Discovered from a successful LLM-diagnosed fix
)

// ErrorPattern is a known error signature paired with its proven fix.
// Counters feed the derived confidence; patterns are never deleted
// automatically.
type ErrorPattern struct {
	ID           string    `json:"pattern_id"`
	Language     string    `json:"language,omitempty"` // empty = any language
	ErrorClass   string    `json:"error_class"`
	Signature    string    `json:"signature"`
	FixTemplate  string    `json:"fix_template"`
	FixType      string    `json:"fix_type"`
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	Source       string    `json:"source"`
	CreatedAt    time.Time `json:"created_at,omitzero"`
	LastMatched  time.Time `json:"last_matched,omitzero"`
}

// Confidence derives a reliability score from the success/failure counters.
// An unseen pattern defaults to 0.5.
func (p *ErrorPattern) Confidence() float64 {
	total := p.SuccessCount + p.FailureCount
	if total == 0 {
		return 0.5
	}
	return float64(p.SuccessCount) / float64(total)
}

// MatchType classifies how a lookup matched a pattern.
type MatchType string

const (
	MatchExact MatchType = "exact"
	MatchFuzzy MatchType = "fuzzy"
	MatchNone  MatchType = "none"
)

// LookupResult reports the outcome of a knowledge base lookup. A miss is a
// normal negative result, not an error; Found is false and Score carries the
// best score seen below the acceptance threshold.
type LookupResult struct {
	Found   bool
	Pattern *ErrorPattern
	Score   float64
	Type    MatchType
}
