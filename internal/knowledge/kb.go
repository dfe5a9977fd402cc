package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion tags the persisted knowledge base format.
const SchemaVersion = "1.0"

// Defaults for the matching constants. All three are empirical values carried
// over as configurable fields rather than re-derived.
const (
	DefaultMinConfidence      = 0.3
	DefaultFuzzyThreshold     = 0.6
	DefaultCrossClassDiscount = 0.7
)

// KnowledgeBase stores error patterns and answers fuzzy lookups. It is owned
// by the orchestrator and mutated only from the feedback engine's retry loop,
// so it takes no internal lock.
type KnowledgeBase struct {
	// MinConfidence filters out patterns whose derived confidence has
	// dropped below the floor.
	MinConfidence float64
	// FuzzyThreshold is the minimum score for a lookup to report a hit.
	FuzzyThreshold float64
	// CrossClassDiscount is applied to candidates whose error class
	// differs from the query's.
	CrossClassDiscount float64
	// MaxEditDistance is the raw edit-distance cutoff for short signatures.
	MaxEditDistance int

	patterns map[string]*ErrorPattern
	order    []string // insertion order, for deterministic iteration
}

// NewKnowledgeBase creates an empty knowledge base with default matching
// constants.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		MinConfidence:      DefaultMinConfidence,
		FuzzyThreshold:     DefaultFuzzyThreshold,
		CrossClassDiscount: DefaultCrossClassDiscount,
		MaxEditDistance:    DefaultMaxEditDistance,
		patterns:           make(map[string]*ErrorPattern),
	}
}

// Add registers a pattern, stamping CreatedAt if unset.
func (kb *KnowledgeBase) Add(pattern *ErrorPattern) {
	if pattern.CreatedAt.IsZero() {
		pattern.CreatedAt = time.Now().UTC()
	}
	if _, exists := kb.patterns[pattern.ID]; !exists {
		kb.order = append(kb.order, pattern.ID)
	}
	kb.patterns[pattern.ID] = pattern
}

// Remove deletes a pattern by ID. Returns true if it existed.
func (kb *KnowledgeBase) Remove(id string) bool {
	if _, exists := kb.patterns[id]; !exists {
		return false
	}
	delete(kb.patterns, id)
	for i, pid := range kb.order {
		if pid == id {
			kb.order = append(kb.order[:i:i], kb.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns a pattern by ID.
func (kb *KnowledgeBase) Get(id string) (*ErrorPattern, bool) {
	p, ok := kb.patterns[id]
	return p, ok
}

// All returns all patterns in insertion order.
func (kb *KnowledgeBase) All() []*ErrorPattern {
	out := make([]*ErrorPattern, 0, len(kb.patterns))
	for _, id := range kb.order {
		out = append(out, kb.patterns[id])
	}
	return out
}

// Lookup finds the best-matching pattern for an error. Candidates must match
// the language (or be language-agnostic) and sit at or above the confidence
// floor. Exact-class candidates get substring-then-fuzzy scoring; cross-class
// candidates are scored fuzzily and discounted. The best candidate is
// returned only if its score reaches FuzzyThreshold; anything less is a miss,
// reported through Found, never as an error.
func (kb *KnowledgeBase) Lookup(language, errorClass, errorMessage string) LookupResult {
	var best *ErrorPattern
	bestScore := 0.0
	bestType := MatchNone

	msgLower := strings.ToLower(errorMessage)

	for _, id := range kb.order {
		p := kb.patterns[id]
		if p.Language != "" && p.Language != language {
			continue
		}
		if p.Confidence() < kb.MinConfidence {
			continue
		}

		var score float64
		matchType := MatchFuzzy

		if p.ErrorClass == errorClass {
			if strings.Contains(msgLower, strings.ToLower(p.Signature)) {
				score = 1.0
				matchType = MatchExact
			} else {
				score = FuzzyScore(errorMessage, p.Signature, kb.MaxEditDistance)
			}
		} else {
			score = FuzzyScore(errorMessage, p.Signature, kb.MaxEditDistance) * kb.CrossClassDiscount
		}

		if score > bestScore {
			bestScore = score
			best = p
			bestType = matchType
		}
	}

	if best != nil && bestScore >= kb.FuzzyThreshold {
		best.LastMatched = time.Now().UTC()
		return LookupResult{Found: true, Pattern: best, Score: bestScore, Type: bestType}
	}
	return LookupResult{Found: false, Score: bestScore, Type: MatchNone}
}

// RecordSuccess increments a pattern's success counter.
func (kb *KnowledgeBase) RecordSuccess(id string) {
	if p, ok := kb.patterns[id]; ok {
		p.SuccessCount++
	}
}

// RecordFailure increments a pattern's failure counter.
func (kb *KnowledgeBase) RecordFailure(id string) {
	if p, ok := kb.patterns[id]; ok {
		p.FailureCount++
	}
}

// Learn creates a pattern from a successful LLM-diagnosed fix so the next
// occurrence resolves from the knowledge base. The new pattern starts with
// one recorded success.
func (kb *KnowledgeBase) Learn(language, errorClass, errorMessage, fixDescription string) *ErrorPattern {
	signature := errorMessage
	if len(signature) > 200 {
		signature = signature[:200]
	}

	pattern := &ErrorPattern{
		ID:           "learned_" + uuid.NewString(),
		Language:     language,
		ErrorClass:   errorClass,
		Signature:    signature,
		FixTemplate:  fixDescription,
		FixType:      "learned",
		SuccessCount: 1,
		Source:       SourceLearned,
	}
	kb.Add(pattern)
	return pattern
}

// Summary aggregates knowledge base statistics.
type Summary struct {
	TotalPatterns   int     `json:"total_patterns"`
	SeedPatterns    int     `json:"seed_patterns"`
	LearnedPatterns int     `json:"learned_patterns"`
	AvgConfidence   float64 `json:"avg_confidence"`
	TotalMatches    int     `json:"total_matches"`
}

// Summarize computes counts and average confidence across all patterns.
func (kb *KnowledgeBase) Summarize() Summary {
	s := Summary{TotalPatterns: len(kb.patterns)}
	confSum := 0.0
	for _, p := range kb.patterns {
		switch p.Source {
		case SourceLearned:
			s.LearnedPatterns++
		default:
			s.SeedPatterns++
		}
		confSum += p.Confidence()
		s.TotalMatches += p.SuccessCount + p.FailureCount
	}
	if s.TotalPatterns > 0 {
		s.AvgConfidence = confSum / float64(s.TotalPatterns)
	}
	return s
}

// persistedPattern adds the derived confidence at save time for inspection.
// Confidence is always recomputed from counters on load.
type persistedPattern struct {
	ErrorPattern
	Confidence float64 `json:"confidence"`
}

type kbFile struct {
	Version  string             `json:"version"`
	SavedAt  time.Time          `json:"saved_at"`
	Patterns []persistedPattern `json:"patterns"`
}

// Save writes the knowledge base to a JSON file, creating parent directories
// as needed.
func (kb *KnowledgeBase) Save(path string) error {
	file := kbFile{
		Version: SchemaVersion,
		SavedAt: time.Now().UTC(),
	}
	for _, p := range kb.All() {
		file.Patterns = append(file.Patterns, persistedPattern{
			ErrorPattern: *p,
			Confidence:   p.Confidence(),
		})
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling knowledge base: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Load replaces the current patterns with those from a JSON file. A missing
// file is not an error and leaves the knowledge base empty. Returns the
// number of patterns loaded.
func (kb *KnowledgeBase) Load(path string) (int, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}

	var file kbFile
	if err := json.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parsing %s: %w", path, err)
	}

	kb.patterns = make(map[string]*ErrorPattern, len(file.Patterns))
	kb.order = kb.order[:0]
	for i := range file.Patterns {
		p := file.Patterns[i].ErrorPattern
		kb.Add(&p)
	}
	return len(kb.patterns), nil
}
