package contextwin

import "strings"

// Context window defaults.
const (
	DefaultMaxTokens        = 128000
	DefaultUtilizationLimit = 0.8
	coldStartTargetTokens   = 1500
)

// KBEntry is a knowledge base hit injected into the window before a task.
type KBEntry struct {
	ErrorClass     string `json:"error_class"`
	FixDescription string `json:"fix_description"`
}

// LoadResult describes what LoadForTask kept, injected, and dropped.
type LoadResult struct {
	SegmentsLoaded    []string `json:"segments_loaded"`
	SegmentsEvicted   []string `json:"segments_evicted"`
	KBEntriesInjected int      `json:"kb_entries_injected"`
	TotalTokens       int      `json:"total_tokens"`
	WithinBudget      bool     `json:"within_budget"`
}

// Manager keeps the context window under the utilization limit by
// ranking segments and evicting what no longer earns its tokens.
type Manager struct {
	tracker          *Tracker
	maxTokens        int
	utilizationLimit float64
	currentTokens    int
}

// Option configures a Manager.
type Option func(*Manager)

// WithEstimator replaces the default 4-chars-per-token estimator.
func WithEstimator(e Estimator) Option {
	return func(m *Manager) {
		m.tracker.estimate = e
	}
}

// WithStaleThreshold overrides the eviction threshold in task advances.
func WithStaleThreshold(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.tracker.staleThreshold = n
		}
	}
}

func NewManager(maxTokens int, utilizationLimit float64, opts ...Option) *Manager {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if utilizationLimit <= 0 || utilizationLimit > 1 {
		utilizationLimit = DefaultUtilizationLimit
	}
	m := &Manager{
		tracker:          NewTracker(DefaultStaleThreshold, nil),
		maxTokens:        maxTokens,
		utilizationLimit: utilizationLimit,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddSegment registers a segment for tracking.
func (m *Manager) AddSegment(id, content, segmentType string, taskAffinity []string) *Segment {
	seg := m.tracker.Add(id, content, segmentType, taskAffinity)
	m.currentTokens = m.tracker.TotalTokens()
	return seg
}

// Tracker exposes the underlying segment tracker.
func (m *Manager) Tracker() *Tracker { return m.tracker }

// LoadForTask prepares the window for an upcoming task: advances the
// task counter, evicts stale segments, injects KB entries with affinity
// for the task, ranks what remains, and greedily keeps segments until
// the utilization limit is reached. Segments that do not fit are
// removed and reported as evicted.
func (m *Manager) LoadForTask(taskType string, kbEntries []KBEntry) LoadResult {
	var result LoadResult

	m.tracker.AdvanceTask()
	result.SegmentsEvicted = m.tracker.EvictStale()

	for _, entry := range kbEntries {
		if entry.FixDescription == "" {
			continue
		}
		class := entry.ErrorClass
		if class == "" {
			class = "unknown"
		}
		m.tracker.Add("kb_"+class, entry.FixDescription, TypeKBEntry, []string{taskType})
		result.KBEntriesInjected++
	}

	available := int(float64(m.maxTokens) * m.utilizationLimit)
	running := 0
	for _, seg := range m.tracker.RankByRelevance(taskType) {
		if running+seg.TokenCount <= available {
			running += seg.TokenCount
			result.SegmentsLoaded = append(result.SegmentsLoaded, seg.ID)
			continue
		}
		m.tracker.Remove(seg.ID)
		result.SegmentsEvicted = append(result.SegmentsEvicted, seg.ID)
	}

	result.TotalTokens = running
	m.currentTokens = running
	result.WithinBudget = m.Utilization() <= m.utilizationLimit
	return result
}

// BuildContext concatenates segment contents ordered by relevance.
func (m *Manager) BuildContext(taskType string) string {
	ranked := m.tracker.RankByRelevance(taskType)
	parts := make([]string, 0, len(ranked))
	for _, seg := range ranked {
		parts = append(parts, seg.Content)
	}
	return strings.Join(parts, "\n\n")
}

// ColdStart builds a minimal context of roughly 1500 tokens for a fresh
// session: schema segments first, the last partially-fitting segment
// truncated at the estimated character boundary.
func (m *Manager) ColdStart() string {
	ranked := m.tracker.RankByRelevance("")
	var schema, other []*Segment
	for _, seg := range ranked {
		if seg.Type == TypeSchema {
			schema = append(schema, seg)
		} else {
			other = append(other, seg)
		}
	}

	var parts []string
	running := 0
	for _, seg := range append(schema, other...) {
		if running+seg.TokenCount <= coldStartTargetTokens {
			parts = append(parts, seg.Content)
			running += seg.TokenCount
			continue
		}
		if running < coldStartTargetTokens {
			remainingChars := (coldStartTargetTokens - running) * 4
			if remainingChars > len(seg.Content) {
				remainingChars = len(seg.Content)
			}
			parts = append(parts, seg.Content[:remainingChars])
		}
		break
	}
	return strings.Join(parts, "\n")
}

// Utilization returns the consumed fraction of the full window.
func (m *Manager) Utilization() float64 {
	if m.maxTokens == 0 {
		return 0.0
	}
	return float64(m.currentTokens) / float64(m.maxTokens)
}

// AvailableTokens returns the headroom under the utilization limit.
func (m *Manager) AvailableTokens() int {
	limit := int(float64(m.maxTokens) * m.utilizationLimit)
	if avail := limit - m.currentTokens; avail > 0 {
		return avail
	}
	return 0
}

// Stats reports budget and tracker metrics for diagnostics.
func (m *Manager) Stats() map[string]any {
	return map[string]any{
		"max_tokens":        m.maxTokens,
		"utilization_limit": m.utilizationLimit,
		"current_tokens":    m.currentTokens,
		"available_tokens":  m.AvailableTokens(),
		"utilization":       m.Utilization(),
		"tracker":           m.tracker.Summary(),
	}
}
