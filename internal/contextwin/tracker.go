package contextwin

import (
	"math"
	"sort"
	"time"
)

// DefaultStaleThreshold is the number of task advances after which an
// untouched segment becomes eligible for eviction.
const DefaultStaleThreshold = 3

// Tracker maintains the segment registry and scores segments by
// relevance to the current task. Single-threaded: all calls come from
// the coordinating goroutine.
type Tracker struct {
	segments       map[string]*Segment
	order          []string
	taskCounter    int
	lastUsedAt     map[string]int
	staleThreshold int
	estimate       Estimator
}

func NewTracker(staleThreshold int, estimate Estimator) *Tracker {
	if staleThreshold <= 0 {
		staleThreshold = DefaultStaleThreshold
	}
	if estimate == nil {
		estimate = DefaultEstimator
	}
	return &Tracker{
		segments:       make(map[string]*Segment),
		lastUsedAt:     make(map[string]int),
		staleThreshold: staleThreshold,
		estimate:       estimate,
	}
}

// Add registers a segment, or refreshes content and access stats when
// the ID already exists.
func (t *Tracker) Add(id, content, segmentType string, taskAffinity []string) *Segment {
	now := time.Now().UTC()
	seg, ok := t.segments[id]
	if ok {
		seg.Content = content
		seg.TokenCount = t.estimate(content)
		seg.touch(now)
	} else {
		seg = &Segment{
			ID:           id,
			Content:      content,
			Type:         segmentType,
			TaskAffinity: append([]string(nil), taskAffinity...),
			TokenCount:   t.estimate(content),
			CreatedAt:    now,
			LastAccessed: now,
			Relevance:    1.0,
		}
		t.segments[id] = seg
		t.order = append(t.order, id)
	}
	t.lastUsedAt[id] = t.taskCounter
	return seg
}

// Get returns a segment and marks it accessed, nil when absent.
func (t *Tracker) Get(id string) *Segment {
	seg, ok := t.segments[id]
	if !ok {
		return nil
	}
	seg.touch(time.Now().UTC())
	t.lastUsedAt[id] = t.taskCounter
	return seg
}

// Remove deletes a segment, reporting whether it existed.
func (t *Tracker) Remove(id string) bool {
	if _, ok := t.segments[id]; !ok {
		return false
	}
	delete(t.segments, id)
	delete(t.lastUsedAt, id)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// AdvanceTask signals that a new task has started.
func (t *Tracker) AdvanceTask() {
	t.taskCounter++
}

// RankByRelevance recomputes relevance for every segment and returns
// them highest first. Ties keep insertion order.
func (t *Tracker) RankByRelevance(currentTaskType string) []*Segment {
	ranked := make([]*Segment, 0, len(t.segments))
	for _, id := range t.order {
		seg := t.segments[id]
		seg.Relevance = t.relevance(seg, currentTaskType)
		ranked = append(ranked, seg)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Relevance > ranked[j].Relevance
	})
	return ranked
}

// StaleSegments returns segments untouched for staleThreshold tasks.
func (t *Tracker) StaleSegments() []*Segment {
	var stale []*Segment
	for _, id := range t.order {
		if t.taskCounter-t.lastUsedAt[id] >= t.staleThreshold {
			stale = append(stale, t.segments[id])
		}
	}
	return stale
}

// EvictStale removes stale segments and returns their IDs.
func (t *Tracker) EvictStale() []string {
	var evicted []string
	for _, seg := range t.StaleSegments() {
		t.Remove(seg.ID)
		evicted = append(evicted, seg.ID)
	}
	return evicted
}

// TotalTokens sums token counts across all segments.
func (t *Tracker) TotalTokens() int {
	total := 0
	for _, seg := range t.segments {
		total += seg.TokenCount
	}
	return total
}

// Count returns the number of tracked segments.
func (t *Tracker) Count() int { return len(t.segments) }

// Summary reports tracker statistics for diagnostics.
func (t *Tracker) Summary() map[string]any {
	return map[string]any{
		"segment_count": t.Count(),
		"total_tokens":  t.TotalTokens(),
		"task_counter":  t.taskCounter,
	}
}

// relevance combines task affinity, recency decay, and a log-scale
// access-frequency bonus.
func (t *Tracker) relevance(seg *Segment, currentTaskType string) float64 {
	score := 1.0
	if currentTaskType != "" && seg.hasAffinity(currentTaskType) {
		score *= 2.0
	}
	if tasksSince := t.taskCounter - t.lastUsedAt[seg.ID]; tasksSince > 0 {
		score *= 1.0 / (1.0 + 0.3*float64(tasksSince))
	}
	if seg.AccessCount > 1 {
		score *= 1.0 + 0.2*math.Log(float64(seg.AccessCount))
	}
	return score
}
