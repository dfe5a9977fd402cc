package budget

import (
	"time"
)

// Entry is one token consumption record. The ledger is append-only.
type Entry struct {
	Stage       string    `json:"stage"`
	Tier        string    `json:"tier"`
	Tokens      int       `json:"tokens"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description,omitempty"`
}

// Efficiency aggregates ledger statistics.
type Efficiency struct {
	TotalConsumed  int            `json:"total_consumed"`
	TotalEstimated int            `json:"total_estimated"`
	Limit          int            `json:"budget_limit"`
	Remaining      int            `json:"budget_remaining"`
	ByTier         map[string]int `json:"by_tier"`
	LocalStagePct  float64        `json:"local_execution_pct"`
	StagesRecorded int            `json:"stages_recorded"`
}

// Budget tracks token consumption against an optional hard limit.
// Zero limit means unlimited. Mutated only from the coordinating thread.
type Budget struct {
	limit     int
	entries   []Entry
	estimates map[string]int
}

// New creates a budget. limit <= 0 disables the cap.
func New(limit int) *Budget {
	return &Budget{
		limit:     limit,
		estimates: make(map[string]int),
	}
}

// Limit returns the configured hard limit, 0 when unlimited.
func (b *Budget) Limit() int { return b.limit }

// Record appends actual token consumption for a stage.
func (b *Budget) Record(stage, tier string, tokens int, description string) {
	b.entries = append(b.entries, Entry{
		Stage:       stage,
		Tier:        tier,
		Tokens:      tokens,
		Timestamp:   time.Now().UTC(),
		Description: description,
	})
}

// SetEstimate records the expected consumption for a stage.
func (b *Budget) SetEstimate(stage string, tokens int) {
	b.estimates[stage] = tokens
}

// TotalConsumed sums the ledger.
func (b *Budget) TotalConsumed() int {
	total := 0
	for _, e := range b.entries {
		total += e.Tokens
	}
	return total
}

// Remaining returns the unconsumed capacity, floored at zero. Unlimited
// budgets report 0 remaining and true from the second value being false.
func (b *Budget) Remaining() (int, bool) {
	if b.limit <= 0 {
		return 0, false
	}
	r := b.limit - b.TotalConsumed()
	if r < 0 {
		r = 0
	}
	return r, true
}

// CanAfford reports whether the estimate fits in the remaining capacity.
// Unlimited budgets always afford.
func (b *Budget) CanAfford(estimatedTokens int) bool {
	if b.limit <= 0 {
		return true
	}
	return b.TotalConsumed()+estimatedTokens <= b.limit
}

// Pressure returns the consumed fraction of the limit, 0 for unlimited.
// Used as a routing signal.
func (b *Budget) Pressure() float64 {
	if b.limit <= 0 {
		return 0.0
	}
	p := float64(b.TotalConsumed()) / float64(b.limit)
	if p > 1.0 {
		p = 1.0
	}
	return p
}

// Ledger returns a copy of all entries in call order.
func (b *Budget) Ledger() []Entry {
	return append([]Entry(nil), b.entries...)
}

// Efficiency computes totals, the per-tier breakdown, and the fraction of
// stages that ran at the free local tier.
func (b *Budget) Efficiency() Efficiency {
	eff := Efficiency{
		TotalConsumed:  b.TotalConsumed(),
		Limit:          b.limit,
		ByTier:         make(map[string]int),
		StagesRecorded: len(b.entries),
	}
	for _, est := range b.estimates {
		eff.TotalEstimated += est
	}
	if remaining, ok := b.Remaining(); ok {
		eff.Remaining = remaining
	}

	localStages := 0
	for _, e := range b.entries {
		eff.ByTier[e.Tier] += e.Tokens
		if e.Tier == "local" {
			localStages++
		}
	}
	if len(b.entries) > 0 {
		eff.LocalStagePct = 100 * float64(localStages) / float64(len(b.entries))
	}
	return eff
}

// Reset clears the ledger and estimates for a new pipeline run.
func (b *Budget) Reset() {
	b.entries = nil
	b.estimates = make(map[string]int)
}
