package router

import (
	"fmt"
	"strings"

	"github.com/mitchellh/hashstructure/v2"
)

// budgetPressureCutoff is the consumed-budget fraction above which routing
// downgrades one tier.
const budgetPressureCutoff = 0.8

// Decision is one recorded routing call with its reasoning. Append-only.
type Decision struct {
	Stage           string  `json:"stage"`
	SelectedTier    Tier    `json:"-"`
	SelectedName    string  `json:"selected_tier"`
	ComplexityScore float64 `json:"complexity_score"`
	ComplexityClass string  `json:"complexity_class"`
	BudgetPressure  float64 `json:"budget_pressure"`
	HasPriorFailure bool    `json:"has_prior_failure"`
	CacheHit        bool    `json:"cache_hit"`
	Reason          string  `json:"reason"`
}

// Request carries the live signals for one routing call.
type Request struct {
	Stage          string
	Schema         map[string]any // nil skips complexity scoring
	SchemaHash     string         // keys the failure history
	BudgetPressure float64        // fraction of budget consumed, 0..1
	CacheHit       bool
}

// AdaptiveRouter layers live signals over static stage routing: schema
// complexity, prior failures, budget pressure, and cache availability each
// shift the default tier by at most one step.
type AdaptiveRouter struct {
	static    *StaticRouter
	scorer    *ComplexityScorer
	failures  map[string]int // schema hash -> outstanding failure count
	decisions []Decision
}

// NewAdaptiveRouter creates an adaptive router over the given static router
// and scorer. Nil arguments get defaults.
func NewAdaptiveRouter(static *StaticRouter, scorer *ComplexityScorer) *AdaptiveRouter {
	if static == nil {
		static = NewStaticRouter(nil)
	}
	if scorer == nil {
		scorer = NewComplexityScorer(DefaultWeights(), DefaultThresholds())
	}
	return &AdaptiveRouter{
		static:   static,
		scorer:   scorer,
		failures: make(map[string]int),
	}
}

// Route selects the execution tier for a stage. A stage whose static default
// is the local tier is fully deterministic, so no adaptive signal applies:
// it routes local unconditionally. Every call appends a Decision.
func (r *AdaptiveRouter) Route(req Request) Tier {
	baseTier := r.static.Route(req.Stage)

	if baseTier == TierLocal {
		r.decisions = append(r.decisions, Decision{
			Stage:        req.Stage,
			SelectedTier: TierLocal,
			SelectedName: TierLocal.String(),
			Reason:       "deterministic_stage",
		})
		return TierLocal
	}

	var complexityScore float64
	complexityClass := ""
	if req.Schema != nil {
		score := r.scorer.Score(req.Schema)
		complexityScore = score.Total
		complexityClass = r.scorer.Classify(score)
	}

	hasPriorFailure := r.failures[req.SchemaHash] > 0

	selected := selectTier(baseTier, complexityClass, hasPriorFailure, req.BudgetPressure)

	r.decisions = append(r.decisions, Decision{
		Stage:           req.Stage,
		SelectedTier:    selected,
		SelectedName:    selected.String(),
		ComplexityScore: complexityScore,
		ComplexityClass: complexityClass,
		BudgetPressure:  req.BudgetPressure,
		HasPriorFailure: hasPriorFailure,
		CacheHit:        req.CacheHit,
		Reason:          buildReason(baseTier, selected, complexityClass, hasPriorFailure, req.BudgetPressure, req.CacheHit),
	})
	return selected
}

// selectTier applies the adaptive signals in precedence order; the first
// matching signal wins and shifts the tier exactly one step.
func selectTier(base Tier, complexityClass string, hasPriorFailure bool, budgetPressure float64) Tier {
	if budgetPressure > budgetPressureCutoff && base > TierLocal {
		return base - 1
	}
	if hasPriorFailure && base < TierLarge {
		return base + 1
	}
	if complexityClass == ComplexityLow && base > TierLocal {
		return base - 1
	}
	if complexityClass == ComplexityHigh && base < TierLarge {
		return base + 1
	}
	return base
}

func buildReason(base, selected Tier, complexityClass string, hasPriorFailure bool, budgetPressure float64, cacheHit bool) string {
	if selected == base {
		return "static_default"
	}

	var reasons []string
	if budgetPressure > budgetPressureCutoff {
		reasons = append(reasons, fmt.Sprintf("budget_pressure(%.0f%%)", budgetPressure*100))
	}
	if hasPriorFailure {
		reasons = append(reasons, "prior_failure_escalation")
	}
	switch complexityClass {
	case ComplexityLow:
		reasons = append(reasons, "low_complexity_downgrade")
	case ComplexityHigh:
		reasons = append(reasons, "high_complexity_escalation")
	}
	if cacheHit {
		reasons = append(reasons, "cache_hit")
	}

	if len(reasons) == 0 {
		return "adaptive"
	}
	return strings.Join(reasons, "+")
}

// RecordFailure notes a failure for a schema, raising escalation priority
// for subsequent routes of the same schema.
func (r *AdaptiveRouter) RecordFailure(schemaHash string) {
	r.failures[schemaHash]++
}

// RecordSuccess decays the failure history for a schema.
func (r *AdaptiveRouter) RecordSuccess(schemaHash string) {
	if r.failures[schemaHash] > 0 {
		r.failures[schemaHash]--
	}
}

// Decisions returns the append-only routing decision log.
func (r *AdaptiveRouter) Decisions() []Decision {
	return append([]Decision(nil), r.decisions...)
}

// ClearDecisions drops the decision log.
func (r *AdaptiveRouter) ClearDecisions() {
	r.decisions = nil
}

// SchemaHash computes a stable content hash for a parsed schema, used to key
// the failure history and the checkpoint's diff logic.
func SchemaHash(schema map[string]any) (string, error) {
	h, err := hashstructure.Hash(schema, hashstructure.FormatV2, nil)
	if err != nil {
		return "", fmt.Errorf("hashing schema: %w", err)
	}
	return fmt.Sprintf("%016x", h), nil
}
