package router

import "fmt"

// Tier is an execution cost level, ordered cheapest first.
type Tier int

const (
	TierLocal Tier = iota // T0: deterministic local execution, no model
	TierSmall             // T1: mechanical tasks, cheap model
	TierMedium            // T2: generative tasks
	TierLarge             // T3: novel reasoning
)

var tierNames = [...]string{"local", "small", "medium", "large"}

func (t Tier) String() string {
	if t < TierLocal || t > TierLarge {
		return "unknown"
	}
	return tierNames[t]
}

// ParseTier converts a tier name back to its Tier value.
func ParseTier(name string) (Tier, error) {
	for i, n := range tierNames {
		if n == name {
			return Tier(i), nil
		}
	}
	return TierLocal, fmt.Errorf("unknown tier %q", name)
}

// Clamp bounds a tier index to the valid range.
func (t Tier) Clamp() Tier {
	if t < TierLocal {
		return TierLocal
	}
	if t > TierLarge {
		return TierLarge
	}
	return t
}

// TaskClass categorizes pipeline subtasks by how much reasoning they need.
type TaskClass int

const (
	ClassDeterministic TaskClass = iota // lint, test, diff, report, metrics
	ClassMechanical                     // known template, known fix
	ClassGenerative                     // code generation, new patterns
	ClassNovel                          // unknown error, architectural decision
)

func (c TaskClass) String() string {
	switch c {
	case ClassDeterministic:
		return "deterministic"
	case ClassMechanical:
		return "mechanical"
	case ClassGenerative:
		return "generative"
	case ClassNovel:
		return "novel"
	}
	return "unknown"
}

// DefaultTier maps a task class to its default execution tier.
func (c TaskClass) DefaultTier() Tier {
	switch c {
	case ClassDeterministic:
		return TierLocal
	case ClassMechanical:
		return TierSmall
	case ClassGenerative:
		return TierMedium
	case ClassNovel:
		return TierLarge
	}
	return TierMedium
}

// TokenEstimate is the nominal token cost of running a task at each tier.
var TokenEstimate = map[Tier]int{
	TierLocal:  0,
	TierSmall:  2000,
	TierMedium: 8000,
	TierLarge:  20000,
}

// defaultStageClasses maps pipeline stage names to their task class.
// Unlisted stages default to generative.
var defaultStageClasses = map[string]TaskClass{
	"validate":             ClassDeterministic,
	"diff":                 ClassDeterministic,
	"generate":             ClassDeterministic, // the generator engine is local
	"verify_lint":          ClassDeterministic,
	"verify_test":          ClassDeterministic,
	"verify_diagnosis":     ClassMechanical,
	"hardware_sim":         ClassDeterministic,
	"hardware_synth":       ClassDeterministic,
	"hardware_program":     ClassDeterministic,
	"hardware_validate":    ClassDeterministic,
	"metrics_collect":      ClassDeterministic,
	"metrics_report":       ClassDeterministic,
	"self_correct_known":   ClassMechanical,
	"self_correct_unknown": ClassGenerative,
}

// StaticRouter maps stage names to tiers through the class table,
// with optional per-stage overrides. Run locally whenever possible;
// escalate only when deterministic execution fails.
type StaticRouter struct {
	classes   map[string]TaskClass
	overrides map[string]Tier
}

// NewStaticRouter creates a static router with the default stage table.
// Overrides pin specific stages to a tier regardless of class.
func NewStaticRouter(overrides map[string]Tier) *StaticRouter {
	classes := make(map[string]TaskClass, len(defaultStageClasses))
	for stage, class := range defaultStageClasses {
		classes[stage] = class
	}
	return &StaticRouter{classes: classes, overrides: overrides}
}

// Route returns the default tier for a stage.
func (r *StaticRouter) Route(stage string) Tier {
	if tier, ok := r.overrides[stage]; ok {
		return tier
	}
	class, ok := r.classes[stage]
	if !ok {
		class = ClassGenerative
	}
	return class.DefaultTier()
}

// Escalate returns the next tier above the stage's default, for retry after
// failure. Already at the top stays at the top.
func (r *StaticRouter) Escalate(stage string) Tier {
	return (r.Route(stage) + 1).Clamp()
}

// EstimateTokens returns the nominal token cost for running a stage at its
// default tier.
func (r *StaticRouter) EstimateTokens(stage string) int {
	return TokenEstimate[r.Route(stage)]
}
