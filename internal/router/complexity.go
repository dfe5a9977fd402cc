package router

// Weights for the complexity score. Carried over unchanged from tuning runs.
type Weights struct {
	FieldCount      float64
	OperationCount  float64
	DataWidthFactor float64 // per bit
	HardwareBonus   float64
	RollbackBonus   float64
	NestedDepth     float64
}

// DefaultWeights returns the stock weight set.
func DefaultWeights() Weights {
	return Weights{
		FieldCount:      1.0,
		OperationCount:  2.0,
		DataWidthFactor: 0.01,
		HardwareBonus:   5.0,
		RollbackBonus:   3.0,
		NestedDepth:     1.5,
	}
}

// Thresholds split the total score into low/medium/high classes.
type Thresholds struct {
	Low    float64 // below this: low
	Medium float64 // below this: medium; at or above: high
}

// DefaultThresholds returns the stock classification cut points.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 5.0, Medium: 15.0}
}

// Complexity classes.
const (
	ComplexityLow    = "low"
	ComplexityMedium = "medium"
	ComplexityHigh   = "high"
)

// ComplexityScore is the weighted breakdown for a schema.
type ComplexityScore struct {
	Total          float64
	FieldCount     int
	OperationCount int
	DataWidth      int
	HasHardware    bool
	HasRollback    bool
	NestedDepth    int
}

// ComplexityScorer scores schema complexity to inform adaptive routing.
type ComplexityScorer struct {
	weights    Weights
	thresholds Thresholds
}

// NewComplexityScorer creates a scorer with the given weights and thresholds.
func NewComplexityScorer(weights Weights, thresholds Thresholds) *ComplexityScorer {
	return &ComplexityScorer{weights: weights, thresholds: thresholds}
}

// Score computes the weighted complexity of a parsed schema document.
// Expected top-level keys: "delta_fields", "operations", "hardware".
func (s *ComplexityScorer) Score(schema map[string]any) ComplexityScore {
	fields, _ := schema["delta_fields"].(map[string]any)
	ops, _ := schema["operations"].(map[string]any)
	hw, _ := schema["hardware"].(map[string]any)

	dataWidth := 64
	if w, ok := asInt(hw["data_width"]); ok {
		dataWidth = w
	}

	hasRollback := false
	if _, ok := ops["rollback"]; ok {
		hasRollback = true
	}
	if depth, ok := asInt(hw["rollback_history_depth"]); ok && depth > 0 {
		hasRollback = true
	}

	score := ComplexityScore{
		FieldCount:     len(fields),
		OperationCount: len(ops),
		DataWidth:      dataWidth,
		HasHardware:    len(hw) > 0,
		HasRollback:    hasRollback,
		NestedDepth:    nesting(schema, 0),
	}

	score.Total = float64(score.FieldCount)*s.weights.FieldCount +
		float64(score.OperationCount)*s.weights.OperationCount +
		float64(score.DataWidth)*s.weights.DataWidthFactor +
		float64(score.NestedDepth)*s.weights.NestedDepth
	if score.HasHardware {
		score.Total += s.weights.HardwareBonus
	}
	if score.HasRollback {
		score.Total += s.weights.RollbackBonus
	}

	return score
}

// Classify maps a score to low/medium/high against the thresholds.
func (s *ComplexityScorer) Classify(score ComplexityScore) string {
	switch {
	case score.Total < s.thresholds.Low:
		return ComplexityLow
	case score.Total < s.thresholds.Medium:
		return ComplexityMedium
	default:
		return ComplexityHigh
	}
}

// nesting computes the maximum depth of nested maps and slices.
func nesting(v any, depth int) int {
	switch val := v.(type) {
	case map[string]any:
		maxDepth := depth
		for _, child := range val {
			if d := nesting(child, depth+1); d > maxDepth {
				maxDepth = d
			}
		}
		return maxDepth
	case []any:
		maxDepth := depth
		for _, child := range val {
			if d := nesting(child, depth+1); d > maxDepth {
				maxDepth = d
			}
		}
		return maxDepth
	default:
		return depth
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
