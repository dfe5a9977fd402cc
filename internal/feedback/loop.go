package feedback

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/atomik-io/pipeline/internal/events"
)

// Outcome of a feedback loop run.
type Outcome int

const (
	// RetryExhausted means maxDepth iterations passed without a clean verify.
	RetryExhausted Outcome = iota
	// FixedByKB means a knowledge-base fix resolved the failure.
	FixedByKB
	// FixedByLLM means an LLM-diagnosed fix resolved the failure.
	FixedByLLM
	// IdenticalError means the same classified error repeated between
	// iterations; retrying cannot help without new information.
	IdenticalError
)

func (o Outcome) String() string {
	switch o {
	case FixedByKB:
		return "fixed_by_kb"
	case FixedByLLM:
		return "fixed_by_llm"
	case IdenticalError:
		return "identical_error"
	case RetryExhausted:
		return "retry_exhausted"
	}
	return "unknown"
}

// Resolved reports whether the run ended with a passing verification.
func (o Outcome) Resolved() bool {
	return o == FixedByKB || o == FixedByLLM
}

// Fix sources recorded per iteration.
const (
	FixSourceKB  = "kb"
	FixSourceLLM = "llm"
)

// Callback signatures injected by the caller. Collaborators (generators,
// verifiers, diagnostic models) stay behind these, so the loop never inspects
// their internals.
type (
	// Classify maps (language, errors) to a structured diagnosis.
	Classify func(language string, errs []string) Diagnosis

	// KBLookup reports whether a known fix exists for the classified
	// error. A miss is normal, not an error.
	KBLookup func(language, errorClass, errorMessage string) (found bool, fixDescription string)

	// ApplyFix applies a fix description. Returns false if the fix could
	// not be applied.
	ApplyFix func(language, errorClass, fixDescription string) bool

	// Diagnose escalates to the expensive diagnostic path. Returns the
	// proposed fix and its token cost.
	Diagnose func(ctx context.Context, language, errorClass string, errs []string) (fixDescription string, tokens int, err error)

	// Verify re-checks the artifact after a fix. A failed verification
	// drives another iteration.
	Verify func(language string) (passed bool, errs []string)

	// Record persists a successful LLM-diagnosed fix in the knowledge
	// base. Optional.
	Record func(language, errorClass, errorMessage, fixDescription string)
)

// Hooks bundles the loop's collaborator callbacks.
type Hooks struct {
	Classify Classify
	Lookup   KBLookup
	Apply    ApplyFix
	Diagnose Diagnose
	Verify   Verify
	Record   Record // optional
}

// Iteration records one pass through the loop.
type Iteration struct {
	Number         int
	ErrorClass     string
	ErrorMessage   string
	FixSource      string // "kb", "llm", or ""
	FixApplied     bool
	FixDescription string
	TokensConsumed int
	ReVerifyPassed bool
	Duration       time.Duration
}

// Result of a complete feedback run.
type Result struct {
	Outcome     Outcome
	Iterations  []Iteration
	TotalTokens int
	FinalErrors []string
}

// Loop drives the classify -> lookup -> fix -> verify cycle with bounded
// depth and stagnation detection.
type Loop struct {
	maxDepth int
	bus      *events.Bus // optional
	logger   *zap.Logger
}

// NewLoop creates a feedback loop. A nil bus disables event emission.
func NewLoop(maxDepth int, bus *events.Bus, logger *zap.Logger) *Loop {
	if maxDepth <= 0 {
		maxDepth = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{maxDepth: maxDepth, bus: bus, logger: logger}
}

// Run executes the feedback loop for one failing stage. Each iteration
// classifies the error, consults the knowledge base, applies the known fix or
// escalates to the diagnostic callback, and re-verifies. An identical
// classified error across consecutive iterations stops the loop immediately.
func (l *Loop) Run(ctx context.Context, language string, initialErrors []string, hooks Hooks) Result {
	result := Result{Outcome: RetryExhausted}
	errs := append([]string(nil), initialErrors...)
	prevClass := ""

	for i := 0; i < l.maxDepth; i++ {
		start := time.Now()
		diag := hooks.Classify(language, errs)
		iteration := Iteration{
			Number:       i + 1,
			ErrorClass:   diag.ErrorClass,
			ErrorMessage: diag.PrimaryMessage,
		}

		l.emit(events.FeedbackStart, map[string]any{
			"language":    language,
			"error_class": diag.ErrorClass,
			"retry":       i + 1,
			"max_retries": l.maxDepth,
		})

		// Stagnation check: the same classified error twice in a row means
		// the fixes are not moving the needle.
		if i > 0 && diag.ErrorClass == prevClass {
			iteration.Duration = time.Since(start)
			result.Iterations = append(result.Iterations, iteration)
			result.Outcome = IdenticalError
			result.FinalErrors = errs
			break
		}
		prevClass = diag.ErrorClass

		// Known fix from the knowledge base first
		if found, fixDesc := hooks.Lookup(language, diag.ErrorClass, diag.PrimaryMessage); found {
			iteration.FixSource = FixSourceKB
			iteration.FixDescription = fixDesc
			iteration.FixApplied = hooks.Apply(language, diag.ErrorClass, fixDesc)

			if iteration.FixApplied {
				l.emitApplied(FixSourceKB, diag.ErrorClass, i+1)
				passed, newErrs := hooks.Verify(language)
				iteration.ReVerifyPassed = passed
				iteration.Duration = time.Since(start)
				result.Iterations = append(result.Iterations, iteration)
				l.emitResult(FixSourceKB, passed, i+1)

				if passed {
					result.Outcome = FixedByKB
					result.TotalTokens = sumTokens(result.Iterations)
					return result
				}
				errs = newErrs
				continue
			}
		}

		// Escalate to the diagnostic path
		fixDesc, tokens, err := hooks.Diagnose(ctx, language, diag.ErrorClass, errs)
		iteration.FixSource = FixSourceLLM
		iteration.FixDescription = fixDesc
		iteration.TokensConsumed = tokens
		if err != nil {
			l.logger.Warn("diagnosis failed",
				zap.String("language", language),
				zap.String("error_class", diag.ErrorClass),
				zap.Error(err))
			iteration.Duration = time.Since(start)
			result.Iterations = append(result.Iterations, iteration)
			continue
		}

		iteration.FixApplied = hooks.Apply(language, diag.ErrorClass, fixDesc)
		if iteration.FixApplied {
			l.emitApplied(FixSourceLLM, diag.ErrorClass, i+1)
			passed, newErrs := hooks.Verify(language)
			iteration.ReVerifyPassed = passed
			iteration.Duration = time.Since(start)
			result.Iterations = append(result.Iterations, iteration)
			l.emitResult(FixSourceLLM, passed, i+1)

			if passed {
				result.Outcome = FixedByLLM
				if hooks.Record != nil {
					hooks.Record(language, diag.ErrorClass, diag.PrimaryMessage, fixDesc)
				}
				result.TotalTokens = sumTokens(result.Iterations)
				return result
			}
			errs = newErrs
		} else {
			iteration.Duration = time.Since(start)
			result.Iterations = append(result.Iterations, iteration)
		}
	}

	if result.FinalErrors == nil {
		result.FinalErrors = errs
	}
	result.TotalTokens = sumTokens(result.Iterations)
	return result
}

func (l *Loop) emit(eventType events.Type, payload map[string]any) {
	if l.bus != nil {
		l.bus.Emit(events.New(eventType, payload, "feedback_loop"))
	}
}

func (l *Loop) emitApplied(source, errorClass string, iteration int) {
	l.emit(events.FixApplied, map[string]any{
		"fix_source":  source,
		"error_class": errorClass,
		"iteration":   iteration,
	})
}

func (l *Loop) emitResult(source string, success bool, iteration int) {
	l.emit(events.FeedbackResult, map[string]any{
		"fix_source": source,
		"success":    success,
		"iteration":  iteration,
	})
}

func sumTokens(iterations []Iteration) int {
	total := 0
	for _, it := range iterations {
		total += it.TokensConsumed
	}
	return total
}
