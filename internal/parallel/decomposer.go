package parallel

// AllLanguages lists every generation target in pipeline order.
var AllLanguages = []string{"python", "rust", "c", "javascript", "verilog"}

// Task types.
const (
	TypeStage      = "stage"
	TypeGenerate   = "generate"
	TypeVerify     = "verify"
	TypeSynthesize = "synthesize"
)

// Task is a decomposed unit of work ready for parallel execution.
type Task struct {
	ID           string            `json:"task_id"`
	Type         string            `json:"task_type"`
	Language     string            `json:"language,omitempty"`
	Dependencies []string          `json:"dependencies"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Plan groups decomposed tasks into waves that may run concurrently.
type Plan struct {
	Tasks  []Task     `json:"tasks"`
	Groups [][]string `json:"parallel_groups"`
}

// TaskCount returns the number of tasks in the plan.
func (p *Plan) TaskCount() int { return len(p.Tasks) }

// MaxParallelism returns the width of the widest group, at least 1.
func (p *Plan) MaxParallelism() int {
	widest := 1
	for _, g := range p.Groups {
		if len(g) > widest {
			widest = len(g)
		}
	}
	return widest
}

// Decomposer splits pipeline stages into per-language parallel tasks.
// Each language generates and verifies independently, so one failing
// language never blocks the others.
type Decomposer struct{}

func NewDecomposer() *Decomposer { return &Decomposer{} }

// DecomposeGeneration yields one root generation task per language,
// all in a single parallel group.
func (d *Decomposer) DecomposeGeneration(languages []string) *Plan {
	langs := orAllLanguages(languages)
	plan := &Plan{}
	group := make([]string, 0, len(langs))
	for _, lang := range langs {
		id := "gen_" + lang
		plan.Tasks = append(plan.Tasks, Task{ID: id, Type: TypeGenerate, Language: lang})
		group = append(group, id)
	}
	plan.Groups = append(plan.Groups, group)
	return plan
}

// DecomposeVerification yields one verification task per language, each
// depending on its language's generation task.
func (d *Decomposer) DecomposeVerification(languages []string) *Plan {
	langs := orAllLanguages(languages)
	plan := &Plan{}
	group := make([]string, 0, len(langs))
	for _, lang := range langs {
		id := "verify_" + lang
		plan.Tasks = append(plan.Tasks, Task{
			ID:           id,
			Type:         TypeVerify,
			Language:     lang,
			Dependencies: []string{"gen_" + lang},
		})
		group = append(group, id)
	}
	plan.Groups = append(plan.Groups, group)
	return plan
}

// DecomposeFullPipeline lays out a complete run: validate, diff,
// per-language generation, per-language verification overlapped with
// hardware simulation, then metrics.
func (d *Decomposer) DecomposeFullPipeline(languages []string, includeHardware bool) *Plan {
	langs := orAllLanguages(languages)
	plan := &Plan{}

	plan.Tasks = append(plan.Tasks, Task{ID: "validate", Type: TypeStage})
	plan.Groups = append(plan.Groups, []string{"validate"})

	plan.Tasks = append(plan.Tasks, Task{ID: "diff", Type: TypeStage, Dependencies: []string{"validate"}})
	plan.Groups = append(plan.Groups, []string{"diff"})

	genGroup := make([]string, 0, len(langs))
	for _, lang := range langs {
		id := "gen_" + lang
		plan.Tasks = append(plan.Tasks, Task{
			ID:           id,
			Type:         TypeGenerate,
			Language:     lang,
			Dependencies: []string{"diff"},
		})
		genGroup = append(genGroup, id)
	}
	plan.Groups = append(plan.Groups, genGroup)

	verifyGroup := make([]string, 0, len(langs)+1)
	for _, lang := range langs {
		id := "verify_" + lang
		plan.Tasks = append(plan.Tasks, Task{
			ID:           id,
			Type:         TypeVerify,
			Language:     lang,
			Dependencies: []string{"gen_" + lang},
		})
		verifyGroup = append(verifyGroup, id)
	}
	if includeHardware {
		plan.Tasks = append(plan.Tasks, Task{
			ID:           "hardware_sim",
			Type:         TypeSynthesize,
			Language:     "verilog",
			Dependencies: []string{"gen_verilog"},
		})
		verifyGroup = append(verifyGroup, "hardware_sim")
	}
	plan.Groups = append(plan.Groups, verifyGroup)

	plan.Tasks = append(plan.Tasks, Task{
		ID:           "metrics",
		Type:         TypeStage,
		Dependencies: append([]string(nil), verifyGroup...),
	})
	plan.Groups = append(plan.Groups, []string{"metrics"})

	return plan
}

func orAllLanguages(languages []string) []string {
	if len(languages) == 0 {
		return append([]string(nil), AllLanguages...)
	}
	return languages
}
