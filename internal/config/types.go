package config

// BudgetConfig bounds token spend for a pipeline run.
type BudgetConfig struct {
	Limit            int            `json:"limit"`              // 0 = unlimited
	TierEstimates    map[string]int `json:"tier_estimates"`     // expected tokens per tier
	PredictorDefault map[string]int `json:"predictor_defaults"` // fallback estimate per task type
}

// FeedbackConfig tunes the self-correction loop.
type FeedbackConfig struct {
	MaxDepth        int     `json:"max_depth"`
	MinConfidence   float64 `json:"min_confidence"`
	FuzzyThreshold  float64 `json:"fuzzy_threshold"`
	MaxEditDistance int     `json:"max_edit_distance"`
	KnowledgePath   string  `json:"knowledge_path,omitempty"` // "" = XDG data dir
}

// ContextConfig sizes the context window manager.
type ContextConfig struct {
	MaxTokens        int     `json:"max_tokens"`
	UtilizationLimit float64 `json:"utilization_limit"`
	StaleThreshold   int     `json:"stale_threshold"`
}

// RouterConfig adjusts tier selection.
type RouterConfig struct {
	TierOverrides map[string]string `json:"tier_overrides"` // stage -> tier name
}

// ExecutorConfig sizes the parallel worker pool.
type ExecutorConfig struct {
	MaxWorkers     int `json:"max_workers"`
	TaskTimeoutSec int `json:"task_timeout_sec"`
}

// PipelineConfig is the top-level configuration.
type PipelineConfig struct {
	Languages       []string          `json:"languages"`
	Tools           map[string]string `json:"tools"` // task type -> external command
	IncludeHardware bool              `json:"include_hardware"`
	CheckpointDir   string            `json:"checkpoint_dir"`
	AuditDBPath     string            `json:"audit_db_path,omitempty"` // "" = XDG state dir
	Budget          BudgetConfig      `json:"budget"`
	Feedback        FeedbackConfig    `json:"feedback"`
	Context         ContextConfig     `json:"context"`
	Router          RouterConfig      `json:"router"`
	Executor        ExecutorConfig    `json:"executor"`
}
