package config

// DefaultConfig returns the built-in configuration. Every value can be
// overridden by the global or project config file.
func DefaultConfig() *PipelineConfig {
	return &PipelineConfig{
		Languages:       []string{"python", "rust", "c", "javascript", "verilog"},
		Tools:           map[string]string{},
		IncludeHardware: true,
		CheckpointDir:   ".atomik",
		Budget: BudgetConfig{
			Limit: 0,
			TierEstimates: map[string]int{
				"local":  0,
				"small":  2000,
				"medium": 8000,
				"large":  20000,
			},
			PredictorDefault: map[string]int{
				"generate":    8000,
				"verify_test": 2000,
			},
		},
		Feedback: FeedbackConfig{
			MaxDepth:        3,
			MinConfidence:   0.3,
			FuzzyThreshold:  0.6,
			MaxEditDistance: 3,
		},
		Context: ContextConfig{
			MaxTokens:        128000,
			UtilizationLimit: 0.8,
			StaleThreshold:   3,
		},
		Router: RouterConfig{
			TierOverrides: map[string]string{},
		},
		Executor: ExecutorConfig{
			MaxWorkers:     4,
			TaskTimeoutSec: 60,
		},
	}
}
