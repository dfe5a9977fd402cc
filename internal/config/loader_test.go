package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Feedback.MaxDepth != 3 {
		t.Errorf("Feedback.MaxDepth = %d, want 3", cfg.Feedback.MaxDepth)
	}
	if cfg.Context.MaxTokens != 128000 {
		t.Errorf("Context.MaxTokens = %d, want 128000", cfg.Context.MaxTokens)
	}
	if cfg.Budget.TierEstimates["medium"] != 8000 {
		t.Errorf("TierEstimates[medium] = %d, want 8000", cfg.Budget.TierEstimates["medium"])
	}
	if len(cfg.Languages) != 5 {
		t.Errorf("Languages = %v, want all 5", cfg.Languages)
	}
}

func TestLoadMissingFilesSkipped(t *testing.T) {
	cfg, err := Load("/nonexistent/global.json", "/nonexistent/project.json")
	if err != nil {
		t.Fatalf("Load() with missing files errored: %v", err)
	}
	if cfg.Executor.MaxWorkers != 4 {
		t.Errorf("Executor.MaxWorkers = %d, want default 4", cfg.Executor.MaxWorkers)
	}
}

func TestLoadMergePrecedence(t *testing.T) {
	dir := t.TempDir()
	globalPath := filepath.Join(dir, "global.json")
	projectPath := filepath.Join(dir, "project.json")

	globalJSON := `{
		"budget": {"limit": 50000},
		"feedback": {"max_depth": 5}
	}`
	projectJSON := `{
		"budget": {"limit": 20000},
		"router": {"tier_overrides": {"generate": "large"}}
	}`
	if err := os.WriteFile(globalPath, []byte(globalJSON), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(projectPath, []byte(projectJSON), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(globalPath, projectPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Project config wins over global.
	if cfg.Budget.Limit != 20000 {
		t.Errorf("Budget.Limit = %d, want 20000", cfg.Budget.Limit)
	}
	// Global values survive when the project file does not set them.
	if cfg.Feedback.MaxDepth != 5 {
		t.Errorf("Feedback.MaxDepth = %d, want 5", cfg.Feedback.MaxDepth)
	}
	if cfg.Router.TierOverrides["generate"] != "large" {
		t.Errorf("TierOverrides = %v", cfg.Router.TierOverrides)
	}
	// Untouched defaults remain.
	if cfg.Context.UtilizationLimit != 0.8 {
		t.Errorf("Context.UtilizationLimit = %v, want 0.8", cfg.Context.UtilizationLimit)
	}
}

func TestLoadMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, ""); err == nil {
		t.Fatal("Load() with malformed JSON did not error")
	}
}

func TestKnowledgePathOverride(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.KnowledgePath() == "" {
		t.Error("KnowledgePath() default is empty")
	}
	cfg.Feedback.KnowledgePath = "/tmp/kb.json"
	if got := cfg.KnowledgePath(); got != "/tmp/kb.json" {
		t.Errorf("KnowledgePath() = %q, want /tmp/kb.json", got)
	}
}
