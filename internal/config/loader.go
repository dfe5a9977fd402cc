package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global
// config, defaults. Missing files are not errors; malformed JSON is.
func Load(globalPath, projectPath string) (*PipelineConfig, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: $XDG_CONFIG_HOME/atomikpipe/config.json
// Project: .atomik/config.json (relative to cwd)
func LoadDefault() (*PipelineConfig, error) {
	globalPath := filepath.Join(xdg.ConfigHome, "atomikpipe", "config.json")
	projectPath := filepath.Join(".atomik", "config.json")
	return Load(globalPath, projectPath)
}

// KnowledgePath resolves the knowledge base file location, defaulting
// to the XDG data directory.
func (c *PipelineConfig) KnowledgePath() string {
	if c.Feedback.KnowledgePath != "" {
		return c.Feedback.KnowledgePath
	}
	return filepath.Join(xdg.DataHome, "atomikpipe", "knowledge.json")
}

// AuditPath resolves the audit database location, defaulting to the
// XDG state directory.
func (c *PipelineConfig) AuditPath() string {
	if c.AuditDBPath != "" {
		return c.AuditDBPath
	}
	return filepath.Join(xdg.StateHome, "atomikpipe", "audit.db")
}

// mergeConfigFile unmarshals a JSON file over the base config: fields
// present in the file override, absent fields keep their values.
// Missing files are silently skipped.
func mergeConfigFile(base *PipelineConfig, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, base); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	return nil
}
