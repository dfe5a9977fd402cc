// Package manifest persists pipeline state across sessions: the
// top-level manifest for compact cold-start loading and checkpoints
// for differential regeneration.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Version is the manifest schema version.
const Version = "2.0"

var defaultLanguages = []string{"python", "rust", "c", "javascript", "verilog"}

// ArtifactEntry tracks one generated artifact with its checksum.
type ArtifactEntry struct {
	Path          string `json:"path"`
	SHA256        string `json:"sha256"`
	Language      string `json:"language,omitempty"`
	Status        string `json:"status"`
	LastGenerated string `json:"last_generated,omitempty"`
}

// SchemaEntry tracks one registered schema and its artifacts.
type SchemaEntry struct {
	Name          string                   `json:"name"`
	SHA256        string                   `json:"sha256"`
	Path          string                   `json:"path"`
	Namespace     string                   `json:"namespace,omitempty"`
	LastGenerated string                   `json:"last_generated,omitempty"`
	Artifacts     map[string]ArtifactEntry `json:"artifacts,omitempty"`
}

// ProjectState summarizes the project for cold-start context.
type ProjectState struct {
	Phase              string   `json:"phase"`
	SchemasRegistered  int      `json:"schemas_registered"`
	LanguagesSupported []string `json:"languages_supported"`
	LastPipelineRun    string   `json:"last_pipeline_run,omitempty"`
}

// TokenLedger carries cross-session token accounting.
type TokenLedger struct {
	SessionTotal    int     `json:"session_total"`
	BudgetRemaining float64 `json:"budget_remaining"`
}

// Manifest is the top-level cross-session pipeline state. It is kept
// compact so it can be serialized into a cold-start context window.
type Manifest struct {
	Version        string                  `json:"version"`
	Project        ProjectState            `json:"project_state"`
	Schemas        map[string]*SchemaEntry `json:"-"`
	HardwareState  map[string]any          `json:"hardware_state,omitempty"`
	MetricsSummary map[string]any          `json:"metrics_summary,omitempty"`
	Ledger         TokenLedger             `json:"token_ledger"`
	PendingActions []string                `json:"pending_actions,omitempty"`
}

// manifestFile mirrors the on-disk layout, which nests schemas under
// an artifact index.
type manifestFile struct {
	Version       string                  `json:"version"`
	Project       ProjectState            `json:"project_state"`
	ArtifactIndex struct {
		Schemas map[string]*SchemaEntry `json:"schemas"`
	} `json:"artifact_index"`
	HardwareState  map[string]any `json:"hardware_state,omitempty"`
	MetricsSummary map[string]any `json:"metrics_summary,omitempty"`
	Ledger         *TokenLedger   `json:"token_ledger,omitempty"`
	PendingActions []string       `json:"pending_actions,omitempty"`
}

// New creates an empty manifest with defaults.
func New() *Manifest {
	return &Manifest{
		Version: Version,
		Project: ProjectState{
			Phase:              "4C",
			LanguagesSupported: append([]string(nil), defaultLanguages...),
		},
		Schemas: make(map[string]*SchemaEntry),
		Ledger:  TokenLedger{BudgetRemaining: 130.0},
	}
}

// RegisterSchema adds or refreshes a schema entry.
func (m *Manifest) RegisterSchema(name, sha256, path, namespace string) {
	if entry, ok := m.Schemas[name]; ok {
		entry.SHA256 = sha256
		entry.Path = path
		if namespace != "" {
			entry.Namespace = namespace
		}
	} else {
		m.Schemas[name] = &SchemaEntry{
			Name:      name,
			SHA256:    sha256,
			Path:      path,
			Namespace: namespace,
		}
	}
	m.Project.SchemasRegistered = len(m.Schemas)
}

// RecordArtifact attaches an artifact to a registered schema.
func (m *Manifest) RecordArtifact(schemaName, language string, artifact ArtifactEntry) error {
	entry, ok := m.Schemas[schemaName]
	if !ok {
		return fmt.Errorf("schema %q not registered", schemaName)
	}
	if entry.Artifacts == nil {
		entry.Artifacts = make(map[string]ArtifactEntry)
	}
	entry.Artifacts[language] = artifact
	return nil
}

// RecordRun stamps the last run time and accumulates token spend.
func (m *Manifest) RecordRun(tokensConsumed int) {
	m.Project.LastPipelineRun = time.Now().UTC().Format(time.RFC3339)
	m.Ledger.SessionTotal += tokensConsumed
}

// Save writes the manifest as indented JSON, creating parent dirs.
func (m *Manifest) Save(path string) error {
	var file manifestFile
	file.Version = m.Version
	file.Project = m.Project
	file.ArtifactIndex.Schemas = m.Schemas
	file.HardwareState = m.HardwareState
	file.MetricsSummary = m.MetricsSummary
	file.Ledger = &m.Ledger
	file.PendingActions = m.PendingActions

	data, err := json.MarshalIndent(&file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Load reads a manifest, tolerating absent fields: anything missing
// falls back to defaults so older manifests keep loading.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var file manifestFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	m := New()
	if file.Version != "" {
		m.Version = file.Version
	}
	if file.Project.Phase != "" {
		m.Project.Phase = file.Project.Phase
	}
	if len(file.Project.LanguagesSupported) > 0 {
		m.Project.LanguagesSupported = file.Project.LanguagesSupported
	}
	m.Project.LastPipelineRun = file.Project.LastPipelineRun
	if file.ArtifactIndex.Schemas != nil {
		m.Schemas = file.ArtifactIndex.Schemas
		for name, entry := range m.Schemas {
			if entry.Name == "" {
				entry.Name = name
			}
		}
	}
	m.Project.SchemasRegistered = len(m.Schemas)
	m.HardwareState = file.HardwareState
	m.MetricsSummary = file.MetricsSummary
	if file.Ledger != nil {
		m.Ledger = *file.Ledger
	}
	m.PendingActions = file.PendingActions
	return m, nil
}
