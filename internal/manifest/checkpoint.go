package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	checkpointFile   = "checkpoint.json"
	checkpointBackup = "checkpoint.json.bak"
)

// schemaCheckpoint records what was last generated for one schema.
type schemaCheckpoint struct {
	ContentHash    string            `json:"content_hash"`
	LastGenerated  string            `json:"last_generated"`
	ArtifactHashes map[string]string `json:"artifact_hashes"`
}

// MetricsEntry is one append-only metrics history record.
type MetricsEntry struct {
	Timestamp string         `json:"timestamp"`
	Schema    string         `json:"schema"`
	Values    map[string]any `json:"values,omitempty"`
}

type checkpointState struct {
	Version        string                       `json:"version"`
	Created        string                       `json:"created"`
	LastUpdated    string                       `json:"last_updated,omitempty"`
	Schemas        map[string]*schemaCheckpoint `json:"schemas"`
	MetricsHistory []MetricsEntry               `json:"metrics_history"`
}

// Checkpoint persists per-schema content hashes and artifact checksums
// so a later run can skip schemas whose content has not changed.
type Checkpoint struct {
	dir   string
	state checkpointState
}

// OpenCheckpoint loads the checkpoint from dir, creating the directory
// and an empty state when none exists.
func OpenCheckpoint(dir string) (*Checkpoint, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	c := &Checkpoint{dir: dir}

	data, err := os.ReadFile(c.path())
	if os.IsNotExist(err) {
		c.state = checkpointState{
			Version: Version,
			Created: time.Now().UTC().Format(time.RFC3339),
			Schemas: make(map[string]*schemaCheckpoint),
		}
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	if err := json.Unmarshal(data, &c.state); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	if c.state.Schemas == nil {
		c.state.Schemas = make(map[string]*schemaCheckpoint)
	}
	return c, nil
}

func (c *Checkpoint) path() string   { return filepath.Join(c.dir, checkpointFile) }
func (c *Checkpoint) backup() string { return filepath.Join(c.dir, checkpointBackup) }

// Save persists the checkpoint: the previous file becomes the backup,
// then the new state lands via temp-file rename so a crash mid-write
// never leaves a truncated checkpoint.
func (c *Checkpoint) Save() error {
	if prev, err := os.ReadFile(c.path()); err == nil {
		if err := os.WriteFile(c.backup(), prev, 0o644); err != nil {
			return fmt.Errorf("write checkpoint backup: %w", err)
		}
	}

	c.state.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(&c.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp := c.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, c.path()); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// SchemaHash returns the stored content hash, "" when unknown.
func (c *Checkpoint) SchemaHash(schemaName string) string {
	if entry, ok := c.state.Schemas[schemaName]; ok {
		return entry.ContentHash
	}
	return ""
}

// IsCurrent reports whether the stored hash matches contentHash, which
// means the schema's artifacts need no regeneration.
func (c *Checkpoint) IsCurrent(schemaName, contentHash string) bool {
	stored := c.SchemaHash(schemaName)
	return stored != "" && stored == contentHash
}

// UpdateSchema records a generation result and saves the checkpoint.
func (c *Checkpoint) UpdateSchema(schemaName, contentHash string, artifactHashes map[string]string, metrics map[string]any) error {
	if artifactHashes == nil {
		artifactHashes = make(map[string]string)
	}
	c.state.Schemas[schemaName] = &schemaCheckpoint{
		ContentHash:    contentHash,
		LastGenerated:  time.Now().UTC().Format(time.RFC3339),
		ArtifactHashes: artifactHashes,
	}
	if metrics != nil {
		c.AppendMetrics(schemaName, metrics)
	}
	return c.Save()
}

// AppendMetrics adds a metrics record. History is append-only.
func (c *Checkpoint) AppendMetrics(schemaName string, metrics map[string]any) {
	c.state.MetricsHistory = append(c.state.MetricsHistory, MetricsEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Schema:    schemaName,
		Values:    metrics,
	})
}

// MetricsHistory returns records, filtered by schema when non-empty.
func (c *Checkpoint) MetricsHistory(schemaName string) []MetricsEntry {
	if schemaName == "" {
		return append([]MetricsEntry(nil), c.state.MetricsHistory...)
	}
	var out []MetricsEntry
	for _, e := range c.state.MetricsHistory {
		if e.Schema == schemaName {
			out = append(out, e)
		}
	}
	return out
}
