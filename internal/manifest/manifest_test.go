package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestManifestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "manifest.json")

	m := New()
	m.RegisterSchema("counter", "abc123", "schemas/counter.json", "core")
	if err := m.RecordArtifact("counter", "rust", ArtifactEntry{
		Path:   "gen/counter.rs",
		SHA256: "def456",
		Status: "generated",
	}); err != nil {
		t.Fatalf("RecordArtifact() error: %v", err)
	}
	m.RecordRun(2400)

	if err := m.Save(path); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Version != Version {
		t.Errorf("Version = %q, want %q", loaded.Version, Version)
	}
	if loaded.Project.SchemasRegistered != 1 {
		t.Errorf("SchemasRegistered = %d, want 1", loaded.Project.SchemasRegistered)
	}
	entry, ok := loaded.Schemas["counter"]
	if !ok {
		t.Fatal("counter schema not restored")
	}
	if entry.SHA256 != "abc123" || entry.Namespace != "core" {
		t.Errorf("schema entry = %+v", entry)
	}
	if entry.Artifacts["rust"].SHA256 != "def456" {
		t.Errorf("artifact = %+v", entry.Artifacts["rust"])
	}
	if loaded.Ledger.SessionTotal != 2400 {
		t.Errorf("SessionTotal = %d, want 2400", loaded.Ledger.SessionTotal)
	}
	if loaded.Project.LastPipelineRun == "" {
		t.Error("LastPipelineRun not recorded")
	}
}

func TestManifestRegisterUpdatesExisting(t *testing.T) {
	m := New()
	m.RegisterSchema("counter", "hash1", "a.json", "core")
	m.RegisterSchema("counter", "hash2", "b.json", "")
	if len(m.Schemas) != 1 {
		t.Fatalf("len(Schemas) = %d, want 1", len(m.Schemas))
	}
	entry := m.Schemas["counter"]
	if entry.SHA256 != "hash2" || entry.Path != "b.json" {
		t.Errorf("entry not refreshed: %+v", entry)
	}
	if entry.Namespace != "core" {
		t.Errorf("empty namespace overwrote %q", entry.Namespace)
	}
}

func TestManifestLoadTolerant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	if err := os.WriteFile(path, []byte(`{"version": "2.0"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if m.Project.Phase != "4C" {
		t.Errorf("Phase = %q, want default 4C", m.Project.Phase)
	}
	if len(m.Project.LanguagesSupported) == 0 {
		t.Error("LanguagesSupported not defaulted")
	}
}

func TestManifestRecordArtifactUnknownSchema(t *testing.T) {
	m := New()
	if err := m.RecordArtifact("missing", "rust", ArtifactEntry{}); err == nil {
		t.Fatal("RecordArtifact() on unregistered schema did not error")
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c, err := OpenCheckpoint(dir)
	if err != nil {
		t.Fatalf("OpenCheckpoint() error: %v", err)
	}
	if err := c.UpdateSchema("counter", "hash1", map[string]string{"rust": "arthash"}, map[string]any{"sw_pass": true}); err != nil {
		t.Fatalf("UpdateSchema() error: %v", err)
	}

	reopened, err := OpenCheckpoint(dir)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	if !reopened.IsCurrent("counter", "hash1") {
		t.Error("IsCurrent() = false after update")
	}
	if reopened.IsCurrent("counter", "hash2") {
		t.Error("IsCurrent() = true for a changed hash")
	}
	if reopened.IsCurrent("unknown", "") {
		t.Error("IsCurrent() = true for an unknown schema")
	}
	history := reopened.MetricsHistory("counter")
	if len(history) != 1 {
		t.Fatalf("len(MetricsHistory) = %d, want 1", len(history))
	}
	if history[0].Values["sw_pass"] != true {
		t.Errorf("metrics values = %v", history[0].Values)
	}
}

func TestCheckpointBackup(t *testing.T) {
	dir := t.TempDir()
	c, err := OpenCheckpoint(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.UpdateSchema("a", "h1", nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := c.UpdateSchema("b", "h2", nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, checkpointBackup)); err != nil {
		t.Fatalf("backup not written: %v", err)
	}
}
