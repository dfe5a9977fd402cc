// Package stage defines the contract between the pipeline and its
// stages. Each stage receives the schema and the previous stage's
// manifest, performs its work, and produces a manifest for the next
// stage.
package stage

import (
	"context"
	"fmt"
	"time"
)

// Status of a stage execution.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Success reports whether the status counts as a passing outcome.
func (s Status) Success() bool {
	return s == StatusSuccess || s == StatusSkipped
}

// Artifact is one file or blob a stage produced.
type Artifact struct {
	Path     string `json:"path"`
	Language string `json:"language,omitempty"`
	Checksum string `json:"checksum,omitempty"`
	Status   string `json:"status,omitempty"`
}

// Manifest is the artifact record each stage hands to the next.
type Manifest struct {
	Stage           string         `json:"stage"`
	Status          Status         `json:"status"`
	Timestamp       time.Time      `json:"timestamp"`
	Duration        time.Duration  `json:"duration_ms"`
	TokensConsumed  int            `json:"tokens_consumed"`
	Artifacts       []Artifact     `json:"artifacts"`
	Metrics         map[string]any `json:"metrics"`
	Errors          []string       `json:"errors"`
	Warnings        []string       `json:"warnings"`
	NextStage       string         `json:"next_stage,omitempty"`
	ValidationLevel string         `json:"validation_level"`
}

// NewManifest creates a pending manifest for the named stage.
func NewManifest(stageName string) *Manifest {
	return &Manifest{
		Stage:           stageName,
		Status:          StatusPending,
		Metrics:         make(map[string]any),
		ValidationLevel: "none",
	}
}

// AddError records a stage-prefixed error message.
func (m *Manifest) AddError(err error) {
	m.Errors = append(m.Errors, fmt.Sprintf("%s: %v", m.Stage, err))
}

// Request carries everything a stage needs to run.
type Request struct {
	Schema     map[string]any
	SchemaPath string
	Previous   *Manifest
	Context    string // prepared context window content
	Tier       string // routed execution tier
	Language   string
}

// Handler executes one pipeline stage.
type Handler interface {
	Name() string
	Execute(ctx context.Context, req Request) (*Manifest, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	StageName string
	Fn        func(ctx context.Context, req Request) (*Manifest, error)
}

func (h HandlerFunc) Name() string { return h.StageName }

func (h HandlerFunc) Execute(ctx context.Context, req Request) (*Manifest, error) {
	return h.Fn(ctx, req)
}

// Run wraps a handler execution with timing, status transitions, and
// error capture. A handler error yields a failed manifest, not a bare
// error: the pipeline decides whether to feed it to the feedback loop.
func Run(ctx context.Context, h Handler, req Request) *Manifest {
	manifest := NewManifest(h.Name())
	manifest.Status = StatusRunning
	manifest.Timestamp = time.Now().UTC()
	start := time.Now()

	out, err := h.Execute(ctx, req)
	if out != nil {
		manifest = out
		if manifest.Timestamp.IsZero() {
			manifest.Timestamp = start.UTC()
		}
	}
	manifest.Duration = time.Since(start)
	if err != nil {
		manifest.Status = StatusFailed
		manifest.AddError(err)
		return manifest
	}
	if manifest.Status == StatusRunning || manifest.Status == StatusPending {
		manifest.Status = StatusSuccess
	}
	return manifest
}
