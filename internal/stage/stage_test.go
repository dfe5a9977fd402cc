package stage

import (
	"context"
	"errors"
	"testing"
)

func TestRunSuccess(t *testing.T) {
	h := HandlerFunc{
		StageName: "validate",
		Fn: func(ctx context.Context, req Request) (*Manifest, error) {
			m := NewManifest("validate")
			m.ValidationLevel = "full"
			return m, nil
		},
	}
	m := Run(context.Background(), h, Request{})
	if m.Status != StatusSuccess {
		t.Fatalf("Status = %s, want %s", m.Status, StatusSuccess)
	}
	if !m.Status.Success() {
		t.Error("Success() = false")
	}
	if m.ValidationLevel != "full" {
		t.Errorf("ValidationLevel = %q, want full", m.ValidationLevel)
	}
	if m.Timestamp.IsZero() {
		t.Error("Timestamp not stamped")
	}
}

func TestRunFailure(t *testing.T) {
	h := HandlerFunc{
		StageName: "generate",
		Fn: func(ctx context.Context, req Request) (*Manifest, error) {
			return nil, errors.New("unresolved import")
		},
	}
	m := Run(context.Background(), h, Request{})
	if m.Status != StatusFailed {
		t.Fatalf("Status = %s, want %s", m.Status, StatusFailed)
	}
	if len(m.Errors) != 1 || m.Errors[0] != "generate: unresolved import" {
		t.Fatalf("Errors = %v", m.Errors)
	}
}

func TestRunExplicitStatusPreserved(t *testing.T) {
	h := HandlerFunc{
		StageName: "diff",
		Fn: func(ctx context.Context, req Request) (*Manifest, error) {
			m := NewManifest("diff")
			m.Status = StatusSkipped
			m.Warnings = append(m.Warnings, "no schema changes")
			return m, nil
		},
	}
	m := Run(context.Background(), h, Request{})
	if m.Status != StatusSkipped {
		t.Fatalf("Status = %s, want %s", m.Status, StatusSkipped)
	}
	if !m.Status.Success() {
		t.Error("skipped stage should count as passing")
	}
}
