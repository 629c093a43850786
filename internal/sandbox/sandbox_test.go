package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/Shivay00001/aria-runtime/pkg/models"
)

// fakeRunner writes a shell script standing in for the aria-tool-runner
// binary, so the parent-side protocol can be exercised without building it.
func fakeRunner(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake runner scripts are posix-only")
	}
	path := filepath.Join(t.TempDir(), "fake-runner")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o750); err != nil {
		t.Fatal(err)
	}
	return path
}

func runnerManifest() models.ToolManifest {
	return models.ToolManifest{
		Name:           "echo_tool",
		Version:        "1.0.0",
		Description:    "Echoes its input back for tests.",
		Permissions:    []models.ToolPermission{models.PermissionNone},
		TimeoutSeconds: 1,
		MaxMemoryMB:    64,
		InputSchema:    map[string]any{"type": "object"},
		OutputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"echoed": map[string]any{"type": "string"},
			},
			"required": []any{"echoed"},
		},
	}
}

func TestRunToolSuccess(t *testing.T) {
	runner := fakeRunner(t, `cat > /dev/null; echo '{"ok":true,"data":{"echoed":"hello"}}'`)
	r := NewRunner(runner, nil, nil)

	result, err := r.RunTool(context.Background(), runnerManifest(), map[string]any{"value": "hello"}, "builtin:echo_tool")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Ok {
		t.Fatalf("result not ok: %+v", result)
	}
	if result.Data["echoed"] != "hello" {
		t.Fatalf("data = %v", result.Data)
	}
	if result.ToolName != "echo_tool" {
		t.Fatalf("tool name = %s", result.ToolName)
	}
}

func TestRunToolChildFailureReturnsNotRaises(t *testing.T) {
	runner := fakeRunner(t, `cat > /dev/null; echo '{"ok":false,"data":null,"error":"FileNotFoundError: nope"}'`)
	r := NewRunner(runner, nil, nil)

	result, err := r.RunTool(context.Background(), runnerManifest(), map[string]any{}, "builtin:echo_tool")
	if err != nil {
		t.Fatalf("child failure must be returned, not raised: %v", err)
	}
	if result.Ok {
		t.Fatal("expected ok=false")
	}
	if result.ErrorType != "ToolExecutionError" {
		t.Fatalf("error_type = %s", result.ErrorType)
	}
	if result.ErrorMessage != "FileNotFoundError: nope" {
		t.Fatalf("error_message = %s", result.ErrorMessage)
	}
}

func TestRunToolTimeout(t *testing.T) {
	runner := fakeRunner(t, `sleep 5`)
	r := NewRunner(runner, nil, nil)

	_, err := r.RunTool(context.Background(), runnerManifest(), map[string]any{}, "builtin:echo_tool")
	var to *models.ToolTimeoutError
	if !errors.As(err, &to) {
		t.Fatalf("want ToolTimeoutError, got %v", err)
	}
	if to.TimeoutSeconds != 1 {
		t.Fatalf("timeout = %d", to.TimeoutSeconds)
	}
}

func TestRunToolNonZeroExit(t *testing.T) {
	runner := fakeRunner(t, `cat > /dev/null; echo "boom details" >&2; exit 3`)
	r := NewRunner(runner, nil, nil)

	_, err := r.RunTool(context.Background(), runnerManifest(), map[string]any{}, "builtin:echo_tool")
	var sb *models.ToolSandboxError
	if !errors.As(err, &sb) {
		t.Fatalf("want ToolSandboxError, got %v", err)
	}
}

func TestRunToolMalformedJSON(t *testing.T) {
	runner := fakeRunner(t, `cat > /dev/null; echo 'this is not json'`)
	r := NewRunner(runner, nil, nil)

	_, err := r.RunTool(context.Background(), runnerManifest(), map[string]any{}, "builtin:echo_tool")
	var sb *models.ToolSandboxError
	if !errors.As(err, &sb) {
		t.Fatalf("want ToolSandboxError, got %v", err)
	}
}

func TestRunToolEmptyOutput(t *testing.T) {
	runner := fakeRunner(t, `cat > /dev/null`)
	r := NewRunner(runner, nil, nil)

	_, err := r.RunTool(context.Background(), runnerManifest(), map[string]any{}, "builtin:echo_tool")
	var sb *models.ToolSandboxError
	if !errors.As(err, &sb) {
		t.Fatalf("want ToolSandboxError, got %v", err)
	}
}

func TestRunToolOutputSchemaViolation(t *testing.T) {
	runner := fakeRunner(t, `cat > /dev/null; echo '{"ok":true,"data":{"unexpected":1}}'`)
	r := NewRunner(runner, nil, nil)

	_, err := r.RunTool(context.Background(), runnerManifest(), map[string]any{}, "builtin:echo_tool")
	var ov *models.ToolOutputValidationError
	if !errors.As(err, &ov) {
		t.Fatalf("want ToolOutputValidationError, got %v", err)
	}
}

func TestPathTraversalBlocksBeforeSpawn(t *testing.T) {
	// The runner path points at a sentinel that records execution; a
	// traversal must fail before the child is ever created.
	marker := filepath.Join(t.TempDir(), "spawned")
	runner := fakeRunner(t, `touch `+marker+`; cat > /dev/null; echo '{"ok":true,"data":{}}'`)
	r := NewRunner(runner, nil, nil)

	m := runnerManifest()
	m.InputSchema = map[string]any{"type": "object"}
	m.AllowedPaths = []string{t.TempDir()}

	_, err := r.RunTool(context.Background(), m, map[string]any{"path": "/etc/passwd"}, "builtin:echo_tool")
	var pt *models.PathTraversalError
	if !errors.As(err, &pt) {
		t.Fatalf("want PathTraversalError, got %v", err)
	}
	if _, statErr := os.Stat(marker); statErr == nil {
		t.Fatal("subprocess was spawned despite traversal rejection")
	}
}

func TestInputValidationBlocksBeforeSpawn(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "spawned")
	runner := fakeRunner(t, `touch `+marker+`; cat > /dev/null; echo '{"ok":true,"data":{}}'`)
	r := NewRunner(runner, nil, nil)

	m := runnerManifest()
	m.InputSchema = map[string]any{
		"type":     "object",
		"required": []any{"path"},
	}

	_, err := r.RunTool(context.Background(), m, map[string]any{}, "builtin:echo_tool")
	var iv *models.ToolInputValidationError
	if !errors.As(err, &iv) {
		t.Fatalf("want ToolInputValidationError, got %v", err)
	}
	if _, statErr := os.Stat(marker); statErr == nil {
		t.Fatal("subprocess was spawned despite validation rejection")
	}
}
