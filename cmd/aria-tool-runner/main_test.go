package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/Shivay00001/aria-runtime/pkg/models"
	"github.com/Shivay00001/aria-runtime/pkg/toolsdk"
)

func payloadReader(t *testing.T, p toolsdk.RunnerPayload) *bytes.Reader {
	t.Helper()
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewReader(raw)
}

func TestRunBuiltinReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o640); err != nil {
		t.Fatal(err)
	}

	result := run(payloadReader(t, toolsdk.RunnerPayload{
		Locator:     "builtin:read_file",
		Input:       map[string]any{"path": path},
		MaxMemoryMB: 64,
	}))
	if !result.Ok {
		t.Fatalf("result = %+v", result)
	}
	if result.Data["content"] != "hello" {
		t.Fatalf("data = %v", result.Data)
	}
}

func TestRunToolErrorIsOkFalse(t *testing.T) {
	result := run(payloadReader(t, toolsdk.RunnerPayload{
		Locator: "builtin:read_file",
		Input:   map[string]any{"path": "/nonexistent/nope.txt"},
	}))
	if result.Ok {
		t.Fatal("tool errors must be ok=false, never a crash")
	}
	if result.Error == "" {
		t.Fatal("error message missing")
	}
}

func TestRunUnknownBuiltin(t *testing.T) {
	result := run(payloadReader(t, toolsdk.RunnerPayload{Locator: "builtin:missing_tool"}))
	if result.Ok {
		t.Fatal("unknown builtin must fail")
	}
}

func TestRunMalformedPayload(t *testing.T) {
	result := run(bytes.NewReader([]byte("this is not json")))
	if result.Ok {
		t.Fatal("malformed payload must fail")
	}
}

type panickingTool struct{}

func (panickingTool) Manifest() models.ToolManifest { return models.ToolManifest{} }
func (panickingTool) Execute(map[string]any) (map[string]any, error) {
	panic("tool exploded")
}

func TestExecuteRecoversPanics(t *testing.T) {
	result := execute(panickingTool{}, map[string]any{})
	if result.Ok {
		t.Fatal("panic must become ok=false")
	}
	if result.Error == "" {
		t.Fatal("panic message missing")
	}
}
