package sandbox

import (
	"errors"
	"strings"
	"testing"

	"github.com/Shivay00001/aria-runtime/pkg/models"
)

func manifestWithSchema(input map[string]any) models.ToolManifest {
	return models.ToolManifest{
		Name:           "test_tool",
		Version:        "1.0.0",
		Description:    "A tool used only in tests.",
		Permissions:    []models.ToolPermission{models.PermissionNone},
		TimeoutSeconds: 5,
		MaxMemoryMB:    64,
		InputSchema:    input,
		OutputSchema:   map[string]any{"type": "object"},
	}
}

func strictSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":  map[string]any{"type": "string", "minLength": 1, "maxLength": 64},
			"count": map[string]any{"type": "integer", "minimum": 1, "maximum": 10},
			"mode":  map[string]any{"type": "string", "enum": []any{"fast", "slow"}},
			"flag":  map[string]any{"type": "boolean"},
			"items": map[string]any{"type": "array"},
		},
		"required":             []any{"path"},
		"additionalProperties": false,
	}
}

func TestValidateInputAccepts(t *testing.T) {
	m := manifestWithSchema(strictSchema())
	tests := []struct {
		name string
		args map[string]any
	}{
		{"required only", map[string]any{"path": "a.txt"}},
		{"all fields", map[string]any{"path": "a.txt", "count": 5, "mode": "fast", "flag": true, "items": []any{1, 2}}},
		{"integer as float64", map[string]any{"path": "a", "count": float64(3)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateInput(tt.args, m); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateInputRejects(t *testing.T) {
	m := manifestWithSchema(strictSchema())
	tests := []struct {
		name     string
		args     map[string]any
		wantPath string
	}{
		{"missing required", map[string]any{"count": 3}, "path"},
		{"wrong type", map[string]any{"path": 42}, "path"},
		{"extra property", map[string]any{"path": "a", "bogus": 1}, "bogus"},
		{"integer above maximum", map[string]any{"path": "a", "count": 11}, "count"},
		{"integer below minimum", map[string]any{"path": "a", "count": 0}, "count"},
		{"bool for integer", map[string]any{"path": "a", "count": true}, "count"},
		{"enum violation", map[string]any{"path": "a", "mode": "turbo"}, "mode"},
		{"string too long", map[string]any{"path": strings.Repeat("x", 65)}, "path"},
		{"empty string below minLength", map[string]any{"path": ""}, "path"},
		{"not an array", map[string]any{"path": "a", "items": "nope"}, "items"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInput(tt.args, m)
			var vErr *models.ToolInputValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("want ToolInputValidationError, got %v", err)
			}
			if !strings.Contains(vErr.Reason, tt.wantPath) {
				t.Fatalf("error %q does not point at field %q", vErr.Reason, tt.wantPath)
			}
			if !strings.Contains(vErr.Reason, "input") {
				t.Fatalf("error %q should carry the input root", vErr.Reason)
			}
		})
	}
}

func TestValidateOutput(t *testing.T) {
	m := manifestWithSchema(map[string]any{"type": "object"})
	m.OutputSchema = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{"type": "string"},
		},
		"required":             []any{"content"},
		"additionalProperties": false,
	}

	if err := ValidateOutput(map[string]any{"content": "hi"}, m); err != nil {
		t.Fatalf("valid output rejected: %v", err)
	}

	err := ValidateOutput(map[string]any{"wrong": true}, m)
	var vErr *models.ToolOutputValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("want ToolOutputValidationError, got %v", err)
	}
	if !strings.Contains(vErr.Reason, "output") {
		t.Fatalf("error %q should carry the output root", vErr.Reason)
	}
}

func TestNestedErrorPath(t *testing.T) {
	m := manifestWithSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"opts": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"depth": map[string]any{"type": "integer", "minimum": 0},
				},
				"required": []any{"depth"},
			},
		},
		"required": []any{"opts"},
	})

	err := ValidateInput(map[string]any{"opts": map[string]any{"depth": -1}}, m)
	var vErr *models.ToolInputValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("want ToolInputValidationError, got %v", err)
	}
	if !strings.Contains(vErr.Reason, "input.opts.depth") {
		t.Fatalf("error %q should name the nested path input.opts.depth", vErr.Reason)
	}
}
