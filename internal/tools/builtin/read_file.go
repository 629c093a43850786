// Package builtin contains the tools compiled into the runtime: read_file
// and write_file. Each implements toolsdk.Tool; the sandbox still executes
// them in the runner child like any plugin.
package builtin

import (
	"fmt"
	"io"
	"os"

	"github.com/Shivay00001/aria-runtime/pkg/models"
	"github.com/Shivay00001/aria-runtime/pkg/toolsdk"
)

const defaultReadLimit = 1 << 20 // 1 MiB unless the caller asks for more

// ReadFile reads text file contents inside the allowed workspace.
type ReadFile struct {
	// AllowedPaths scopes the tool to these absolute directories. Supplied
	// at registry build from configuration.
	AllowedPaths []string
}

// Manifest implements toolsdk.Tool.
func (t ReadFile) Manifest() models.ToolManifest {
	return models.ToolManifest{
		Name:           "read_file",
		Version:        "1.0.0",
		Description:    "Read the text contents of a file within the allowed workspace.",
		Permissions:    []models.ToolPermission{models.PermissionFSRead},
		TimeoutSeconds: 10,
		MaxMemoryMB:    64,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":      map[string]any{"type": "string", "minLength": 1, "maxLength": 4096},
				"max_bytes": map[string]any{"type": "integer", "minimum": 1, "maximum": 10485760},
			},
			"required":             []any{"path"},
			"additionalProperties": false,
		},
		OutputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"content":    map[string]any{"type": "string"},
				"size_bytes": map[string]any{"type": "integer"},
				"truncated":  map[string]any{"type": "boolean"},
			},
			"required":             []any{"content", "size_bytes", "truncated"},
			"additionalProperties": false,
		},
		AllowedPaths: t.AllowedPaths,
	}
}

// Execute implements toolsdk.Tool.
func (t ReadFile) Execute(args map[string]any) (map[string]any, error) {
	path, _ := args["path"].(string)
	maxBytes := int64(defaultReadLimit)
	if v, ok := args["max_bytes"].(float64); ok {
		maxBytes = int64(v)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("file not found: %s", path)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, maxBytes))
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"content":    string(content),
		"size_bytes": info.Size(),
		"truncated":  info.Size() > maxBytes,
	}, nil
}

var _ toolsdk.Tool = ReadFile{}
