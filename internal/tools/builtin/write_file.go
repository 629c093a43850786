package builtin

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Shivay00001/aria-runtime/pkg/models"
	"github.com/Shivay00001/aria-runtime/pkg/toolsdk"
)

// WriteFile writes text content to a file inside the allowed workspace.
type WriteFile struct {
	AllowedPaths []string
}

// Manifest implements toolsdk.Tool.
func (t WriteFile) Manifest() models.ToolManifest {
	return models.ToolManifest{
		Name:           "write_file",
		Version:        "1.0.0",
		Description:    "Write text content to a file within the allowed workspace.",
		Permissions:    []models.ToolPermission{models.PermissionFSWrite},
		TimeoutSeconds: 10,
		MaxMemoryMB:    64,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":        map[string]any{"type": "string", "minLength": 1, "maxLength": 4096},
				"content":     map[string]any{"type": "string"},
				"mode":        map[string]any{"type": "string", "enum": []any{"overwrite", "append"}},
				"create_dirs": map[string]any{"type": "boolean"},
			},
			"required":             []any{"path", "content"},
			"additionalProperties": false,
		},
		OutputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":          map[string]any{"type": "string"},
				"bytes_written": map[string]any{"type": "integer"},
				"mode":          map[string]any{"type": "string"},
			},
			"required":             []any{"path", "bytes_written", "mode"},
			"additionalProperties": false,
		},
		AllowedPaths: t.AllowedPaths,
	}
}

// Execute implements toolsdk.Tool.
func (t WriteFile) Execute(args map[string]any) (map[string]any, error) {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	mode, _ := args["mode"].(string)
	if mode == "" {
		mode = "overwrite"
	}
	createDirs, _ := args["create_dirs"].(bool)

	parent := filepath.Dir(path)
	if createDirs {
		if err := os.MkdirAll(parent, 0o750); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat(parent); err != nil {
		return nil, fmt.Errorf("parent dir does not exist: %s", parent)
	}

	flags := os.O_WRONLY | os.O_CREATE
	if mode == "append" {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o640)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	n, err := f.WriteString(content)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"path":          path,
		"bytes_written": n,
		"mode":          mode,
	}, nil
}

var _ toolsdk.Tool = WriteFile{}
