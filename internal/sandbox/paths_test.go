package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Shivay00001/aria-runtime/pkg/models"
)

func pathManifest(allowed ...string) models.ToolManifest {
	return models.ToolManifest{
		Name:           "read_file",
		Version:        "1.0.0",
		Description:    "Read a file inside the workspace.",
		Permissions:    []models.ToolPermission{models.PermissionFSRead},
		TimeoutSeconds: 5,
		MaxMemoryMB:    64,
		InputSchema:    map[string]any{"type": "object"},
		OutputSchema:   map[string]any{"type": "object"},
		AllowedPaths:   allowed,
	}
}

func TestValidatePathsAllowsInside(t *testing.T) {
	dir := t.TempDir()
	inner := filepath.Join(dir, "sub", "file.txt")
	if err := os.MkdirAll(filepath.Dir(inner), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(inner, []byte("x"), 0o640); err != nil {
		t.Fatal(err)
	}

	tests := []string{
		inner,
		filepath.Join(dir, "sub"),
		dir,
		filepath.Join(dir, "does", "not", "exist", "yet.txt"), // write targets may not exist
	}
	for _, p := range tests {
		if err := ValidatePaths(map[string]any{"path": p}, pathManifest(dir)); err != nil {
			t.Errorf("path %s rejected: %v", p, err)
		}
	}
}

func TestValidatePathsRejectsOutside(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		path string
	}{
		{"absolute outside", "/etc/passwd"},
		{"dotdot escape", filepath.Join(dir, "..", "escape.txt")},
		{"prefix sibling", dir + "-sibling/file.txt"},
		{"relative with dot", "./outside.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePaths(map[string]any{"path": tt.path}, pathManifest(dir))
			var pt *models.PathTraversalError
			if !errors.As(err, &pt) {
				t.Fatalf("want PathTraversalError for %s, got %v", tt.path, err)
			}
		})
	}
}

func TestValidatePathsSkipsNonPathValues(t *testing.T) {
	dir := t.TempDir()
	args := map[string]any{
		"count": 3,
		"mode":  "fast", // no separator, no leading dot: not a path
		"flag":  true,
	}
	if err := ValidatePaths(args, pathManifest(dir)); err != nil {
		t.Fatalf("non-path values must not be checked: %v", err)
	}
}

func TestValidatePathsSkippedWhenNoAllowList(t *testing.T) {
	// An empty allow-list declares the tool needs no filesystem access.
	if err := ValidatePaths(map[string]any{"path": "/etc/passwd"}, pathManifest()); err != nil {
		t.Fatalf("empty allow-list must skip checking: %v", err)
	}
}

func TestValidatePathsResolvesSymlinks(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	target := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(target, []byte("s"), 0o640); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "innocent.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	err := ValidatePaths(map[string]any{"path": link}, pathManifest(dir))
	var pt *models.PathTraversalError
	if !errors.As(err, &pt) {
		t.Fatalf("symlink escape must be rejected, got %v", err)
	}
}
