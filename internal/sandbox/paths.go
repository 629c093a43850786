package sandbox

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Shivay00001/aria-runtime/pkg/models"
)

// looksLikePath reports whether a string argument should be subjected to the
// allow-list: anything containing a separator or starting with a dot.
func looksLikePath(v string) bool {
	return strings.Contains(v, "/") || strings.HasPrefix(v, ".")
}

// canonicalize resolves value to an absolute path with symlinks and ".."
// eliminated. The target itself may not exist yet (write targets); symlinks
// are resolved on the longest existing ancestor and the remainder rejoined.
func canonicalize(value string) (string, error) {
	abs, err := filepath.Abs(value)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)

	existing := abs
	var rest []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}
	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{resolved}, rest...)...), nil
}

// ValidatePaths enforces the manifest's allow-list on every path-like string
// argument. An empty allow-list means the tool declared no filesystem access
// and path checking is skipped entirely.
func ValidatePaths(arguments map[string]any, manifest models.ToolManifest) error {
	if len(manifest.AllowedPaths) == 0 {
		return nil
	}

	bases := make([]string, 0, len(manifest.AllowedPaths))
	for _, p := range manifest.AllowedPaths {
		base, err := canonicalize(p)
		if err != nil {
			// An allow-list entry that cannot be resolved grants nothing.
			continue
		}
		bases = append(bases, base)
	}

	for _, v := range arguments {
		value, ok := v.(string)
		if !ok || !looksLikePath(value) {
			continue
		}
		resolved, err := canonicalize(value)
		if err != nil {
			return &models.PathTraversalError{Path: value, Reason: "could not be resolved"}
		}
		if !underAny(resolved, bases) {
			return &models.PathTraversalError{
				Path:   value,
				Reason: "resolves to " + resolved + ", outside allowed paths",
			}
		}
	}
	return nil
}

func underAny(path string, bases []string) bool {
	for _, base := range bases {
		if path == base || strings.HasPrefix(path, base+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}
