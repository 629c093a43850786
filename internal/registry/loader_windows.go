//go:build windows

package registry

import (
	"os"

	"github.com/Shivay00001/aria-runtime/pkg/models"
)

func isDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

func loadPluginManifest(path string) (models.ToolManifest, error) {
	return models.ToolManifest{}, &models.ManifestValidationError{Reason: "tool plugins are not supported on windows: " + path}
}
