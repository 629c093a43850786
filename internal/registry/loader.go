//go:build !windows

package registry

import (
	"os"
	"plugin"

	"github.com/Shivay00001/aria-runtime/pkg/models"
	"github.com/Shivay00001/aria-runtime/pkg/toolsdk"
)

func isDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// loadPluginManifest opens a tool plugin and reads its manifest. The plugin
// is loaded in-process only to read the declaration; execution always happens
// in the runner child.
func loadPluginManifest(path string) (models.ToolManifest, error) {
	plug, err := plugin.Open(path)
	if err != nil {
		return models.ToolManifest{}, &models.ManifestValidationError{Reason: "cannot load plugin " + path + ": " + err.Error()}
	}
	symbol, err := plug.Lookup(toolsdk.PluginSymbol)
	if err != nil {
		return models.ToolManifest{}, &models.ManifestValidationError{Reason: "plugin " + path + " has no " + toolsdk.PluginSymbol + " symbol"}
	}

	switch v := symbol.(type) {
	case toolsdk.Tool:
		return v.Manifest(), nil
	case *toolsdk.Tool:
		return (*v).Manifest(), nil
	default:
		return models.ToolManifest{}, &models.ManifestValidationError{Reason: "plugin " + path + " symbol does not implement toolsdk.Tool"}
	}
}
