// Package registry discovers tool implementations at startup, validates
// their manifests, and enforces the static permission policy. After Build
// the registry is immutable; the kernel re-verifies permissions at dispatch
// so a narrowed allow-set blocks calls immediately.
package registry

import (
	"path/filepath"
	"sort"

	"github.com/Shivay00001/aria-runtime/internal/observability"
	"github.com/Shivay00001/aria-runtime/internal/tools/builtin"
	"github.com/Shivay00001/aria-runtime/pkg/models"
	"github.com/Shivay00001/aria-runtime/pkg/toolsdk"
)

type entry struct {
	manifest models.ToolManifest
	locator  string
}

// Registry is the immutable tool catalog.
type Registry struct {
	entries map[string]entry
	order   []string
}

// Build loads the built-in set plus every plugin under the configured plugin
// directories, rejecting bad manifests, duplicate names, and tools whose
// permissions exceed config.AllowedPermissions.
func Build(config models.KernelConfig, logger *observability.Logger) (*Registry, error) {
	if logger == nil {
		logger = observability.Nop()
	}
	r := &Registry{entries: map[string]entry{}}

	var workspace []string
	if config.WorkspaceDir != "" {
		workspace = []string{config.WorkspaceDir}
	}
	for _, tool := range builtin.All(workspace) {
		m := tool.Manifest()
		if err := r.register(m, toolsdk.BuiltinLocatorPrefix+m.Name, config); err != nil {
			return nil, err
		}
		logger.Info("tool registered", "tool_name", m.Name, "source", "builtin")
	}

	for _, dir := range config.PluginDirs {
		files, err := discoverPluginFiles(dir)
		if err != nil {
			return nil, err
		}
		for _, path := range files {
			manifest, err := loadPluginManifest(path)
			if err != nil {
				return nil, err
			}
			if err := r.register(manifest, path, config); err != nil {
				return nil, err
			}
			logger.Info("tool registered", "tool_name", manifest.Name, "source", path)
		}
	}

	logger.Info("registry built", "tools", r.order)
	return r, nil
}

func (r *Registry) register(manifest models.ToolManifest, locator string, config models.KernelConfig) error {
	if err := manifest.Validate(); err != nil {
		return err
	}
	if disallowed := manifest.DisallowedPermissions(config.AllowedPermissions); len(disallowed) > 0 {
		return &models.PermissionDeniedError{Tool: manifest.Name, Permissions: disallowed}
	}
	if _, exists := r.entries[manifest.Name]; exists {
		return &models.ManifestValidationError{Reason: "duplicate tool name: " + manifest.Name}
	}
	r.entries[manifest.Name] = entry{manifest: manifest, locator: locator}
	r.order = append(r.order, manifest.Name)
	return nil
}

// HasTool reports whether name is registered.
func (r *Registry) HasTool(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// GetManifest returns the manifest for name or UnknownToolError.
func (r *Registry) GetManifest(name string) (models.ToolManifest, error) {
	e, ok := r.entries[name]
	if !ok {
		return models.ToolManifest{}, &models.UnknownToolError{Tool: name}
	}
	return e.manifest, nil
}

// GetModulePath returns the locator the sandbox hands to the runner child.
func (r *Registry) GetModulePath(name string) (string, error) {
	e, ok := r.entries[name]
	if !ok {
		return "", &models.UnknownToolError{Tool: name}
	}
	return e.locator, nil
}

// AllManifests returns every manifest in registration order, for model
// prompts and the CLI listing.
func (r *Registry) AllManifests() []models.ToolManifest {
	out := make([]models.ToolManifest, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].manifest)
	}
	return out
}

// discoverPluginFiles lists the plugin shared objects under dir, sorted for
// deterministic registration order. A missing directory fails the build.
func discoverPluginFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.so"))
	if err != nil {
		return nil, &models.ManifestValidationError{Reason: "plugin dir glob failed: " + err.Error()}
	}
	if ok, err := isDir(dir); err != nil || !ok {
		return nil, &models.ManifestValidationError{Reason: "plugin_dir does not exist: " + dir}
	}
	sort.Strings(matches)
	return matches, nil
}
