// Package toolsdk defines the contract between the ARIA runtime and tool
// implementations. A tool is either compiled into the runner binary
// (builtin) or shipped as a Go plugin (.so) exporting a ToolPlugin symbol.
// The sandbox never calls Execute in-process; it always goes through the
// aria-tool-runner child.
package toolsdk

import "github.com/Shivay00001/aria-runtime/pkg/models"

// PluginSymbol is the exported symbol name looked up in tool plugin files.
const PluginSymbol = "ToolPlugin"

// BuiltinLocatorPrefix marks locators that resolve to compiled-in tools
// rather than plugin files on disk.
const BuiltinLocatorPrefix = "builtin:"

// Tool is the entity every tool module exposes.
type Tool interface {
	// Manifest returns the tool's static declaration. It must be valid per
	// models.ToolManifest.Validate and must not change between calls.
	Manifest() models.ToolManifest

	// Execute runs the tool with already-validated arguments and returns its
	// output mapping. Errors and panics are converted by the runner into an
	// ok=false payload; they never crash the sandbox.
	Execute(arguments map[string]any) (map[string]any, error)
}

// RunnerPayload is the single JSON document the sandbox writes to the
// runner's stdin.
type RunnerPayload struct {
	Locator     string         `json:"locator"`
	Input       map[string]any `json:"input"`
	MaxMemoryMB int            `json:"max_memory_mb"`
}

// RunnerResult is the single JSON line the runner prints to stdout. The
// runner exits 0 on all paths, including caught failures.
type RunnerResult struct {
	Ok    bool           `json:"ok"`
	Data  map[string]any `json:"data"`
	Error string         `json:"error,omitempty"`
}
