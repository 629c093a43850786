package builtin

import "github.com/Shivay00001/aria-runtime/pkg/toolsdk"

// All returns the built-in tool set scoped to the given workspace
// directories. An empty workspace list produces manifests with no path
// allow-list, which disables path checking for those tools.
func All(workspacePaths []string) []toolsdk.Tool {
	return []toolsdk.Tool{
		ReadFile{AllowedPaths: workspacePaths},
		WriteFile{AllowedPaths: workspacePaths},
	}
}

// ByName resolves a built-in tool for the runner child. AllowedPaths is
// irrelevant there: path validation has already happened in the parent.
func ByName(name string) (toolsdk.Tool, bool) {
	for _, t := range All(nil) {
		if t.Manifest().Name == name {
			return t, true
		}
	}
	return nil, false
}
