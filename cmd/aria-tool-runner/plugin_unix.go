//go:build !windows

package main

import (
	"fmt"
	"plugin"

	"github.com/Shivay00001/aria-runtime/pkg/toolsdk"
)

func loadPluginTool(path string) (toolsdk.Tool, error) {
	plug, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plugin %s: %v", path, err)
	}
	symbol, err := plug.Lookup(toolsdk.PluginSymbol)
	if err != nil {
		return nil, fmt.Errorf("lookup %s in %s: %v", toolsdk.PluginSymbol, path, err)
	}
	switch v := symbol.(type) {
	case toolsdk.Tool:
		return v, nil
	case *toolsdk.Tool:
		return *v, nil
	default:
		return nil, fmt.Errorf("plugin symbol %s does not implement toolsdk.Tool", toolsdk.PluginSymbol)
	}
}
