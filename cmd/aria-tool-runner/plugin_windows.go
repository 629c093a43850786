//go:build windows

package main

import (
	"fmt"

	"github.com/Shivay00001/aria-runtime/pkg/toolsdk"
)

func loadPluginTool(path string) (toolsdk.Tool, error) {
	return nil, fmt.Errorf("tool plugins are not supported on windows: %s", path)
}
