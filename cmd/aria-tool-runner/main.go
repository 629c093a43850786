// Command aria-tool-runner is the sandbox child process. It reads one JSON
// payload from stdin, applies the address-space limit, loads the tool named
// by the locator, executes it, and prints exactly one JSON result line.
// It exits 0 on every path, including caught failures; the parent decides
// what a failure means.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Shivay00001/aria-runtime/internal/tools/builtin"
	"github.com/Shivay00001/aria-runtime/pkg/toolsdk"
)

func main() {
	result := run(os.Stdin)
	line, err := json.Marshal(result)
	if err != nil {
		line = []byte(`{"ok":false,"data":null,"error":"result encoding failed"}`)
	}
	fmt.Println(string(line))
}

func run(stdin io.Reader) toolsdk.RunnerResult {
	raw, err := io.ReadAll(stdin)
	if err != nil {
		return fail("read stdin: " + err.Error())
	}
	var payload toolsdk.RunnerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fail("decode payload: " + err.Error())
	}

	// Best effort: containers may refuse the rlimit, in which case the
	// parent's wall-clock timeout is the backstop.
	applyMemoryLimit(payload.MaxMemoryMB)

	tool, err := resolveTool(payload.Locator)
	if err != nil {
		return fail(err.Error())
	}

	return execute(tool, payload.Input)
}

// execute invokes the tool, converting panics into ok=false payloads.
func execute(tool toolsdk.Tool, input map[string]any) (result toolsdk.RunnerResult) {
	defer func() {
		if r := recover(); r != nil {
			result = fail(fmt.Sprintf("panic: %v", r))
		}
	}()
	data, err := tool.Execute(input)
	if err != nil {
		return fail(err.Error())
	}
	if data == nil {
		data = map[string]any{}
	}
	return toolsdk.RunnerResult{Ok: true, Data: data}
}

func resolveTool(locator string) (toolsdk.Tool, error) {
	if name, ok := strings.CutPrefix(locator, toolsdk.BuiltinLocatorPrefix); ok {
		tool, found := builtin.ByName(name)
		if !found {
			return nil, fmt.Errorf("unknown builtin tool %q", name)
		}
		return tool, nil
	}
	return loadPluginTool(locator)
}

func fail(msg string) toolsdk.RunnerResult {
	return toolsdk.RunnerResult{Ok: false, Error: msg}
}
