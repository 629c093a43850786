// Package sandbox validates tool inputs against their manifests and executes
// tools in an isolated child process with memory and wall-clock limits. The
// execution order is strict: input schema, then paths, then spawn, then
// output parse, then output schema. Validation failures never reach a
// subprocess.
package sandbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Shivay00001/aria-runtime/pkg/models"
)

var schemaCache sync.Map // schema JSON -> *jsonschema.Schema

func compileSchema(schema map[string]any) (*jsonschema.Schema, error) {
	encoded, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	key := string(encoded)
	if cached, ok := schemaCache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}
	compiled, err := jsonschema.CompileString("tool.schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// validateAgainst validates data against a manifest schema and flattens the
// validator's cause tree into "root.key.subkey: message" strings.
func validateAgainst(data any, schema map[string]any, root string) []string {
	compiled, err := compileSchema(schema)
	if err != nil {
		return []string{fmt.Sprintf("%s: schema did not compile: %v", root, err)}
	}
	err = compiled.Validate(data)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{fmt.Sprintf("%s: %v", root, err)}
	}
	var out []string
	for _, leaf := range leafCauses(ve) {
		out = append(out, fmt.Sprintf("%s: %s", instancePath(root, leaf.InstanceLocation), leaf.Message))
	}
	return out
}

func leafCauses(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, c := range ve.Causes {
		out = append(out, leafCauses(c)...)
	}
	return out
}

// instancePath converts a JSON-pointer instance location ("/key/sub") into
// the dotted form used in error messages ("input.key.sub").
func instancePath(root, location string) string {
	if location == "" || location == "/" {
		return root
	}
	return root + strings.ReplaceAll(location, "/", ".")
}

// ValidateInput checks arguments against the manifest's input schema.
func ValidateInput(arguments map[string]any, manifest models.ToolManifest) error {
	if errs := validateAgainst(anyMap(arguments), manifest.InputSchema, "input"); len(errs) > 0 {
		return &models.ToolInputValidationError{Tool: manifest.Name, Reason: strings.Join(errs, "; ")}
	}
	return nil
}

// ValidateOutput checks tool output data against the manifest's output schema.
func ValidateOutput(data map[string]any, manifest models.ToolManifest) error {
	if errs := validateAgainst(anyMap(data), manifest.OutputSchema, "output"); len(errs) > 0 {
		return &models.ToolOutputValidationError{Tool: manifest.Name, Reason: strings.Join(errs, "; ")}
	}
	return nil
}

// anyMap round-trips a map through JSON so the validator sees canonical JSON
// types (float64 numbers, []any arrays) regardless of how the arguments were
// constructed in-process.
func anyMap(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	encoded, err := json.Marshal(m)
	if err != nil {
		return m
	}
	var out any
	if err := json.Unmarshal(encoded, &out); err != nil {
		return m
	}
	return out
}
