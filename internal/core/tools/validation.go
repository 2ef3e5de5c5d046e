package tools

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaCache compiles each Tool's JSON Schema once and reuses it
// across calls, the same caching pattern the pack uses for plugin
// config validation.
var schemaCache sync.Map // tool name -> *jsonschema.Schema

// ValidateArgs checks a tool call's arguments against the tool's
// declared parameter schema before execution, surfacing a descriptive
// error the error-recovery middleware's classifier can recognize as
// missing_args.
func ValidateArgs(t Tool, args map[string]any) error {
	schema, err := compiledSchema(t)
	if err != nil {
		return fmt.Errorf("tool '%s' has an invalid parameter schema: %w", t.Name(), err)
	}

	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("tool '%s' arguments are not serializable: %w", t.Name(), err)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("tool '%s' arguments are not valid JSON: %w", t.Name(), err)
	}

	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("tool '%s' is missing or has invalid arguments: %w", t.Name(), err)
	}
	return nil
}

func compiledSchema(t Tool) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(t.Name()); ok {
		return cached.(*jsonschema.Schema), nil
	}

	raw, err := json.Marshal(buildJSONSchemaDoc(t))
	if err != nil {
		return nil, err
	}

	compiled, err := jsonschema.CompileString("tool://"+t.Name()+".schema.json", string(raw))
	if err != nil {
		return nil, err
	}
	schemaCache.Store(t.Name(), compiled)
	return compiled, nil
}

// buildJSONSchemaDoc converts a Tool's declared ToolParameters into a
// plain JSON Schema object document.
func buildJSONSchemaDoc(t Tool) map[string]any {
	properties := make(map[string]any)
	var required []string
	for _, p := range t.Parameters() {
		prop := map[string]any{"type": jsonSchemaType(p.Type)}
		if len(p.Enum) > 0 {
			prop["enum"] = toAnySlice(p.Enum)
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	doc := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": true,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

func jsonSchemaType(t string) string {
	switch t {
	case "integer":
		return "integer"
	case "boolean":
		return "boolean"
	case "array":
		return "array"
	case "object":
		return "object"
	default:
		return "string"
	}
}

func toAnySlice(xs []string) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = x
	}
	return out
}
