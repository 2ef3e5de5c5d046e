// Package tools defines the Tool capability interface and the registry
// that dispatches calls to registered tools, applying schema
// validation and smart output truncation.
package tools

import (
	"context"
	"fmt"

	"github.com/haasonsaas/nexus/pkg/harnesstypes"
)

// DefaultMaxOutput is the per-tool output truncation threshold applied
// when a Tool does not declare its own MaxOutput.
const DefaultMaxOutput = 5000

// Tool is a capability the agent can invoke. Implementations declare
// their schema as data (Parameters) and execute via Execute, which
// always returns a ToolResult — even on internal
// failure — never an error, per the harness's result-type convention
// for tool execution.
type Tool interface {
	Name() string
	Description() string
	Parameters() []harnesstypes.ToolParameter
	MaxOutput() int
	Execute(ctx context.Context, args map[string]any) harnesstypes.ToolResult
}

// OpenAISchema converts a Tool's declared parameters into OpenAI
// function-calling JSON schema shape.
func OpenAISchema(t Tool) map[string]any {
	properties := make(map[string]any)
	var required []string
	for _, p := range t.Parameters() {
		prop := map[string]any{"type": p.Type, "description": p.Description}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        t.Name(),
			"description": t.Description(),
			"parameters": map[string]any{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		},
	}
}

// PromptDescription renders a verbose, human/LLM-readable description
// of a tool for prompt-based (non function-calling) tool use.
func PromptDescription(t Tool) string {
	out := "### " + t.Name() + "\n" + t.Description() + "\nParameters:\n"
	params := t.Parameters()
	if len(params) == 0 {
		return out + "  (none)"
	}
	for _, p := range params {
		req := "required"
		if !p.Required {
			req = "optional"
		}
		line := "  - " + p.Name + " (" + p.Type + ", " + req + "): " + p.Description
		if p.Default != nil {
			line += " (default: " + toStr(p.Default) + ")"
		}
		if len(p.Enum) > 0 {
			line += " (options: " + joinStrs(p.Enum, ", ") + ")"
		}
		out += line + "\n"
	}
	return out[:len(out)-1]
}

// CompactDescription renders a one-line, token-efficient description
// of a tool: name(param: type?, ...) - description.
func CompactDescription(t Tool) string {
	params := t.Parameters()
	out := t.Name() + "("
	for i, p := range params {
		if i > 0 {
			out += ", "
		}
		out += p.Name + ": " + p.Type
		if !p.Required {
			out += "?"
		}
	}
	return out + ") - " + t.Description()
}

func joinStrs(xs []string, sep string) string {
	out := ""
	for i, x := range xs {
		if i > 0 {
			out += sep
		}
		out += x
	}
	return out
}

func toStr(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
