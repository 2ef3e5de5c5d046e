package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/haasonsaas/nexus/pkg/harnesstypes"
)

// Registry holds the set of tools available to an agent run and
// dispatches calls by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register indexes a tool by its declared name, replacing any
// previous registration under the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// Names returns every registered tool name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	return out
}

// Execute runs a registered tool by name. It never panics past this
// call: an unknown tool or an argument-schema violation becomes a
// failed ToolResult, and the per-tool output is smart-truncated
// afterward to the tool's MaxOutput, or to DefaultMaxOutput when the
// tool declares MaxOutput <= 0.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) harnesstypes.ToolResult {
	if args == nil {
		args = map[string]any{}
	}

	t, ok := r.Get(name)
	if !ok {
		return harnesstypes.ToolResult{
			Success: false,
			Error:   fmt.Sprintf("Unknown tool: %s. Available: %s", name, joinStrs(r.Names(), ", ")),
		}
	}

	if err := ValidateArgs(t, args); err != nil {
		return harnesstypes.ToolResult{Success: false, Error: err.Error()}
	}

	result := runTool(ctx, t, args)

	maxOut := t.MaxOutput()
	if maxOut <= 0 {
		maxOut = DefaultMaxOutput
	}
	if maxOut > 0 && len(result.Output) > maxOut {
		result.Output = smartTruncate(result.Output, maxOut)
	}
	return result
}

// runTool invokes a tool's Execute, converting any panic raised by a
// misbehaving implementation into a failed ToolResult rather than
// letting it escape the registry — the harness's result-type
// convention for tool execution (see SPEC_FULL.md §9).
func runTool(ctx context.Context, t Tool, args map[string]any) (result harnesstypes.ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = harnesstypes.ToolResult{
				Success: false,
				Error:   fmt.Sprintf("Tool '%s' execution failed: %v", t.Name(), rec),
			}
		}
	}()
	return t.Execute(ctx, args)
}

// smartTruncate keeps the first 25% and last 75% of text, inserting a
// marker noting how many characters were omitted. Matches the
// reference's registry truncation so shell-like output keeps error
// visibility at the tail.
func smartTruncate(text string, maxLength int) string {
	if len(text) <= maxLength {
		return text
	}
	headSize := maxLength / 4
	tailSize := maxLength - headSize
	omitted := len(text) - maxLength
	return text[:headSize] + fmt.Sprintf("\n\n... [%d chars truncated] ...\n\n", omitted) + text[len(text)-tailSize:]
}

// AsOpenAISchemas returns OpenAI function-calling schemas for every
// registered tool.
func (r *Registry) AsOpenAISchemas() []map[string]any {
	tools := r.List()
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		out = append(out, OpenAISchema(t))
	}
	return out
}

// PromptDescription returns detailed prompt-based descriptions for
// every registered tool, joined by blank lines.
func (r *Registry) PromptDescription() string {
	tools := r.List()
	out := ""
	for i, t := range tools {
		if i > 0 {
			out += "\n\n"
		}
		out += PromptDescription(t)
	}
	return out
}

// CompactPromptDescription returns one compact line per registered
// tool, newline-joined.
func (r *Registry) CompactPromptDescription() string {
	tools := r.List()
	out := ""
	for i, t := range tools {
		if i > 0 {
			out += "\n"
		}
		out += CompactDescription(t)
	}
	return out
}
