package middleware

import (
	"context"
	"sort"
	"strings"

	"github.com/haasonsaas/nexus/pkg/harnesstypes"
)

// ThinkingMode controls the reasoning directive injected into the
// system prompt.
type ThinkingMode string

const (
	ThinkingAuto   ThinkingMode = "auto"
	ThinkingAlways ThinkingMode = "always"
	ThinkingNever  ThinkingMode = "never"
)

var thinkingHints = map[ThinkingMode]string{
	ThinkingAlways: "Use <think>...</think> for ALL reasoning before responding.\n",
	ThinkingAuto:   "Use <think>...</think> for complex reasoning. Skip for simple tasks.\n",
	ThinkingNever:  "/no_think\n",
}

const toolFormatHint = `When you need to use a tool, respond with EXACTLY this JSON (nothing else):
{"tool": "tool_name", "args": {"param1": "value1"}}

RULES:
- Output ONLY the JSON when calling a tool -- no other text around it
- ONE tool call per response
- To respond to the user, just write normal text (no JSON)
`

// PromptOptimizer enriches the system prompt with format hints that
// help weaker models produce parseable tool-call output.
type PromptOptimizer struct {
	ThinkingMode       ThinkingMode
	InjectToolFormat   bool
	ExtraInstructions  []string
}

// NewPromptOptimizer returns a PromptOptimizer with tool-format
// injection on and auto thinking mode, the harness's default.
func NewPromptOptimizer() *PromptOptimizer {
	return &PromptOptimizer{ThinkingMode: ThinkingAuto, InjectToolFormat: true}
}

func (p *PromptOptimizer) Process(ctx context.Context, req Request, next NextFn) harnesstypes.LLMResponse {
	var additions []string

	if hint, ok := thinkingHints[p.ThinkingMode]; ok && hint != "" {
		additions = append(additions, hint)
	}

	if p.InjectToolFormat && len(req.Tools) > 0 {
		additions = append(additions, toolFormatHint)
		if names := extractToolNames(req.Tools); len(names) > 0 {
			additions = append(additions, "Available tools: "+strings.Join(names, ", ")+"\n")
		}
	}

	additions = append(additions, p.ExtraInstructions...)

	if len(additions) > 0 {
		req = injectIntoSystemPrompt(req, strings.Join(additions, "\n"))
	}
	return next(ctx, req)
}

func extractToolNames(tools []map[string]any) []string {
	var names []string
	for _, t := range tools {
		fn, ok := t["function"].(map[string]any)
		if !ok {
			fn = t
		}
		if name, ok := fn["name"].(string); ok && name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func injectIntoSystemPrompt(req Request, addition string) Request {
	out := req.Clone()
	if len(out.Messages) > 0 && out.Messages[0].Role == harnesstypes.RoleSystem {
		out.Messages[0] = harnesstypes.Msg{
			Role:    harnesstypes.RoleSystem,
			Content: out.Messages[0].Content + "\n\n" + addition,
		}
		return out
	}
	out.Messages = append([]harnesstypes.Msg{{Role: harnesstypes.RoleSystem, Content: addition}}, out.Messages...)
	return out
}
