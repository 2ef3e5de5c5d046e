// Package toolcall extracts tool calls and <think> blocks from raw LLM
// text output, for models that can't use native function-calling.
package toolcall

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/haasonsaas/nexus/pkg/harnesstypes"
)

var thinkPattern = regexp.MustCompile(`(?s)<think>(.*?)</think>`)

// ExtractThinking splits <think>...</think> blocks out of text, joining
// multiple blocks with newlines, and returns the cleaned remainder.
func ExtractThinking(text string) (thinking, cleaned string) {
	matches := thinkPattern.FindAllStringSubmatch(text, -1)
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, strings.TrimSpace(m[1]))
	}
	thinking = strings.Join(parts, "\n")
	cleaned = strings.TrimSpace(thinkPattern.ReplaceAllString(text, ""))
	return thinking, cleaned
}

// extractBalancedJSON extracts a balanced {...} object starting at
// start, honoring quoted strings and escapes so nested objects and
// braces inside string values don't break the scan.
func extractBalancedJSON(text string, start int) string {
	if start < 0 || start >= len(text) || text[start] != '{' {
		return ""
	}
	depth := 0
	inString := false
	escape := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		switch {
		case escape:
			escape = false
		case ch == '\\':
			escape = true
		case ch == '"':
			inString = !inString
		case inString:
			// inside a string, braces don't count
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

var toolFencePattern = regexp.MustCompile(`(?s)` + "```" + `(?:json)?\s*(\{.*?\})\s*` + "```")
var bareToolPattern = regexp.MustCompile(`\{"tool"\s*:`)
var altToolCallPattern = regexp.MustCompile(`\{"tool_call"\s*:`)

// tryParseToolJSON attempts to decode raw as a {"tool":...,"args":...}
// or {"tool_call":{...}} object, repairing common markdown-fence
// wrapping on the first parse failure.
func tryParseToolJSON(raw string) (harnesstypes.ToolCall, bool) {
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		cleaned := strings.TrimSpace(raw)
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
		cleaned = strings.TrimSpace(cleaned)
		if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
			return harnesstypes.ToolCall{}, false
		}
	}

	if toolName, ok := data["tool"].(string); ok {
		if argsRaw, ok := data["args"]; ok {
			return harnesstypes.ToolCall{Name: toolName, Arguments: coerceArgs(argsRaw), Raw: raw}, true
		}
	}
	if tcAny, ok := data["tool_call"]; ok {
		tc, ok := tcAny.(map[string]any)
		if !ok {
			return harnesstypes.ToolCall{}, false
		}
		name, _ := tc["name"].(string)
		if name == "" {
			name, _ = tc["tool"].(string)
		}
		argsRaw, ok := tc["arguments"]
		if !ok {
			argsRaw = tc["args"]
		}
		return harnesstypes.ToolCall{Name: name, Arguments: coerceArgs(argsRaw), Raw: raw}, true
	}
	return harnesstypes.ToolCall{}, false
}

func coerceArgs(raw any) map[string]any {
	switch v := raw.(type) {
	case map[string]any:
		return v
	case string:
		var parsed map[string]any
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			return parsed
		}
		return map[string]any{"prompt": v}
	default:
		return map[string]any{}
	}
}

// ParseFromText extracts the first tool call from free-form text using
// an ordered strategy chain: fenced code blocks, bare {"tool":...}
// objects, the whole text as one object, then {"tool_call":...}
// objects. The first strategy that yields any candidate wins; later
// strategies are never consulted. Within the winning strategy, only
// the first candidate that parses successfully is returned — a
// response containing more than one legal tool-call object still
// yields a single call, matching the reasoner's one-call-per-step
// contract.
func ParseFromText(text string) []harnesstypes.ToolCall {
	var candidates []string

	if fenced := toolFencePattern.FindAllStringSubmatch(text, -1); len(fenced) > 0 {
		for _, m := range fenced {
			candidates = append(candidates, m[1])
		}
	}

	if len(candidates) == 0 {
		for _, loc := range bareToolPattern.FindAllStringIndex(text, -1) {
			if obj := extractBalancedJSON(text, loc[0]); obj != "" {
				candidates = append(candidates, obj)
			}
		}
	}

	if len(candidates) == 0 {
		stripped := strings.TrimSpace(text)
		if strings.HasPrefix(stripped, "{") && strings.HasSuffix(stripped, "}") {
			candidates = append(candidates, stripped)
		}
	}

	if len(candidates) == 0 {
		for _, loc := range altToolCallPattern.FindAllStringIndex(text, -1) {
			if obj := extractBalancedJSON(text, loc[0]); obj != "" {
				candidates = append(candidates, obj)
			}
		}
	}

	for _, c := range candidates {
		if call, ok := tryParseToolJSON(c); ok {
			return []harnesstypes.ToolCall{call}
		}
	}
	return nil
}

// Parser is a schema-aware tool call extractor: when it knows the
// registered tool names, it short-circuits on the first occurrence of
// a known tool name and returns only that single call, ignoring any
// other candidates in the text. Without known names it falls back to
// ParseFromText's full strategy chain.
type Parser struct {
	knownPattern *regexp.Regexp
}

// NewParser builds a Parser that recognizes the given tool names for
// fast first-match short-circuiting.
func NewParser(toolNames []string) *Parser {
	if len(toolNames) == 0 {
		return &Parser{}
	}
	escaped := make([]string, len(toolNames))
	for i, n := range toolNames {
		escaped[i] = regexp.QuoteMeta(n)
	}
	pattern := `\{\s*"tool"\s*:\s*"(` + strings.Join(escaped, "|") + `)"`
	return &Parser{knownPattern: regexp.MustCompile(pattern)}
}

// Parse returns the tool calls found in text, resolving to exactly the
// first full match when a known tool name is present.
func (p *Parser) Parse(text string) []harnesstypes.ToolCall {
	if p.knownPattern != nil {
		if loc := p.knownPattern.FindStringIndex(text); loc != nil {
			start := strings.LastIndex(text[:loc[1]], "{")
			if obj := extractBalancedJSON(text, start); obj != "" {
				if call, ok := tryParseToolJSON(obj); ok {
					return []harnesstypes.ToolCall{call}
				}
			}
		}
	}
	return ParseFromText(text)
}
