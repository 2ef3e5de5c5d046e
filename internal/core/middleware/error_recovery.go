package middleware

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/haasonsaas/nexus/pkg/harnesstypes"
)

// ErrorClass is one of a closed set of LLM failure categories used to
// select a recovery strategy.
type ErrorClass string

const (
	ClassEmptyResponse ErrorClass = "empty_response"
	ClassMalformedJSON ErrorClass = "malformed_json"
	ClassWrongToolName ErrorClass = "wrong_tool_name"
	ClassMissingArgs   ErrorClass = "missing_args"
	ClassProseWrapped  ErrorClass = "prose_wrapped"
	ClassUnknown       ErrorClass = "unknown"
)

// ErrorClassifier assigns an ErrorClass to a failed LLM call and can
// fuzzy-match a mistyped tool name to a registered one.
type ErrorClassifier struct {
	toolNames map[string]bool
}

// NewErrorClassifier builds a classifier aware of the given registered
// tool names, used for wrong_tool_name detection and suggestions.
func NewErrorClassifier(toolNames []string) *ErrorClassifier {
	set := make(map[string]bool, len(toolNames))
	for _, n := range toolNames {
		set[n] = true
	}
	return &ErrorClassifier{toolNames: set}
}

// Classify returns the error class for a failed response given the
// error context message that was produced alongside it.
func (c *ErrorClassifier) Classify(errorContext, failedResponse string) ErrorClass {
	if strings.TrimSpace(failedResponse) == "" {
		return ClassEmptyResponse
	}

	stripped := strings.TrimSpace(failedResponse)
	if strings.HasPrefix(stripped, "{") {
		var v any
		if json.Unmarshal([]byte(stripped), &v) != nil {
			return ClassMalformedJSON
		}
	}

	if len(c.toolNames) > 0 && strings.Contains(errorContext, "Unknown tool") {
		return ClassWrongToolName
	}

	lower := strings.ToLower(errorContext)
	if strings.Contains(lower, "missing") && strings.Contains(lower, "arg") {
		return ClassMissingArgs
	}

	if looksLikeToolJSON(failedResponse) {
		return ClassProseWrapped
	}

	return ClassUnknown
}

func looksLikeToolJSON(s string) bool {
	idx := strings.Index(s, `{`)
	for idx >= 0 {
		rest := s[idx:]
		close := strings.Index(rest, "}")
		if close < 0 {
			return false
		}
		if strings.Contains(rest[:close], `"tool"`) {
			return true
		}
		next := strings.Index(s[idx+1:], "{")
		if next < 0 {
			return false
		}
		idx = idx + 1 + next
	}
	return false
}

// SuggestTool fuzzy-matches a mistyped tool name against the known
// registry, preferring containment of one name in the other (longest
// name wins) and falling back to a shared 4-character prefix or any
// shared 4-character substring.
func (c *ErrorClassifier) SuggestTool(wrongName string) string {
	if len(c.toolNames) == 0 {
		return ""
	}
	wrongLower := strings.ReplaceAll(strings.ReplaceAll(strings.ToLower(wrongName), "-", "_"), " ", "_")

	best := ""
	bestScore := 0
	for name := range c.toolNames {
		nameLower := strings.ToLower(name)
		switch {
		case strings.Contains(nameLower, wrongLower) || strings.Contains(wrongLower, nameLower):
			if score := len(nameLower); score > bestScore {
				bestScore = score
				best = name
			}
		case len(wrongLower) >= 4 && len(nameLower) >= 4 && wrongLower[:4] == nameLower[:4]:
			if bestScore < 1 {
				bestScore = 1
				best = name
			}
		default:
			for i := 0; bestScore < 1 && i+4 <= len(wrongLower); i++ {
				if strings.Contains(nameLower, wrongLower[i:i+4]) {
					bestScore = 1
					best = name
				}
			}
		}
	}
	return best
}

// Escalator promotes a model name when empty-response recovery
// demands a stronger model. Returns "" to decline escalation.
type Escalator func(currentModel string, req Request) string

// Strategy names the recovery strategies available, tried in order.
type Strategy string

const (
	StrategyRefinePrompt   Strategy = "refine_prompt"
	StrategyAddExamples    Strategy = "add_examples"
	StrategyEscalateModel  Strategy = "escalate_model"
)

var defaultStrategies = []Strategy{StrategyRefinePrompt, StrategyAddExamples, StrategyEscalateModel}

// ErrorRecovery retries a failed LLM call with increasingly aggressive
// recovery strategies: refining the prompt with a correction message,
// then adding concrete examples, then escalating to a stronger model.
type ErrorRecovery struct {
	MaxRetries int
	ToolNames  []string
	Strategies []Strategy
	OnEscalate Escalator

	classifier *ErrorClassifier
}

// NewErrorRecovery returns an ErrorRecovery configured with the default
// strategy order (refine, examples, escalate) and up to 3 retries.
func NewErrorRecovery(toolNames []string, onEscalate Escalator) *ErrorRecovery {
	return &ErrorRecovery{
		MaxRetries: 3,
		ToolNames:  toolNames,
		Strategies: append([]Strategy(nil), defaultStrategies...),
		OnEscalate: onEscalate,
		classifier: NewErrorClassifier(toolNames),
	}
}

func (e *ErrorRecovery) Process(ctx context.Context, req Request, next NextFn) harnesstypes.LLMResponse {
	if e.classifier == nil {
		e.classifier = NewErrorClassifier(e.ToolNames)
	}
	response := next(ctx, req)

	for attempt := 0; attempt < e.MaxRetries; attempt++ {
		if !e.needsRecovery(req, response) {
			return response
		}

		errorContext := e.buildErrorContext(req, response)
		class := e.classifier.Classify(errorContext, response.Content)

		if class == ClassProseWrapped {
			return response
		}

		strategy, ok := e.pickStrategy(attempt, class)
		if !ok {
			return response
		}

		req = e.applyStrategy(strategy, req, response, errorContext, class)
		req.PriorToolError = ""
		response = next(ctx, req)
	}
	return response
}

// needsRecovery triggers on the usual response-level anomalies, and
// also when the request carries an unresolved PriorToolError from the
// previous step's tool execution (e.g. the model named an unknown
// tool or omitted a required argument) — that failure deserves a
// corrective retry even though the LLM call that produced it returned
// a perfectly well-formed response.
func (e *ErrorRecovery) needsRecovery(req Request, r harnesstypes.LLMResponse) bool {
	if req.PriorToolError != "" {
		return true
	}
	if r.FinishReason == "error" {
		return true
	}
	if r.HasToolCalls() {
		return false
	}
	return strings.TrimSpace(r.Content) == ""
}

func (e *ErrorRecovery) buildErrorContext(req Request, r harnesstypes.LLMResponse) string {
	if req.PriorToolError != "" {
		return req.PriorToolError
	}
	if r.FinishReason == "error" {
		return "LLM error response: " + r.Content
	}
	if strings.TrimSpace(r.Content) == "" {
		return "Empty response from LLM"
	}
	return "No tool call detected in response"
}

func (e *ErrorRecovery) pickStrategy(attempt int, class ErrorClass) (Strategy, bool) {
	if class == ClassEmptyResponse && e.OnEscalate != nil {
		if containsStrategy(e.Strategies, StrategyEscalateModel) {
			return StrategyEscalateModel, true
		}
	}
	if (class == ClassWrongToolName || class == ClassMissingArgs) && attempt == 0 {
		return StrategyRefinePrompt, true
	}
	if attempt < len(e.Strategies) {
		return e.Strategies[attempt], true
	}
	return "", false
}

func containsStrategy(strategies []Strategy, s Strategy) bool {
	for _, x := range strategies {
		if x == s {
			return true
		}
	}
	return false
}

func (e *ErrorRecovery) applyStrategy(strategy Strategy, req Request, resp harnesstypes.LLMResponse, errorContext string, class ErrorClass) Request {
	switch strategy {
	case StrategyRefinePrompt:
		extra := ""
		if class == ClassWrongToolName {
			suggestion := e.classifier.SuggestTool(extractWrongToolName(errorContext))
			if suggestion != "" {
				extra = " Did you mean '" + suggestion + "'?"
			}
			if len(e.classifier.toolNames) > 0 {
				extra += "\nAvailable tools: " + strings.Join(sortedNames(e.classifier.toolNames), ", ")
			}
		}
		return refinePrompt(req, resp.Content, errorContext+extra)

	case StrategyAddExamples:
		return addExamples(req, resp.Content, errorContext)

	case StrategyEscalateModel:
		if e.OnEscalate == nil {
			return req
		}
		newModel := e.OnEscalate(req.Model, req)
		if newModel == "" {
			return req
		}
		out := req.Clone()
		out.Model = newModel
		return out
	}
	return req
}

func extractWrongToolName(errorContext string) string {
	idx := strings.Index(errorContext, "Unknown tool:")
	if idx < 0 {
		return ""
	}
	rest := strings.TrimSpace(errorContext[idx+len("Unknown tool:"):])
	if dot := strings.Index(rest, "."); dot >= 0 {
		rest = rest[:dot]
	}
	return strings.TrimSpace(rest)
}

func sortedNames(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}

func refinePrompt(req Request, failedResponse, errorContext string) Request {
	correction := "Your previous response could not be processed. Error: " + errorContext +
		"\n\nPlease try again. To use a tool, respond with ONLY:\n" +
		`{"tool": "tool_name", "args": {"param": "value"}}` +
		"\nTo respond normally, just write text."
	out := req.Clone()
	out.Messages = append(out.Messages,
		harnesstypes.Assistant(failedResponse),
		harnesstypes.User(correction),
	)
	return out
}

func addExamples(req Request, failedResponse, errorContext string) Request {
	examples := "Error: " + errorContext + "\n\nExamples of correct tool usage:\n" +
		`{"tool": "shell", "args": {"command": "ls -la"}}` + "\n" +
		`{"tool": "read_file", "args": {"path": "src/main.go"}}` + "\n" +
		"Normal response (no tool): Just write text.\nTry again."
	out := req.Clone()
	out.Messages = append(out.Messages,
		harnesstypes.Assistant(failedResponse),
		harnesstypes.User(examples),
	)
	return out
}
