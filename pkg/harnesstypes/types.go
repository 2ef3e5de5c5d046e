// Package harnesstypes holds the wire and in-process value types shared
// across the agent harness: tool schemas, LLM responses, and the event
// shape the orchestrator emits.
package harnesstypes

import "time"

// ToolParameter describes one argument a Tool accepts.
type ToolParameter struct {
	Name        string
	Type        string // string|integer|boolean|array|object
	Description string
	Required    bool
	Default     any
	Enum        []string
}

// ToolCall is a parsed request from the model to invoke a tool.
type ToolCall struct {
	Name      string
	Arguments map[string]any
	Raw       string
}

// ToolResult is what every tool execution produces, success or not.
type ToolResult struct {
	Success  bool
	Output   string
	Error    string
	Metadata map[string]any
}

// ToolErrorMarker prefixes a ToolResult's rendered message when a tool
// failed. Used by the context assembler's L1 compressor to tell OK from
// error without re-deriving success from prose.
const ToolErrorMarker = "[Tool Error]"

// PolicyViolationMarker prefixes a ToolResult's error when the policy
// engine blocked the call, distinct from a tool's own failure.
const PolicyViolationMarker = "Policy violation:"

// ToMessage renders a ToolResult the way it is appended to the
// conversation as a user turn.
func (r ToolResult) ToMessage() string {
	if r.Success {
		return r.Output
	}
	if r.Output != "" {
		return ToolErrorMarker + " " + r.Error + "\n" + r.Output
	}
	return ToolErrorMarker + " " + r.Error
}

// Usage reports token accounting for one LLM call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// LLMResponse is the unified shape both transport dialects map onto.
type LLMResponse struct {
	Content      string
	Thinking     string
	ToolCalls    []ToolCall
	FinishReason string // stop|error|""
	Usage        Usage
	Model        string
	LatencyMS    float64
}

// HasToolCalls reports whether the response carries at least one parsed
// tool call.
func (r LLMResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// EventType is a closed set of event families the harness emits.
type EventType string

const (
	EventAgentStarted   EventType = "agent.started"
	EventAgentDone      EventType = "agent.done"
	EventAgentError     EventType = "agent.error"
	EventAgentCancelled EventType = "agent.cancelled"

	EventLLMRequest   EventType = "llm.request"
	EventLLMResponse  EventType = "llm.response"
	EventLLMStreaming EventType = "llm.streaming"
	EventLLMThinking  EventType = "llm.thinking"
	EventLLMError     EventType = "llm.error"

	EventToolExecuting EventType = "tool.executing"
	EventToolExecuted  EventType = "tool.executed"
	EventToolError     EventType = "tool.error"

	EventReasonerDecision EventType = "reasoner.decision"

	EventContextCompressed EventType = "context.compressed"

	EventPolicyViolation EventType = "policy.violation"
)

// AgentEvent is the value the event bus fans out to subscribers.
type AgentEvent struct {
	Type      EventType
	Data      map[string]any
	Timestamp time.Time
}

// Role identifies the speaker of a Msg.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolResultPrefix is the literal marker the context assembler's L1
// compressor uses to recognize a user message carrying a tool result,
// per the tagged-variant Msg shape called for in the spec's design
// notes (no bag-of-keys dicts).
const ToolResultPrefix = "[Tool Result"

// Msg is a single conversation turn. It marshals losslessly to
// {"role": ..., "content": ...} on the wire regardless of Role.
type Msg struct {
	Role    Role
	Content string
}

// System builds a system-role message.
func System(content string) Msg { return Msg{Role: RoleSystem, Content: content} }

// User builds a user-role message.
func User(content string) Msg { return Msg{Role: RoleUser, Content: content} }

// Assistant builds an assistant-role message.
func Assistant(content string) Msg { return Msg{Role: RoleAssistant, Content: content} }

// WireMessage is the exact JSON shape a Msg marshals to when sent to an
// LLM transport.
type WireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Wire converts a Msg to its wire shape.
func (m Msg) Wire() WireMessage {
	return WireMessage{Role: string(m.Role), Content: m.Content}
}
