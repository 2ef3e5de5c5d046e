// Package reasoner interprets an LLM response into the orchestrator's
// next action. Decide is a pure function: no mutable state, no I/O.
package reasoner

import "github.com/haasonsaas/nexus/pkg/harnesstypes"

// ActionType is what the orchestrator should do after reasoning.
type ActionType string

const (
	ActionExecuteTools ActionType = "execute_tools"
	ActionRespond      ActionType = "respond"
	ActionError        ActionType = "error"
)

// Decision is the output of Decide.
type Decision struct {
	Action       ActionType
	ToolCalls    []harnesstypes.ToolCall
	ResponseText string
	Thinking     string
	Error        string
}

// Decide analyzes an LLM response and the current step count and
// produces the next action:
//  1. stepCount beyond maxSteps -> error (step limit)
//  2. response.FinishReason == "error" -> error
//  3. no content and no tool calls -> error (empty response)
//  4. tool calls present -> execute them
//  5. otherwise -> respond (final text, loop ends)
func Decide(resp harnesstypes.LLMResponse, stepCount, maxSteps int) Decision {
	if stepCount > maxSteps {
		return Decision{
			Action:       ActionError,
			Error:        "step limit reached, stopping",
			ResponseText: resp.Content,
			Thinking:     resp.Thinking,
		}
	}

	if resp.FinishReason == "error" {
		errMsg := resp.Content
		if errMsg == "" {
			errMsg = "LLM returned an error"
		}
		return Decision{Action: ActionError, Error: errMsg, Thinking: resp.Thinking}
	}

	if resp.Content == "" && !resp.HasToolCalls() {
		return Decision{Action: ActionError, Error: "empty response from LLM", Thinking: resp.Thinking}
	}

	if resp.HasToolCalls() {
		return Decision{
			Action:       ActionExecuteTools,
			ToolCalls:    resp.ToolCalls,
			ResponseText: resp.Content,
			Thinking:     resp.Thinking,
		}
	}

	return Decision{Action: ActionRespond, ResponseText: resp.Content, Thinking: resp.Thinking}
}
