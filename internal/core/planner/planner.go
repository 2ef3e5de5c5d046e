// Package planner decomposes a goal into a small, verifiable Plan
// before the orchestrator's direct ReAct loop takes over, and
// rule-checks the result without a second LLM call.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/haasonsaas/nexus/internal/core/middleware"
	"github.com/haasonsaas/nexus/pkg/harnesstypes"
)

const planningMaxTokens = 2048

const planSystemPrompt = `You are a planning assistant. Given a goal, break it into a small number of concrete steps.

RULES:
- Maximum %d steps. Fewer is better.
- Each step must be independently verifiable.
- Steps should be ordered by dependency.
- Be specific and actionable — no vague steps.

Respond with ONLY a JSON object in this exact format (no markdown, no extra text):
{
  "steps": [
    {
      "title": "Short title",
      "instruction": "Detailed instruction for what to do",
      "success_criteria": ["How to verify this step succeeded"]
    }
  ],
  "assumptions": ["Any assumptions about the project"]
}`

const replanPrompt = `The original goal was: %s

Completed steps:
%s

Step "%s" FAILED: %s

Create a revised plan for the REMAINING work only. The completed steps are already done.
Respond with ONLY a JSON object in the same format as before.`

// ChatFunc performs one LLM call and returns its response. It matches
// middleware.Pipeline.Execute's signature so a Planner can sit in
// front of the same pipeline the orchestrator's main loop uses.
type ChatFunc func(ctx context.Context, req middleware.Request) harnesstypes.LLMResponse

// Planner creates structured plans from goals using the LLM, adapting
// max_steps/max_agent_steps/replan_depth to the goal's estimated
// complexity.
type Planner struct {
	chat        ChatFunc
	model       string
	maxSteps    int
	replanDepth int
	replanCount int
}

// New returns a Planner bounded by maxSteps (clamped to
// harnesstypes.MaxPlanSteps).
func New(chat ChatFunc, model string, maxSteps int) *Planner {
	if maxSteps <= 0 || maxSteps > harnesstypes.MaxPlanSteps {
		maxSteps = harnesstypes.MaxPlanSteps
	}
	return &Planner{chat: chat, model: model, maxSteps: maxSteps}
}

// CreatePlan generates a plan for goal, estimating its complexity to
// tune the effective step budget, returning either a Plan or a
// PlanFailure describing why planning could not produce one.
func (p *Planner) CreatePlan(ctx context.Context, goal, projectContext string) (*harnesstypes.Plan, *harnesstypes.PlanFailure) {
	complexity := EstimateComplexity(goal)
	profile := ProfileFor(complexity)
	effectiveMaxSteps := profile.MaxSteps
	if p.maxSteps < effectiveMaxSteps {
		effectiveMaxSteps = p.maxSteps
	}
	p.replanDepth = profile.ReplanDepth
	p.replanCount = 0

	userMsg := "GOAL: " + goal
	if projectContext != "" {
		userMsg += "\n\nCONTEXT:\n" + projectContext
	}

	req := middleware.Request{
		Model:       p.model,
		MaxTokens:   planningMaxTokens,
		Temperature: 0.2,
		Messages: []harnesstypes.Msg{
			harnesstypes.System(fmt.Sprintf(planSystemPrompt, effectiveMaxSteps)),
			harnesstypes.User(userMsg),
		},
	}

	resp := p.chat(ctx, req)
	if resp.FinishReason == "error" {
		return nil, &harnesstypes.PlanFailure{Reason: "LLM error: " + resp.Content}
	}
	if resp.Content == "" {
		return nil, &harnesstypes.PlanFailure{Reason: "Empty response from LLM"}
	}

	plan, failure := parsePlan(goal, resp.Content, p.maxSteps)
	if plan != nil {
		for i := range plan.Steps {
			plan.Steps[i].MaxAgentSteps = profile.MaxAgentSteps
		}
	}
	return plan, failure
}

// ReplanRemaining requests a revised plan covering only the work left
// after failedStep failed, consulting the replan-depth budget set by
// the most recent CreatePlan call.
func (p *Planner) ReplanRemaining(ctx context.Context, goal string, completed []harnesstypes.PlanStep, failedStep harnesstypes.PlanStep, failureReason string) (*harnesstypes.Plan, *harnesstypes.PlanFailure) {
	p.replanCount++
	if p.replanCount > p.replanDepth {
		return nil, &harnesstypes.PlanFailure{
			Reason:      "Replan depth exceeded",
			Recoverable: false,
		}
	}

	completedText := "  (none)"
	if len(completed) > 0 {
		var b strings.Builder
		for i, s := range completed {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "  %d. %s (DONE)", i+1, s.Title)
		}
		completedText = b.String()
	}

	req := middleware.Request{
		Model:       p.model,
		MaxTokens:   planningMaxTokens,
		Temperature: 0.2,
		Messages: []harnesstypes.Msg{
			harnesstypes.System(fmt.Sprintf(planSystemPrompt, p.maxSteps)),
			harnesstypes.User(fmt.Sprintf(replanPrompt, goal, completedText, failedStep.Title, failureReason)),
		},
	}

	resp := p.chat(ctx, req)
	if resp.FinishReason == "error" {
		return nil, &harnesstypes.PlanFailure{Reason: "Replan LLM error: " + resp.Content}
	}
	if resp.Content == "" {
		return nil, &harnesstypes.PlanFailure{Reason: "Empty replan response"}
	}
	return parsePlan(goal, resp.Content, p.maxSteps)
}

// rawPlan mirrors the JSON object the planning prompt demands.
type rawPlan struct {
	Steps []struct {
		Title           string   `json:"title"`
		Instruction     string   `json:"instruction"`
		SuccessCriteria []string `json:"success_criteria"`
	} `json:"steps"`
	Assumptions []string `json:"assumptions"`
}

func parsePlan(goal, raw string, maxSteps int) (*harnesstypes.Plan, *harnesstypes.PlanFailure) {
	jsonStr := extractJSON(raw)
	if jsonStr == "" {
		return nil, &harnesstypes.PlanFailure{Reason: "Could not extract JSON from planner output", RawOutput: truncate(raw, 500)}
	}

	var data rawPlan
	if err := json.Unmarshal([]byte(jsonStr), &data); err != nil {
		return nil, &harnesstypes.PlanFailure{Reason: "Invalid JSON: " + err.Error(), RawOutput: truncate(raw, 500)}
	}
	if len(data.Steps) == 0 {
		return nil, &harnesstypes.PlanFailure{Reason: "No steps in plan", RawOutput: truncate(raw, 500)}
	}

	steps := data.Steps
	if len(steps) > maxSteps {
		steps = steps[:maxSteps]
	}

	var out []harnesstypes.PlanStep
	for i, s := range steps {
		title := s.Title
		if title == "" {
			title = fmt.Sprintf("Step %d", i+1)
		}
		instruction := s.Instruction
		if instruction == "" {
			instruction = title
		}
		out = append(out, harnesstypes.PlanStep{
			StepID:          fmt.Sprintf("step_%d", i+1),
			Title:           title,
			Instruction:     instruction,
			SuccessCriteria: s.SuccessCriteria,
		})
	}
	if len(out) == 0 {
		return nil, &harnesstypes.PlanFailure{Reason: "No valid steps parsed", RawOutput: truncate(raw, 500)}
	}

	return &harnesstypes.Plan{Goal: goal, Steps: out, Assumptions: data.Assumptions}, nil
}

var (
	fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	anyJSONPattern    = regexp.MustCompile(`(?s)\{.*\}`)
)

// extractJSON pulls a JSON object out of potentially messy LLM output:
// the whole trimmed text if it already starts with '{', else a fenced
// ```json code block, else the widest {...} span found anywhere.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "{") {
		return text
	}
	if m := fencedJSONPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := anyJSONPattern.FindString(text); m != "" {
		return m
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
