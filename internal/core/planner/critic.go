package planner

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/nexus/pkg/harnesstypes"
)

// Critic validates a Plan against rule-based checks. It never calls
// the LLM: a second pass over already-spent tokens would defeat the
// point of catching hallucinated plans cheaply.
type Critic struct {
	maxSteps int
}

// NewCritic returns a Critic bounded by maxSteps (clamped to
// harnesstypes.MaxPlanSteps).
func NewCritic(maxSteps int) *Critic {
	if maxSteps <= 0 || maxSteps > harnesstypes.MaxPlanSteps {
		maxSteps = harnesstypes.MaxPlanSteps
	}
	return &Critic{maxSteps: maxSteps}
}

// Validate returns the list of issues found in plan; an empty slice
// means the plan is accepted as-is.
func (c *Critic) Validate(plan *harnesstypes.Plan) []string {
	var issues []string

	if len(plan.Steps) == 0 {
		return append(issues, "Plan has no steps")
	}

	if len(plan.Steps) > c.maxSteps {
		issues = append(issues, fmt.Sprintf("Too many steps (%d > %d)", len(plan.Steps), c.maxSteps))
	}

	for _, step := range plan.Steps {
		if strings.TrimSpace(step.Title) == "" {
			issues = append(issues, fmt.Sprintf("Step %s has empty title", step.StepID))
		}
		if strings.TrimSpace(step.Instruction) == "" {
			issues = append(issues, fmt.Sprintf("Step %s has empty instruction", step.StepID))
		} else if len(step.Instruction) < 10 {
			issues = append(issues, fmt.Sprintf("Step %s instruction too vague: '%s'", step.StepID, step.Instruction))
		}
	}

	seen := make(map[string]bool, len(plan.Steps))
	for _, step := range plan.Steps {
		key := strings.ToLower(strings.TrimSpace(step.Title))
		if seen[key] {
			issues = append(issues, "Plan contains duplicate step titles (possible hallucination)")
			break
		}
		seen[key] = true
	}

	return issues
}
