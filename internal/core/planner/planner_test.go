package planner

import (
	"context"
	"testing"

	"github.com/haasonsaas/nexus/internal/core/middleware"
	"github.com/haasonsaas/nexus/pkg/harnesstypes"
)

func fixedChat(content string) ChatFunc {
	return func(ctx context.Context, req middleware.Request) harnesstypes.LLMResponse {
		return harnesstypes.LLMResponse{Content: content}
	}
}

func errorChat(content string) ChatFunc {
	return func(ctx context.Context, req middleware.Request) harnesstypes.LLMResponse {
		return harnesstypes.LLMResponse{Content: content, FinishReason: "error"}
	}
}

const validPlanJSON = `{
  "steps": [
    {"title": "Read the file", "instruction": "Open and inspect main.go", "success_criteria": ["file contents printed"]},
    {"title": "Write the patch", "instruction": "Apply the fix to main.go", "success_criteria": ["tests pass"]}
  ],
  "assumptions": ["repo is checked out"]
}`

func TestCreatePlanParsesValidJSON(t *testing.T) {
	p := New(fixedChat(validPlanJSON), "test-model", 5)
	plan, failure := p.CreatePlan(context.Background(), "fix the bug in main.go", "")
	if failure != nil {
		t.Fatalf("unexpected failure: %+v", failure)
	}
	if len(plan.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(plan.Steps))
	}
	if plan.Steps[0].Title != "Read the file" {
		t.Fatalf("unexpected first step: %+v", plan.Steps[0])
	}
	if plan.Steps[0].MaxAgentSteps == 0 {
		t.Fatal("expected MaxAgentSteps set from the complexity profile")
	}
}

func TestCreatePlanExtractsFromFencedBlock(t *testing.T) {
	fenced := "Sure, here is the plan:\n```json\n" + validPlanJSON + "\n```\nLet me know if this works."
	p := New(fixedChat(fenced), "test-model", 5)
	plan, failure := p.CreatePlan(context.Background(), "fix the bug", "")
	if failure != nil {
		t.Fatalf("unexpected failure: %+v", failure)
	}
	if len(plan.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(plan.Steps))
	}
}

func TestCreatePlanRejectsEmptyResponse(t *testing.T) {
	p := New(fixedChat(""), "test-model", 5)
	plan, failure := p.CreatePlan(context.Background(), "do a thing", "")
	if plan != nil || failure == nil {
		t.Fatalf("expected failure for an empty response, got plan=%+v failure=%+v", plan, failure)
	}
}

func TestCreatePlanRejectsInvalidJSON(t *testing.T) {
	p := New(fixedChat("{not json"), "test-model", 5)
	plan, failure := p.CreatePlan(context.Background(), "do a thing", "")
	if plan != nil || failure == nil {
		t.Fatalf("expected failure for invalid JSON, got plan=%+v failure=%+v", plan, failure)
	}
}

func TestCreatePlanRejectsNoSteps(t *testing.T) {
	p := New(fixedChat(`{"steps": [], "assumptions": []}`), "test-model", 5)
	plan, failure := p.CreatePlan(context.Background(), "do a thing", "")
	if plan != nil || failure == nil {
		t.Fatal("expected failure when the plan has zero steps")
	}
}

func TestCreatePlanPropagatesLLMError(t *testing.T) {
	p := New(errorChat("rate limited"), "test-model", 5)
	plan, failure := p.CreatePlan(context.Background(), "do a thing", "")
	if plan != nil || failure == nil {
		t.Fatal("expected failure when the LLM call itself errors")
	}
}

func TestCreatePlanEnforcesMaxSteps(t *testing.T) {
	many := `{"steps": [
		{"title": "a", "instruction": "do the first thing here"},
		{"title": "b", "instruction": "do the second thing here"},
		{"title": "c", "instruction": "do the third thing here"},
		{"title": "d", "instruction": "do the fourth thing here"}
	]}`
	p := New(fixedChat(many), "test-model", 2)
	plan, failure := p.CreatePlan(context.Background(), "a short goal", "")
	if failure != nil {
		t.Fatalf("unexpected failure: %+v", failure)
	}
	if len(plan.Steps) != 2 {
		t.Fatalf("expected steps truncated to maxSteps=2, got %d", len(plan.Steps))
	}
}

func TestReplanRemainingRespectsDepthBudget(t *testing.T) {
	p := New(fixedChat(validPlanJSON), "test-model", 5)
	// A low-complexity goal yields replan_depth=0.
	_, _ = p.CreatePlan(context.Background(), "fix a typo", "")

	failed := harnesstypes.PlanStep{Title: "Write the patch"}
	_, failure := p.ReplanRemaining(context.Background(), "fix a typo", nil, failed, "tests failed")
	if failure == nil || failure.Recoverable {
		t.Fatalf("expected an unrecoverable depth-exceeded failure, got %+v", failure)
	}
}

func TestCriticAcceptsAGoodPlan(t *testing.T) {
	c := NewCritic(5)
	plan := &harnesstypes.Plan{Steps: []harnesstypes.PlanStep{
		{StepID: "step_1", Title: "Read", Instruction: "Open the file and read its contents"},
		{StepID: "step_2", Title: "Write", Instruction: "Apply the patch to the file"},
	}}
	if issues := c.Validate(plan); len(issues) != 0 {
		t.Fatalf("expected no issues, got %v", issues)
	}
}

func TestCriticRejectsEmptyPlan(t *testing.T) {
	c := NewCritic(5)
	issues := c.Validate(&harnesstypes.Plan{})
	if len(issues) != 1 {
		t.Fatalf("expected exactly one issue for an empty plan, got %v", issues)
	}
}

func TestCriticRejectsTooManySteps(t *testing.T) {
	c := NewCritic(1)
	plan := &harnesstypes.Plan{Steps: []harnesstypes.PlanStep{
		{StepID: "step_1", Title: "A", Instruction: "Do the first thing here"},
		{StepID: "step_2", Title: "B", Instruction: "Do the second thing here"},
	}}
	issues := c.Validate(plan)
	found := false
	for _, i := range issues {
		if i == "Too many steps (2 > 1)" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a too-many-steps issue, got %v", issues)
	}
}

func TestCriticRejectsVagueInstruction(t *testing.T) {
	c := NewCritic(5)
	plan := &harnesstypes.Plan{Steps: []harnesstypes.PlanStep{
		{StepID: "step_1", Title: "Do it", Instruction: "go"},
	}}
	issues := c.Validate(plan)
	if len(issues) == 0 {
		t.Fatal("expected an issue for a too-short instruction")
	}
}

func TestCriticRejectsDuplicateTitles(t *testing.T) {
	c := NewCritic(5)
	plan := &harnesstypes.Plan{Steps: []harnesstypes.PlanStep{
		{StepID: "step_1", Title: "Fix it", Instruction: "Apply the first fix here"},
		{StepID: "step_2", Title: "fix it ", Instruction: "Apply the second fix here"},
	}}
	issues := c.Validate(plan)
	found := false
	for _, i := range issues {
		if i == "Plan contains duplicate step titles (possible hallucination)" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a duplicate-title issue, got %v", issues)
	}
}

func TestEstimateComplexityLowForShortGoal(t *testing.T) {
	if got := EstimateComplexity("fix a typo"); got != ComplexityLow {
		t.Fatalf("expected low complexity, got %s", got)
	}
}

func TestEstimateComplexityHighForLongGoal(t *testing.T) {
	long := ""
	for i := 0; i < 101; i++ {
		long += "word "
	}
	if got := EstimateComplexity(long); got != ComplexityHigh {
		t.Fatalf("expected high complexity for a long goal, got %s", got)
	}
}

func TestEstimateComplexityHighForMultipleHighKeywords(t *testing.T) {
	if got := EstimateComplexity("refactor the architecture of the payment module"); got != ComplexityHigh {
		t.Fatalf("expected high complexity, got %s", got)
	}
}

func TestEstimateComplexityMediumForOneHighKeyword(t *testing.T) {
	if got := EstimateComplexity("optimize the request handler a little bit please"); got != ComplexityMedium {
		t.Fatalf("expected medium complexity, got %s", got)
	}
}

func TestProfileForUnknownDefaultsToMedium(t *testing.T) {
	got := ProfileFor(Complexity("bogus"))
	want := ProfileFor(ComplexityMedium)
	if got != want {
		t.Fatalf("expected medium profile as default, got %+v", got)
	}
}
