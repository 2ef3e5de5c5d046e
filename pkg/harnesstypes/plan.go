package harnesstypes

import (
	"strconv"
	"time"
)

// MaxPlanSteps is the hard cap on steps in any Plan, regardless of
// complexity profile.
const MaxPlanSteps = 8

// PlanStep is one verifiable unit of a decomposed goal.
type PlanStep struct {
	StepID           string
	Title            string
	Instruction      string
	SuccessCriteria  []string
	MaxAgentSteps    int
}

// ToPrompt renders a step as the free-form instruction handed to the
// agent loop when executing just that step.
func (s PlanStep) ToPrompt() string {
	criteria := "  - Step completes without errors"
	if len(s.SuccessCriteria) > 0 {
		criteria = ""
		for i, c := range s.SuccessCriteria {
			if i > 0 {
				criteria += "\n"
			}
			criteria += "  - " + c
		}
	}
	return "## Step: " + s.Title + "\n\n" + s.Instruction + "\n\nSuccess criteria:\n" + criteria +
		"\n\nFocus ONLY on this step. Do not work on other steps."
}

// Plan is a structured decomposition of a goal into steps.
type Plan struct {
	Goal        string
	Steps       []PlanStep
	Assumptions []string
}

// Summary renders a short human-readable listing of the plan's steps.
func (p Plan) Summary() string {
	out := "Plan (" + strconv.Itoa(len(p.Steps)) + " steps):"
	for i, s := range p.Steps {
		out += "\n  " + strconv.Itoa(i+1) + ". " + s.Title
	}
	return out
}

// StepResult is the outcome of executing a single plan step.
type StepResult struct {
	StepID   string
	Success  bool
	Summary  string
	Attempts int
}

// PlanFailure describes why planning (or replanning) failed.
type PlanFailure struct {
	Reason      string
	RawOutput   string
	Recoverable bool
}

func (f PlanFailure) Error() string { return f.Reason }

// Snapshot is an append-only mark on the checkpoint engine's work
// branch, addressed only by its index in the session's snapshot list.
type Snapshot struct {
	CommitHash  string
	Description string
	Timestamp   time.Time
}

// BudgetUsage tracks resource consumption within a single goal
// execution. Reset at goal start.
type BudgetUsage struct {
	FileWrites    int
	ShellCommands int
	GitCommits    int
	ExternalCalls int
	ToolCalls     map[string]int
	StartTime     time.Time
	TokenUsage    int
}

// NewBudgetUsage returns a freshly reset BudgetUsage.
func NewBudgetUsage() *BudgetUsage {
	return &BudgetUsage{ToolCalls: make(map[string]int), StartTime: time.Now()}
}

// Record accounts one completed tool call toward the relevant budget
// categories.
func (b *BudgetUsage) Record(toolName, category string) {
	if b.ToolCalls == nil {
		b.ToolCalls = make(map[string]int)
	}
	b.ToolCalls[toolName]++
	switch category {
	case "write":
		b.FileWrites++
	case "execute":
		b.ShellCommands++
	case "git":
		if toolName == "git_commit" {
			b.GitCommits++
		}
	case "external":
		b.ExternalCalls++
	}
}

// Summary renders a short human-readable usage line.
func (b *BudgetUsage) Summary() string {
	elapsed := time.Since(b.StartTime)
	parts := ""
	add := func(label string, n int) {
		if n == 0 {
			return
		}
		if parts != "" {
			parts += ", "
		}
		parts += label + ":" + strconv.Itoa(n)
	}
	add("writes", b.FileWrites)
	add("shell", b.ShellCommands)
	add("commits", b.GitCommits)
	add("external", b.ExternalCalls)
	total := 0
	for _, n := range b.ToolCalls {
		total += n
	}
	return "tools:" + strconv.Itoa(total) + " (" + parts + ") in " + elapsed.Round(time.Second).String()
}
