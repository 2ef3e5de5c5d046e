package planner

import "strings"

// Complexity is a goal's estimated planning difficulty, tuning how
// many steps and per-step agent-loop iterations it is allotted.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Profile is the set of planning parameters associated with a
// Complexity level.
type Profile struct {
	MaxSteps      int
	MaxAgentSteps int
	ReplanDepth   int
}

var profiles = map[Complexity]Profile{
	ComplexityLow:    {MaxSteps: 3, MaxAgentSteps: 8, ReplanDepth: 0},
	ComplexityMedium: {MaxSteps: 5, MaxAgentSteps: 12, ReplanDepth: 1},
	ComplexityHigh:   {MaxSteps: 8, MaxAgentSteps: 15, ReplanDepth: 2},
}

// ProfileFor returns the planning profile for c, defaulting to the
// medium profile for an unrecognized value.
func ProfileFor(c Complexity) Profile {
	if p, ok := profiles[c]; ok {
		return p
	}
	return profiles[ComplexityMedium]
}

var highComplexityKeywords = []string{
	"refactor", "migrate", "architecture", "redesign", "overhaul",
	"integrate", "multi-file", "multiple files", "full test suite",
	"performance", "optimize", "security audit", "database schema",
}

var mediumComplexityKeywords = []string{
	"implement", "feature", "add", "create", "build", "modify",
	"update", "fix bug", "debug", "test", "review", "analyze",
}

// EstimateComplexity estimates a goal's complexity from its text,
// purely lexically: word count and keyword hits, no LLM call.
func EstimateComplexity(goal string) Complexity {
	lower := strings.ToLower(goal)
	wordCount := len(strings.Fields(goal))

	if wordCount > 100 {
		return ComplexityHigh
	}

	highCount := countMatches(lower, highComplexityKeywords)
	if highCount >= 2 {
		return ComplexityHigh
	}

	medCount := countMatches(lower, mediumComplexityKeywords)
	if medCount >= 2 || highCount >= 1 {
		return ComplexityMedium
	}

	if wordCount < 15 {
		return ComplexityLow
	}

	return ComplexityMedium
}

func countMatches(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}
