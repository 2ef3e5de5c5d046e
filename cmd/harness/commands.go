// commands.go contains the cobra command definitions and flag
// configuration for the harness CLI.
package main

import (
	"github.com/spf13/cobra"

	"github.com/haasonsaas/nexus/internal/core/llm"
	"github.com/haasonsaas/nexus/internal/core/policy"
)

// runOptions collects the "run" command's flags.
type runOptions struct {
	profile    string
	policyMode string
	maxSteps   int
	planner    bool
	model      string
	dialect    string
	baseURL    string
	apiKey     string
	projectDir string
}

// buildRunCmd creates the "run" command that drives a single goal
// through the orchestrator.
func buildRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [goal]",
		Short: "Run a goal through the agent harness",
		Long: `Run drives the given goal through the orchestrator's ReAct loop:
assemble context, call the LLM, reason about the response, execute
tools under policy guardrails, repeat until the model responds with
text or the step limit is reached.

With --planner, the goal is first decomposed into a validated plan and
executed step by step, replanning on a step failure up to the
complexity profile's replan-depth budget.`,
		Example: `  # Run against a local Ollama model
  harness run "add input validation to the signup handler" --model llama3 --dialect ollama

  # Run with the planner and a stricter policy preset
  harness run "migrate the config loader to YAML" --planner --policy-mode safe`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGoal(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.profile, "profile", "", "Named backend profile to source default model/URL/API key from (falls back to the built-in local-Ollama profile if unset or unrecognized)")
	cmd.Flags().StringVar(&opts.policyMode, "policy-mode", string(policy.ModeBalanced), "Policy preset: safe|balanced|full")
	cmd.Flags().IntVar(&opts.maxSteps, "max-steps", 50, "Hard cap on reasoner steps before the loop force-stops")
	cmd.Flags().BoolVar(&opts.planner, "planner", false, "Decompose the goal into a plan before executing")
	cmd.Flags().StringVar(&opts.model, "model", "", "Model name sent with every LLM request")
	cmd.Flags().StringVar(&opts.dialect, "dialect", string(llm.DialectOllama), "LLM transport dialect: openai|ollama")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "Override the backend base URL (HARNESS_BASE_URL env var also works)")
	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "API key for an OpenAI-compatible backend (HARNESS_API_KEY env var also works)")
	cmd.Flags().StringVar(&opts.projectDir, "project-dir", ".", "Project root the checkpoint engine and file tools operate in")

	return cmd
}
