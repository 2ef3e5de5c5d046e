// Package main provides the CLI entry point for the harness: a single
// binary that drives a goal through the orchestrator's ReAct loop
// against a local or OpenAI-compatible LLM backend.
//
// # Basic Usage
//
// Run a goal against a local Ollama model:
//
//	harness run "fix the failing test in pkg/foo" --model llama3 --dialect ollama
//
// Run with the planner enabled and a stricter policy preset:
//
//	harness run "migrate the config loader to YAML" --planner --policy-mode safe
//
// # Environment Variables
//
//   - HARNESS_API_KEY: API key for an OpenAI-compatible backend
//   - HARNESS_BASE_URL: Base URL override for either dialect
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "harness",
		Short: "harness - a ReAct control plane for weak/local LLMs",
		Long: `harness drives a weak or medium local LLM through multi-step
tool-using work with transactional safety and automatic recovery.

It assembles a layered context window, runs an LLM middleware pipeline
(error recovery, prompt optimization), reasons about the model's
response, executes tools under policy guardrails, and checkpoints
filesystem state so a failed run can roll back.`,
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildRunCmd())
	return rootCmd
}
