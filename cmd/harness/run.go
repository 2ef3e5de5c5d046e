// run.go wires one CLI invocation's dependencies together: the LLM
// transport, builtin tool registry, policy engine, middleware
// pipeline, checkpoint engine, and orchestrator.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/nexus/internal/core/checkpoint"
	"github.com/haasonsaas/nexus/internal/core/config"
	"github.com/haasonsaas/nexus/internal/core/events"
	"github.com/haasonsaas/nexus/internal/core/llm"
	"github.com/haasonsaas/nexus/internal/core/middleware"
	obs "github.com/haasonsaas/nexus/internal/core/observability"
	"github.com/haasonsaas/nexus/internal/core/orchestrator"
	"github.com/haasonsaas/nexus/internal/core/planner"
	"github.com/haasonsaas/nexus/internal/core/policy"
	"github.com/haasonsaas/nexus/internal/core/tools"
	"github.com/haasonsaas/nexus/internal/core/tools/builtin"
	"github.com/haasonsaas/nexus/pkg/harnesstypes"
)

func runGoal(cmd *cobra.Command, goal string, opts runOptions) error {
	ctx := cmd.Context()

	logger := obs.NewLogger(obs.LogConfig{Level: "info", Format: "json"})
	metrics := obs.NewMetrics()

	hc := config.NewHarnessConfig()
	if opts.profile != "" {
		hc.Profile = opts.profile
	}
	profile := hc.ActiveProfile()

	apiKey := opts.apiKey
	if apiKey == "" {
		apiKey = os.Getenv("HARNESS_API_KEY")
	}
	if apiKey == "" {
		apiKey = profile.APIKey
	}
	baseURL := opts.baseURL
	if baseURL == "" {
		baseURL = os.Getenv("HARNESS_BASE_URL")
	}
	if baseURL == "" {
		baseURL = profile.URL
	}
	model := opts.model
	if model == "" {
		model = profile.ModelForTier(0)
	}

	client := llm.New(llm.Config{
		Dialect: llm.Dialect(opts.dialect),
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
	})

	registry := tools.NewRegistry()
	builtin.RegisterAll(registry)

	hc.Policy = policy.NewSpec(policy.Mode(opts.policyMode))
	polEngine := policy.New(hc.Policy)
	polEngine.SetProjectRoot(opts.projectDir)

	bus := events.New()
	bus.SubscribeAll(func(ev harnesstypes.AgentEvent) {
		metrics.RecordEventEmitted(string(ev.Type))
		logger.WithContext(ctx).Info(ctx, "event", "type", string(ev.Type))
	})

	recovery := middleware.NewErrorRecovery(registry.Names(), nil)
	optimizer := middleware.NewPromptOptimizer()

	pipeline := middleware.NewPipeline(func(ctx context.Context, req middleware.Request) harnesstypes.LLMResponse {
		resp, err := client.Chat(ctx, req)
		if err != nil {
			return harnesstypes.LLMResponse{FinishReason: "error", Content: err.Error()}
		}
		return resp
	}).Use(recovery).Use(optimizer)

	var pln *planner.Planner
	if opts.planner {
		pln = planner.New(func(ctx context.Context, req middleware.Request) harnesstypes.LLMResponse {
			return pipeline.Execute(ctx, req)
		}, model, harnesstypes.MaxPlanSteps)
	}

	cfg := orchestrator.DefaultConfig()
	cfg.Model = model
	cfg.MaxSteps = opts.maxSteps
	cfg.UsePlanner = opts.planner

	ckpt := checkpoint.New(opts.projectDir, hasGitRepo(opts.projectDir))
	logger.Info(ctx, "checkpoint begin", "result", ckpt.Begin(ctx))
	metrics.RecordCheckpointOperation("begin", "success")

	orc := orchestrator.New(cfg, registry, polEngine, bus, pipeline, pln, ckpt)

	var result string
	if opts.planner {
		result = orc.RunGoal(ctx, goal, "")
	} else {
		result = orc.Run(ctx, goal)
	}

	logger.Info(ctx, "checkpoint finish", "result", ckpt.Finish(ctx, true))
	metrics.RecordCheckpointOperation("finish", "success")

	fmt.Fprintln(cmd.OutOrStdout(), result)
	return nil
}

func hasGitRepo(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}
