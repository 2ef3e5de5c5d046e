// Package orchestrator wires the context assembler, LLM pipeline,
// reasoner, and tool executor into the ReAct control loop:
//
//	context -> LLM -> reason -> act -> loop
//
// The Orchestrator owns no business logic of its own; it assembles
// the pieces built by the other internal/core packages and emits
// events for an external UI to observe.
package orchestrator

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/nexus/internal/core/checkpoint"
	agentcontext "github.com/haasonsaas/nexus/internal/core/context"
	"github.com/haasonsaas/nexus/internal/core/events"
	"github.com/haasonsaas/nexus/internal/core/executor"
	"github.com/haasonsaas/nexus/internal/core/middleware"
	"github.com/haasonsaas/nexus/internal/core/planner"
	"github.com/haasonsaas/nexus/internal/core/policy"
	"github.com/haasonsaas/nexus/internal/core/reasoner"
	"github.com/haasonsaas/nexus/internal/core/tools"
	"github.com/haasonsaas/nexus/pkg/harnesstypes"
)

// snapshotEveryNWrites is the write-class tool count that triggers an
// automatic checkpoint snapshot, per spec §4.9(ii).
const snapshotEveryNWrites = 5

// testToolName is the tool name treated as "test-class" for
// rollback-on-failure purposes (spec §4.9(iii)).
const testToolName = "run_tests"

// Config tunes the orchestrator's loop behavior.
type Config struct {
	// Model is the model name attached to every LLM request.
	Model string

	// MaxSteps is the hard cap on reasoner steps before the loop
	// force-stops with an error. Default: 50.
	MaxSteps int

	// ContextBudget is the estimated-token budget handed to the
	// context assembler (0 = unlimited).
	ContextBudget int

	// ConcurrentTools allows independent tool calls within one step
	// to run in parallel.
	ConcurrentTools bool

	// UsePlanner runs RunGoal's plan -> validate -> execute-per-step
	// flow instead of a single free-form direct loop.
	UsePlanner bool
}

// DefaultConfig returns the orchestrator's default tuning.
func DefaultConfig() Config {
	return Config{MaxSteps: 50, ContextBudget: 0, ConcurrentTools: true}
}

// Orchestrator runs the ReAct loop for a goal.
type Orchestrator struct {
	cfg      Config
	registry *tools.Registry
	policy   *policy.Engine
	bus      *events.Bus
	exec     *executor.Executor
	pipeline *middleware.Pipeline
	planner  *planner.Planner
	critic   *planner.Critic
	ckpt     *checkpoint.Engine

	cancelled      bool
	writeCount     int
	priorToolError string
}

// New builds an Orchestrator. policy, bus, pln, and ckpt may be nil —
// a nil ckpt simply means the goal runs with no mid-run snapshotting
// or rollback.
func New(cfg Config, registry *tools.Registry, pol *policy.Engine, bus *events.Bus, pipeline *middleware.Pipeline, pln *planner.Planner, ckpt *checkpoint.Engine) *Orchestrator {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 50
	}
	if bus == nil {
		bus = events.New()
	}
	return &Orchestrator{
		cfg:      cfg,
		registry: registry,
		policy:   pol,
		bus:      bus,
		exec:     executor.New(registry, pol, bus),
		pipeline: pipeline,
		planner:  pln,
		critic:   planner.NewCritic(cfg.MaxSteps),
		ckpt:     ckpt,
	}
}

// Cancel requests the running loop stop at its next safe point.
func (o *Orchestrator) Cancel() { o.cancelled = true }

// Run executes a single free-form goal through the direct ReAct loop,
// returning the agent's final text response.
func (o *Orchestrator) Run(ctx context.Context, goal string) string {
	return o.runDirect(ctx, goal, agentcontext.New())
}

// RunGoal runs the planner-first flow: create a plan, validate it with
// the critic, and execute each step as its own direct sub-run,
// replanning the remaining work on a step failure up to the plan's
// replan-depth budget. Falls through to a single direct run over the
// whole goal when planning is disabled, rejected, or fails outright.
func (o *Orchestrator) RunGoal(ctx context.Context, goal, projectContext string) string {
	if !o.cfg.UsePlanner || o.planner == nil {
		return o.Run(ctx, goal)
	}

	plan, failure := o.planner.CreatePlan(ctx, goal, projectContext)
	if failure != nil || len(o.critic.Validate(plan)) > 0 {
		return o.Run(ctx, goal)
	}

	var completed []harnesstypes.PlanStep
	finalResponse := ""
	for i := 0; i < len(plan.Steps); i++ {
		if o.cancelled {
			return "Agent cancelled"
		}
		step := plan.Steps[i]
		stepCtx := agentcontext.New()
		stepCtx.System.ProjectContext = projectContext
		response := o.runDirect(ctx, step.ToPrompt(), stepCtx)

		if isStepFailure(response) {
			revised, replanFailure := o.planner.ReplanRemaining(ctx, goal, completed, step, response)
			if replanFailure != nil {
				finalResponse = response
				break
			}
			if issues := o.critic.Validate(revised); len(issues) > 0 {
				finalResponse = response
				break
			}
			plan = revised
			i = -1
			continue
		}

		completed = append(completed, step)
		finalResponse = response
	}
	return finalResponse
}

func isStepFailure(response string) bool {
	if response == "" {
		return true
	}
	for _, marker := range []string{harnesstypes.ToolErrorMarker, "Agent encountered an error", "Agent error:"} {
		if strings.Contains(response, marker) {
			return true
		}
	}
	return false
}

// runDirect drives one ReAct loop to completion: build context, call
// the LLM, reason about the response, act, repeat.
func (o *Orchestrator) runDirect(ctx context.Context, goal string, actx *agentcontext.AgentContext) string {
	o.cancelled = false
	o.priorToolError = ""

	if o.policy != nil {
		o.policy.BeginGoal()
	}

	if actx.System.ToolsDescription == "" && o.registry != nil {
		actx.System.ToolsDescription = o.registry.CompactPromptDescription()
	}
	actx.AddUserMessage(goal)

	o.emit(harnesstypes.EventAgentStarted, map[string]any{"goal": goal})

	finalResponse := ""
	stepCount := 0

loop:
	for !o.cancelled {
		select {
		case <-ctx.Done():
			o.cancelled = true
			break loop
		default:
		}

		stepCount++

		messages := actx.ToMessages(o.cfg.ContextBudget)
		req := middleware.Request{Model: o.cfg.Model, Messages: messages, PriorToolError: o.priorToolError}
		o.priorToolError = ""

		start := time.Now()
		resp := o.pipeline.Execute(ctx, req)
		resp.LatencyMS = float64(time.Since(start).Milliseconds())

		o.emit(harnesstypes.EventLLMResponse, map[string]any{
			"model":          resp.Model,
			"has_tool_calls": resp.HasToolCalls(),
			"content_length": len(resp.Content),
			"latency_ms":     resp.LatencyMS,
		})

		if o.policy != nil && resp.Usage.TotalTokens > 0 {
			o.policy.RecordUsage(resp.Usage)
			if msg := o.policy.CheckTokenBudget(); msg != "" {
				finalResponse = msg
				break
			}
		}

		decision := reasoner.Decide(resp, stepCount, o.cfg.MaxSteps)

		o.emit(harnesstypes.EventReasonerDecision, map[string]any{
			"action": string(decision.Action),
			"step":   stepCount,
		})

		if decision.Thinking != "" {
			o.emit(harnesstypes.EventLLMThinking, map[string]any{"thinking": decision.Thinking})
		}

		switch decision.Action {
		case reasoner.ActionRespond:
			finalResponse = decision.ResponseText
			actx.AddAssistantMessage(decision.ResponseText)
			break loop

		case reasoner.ActionExecuteTools:
			actx.AddAssistantMessage(resp.Content)
			actx.CycleWorking()

			result := o.exec.Execute(ctx, decision.ToolCalls, o.cfg.ConcurrentTools)
			for _, pair := range result.Pairs {
				actx.AddToolResult(pair.Call.Name, pair.Result.ToMessage())
			}
			o.checkpointTools(ctx, result.Pairs, stepCount, actx)

		case reasoner.ActionError:
			finalResponse = decision.Error
			if finalResponse == "" {
				finalResponse = "Agent encountered an error"
			}
			o.emit(harnesstypes.EventAgentError, map[string]any{"error": finalResponse})
			break loop

		default:
			actx.AddAssistantMessage(resp.Content)
		}
	}

	if o.cancelled && finalResponse == "" {
		finalResponse = "Agent cancelled"
	}

	doneType := harnesstypes.EventAgentDone
	if o.cancelled {
		doneType = harnesstypes.EventAgentCancelled
	}
	o.emit(doneType, map[string]any{"response": truncate(finalResponse, 500), "steps": stepCount})

	return finalResponse
}

// checkpointTools implements spec §4.9(ii)-(iii): snapshot every 5
// successful write-class tool calls, and roll back the most recent
// snapshot (telling the model so via a synthetic user message) after a
// failing test-class tool call.
func (o *Orchestrator) checkpointTools(ctx context.Context, pairs []executor.Pair, stepCount int, actx *agentcontext.AgentContext) {
	o.trackToolErrors(pairs)

	if o.ckpt == nil {
		return
	}
	for _, pair := range pairs {
		if pair.Result.Success && policy.CategoryOf(pair.Call.Name) == "write" {
			o.writeCount++
			if o.writeCount >= snapshotEveryNWrites {
				desc := "after " + strconv.Itoa(o.writeCount) + " writes (step " + strconv.Itoa(stepCount) + ")"
				o.ckpt.Snapshot(ctx, desc)
				o.writeCount = 0
			}
			continue
		}
		if !pair.Result.Success && pair.Call.Name == testToolName && len(o.ckpt.Snapshots()) > 0 {
			o.ckpt.Rollback(ctx, nil)
			actx.AddUserMessage("[ROLLBACK] Changes have been rolled back because the test run failed.")
		}
	}
}

// trackToolErrors remembers the last tool-execution failure whose
// error text the middleware's ErrorClassifier knows how to classify
// (an unknown-tool or missing-argument message), so the next LLM
// request carries it as PriorToolError and the recovery middleware
// gets a real, live error to act on instead of only the synthetic
// messages it builds from an empty or malformed response.
func (o *Orchestrator) trackToolErrors(pairs []executor.Pair) {
	for _, pair := range pairs {
		if !pair.Result.Success && isClassifiableToolError(pair.Result.Error) {
			o.priorToolError = pair.Result.Error
		}
	}
}

func isClassifiableToolError(errText string) bool {
	if strings.Contains(errText, "Unknown tool") {
		return true
	}
	lower := strings.ToLower(errText)
	return strings.Contains(lower, "missing") && strings.Contains(lower, "arg")
}

func (o *Orchestrator) emit(t harnesstypes.EventType, data map[string]any) {
	if o.bus != nil {
		o.bus.Emit(t, data)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
