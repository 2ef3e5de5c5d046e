// Package executor runs tool calls through the policy engine and the
// tool registry, sequentially or concurrently.
package executor

import (
	"context"
	"sync"

	"github.com/haasonsaas/nexus/internal/core/events"
	"github.com/haasonsaas/nexus/internal/core/policy"
	"github.com/haasonsaas/nexus/internal/core/tools"
	"github.com/haasonsaas/nexus/pkg/harnesstypes"
)

// Pair is one tool call and the result it produced.
type Pair struct {
	Call   harnesstypes.ToolCall
	Result harnesstypes.ToolResult
}

// Result is the outcome of executing a batch of tool calls.
type Result struct {
	Pairs      []Pair
	Violations []policy.Violation
}

// AllSucceeded reports whether every call ran without a policy
// violation or tool failure.
func (r Result) AllSucceeded() bool {
	if len(r.Violations) > 0 {
		return false
	}
	for _, p := range r.Pairs {
		if !p.Result.Success {
			return false
		}
	}
	return true
}

// Executor dispatches tool calls through an optional policy Engine and
// an optional event Bus, then invokes the tool registry.
type Executor struct {
	registry *tools.Registry
	policy   *policy.Engine
	bus      *events.Bus
}

// New builds an Executor. policy and bus may be nil: a nil policy
// skips policy checks/budget recording, a nil bus skips event
// emission.
func New(registry *tools.Registry, pol *policy.Engine, bus *events.Bus) *Executor {
	return &Executor{registry: registry, policy: pol, bus: bus}
}

// Execute runs tool_calls sequentially (default) or, when concurrent
// is true and there is more than one call, in parallel. Concurrent
// mode still returns results in the original call order — each call
// owns a fixed result slot by index, not the append-as-completed order
// a naive goroutine fan-out would produce.
func (e *Executor) Execute(ctx context.Context, calls []harnesstypes.ToolCall, concurrent bool) Result {
	if concurrent && len(calls) > 1 {
		return e.executeConcurrent(ctx, calls)
	}
	return e.executeSequential(ctx, calls)
}

func (e *Executor) executeSequential(ctx context.Context, calls []harnesstypes.ToolCall) Result {
	var out Result
	for _, tc := range calls {
		if violation, ok := e.checkPolicy(tc); ok {
			out.Violations = append(out.Violations, violation)
			out.Pairs = append(out.Pairs, Pair{Call: tc, Result: violationResult(violation)})
			continue
		}
		out.Pairs = append(out.Pairs, Pair{Call: tc, Result: e.runOne(ctx, tc)})
	}
	return out
}

// executeConcurrent runs every call that clears policy checks in its
// own goroutine, writing into a fixed-index slot so the returned Pairs
// preserve the original call order regardless of completion order.
func (e *Executor) executeConcurrent(ctx context.Context, calls []harnesstypes.ToolCall) Result {
	pairs := make([]Pair, len(calls))
	var violations []policy.Violation
	var toRun []int

	for i, tc := range calls {
		if violation, ok := e.checkPolicy(tc); ok {
			violations = append(violations, violation)
			pairs[i] = Pair{Call: tc, Result: violationResult(violation)}
			continue
		}
		toRun = append(toRun, i)
	}

	var wg sync.WaitGroup
	for _, idx := range toRun {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tc := calls[i]
			pairs[i] = Pair{Call: tc, Result: e.runOne(ctx, tc)}
		}(idx)
	}
	wg.Wait()

	return Result{Pairs: pairs, Violations: violations}
}

// checkPolicy reports whether tc is blocked by the policy engine. When
// no policy engine is configured, nothing is ever blocked.
func (e *Executor) checkPolicy(tc harnesstypes.ToolCall) (policy.Violation, bool) {
	if e.policy == nil {
		return policy.Violation{}, false
	}
	v := e.policy.Check(tc.Name, tc.Arguments)
	if v == nil {
		return policy.Violation{}, false
	}
	e.emit(harnesstypes.EventPolicyViolation, map[string]any{
		"tool":    tc.Name,
		"rule":    v.Rule,
		"message": v.Message,
	})
	return *v, true
}

func violationResult(v policy.Violation) harnesstypes.ToolResult {
	return harnesstypes.ToolResult{
		Success: false,
		Error:   harnesstypes.PolicyViolationMarker + " " + v.Message,
	}
}

func (e *Executor) runOne(ctx context.Context, tc harnesstypes.ToolCall) harnesstypes.ToolResult {
	e.emit(harnesstypes.EventToolExecuting, map[string]any{"tool": tc.Name, "arguments": tc.Arguments})

	result := e.registry.Execute(ctx, tc.Name, tc.Arguments)

	if e.policy != nil {
		e.policy.Record(tc.Name)
	}

	if result.Success {
		e.emit(harnesstypes.EventToolExecuted, map[string]any{"tool": tc.Name, "output_length": len(result.Output)})
	} else {
		e.emit(harnesstypes.EventToolError, map[string]any{"tool": tc.Name, "error": result.Error})
	}
	return result
}

func (e *Executor) emit(t harnesstypes.EventType, data map[string]any) {
	if e.bus != nil {
		e.bus.Emit(t, data)
	}
}
