package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the harness's Prometheus metric set, tracking:
//   - LLM request count/duration/tokens per model
//   - Tool execution count/duration per tool
//   - Policy violations per tool and rule
//   - Checkpoint operations (snapshot/rollback/finish)
//   - Events emitted per event type
//   - Planner replans and critic rejections
//   - Context-layer compression passes
//
// Construct once at process startup with NewMetrics; all metrics
// register with Prometheus's default registry.
type Metrics struct {
	// LLMRequestCounter counts LLM requests by model and status
	// (success|error).
	LLMRequestCounter *prometheus.CounterVec

	// LLMRequestDuration measures LLM call latency in seconds by model.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed tracks token consumption by model and type
	// (prompt|completion).
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations by tool name and
	// status (success|error).
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds by
	// tool name.
	ToolExecutionDuration *prometheus.HistogramVec

	// PolicyViolationCounter counts policy engine rejections by tool
	// name and rule.
	PolicyViolationCounter *prometheus.CounterVec

	// CheckpointOperationCounter counts checkpoint engine operations by
	// kind (snapshot|rollback|finish) and status (success|error).
	CheckpointOperationCounter *prometheus.CounterVec

	// EventsEmittedCounter counts events emitted on the bus by type.
	EventsEmittedCounter *prometheus.CounterVec

	// PlanReplanCounter counts planner replan attempts by outcome
	// (accepted|rejected|depth_exceeded).
	PlanReplanCounter *prometheus.CounterVec

	// ContextCompressionCounter counts context-history compression
	// passes by level (l1|l2).
	ContextCompressionCounter *prometheus.CounterVec

	// AgentRunDuration measures a full Run/RunGoal invocation's
	// wall-clock duration in seconds.
	AgentRunDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics. Call once
// at application startup.
func NewMetrics() *Metrics {
	return &Metrics{
		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harness_llm_requests_total",
				Help: "Total number of LLM requests by model and status",
			},
			[]string{"model", "status"},
		),

		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harness_llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"model"},
		),

		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harness_llm_tokens_total",
				Help: "Total number of tokens used by model and type",
			},
			[]string{"model", "type"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harness_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harness_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool_name"},
		),

		PolicyViolationCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harness_policy_violations_total",
				Help: "Total number of policy engine rejections by tool name and rule",
			},
			[]string{"tool_name", "rule"},
		),

		CheckpointOperationCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harness_checkpoint_operations_total",
				Help: "Total number of checkpoint engine operations by kind and status",
			},
			[]string{"kind", "status"},
		),

		EventsEmittedCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harness_events_emitted_total",
				Help: "Total number of events emitted on the bus by type",
			},
			[]string{"event_type"},
		),

		PlanReplanCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harness_plan_replans_total",
				Help: "Total number of planner replan attempts by outcome",
			},
			[]string{"outcome"},
		),

		ContextCompressionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harness_context_compressions_total",
				Help: "Total number of context history compression passes by level",
			},
			[]string{"level"},
		),

		AgentRunDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harness_agent_run_duration_seconds",
				Help:    "Duration of a full Run/RunGoal invocation in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"outcome"},
		),
	}
}

// RecordLLMRequest records metrics for one LLM call.
func (m *Metrics) RecordLLMRequest(model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestCounter.WithLabelValues(model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
}

// RecordToolExecution records metrics for one tool execution.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordPolicyViolation records a policy engine rejection.
func (m *Metrics) RecordPolicyViolation(toolName, rule string) {
	m.PolicyViolationCounter.WithLabelValues(toolName, rule).Inc()
}

// RecordCheckpointOperation records a checkpoint engine operation.
func (m *Metrics) RecordCheckpointOperation(kind, status string) {
	m.CheckpointOperationCounter.WithLabelValues(kind, status).Inc()
}

// RecordEventEmitted records one event dispatched on the bus.
func (m *Metrics) RecordEventEmitted(eventType string) {
	m.EventsEmittedCounter.WithLabelValues(eventType).Inc()
}

// RecordPlanReplan records one planner replan attempt.
func (m *Metrics) RecordPlanReplan(outcome string) {
	m.PlanReplanCounter.WithLabelValues(outcome).Inc()
}

// RecordContextCompression records one history-layer compression pass.
func (m *Metrics) RecordContextCompression(level string) {
	m.ContextCompressionCounter.WithLabelValues(level).Inc()
}

// RecordAgentRun records a completed Run/RunGoal invocation.
func (m *Metrics) RecordAgentRun(outcome string, durationSeconds float64) {
	m.AgentRunDuration.WithLabelValues(outcome).Observe(durationSeconds)
}
