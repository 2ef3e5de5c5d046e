// Package observability provides the harness's structured logging and
// Prometheus metrics, wired the way the teacher repo wires its own
// logging.go/metrics.go pair, adapted from per-request/session/channel
// correlation to the harness's own goal/run/step correlation.
package observability

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// Logger provides structured logging with goal/run/step correlation and
// redaction of sensitive data pulled into tool output or LLM payloads
// from environment variables or files.
//
// Built on log/slog:
//   - Configurable log levels (DEBUG, INFO, WARN, ERROR)
//   - JSON output for production, text for development
//   - Automatic goal/run/step correlation from context
//   - Redaction of API keys, tokens, and passwords in log output
type Logger struct {
	logger  *slog.Logger
	config  LogConfig
	redacts []*regexp.Regexp
}

// LogConfig configures the logging behavior.
type LogConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error"
	Level string

	// Format specifies output format: "json" or "text"
	Format string

	// Output is the writer for log output (defaults to os.Stdout)
	Output io.Writer

	// AddSource includes file and line number in log records
	AddSource bool

	// RedactPatterns are additional regex patterns for sensitive data
	// redaction, appended to DefaultRedactPatterns
	RedactPatterns []string
}

// ContextKey is the type for context keys used in logging correlation.
type ContextKey string

const (
	// GoalIDKey is the context key for the orchestrator goal ID.
	GoalIDKey ContextKey = "goal_id"

	// RunIDKey is the context key for a single Run/RunGoal invocation.
	RunIDKey ContextKey = "run_id"

	// StepIDKey is the context key for the current plan step ID.
	StepIDKey ContextKey = "step_id"
)

// DefaultRedactPatterns contains regex patterns for common sensitive
// data that tool output or LLM payloads may surface (e.g. a shell tool
// that cats a .env file, or a model that echoes a credential back).
var DefaultRedactPatterns = []string{
	`(?i)(api[_-]?key|apikey)[\s:=]+["\']?([a-zA-Z0-9_\-]{16,})["\']?`,
	`(?i)(bearer|token)[\s:]+([a-zA-Z0-9_\-\.]{16,})`,
	`(?i)(secret|password|passwd|pwd)[\s:=]+["\']?([^\s"']{8,})["\']?`,
	`sk-ant-[a-zA-Z0-9_-]{95,}`,
	`sk-[a-zA-Z0-9]{48,}`,
	`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`,
	`(?i)(secret|key|token)[\s:=]+["\']?([a-fA-F0-9]{32,})["\']?`,
}

// NewLogger creates a structured logger with the given configuration.
// config.Output defaults to os.Stdout; config.Level defaults to "info";
// config.Format defaults to "json".
func NewLogger(config LogConfig) *Logger {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Level == "" {
		config.Level = "info"
	}
	if config.Format == "" {
		config.Format = "json"
	}

	opts := &slog.HandlerOptions{
		Level:     LogLevelFromString(config.Level),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if config.Format == "json" {
		handler = slog.NewJSONHandler(config.Output, opts)
	} else {
		handler = slog.NewTextHandler(config.Output, opts)
	}

	redacts := make([]*regexp.Regexp, 0, len(DefaultRedactPatterns)+len(config.RedactPatterns))
	for _, pattern := range append(append([]string{}, DefaultRedactPatterns...), config.RedactPatterns...) {
		if re, err := regexp.Compile(pattern); err == nil {
			redacts = append(redacts, re)
		}
	}

	return &Logger{logger: slog.New(handler), config: config, redacts: redacts}
}

// WithContext returns a new logger carrying goal_id/run_id/step_id
// fields extracted from ctx onto every subsequent log record.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	attrs := make([]any, 0, 3)

	if goalID, ok := ctx.Value(GoalIDKey).(string); ok && goalID != "" {
		attrs = append(attrs, slog.String("goal_id", goalID))
	}
	if runID, ok := ctx.Value(RunIDKey).(string); ok && runID != "" {
		attrs = append(attrs, slog.String("run_id", runID))
	}
	if stepID, ok := ctx.Value(StepIDKey).(string); ok && stepID != "" {
		attrs = append(attrs, slog.String("step_id", stepID))
	}

	if len(attrs) == 0 {
		return l
	}
	return &Logger{logger: l.logger.With(slog.Group("context", attrs...)), config: l.config, redacts: l.redacts}
}

// Debug logs a debug-level message with optional key-value pairs.
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, args...)
}

// Info logs an info-level message with optional key-value pairs.
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelInfo, msg, args...)
}

// Warn logs a warning-level message with optional key-value pairs.
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args...)
}

// Error logs an error-level message with optional key-value pairs.
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelError, msg, args...)
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	msg = l.redactString(msg)

	redactedArgs := make([]any, len(args))
	for i, arg := range args {
		redactedArgs[i] = l.redactValue(arg)
	}

	attrs := make([]any, 0, len(redactedArgs)+6)
	if goalID, ok := ctx.Value(GoalIDKey).(string); ok && goalID != "" {
		attrs = append(attrs, "goal_id", goalID)
	}
	if runID, ok := ctx.Value(RunIDKey).(string); ok && runID != "" {
		attrs = append(attrs, "run_id", runID)
	}
	if stepID, ok := ctx.Value(StepIDKey).(string); ok && stepID != "" {
		attrs = append(attrs, "step_id", stepID)
	}
	attrs = append(attrs, redactedArgs...)

	l.logger.Log(ctx, level, msg, attrs...)
}

func (l *Logger) redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return l.redactString(val)
	case error:
		return l.redactString(val.Error())
	case []byte:
		return l.redactString(string(val))
	case map[string]any:
		return l.redactMap(val)
	default:
		if b, err := json.Marshal(v); err == nil {
			return l.redactString(string(b))
		}
		return v
	}
}

func (l *Logger) redactString(s string) string {
	for _, re := range l.redacts {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

func (l *Logger) redactMap(m map[string]any) map[string]any {
	sensitiveKeys := map[string]bool{
		"password": true, "passwd": true, "secret": true, "token": true,
		"api_key": true, "apikey": true, "private_key": true,
		"privatekey": true, "auth": true, "authorization": true,
	}

	result := make(map[string]any, len(m))
	for k, v := range m {
		lowerKey := strings.ToLower(strings.ReplaceAll(k, "-", "_"))
		if sensitiveKeys[lowerKey] {
			result[k] = "[REDACTED]"
		} else {
			result[k] = l.redactValue(v)
		}
	}
	return result
}

// WithFields returns a new logger with the given fields attached to
// every subsequent log record.
func (l *Logger) WithFields(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...), config: l.config, redacts: l.redacts}
}

// AddGoalID adds a goal ID to the context for log correlation.
func AddGoalID(ctx context.Context, goalID string) context.Context {
	return context.WithValue(ctx, GoalIDKey, goalID)
}

// AddRunID adds a run ID to the context for log correlation.
func AddRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// AddStepID adds a plan step ID to the context for log correlation.
func AddStepID(ctx context.Context, stepID string) context.Context {
	return context.WithValue(ctx, StepIDKey, stepID)
}

// LogLevelFromString converts a string to a slog.Level, defaulting to
// LevelInfo for an unrecognized value.
func LogLevelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
