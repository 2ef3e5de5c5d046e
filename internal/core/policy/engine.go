package policy

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/haasonsaas/nexus/pkg/harnesstypes"
)

const maxDeniedCacheEntries = 256

type deniedPattern struct {
	expanded string
	parent   string
	raw      string
}

// Engine evaluates tool calls against an active Spec, and tracks
// per-goal budget usage.
//
//	e := policy.New(spec)
//	e.BeginGoal()
//	if v := e.Check(name, args); v != nil { return asFailedResult(v) }
//	e.Record(name)
type Engine struct {
	spec        Spec
	budget      *harnesstypes.BudgetUsage
	projectRoot string
	tokenUsage  int

	compiledDenied []deniedPattern
	deniedCache    map[string]bool
}

// New constructs an Engine for the given Spec.
func New(spec Spec) *Engine {
	e := &Engine{spec: spec, budget: harnesstypes.NewBudgetUsage()}
	e.compileDeniedPatterns()
	return e
}

func (e *Engine) compileDeniedPatterns() {
	e.compiledDenied = e.compiledDenied[:0]
	for _, pattern := range e.spec.DeniedPaths {
		expanded := expandUser(pattern)
		parent := strings.TrimSuffix(strings.TrimSuffix(expanded, "/*"), "*")
		e.compiledDenied = append(e.compiledDenied, deniedPattern{expanded: expanded, parent: parent, raw: pattern})
	}
	e.deniedCache = make(map[string]bool)
}

func expandUser(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return home + p[1:]
	}
	return p
}

// SetProjectRoot sets the project root for write-path restriction
// checks and invalidates the denied-path decision cache.
func (e *Engine) SetProjectRoot(root string) {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	e.projectRoot = abs
	e.deniedCache = make(map[string]bool)
}

// BeginGoal resets budget and token usage for a new goal.
func (e *Engine) BeginGoal() {
	e.budget = harnesstypes.NewBudgetUsage()
	e.tokenUsage = 0
}

// Budget returns the engine's current BudgetUsage.
func (e *Engine) Budget() *harnesstypes.BudgetUsage { return e.budget }

// RecordUsage accumulates token usage from an LLM response.
func (e *Engine) RecordUsage(usage harnesstypes.Usage) {
	e.tokenUsage += usage.TotalTokens
}

// CheckTokenBudget returns a human-readable reason if the per-goal
// token budget has been met or exceeded, else "".
func (e *Engine) CheckTokenBudget() string {
	limit := e.spec.MaxTokensPerGoal
	if limit > 0 && e.tokenUsage >= limit {
		return "Token budget exceeded: " + strconv.Itoa(e.tokenUsage) + "/" + strconv.Itoa(limit) +
			" tokens used. Goal terminated to prevent runaway costs."
	}
	return ""
}

// Check evaluates a tool call against the active spec. Returns nil if
// the call is allowed.
func (e *Engine) Check(toolName string, args map[string]any) *Violation {
	category := CategoryOf(toolName)

	for _, disabled := range e.spec.DisabledTools {
		if disabled == toolName {
			return &Violation{
				Rule:     "disabled_tool",
				Message:  "Tool '" + toolName + "' is disabled by policy.",
				Tool:     toolName,
				Category: category,
			}
		}
	}

	if v := e.checkBudget(toolName, category); v != nil {
		return v
	}

	switch toolName {
	case "read_file", "write_file", "edit_file", "list_dir", "search_files":
		path, _ := args["path"].(string)
		if path != "" {
			var v *Violation
			if toolName == "write_file" || toolName == "edit_file" {
				v = e.checkWritePath(path, toolName, category)
			} else {
				v = e.checkReadPath(path, toolName, category)
			}
			if v != nil {
				return v
			}
		}
	case "shell":
		command, _ := args["command"].(string)
		if v := e.checkShell(command, toolName, category); v != nil {
			return v
		}
	}

	return nil
}

// Record accounts a successfully executed tool call toward budgets.
func (e *Engine) Record(toolName string) {
	e.budget.Record(toolName, CategoryOf(toolName))
}

func (e *Engine) checkBudget(toolName, category string) *Violation {
	s := e.spec
	switch {
	case category == "write" && s.MaxFileWrites > 0 && e.budget.FileWrites >= s.MaxFileWrites:
		return &Violation{Rule: "budget_file_writes",
			Message:  "File write budget exhausted (" + strconv.Itoa(s.MaxFileWrites) + "). Summarize what you've done so far.",
			Tool:     toolName, Category: category}
	case category == "execute" && s.MaxShellCommands > 0 && e.budget.ShellCommands >= s.MaxShellCommands:
		return &Violation{Rule: "budget_shell",
			Message:  "Shell command budget exhausted (" + strconv.Itoa(s.MaxShellCommands) + ").",
			Tool:     toolName, Category: category}
	case toolName == "git_commit" && s.MaxGitCommits > 0 && e.budget.GitCommits >= s.MaxGitCommits:
		return &Violation{Rule: "budget_git_commits",
			Message:  "Git commit budget exhausted (" + strconv.Itoa(s.MaxGitCommits) + ").",
			Tool:     toolName, Category: category}
	case category == "external" && s.MaxExternalCalls > 0 && e.budget.ExternalCalls >= s.MaxExternalCalls:
		return &Violation{Rule: "budget_external",
			Message:  "External agent call budget exhausted (" + strconv.Itoa(s.MaxExternalCalls) + ").",
			Tool:     toolName, Category: category}
	}
	return nil
}

func (e *Engine) checkDenied(pathStr, path, toolName, category string) *Violation {
	if cached, ok := e.deniedCache[pathStr]; ok && !cached {
		return nil
	}

	base := filepath.Base(pathStr)
	for _, d := range e.compiledDenied {
		if fnmatch(pathStr, d.expanded) ||
			pathStr == d.parent ||
			strings.HasPrefix(pathStr, d.parent+"/") ||
			fnmatch(base, d.raw) {
			e.cacheDenied(pathStr, true)
			return &Violation{
				Rule:     "denied_path",
				Message:  "Access to '" + path + "' is denied by policy (matches '" + d.raw + "'). Use a different path or approach.",
				Tool:     toolName,
				Category: category,
			}
		}
	}
	e.cacheDenied(pathStr, false)
	return nil
}

func (e *Engine) cacheDenied(pathStr string, denied bool) {
	if len(e.deniedCache) < maxDeniedCacheEntries {
		e.deniedCache[pathStr] = denied
	}
}

func (e *Engine) checkReadPath(path, toolName, category string) *Violation {
	resolved := resolvePath(path)
	return e.checkDenied(resolved, path, toolName, category)
}

func (e *Engine) checkWritePath(path, toolName, category string) *Violation {
	resolved := resolvePath(path)

	if v := e.checkDenied(resolved, path, toolName, category); v != nil {
		return v
	}

	if e.projectRoot != "" {
		rel, err := filepath.Rel(e.projectRoot, resolved)
		if err == nil && !strings.HasPrefix(rel, "..") {
			return nil
		}
	}

	for _, pattern := range e.spec.WritablePaths {
		expanded := expandUser(pattern)
		if fnmatch(resolved, expanded) {
			return nil
		}
		parent := strings.TrimSuffix(strings.TrimSuffix(expanded, "/*"), "*")
		if resolved == parent || strings.HasPrefix(resolved, parent+"/") {
			return nil
		}
	}

	hint := "Add the path to 'writable_paths' in your policy config, or use 'policy.mode: full' to allow writes to the home directory."
	rootNote := ""
	if e.projectRoot != "" {
		rootNote = " (" + e.projectRoot + ")"
	}
	return &Violation{
		Rule:     "write_outside_project",
		Message:  "Write to '" + path + "' is denied: outside project root" + rootNote + ". " + hint,
		Tool:     toolName,
		Category: category,
	}
}

func (e *Engine) checkShell(command, toolName, category string) *Violation {
	cmdLower := strings.ToLower(strings.TrimSpace(command))
	for _, pattern := range e.spec.BlockedShellPatterns {
		patLower := strings.ToLower(pattern)
		if strings.Contains(patLower, "*") {
			if fnmatch(cmdLower, patLower) {
				return &Violation{
					Rule:     "blocked_shell_pattern",
					Message:  "Shell command blocked by policy: matches '" + pattern + "'. Try a safer alternative.",
					Tool:     toolName,
					Category: category,
				}
			}
		} else if strings.Contains(cmdLower, patLower) {
			return &Violation{
				Rule:     "blocked_shell_pattern",
				Message:  "Shell command blocked by policy: contains '" + pattern + "'. Try a safer alternative.",
				Tool:     toolName,
				Category: category,
			}
		}
	}
	return nil
}

func resolvePath(path string) string {
	expanded := expandUser(path)
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return expanded
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real
	}
	return abs
}
