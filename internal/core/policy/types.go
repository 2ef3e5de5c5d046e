// Package policy implements the harness's automatic guardrails.
// Policies describe what the agent can and cannot do; violations are
// returned as failed tool results rather than raised, so the agent can
// adapt without a human in the loop.
package policy

// ToolCategories maps a builtin tool name to its budget/path category.
// Unknown tools (e.g. MCP or plugin-provided) fall into "unknown" and
// are never budget- or path-restricted.
var ToolCategories = map[string]string{
	"read_file":    "read",
	"list_dir":     "read",
	"search_files": "read",
	"git_status":   "read",
	"git_diff":     "read",
	"git_log":      "read",

	"write_file": "write",
	"edit_file":  "write",

	"shell":     "execute",
	"run_tests": "execute",

	"git_commit": "git",
	"git_branch": "git",

	"codex":       "external",
	"gemini_cli":  "external",
	"claude_code": "external",
}

// CategoryOf returns the budget category for a tool name, or "unknown".
func CategoryOf(toolName string) string {
	if c, ok := ToolCategories[toolName]; ok {
		return c
	}
	return "unknown"
}

// Violation describes why a tool call was blocked. It is plain data,
// never an error: the executor turns it into a failed ToolResult.
type Violation struct {
	Rule     string
	Message  string
	Tool     string
	Category string
}

// Mode is a named policy preset.
type Mode string

const (
	ModeSafe     Mode = "safe"
	ModeBalanced Mode = "balanced"
	ModeFull     Mode = "full"
)

// Spec is the flat policy configuration. Unknown fields a host might
// carry in a persisted form are simply not represented here — nothing
// in this package reads configuration from a file (see SPEC_FULL.md's
// Ambient Stack section on configuration).
type Spec struct {
	Mode                 Mode
	MaxFileWrites        int // 0 = unlimited
	MaxShellCommands     int
	MaxGitCommits        int
	MaxExternalCalls     int
	DeniedPaths          []string
	WritablePaths        []string
	BlockedShellPatterns []string
	DisabledTools        []string
	MaxTokensPerGoal     int
}

// DefaultDeniedPaths mirrors the reference's default denylist: system
// directories, SSH/GPG material, and common secret-file globs.
func DefaultDeniedPaths() []string {
	return []string{
		"/etc/*", "/usr/*", "/bin/*", "/sbin/*", "/boot/*",
		"~/.ssh/*", "~/.gnupg/*", "**/.env", "**/.env.*",
		"**/credentials*", "**/secrets*",
	}
}

// DefaultBlockedShellPatterns mirrors the reference's default shell
// denylist.
func DefaultBlockedShellPatterns() []string {
	return []string{
		"curl * | *sh", "wget * | *sh",
		"chmod 777", "chmod -R 777",
		"> /dev/sd*",
		"git push --force", "git push -f",
		"git reset --hard",
	}
}

// NewSpec returns a Spec with the given mode's preset budgets applied
// and the default path/shell denylists populated; explicit overrides
// are applied by the caller after construction.
func NewSpec(mode Mode) Spec {
	s := Spec{
		Mode:                 mode,
		DeniedPaths:          DefaultDeniedPaths(),
		BlockedShellPatterns: DefaultBlockedShellPatterns(),
	}
	switch mode {
	case ModeSafe:
		s.MaxFileWrites = 20
		s.MaxShellCommands = 30
		s.MaxGitCommits = 3
		s.MaxExternalCalls = 10
	case ModeFull:
		s.WritablePaths = []string{"~/*"}
	default: // balanced
		s.Mode = ModeBalanced
		s.MaxGitCommits = 10
	}
	return s
}
