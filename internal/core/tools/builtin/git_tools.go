package builtin

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/haasonsaas/nexus/internal/core/tools"
	"github.com/haasonsaas/nexus/pkg/harnesstypes"
)

// runGit shells out to the git binary with a bounded timeout, combining
// stdout and stderr into a single trimmed string.
func runGit(ctx context.Context, cwd string, timeout time.Duration, args ...string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", args...)
	if cwd != "" {
		cmd.Dir = cwd
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return strings.TrimSpace(out.String()), err
}

// GitStatusTool reports the working tree's short status plus a diff
// stat summary against HEAD.
type GitStatusTool struct{}

func (GitStatusTool) Name() string        { return "git_status" }
func (GitStatusTool) Description() string { return "Show the current git status and a summary of changes." }
func (GitStatusTool) MaxOutput() int      { return tools.DefaultMaxOutput }
func (GitStatusTool) Parameters() []harnesstypes.ToolParameter {
	return []harnesstypes.ToolParameter{
		{Name: "cwd", Type: "string", Description: "Repository directory", Required: false},
	}
}

func (GitStatusTool) Execute(ctx context.Context, args map[string]any) harnesstypes.ToolResult {
	cwd := cwdArg(args)
	status, err := runGit(ctx, cwd, 30*time.Second, "status", "--short")
	if err != nil {
		return harnesstypes.ToolResult{Success: false, Error: "Not a git repository or git error: " + status}
	}
	diffStat, _ := runGit(ctx, cwd, 30*time.Second, "diff", "--stat")

	out := status
	if diffStat != "" {
		if out != "" {
			out += "\n\n"
		}
		out += diffStat
	}
	if out == "" {
		out = "Working tree clean."
	}
	return harnesstypes.ToolResult{Success: true, Output: out}
}

// GitDiffTool shows the current unstaged diff, truncated to a fixed
// character budget so a single large diff cannot blow out the context.
type GitDiffTool struct{}

func (GitDiffTool) Name() string        { return "git_diff" }
func (GitDiffTool) Description() string { return "Show the current git diff (unstaged changes)." }
func (GitDiffTool) MaxOutput() int      { return tools.DefaultMaxOutput }
func (GitDiffTool) Parameters() []harnesstypes.ToolParameter {
	return []harnesstypes.ToolParameter{
		{Name: "cwd", Type: "string", Description: "Repository directory", Required: false},
	}
}

func (GitDiffTool) Execute(ctx context.Context, args map[string]any) harnesstypes.ToolResult {
	cwd := cwdArg(args)
	diff, err := runGit(ctx, cwd, 30*time.Second, "diff")
	if err != nil {
		return harnesstypes.ToolResult{Success: false, Error: "Not a git repository or git error: " + diff}
	}
	if diff == "" {
		return harnesstypes.ToolResult{Success: true, Output: "No changes."}
	}
	const limit = 15000
	if len(diff) > limit {
		diff = diff[:limit] + fmt.Sprintf("\n... [truncated, %d more chars] ...", len(diff)-limit)
	}
	return harnesstypes.ToolResult{Success: true, Output: diff}
}

// GitLogTool shows the N most recent commits in one-line form.
type GitLogTool struct{}

func (GitLogTool) Name() string        { return "git_log" }
func (GitLogTool) Description() string { return "Show recent git commit history." }
func (GitLogTool) MaxOutput() int      { return tools.DefaultMaxOutput }
func (GitLogTool) Parameters() []harnesstypes.ToolParameter {
	return []harnesstypes.ToolParameter{
		{Name: "count", Type: "integer", Description: "Number of commits to show", Required: false, Default: 10},
		{Name: "cwd", Type: "string", Description: "Repository directory", Required: false},
	}
}

func (GitLogTool) Execute(ctx context.Context, args map[string]any) harnesstypes.ToolResult {
	cwd := cwdArg(args)
	count := intArg(args, "count", 10)
	if count <= 0 {
		count = 10
	}
	log, err := runGit(ctx, cwd, 30*time.Second, "log", "--oneline", fmt.Sprintf("-%d", count))
	if err != nil {
		return harnesstypes.ToolResult{Success: false, Error: "Not a git repository or git error: " + log}
	}
	if log == "" {
		log = "No commits yet."
	}
	return harnesstypes.ToolResult{Success: true, Output: log}
}

// GitCommitTool stages all changes and commits them. A "nothing to
// commit" outcome is treated as a success, not an error.
type GitCommitTool struct{}

func (GitCommitTool) Name() string        { return "git_commit" }
func (GitCommitTool) Description() string { return "Stage all changes and create a git commit." }
func (GitCommitTool) MaxOutput() int      { return tools.DefaultMaxOutput }
func (GitCommitTool) Parameters() []harnesstypes.ToolParameter {
	return []harnesstypes.ToolParameter{
		{Name: "message", Type: "string", Description: "Commit message", Required: true},
		{Name: "cwd", Type: "string", Description: "Repository directory", Required: false},
	}
}

func (GitCommitTool) Execute(ctx context.Context, args map[string]any) harnesstypes.ToolResult {
	message, _ := args["message"].(string)
	if message == "" {
		return harnesstypes.ToolResult{Success: false, Error: "No commit message provided"}
	}
	cwd := cwdArg(args)

	if out, err := runGit(ctx, cwd, 30*time.Second, "add", "-A"); err != nil {
		return harnesstypes.ToolResult{Success: false, Error: "git add failed: " + out}
	}
	out, err := runGit(ctx, cwd, 30*time.Second, "commit", "-m", message)
	if err != nil {
		if strings.Contains(out, "nothing to commit") {
			return harnesstypes.ToolResult{Success: true, Output: "Nothing to commit, working tree clean."}
		}
		return harnesstypes.ToolResult{Success: false, Error: "git commit failed: " + out}
	}
	return harnesstypes.ToolResult{Success: true, Output: out}
}

// GitBranchTool lists branches, or creates/switches to one when a name
// is given.
type GitBranchTool struct{}

func (GitBranchTool) Name() string        { return "git_branch" }
func (GitBranchTool) Description() string { return "List git branches, or create and switch to a new one." }
func (GitBranchTool) MaxOutput() int      { return tools.DefaultMaxOutput }
func (GitBranchTool) Parameters() []harnesstypes.ToolParameter {
	return []harnesstypes.ToolParameter{
		{Name: "name", Type: "string", Description: "Branch name to create and switch to", Required: false},
		{Name: "cwd", Type: "string", Description: "Repository directory", Required: false},
	}
}

func (GitBranchTool) Execute(ctx context.Context, args map[string]any) harnesstypes.ToolResult {
	cwd := cwdArg(args)
	name, _ := args["name"].(string)

	if name == "" {
		out, err := runGit(ctx, cwd, 30*time.Second, "branch")
		if err != nil {
			return harnesstypes.ToolResult{Success: false, Error: "Not a git repository or git error: " + out}
		}
		return harnesstypes.ToolResult{Success: true, Output: out}
	}

	out, err := runGit(ctx, cwd, 30*time.Second, "checkout", "-b", name)
	if err != nil {
		out2, err2 := runGit(ctx, cwd, 30*time.Second, "branch", name)
		if err2 != nil {
			return harnesstypes.ToolResult{Success: false, Error: "git branch failed: " + out2}
		}
		return harnesstypes.ToolResult{Success: true, Output: out2}
	}
	return harnesstypes.ToolResult{Success: true, Output: out}
}

func cwdArg(args map[string]any) string {
	cwd, _ := args["cwd"].(string)
	if cwd == "" {
		return ""
	}
	return resolve(cwd)
}
