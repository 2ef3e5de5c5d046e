package builtin

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/haasonsaas/nexus/internal/core/tools"
	"github.com/haasonsaas/nexus/pkg/harnesstypes"
)

// sensitivePrefixes and sensitiveNames mark environment variables that
// are stripped from the child process environment before a shell
// command runs, so secrets in the harness's own process never leak
// into tool-invoked subprocesses.
var sensitivePrefixes = []string{"AWS_", "OPENAI_", "ANTHROPIC_", "AZURE_", "GCP_", "GOOGLE_"}
var sensitiveNames = map[string]bool{
	"GITHUB_TOKEN": true, "NPM_TOKEN": true, "DOCKER_PASSWORD": true,
	"DATABASE_URL": true, "SECRET_KEY": true, "PRIVATE_KEY": true,
}

func buildSafeEnv() []string {
	var out []string
	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if sensitiveNames[name] {
			continue
		}
		blocked := false
		for _, prefix := range sensitivePrefixes {
			if strings.HasPrefix(name, prefix) {
				blocked = true
				break
			}
		}
		if !blocked {
			out = append(out, kv)
		}
	}
	return out
}

// ShellTool runs a shell command with a bounded timeout and a scrubbed
// environment, capturing stdout and stderr together.
type ShellTool struct{}

func (ShellTool) Name() string        { return "shell" }
func (ShellTool) Description() string { return "Execute a shell command and return its output. Use with caution." }
func (ShellTool) MaxOutput() int      { return 8000 }
func (ShellTool) Parameters() []harnesstypes.ToolParameter {
	return []harnesstypes.ToolParameter{
		{Name: "command", Type: "string", Description: "The shell command to execute", Required: true},
		{Name: "cwd", Type: "string", Description: "Working directory for the command", Required: false},
		{Name: "timeout", Type: "integer", Description: "Timeout in seconds", Required: false, Default: 120},
	}
}

func (ShellTool) Execute(ctx context.Context, args map[string]any) harnesstypes.ToolResult {
	command, _ := args["command"].(string)
	if command == "" {
		return harnesstypes.ToolResult{Success: false, Error: "No command provided"}
	}
	cwd, _ := args["cwd"].(string)
	timeoutSecs := intArg(args, "timeout", 120)
	if timeoutSecs <= 0 {
		timeoutSecs = 120
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSecs)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	if cwd != "" {
		cmd.Dir = resolve(cwd)
	}
	cmd.Env = buildSafeEnv()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	var out strings.Builder
	out.WriteString(stdout.String())
	if stderr.Len() > 0 {
		if out.Len() > 0 {
			out.WriteString("\n")
		}
		out.WriteString("[stderr]\n")
		out.WriteString(stderr.String())
	}

	if runCtx.Err() != nil {
		return harnesstypes.ToolResult{
			Success: false,
			Output:  out.String(),
			Error:   fmt.Sprintf("Command timed out after %ds", timeoutSecs),
		}
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return harnesstypes.ToolResult{
				Success: false,
				Output:  out.String(),
				Error:   fmt.Sprintf("Command exited with code %d", exitErr.ExitCode()),
			}
		}
		return harnesstypes.ToolResult{Success: false, Output: out.String(), Error: err.Error()}
	}
	return harnesstypes.ToolResult{Success: true, Output: out.String()}
}

var _ tools.Tool = ShellTool{}
