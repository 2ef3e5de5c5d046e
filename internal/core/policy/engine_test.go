package policy

import (
	"testing"

	"github.com/haasonsaas/nexus/pkg/harnesstypes"
)

func TestDisabledTool(t *testing.T) {
	spec := NewSpec(ModeBalanced)
	spec.DisabledTools = []string{"shell"}
	e := New(spec)

	v := e.Check("shell", map[string]any{"command": "echo hi"})
	if v == nil || v.Rule != "disabled_tool" {
		t.Fatalf("expected disabled_tool violation, got %+v", v)
	}
}

func TestBudgetExhaustion(t *testing.T) {
	spec := NewSpec(ModeBalanced)
	spec.MaxFileWrites = 1
	e := New(spec)
	e.SetProjectRoot("/tmp")

	if v := e.Check("write_file", map[string]any{"path": "/tmp/x"}); v != nil {
		t.Fatalf("unexpected violation on first write: %+v", v)
	}
	e.Record("write_file")

	v := e.Check("write_file", map[string]any{"path": "/tmp/y"})
	if v == nil || v.Rule != "budget_file_writes" {
		t.Fatalf("expected budget_file_writes violation, got %+v", v)
	}
}

func TestDeniedPathBlocksRead(t *testing.T) {
	e := New(NewSpec(ModeBalanced))
	v := e.Check("read_file", map[string]any{"path": "/etc/passwd"})
	if v == nil || v.Rule != "denied_path" {
		t.Fatalf("expected denied_path violation, got %+v", v)
	}
}

func TestWriteOutsideProjectRootBlocked(t *testing.T) {
	e := New(NewSpec(ModeBalanced))
	e.SetProjectRoot("/workspace/project")

	v := e.Check("write_file", map[string]any{"path": "/var/log/app.log"})
	if v == nil || v.Rule != "write_outside_project" {
		t.Fatalf("expected write_outside_project violation, got %+v", v)
	}
}

func TestWriteInsideProjectRootAllowed(t *testing.T) {
	e := New(NewSpec(ModeBalanced))
	e.SetProjectRoot("/workspace/project")

	v := e.Check("write_file", map[string]any{"path": "/workspace/project/src/main.go"})
	if v != nil {
		t.Fatalf("unexpected violation: %+v", v)
	}
}

func TestBlockedShellPattern(t *testing.T) {
	e := New(NewSpec(ModeBalanced))
	v := e.Check("shell", map[string]any{"command": "git push --force origin main"})
	if v == nil || v.Rule != "blocked_shell_pattern" {
		t.Fatalf("expected blocked_shell_pattern violation, got %+v", v)
	}
}

func TestTokenBudget(t *testing.T) {
	spec := NewSpec(ModeBalanced)
	spec.MaxTokensPerGoal = 100
	e := New(spec)

	e.RecordUsage(harnesstypes.Usage{TotalTokens: 150})
	if reason := e.CheckTokenBudget(); reason == "" {
		t.Fatal("expected token budget to be exceeded")
	}
}

func TestDeniedCacheConsistentWithFreshCheck(t *testing.T) {
	e := New(NewSpec(ModeBalanced))
	path := "/etc/shadow"

	first := e.Check("read_file", map[string]any{"path": path})
	second := e.Check("read_file", map[string]any{"path": path})
	if (first == nil) != (second == nil) {
		t.Fatalf("cached decision diverged from fresh check: first=%v second=%v", first, second)
	}
}
