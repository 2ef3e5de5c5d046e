package builtin

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v: %s", args, err, out)
		}
	}
	run("init")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644)
	run("add", "-A")
	run("commit", "-m", "initial")
	return dir
}

func TestGitStatusClean(t *testing.T) {
	dir := initRepo(t)
	res := GitStatusTool{}.Execute(context.Background(), map[string]any{"cwd": dir})
	if !res.Success {
		t.Fatalf("git_status failed: %s", res.Error)
	}
}

func TestGitStatusDirty(t *testing.T) {
	dir := initRepo(t)
	os.WriteFile(filepath.Join(dir, "README.md"), []byte("changed\n"), 0o644)
	res := GitStatusTool{}.Execute(context.Background(), map[string]any{"cwd": dir})
	if !res.Success {
		t.Fatalf("git_status failed: %s", res.Error)
	}
	if !strings.Contains(res.Output, "README.md") {
		t.Fatalf("expected dirty status to mention README.md: %q", res.Output)
	}
}

func TestGitCommitNothingToCommit(t *testing.T) {
	dir := initRepo(t)
	res := GitCommitTool{}.Execute(context.Background(), map[string]any{"cwd": dir, "message": "no-op"})
	if !res.Success {
		t.Fatalf("expected nothing-to-commit to be treated as success: %s", res.Error)
	}
}

func TestGitCommitWithChanges(t *testing.T) {
	dir := initRepo(t)
	os.WriteFile(filepath.Join(dir, "new.txt"), []byte("data\n"), 0o644)
	res := GitCommitTool{}.Execute(context.Background(), map[string]any{"cwd": dir, "message": "add new.txt"})
	if !res.Success {
		t.Fatalf("commit failed: %s", res.Error)
	}

	log := GitLogTool{}.Execute(context.Background(), map[string]any{"cwd": dir, "count": 5})
	if !log.Success || !strings.Contains(log.Output, "add new.txt") {
		t.Fatalf("expected log to contain new commit: %q", log.Output)
	}
}

func TestGitBranchCreate(t *testing.T) {
	dir := initRepo(t)
	res := GitBranchTool{}.Execute(context.Background(), map[string]any{"cwd": dir, "name": "feature/x"})
	if !res.Success {
		t.Fatalf("branch create failed: %s", res.Error)
	}

	list := GitBranchTool{}.Execute(context.Background(), map[string]any{"cwd": dir})
	if !list.Success || !strings.Contains(list.Output, "feature/x") {
		t.Fatalf("expected branch list to contain feature/x: %q", list.Output)
	}
}
