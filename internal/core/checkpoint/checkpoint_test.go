package checkpoint

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
	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644)
	run("add", "-A")
	run("commit", "-m", "initial")
	return dir
}

func TestBeginCreatesWorkBranch(t *testing.T) {
	dir := initRepo(t)
	e := New(dir, true)
	status := e.Begin(context.Background())
	if !strings.Contains(status, "branch:") {
		t.Fatalf("expected branch status, got %q", status)
	}
	if !e.Active() {
		t.Fatal("expected engine to be active after Begin")
	}
}

func TestSnapshotAndRollback(t *testing.T) {
	dir := initRepo(t)
	e := New(dir, true)
	e.Begin(context.Background())

	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\n"), 0o644)
	snap1 := e.Snapshot(context.Background(), "add a.txt")
	if snap1 == nil {
		t.Fatal("expected a snapshot to be recorded")
	}

	os.WriteFile(filepath.Join(dir, "b.txt"), []byte("two\n"), 0o644)
	snap2 := e.Snapshot(context.Background(), "add b.txt")
	if snap2 == nil {
		t.Fatal("expected a second snapshot")
	}

	if _, err := os.Stat(filepath.Join(dir, "b.txt")); err != nil {
		t.Fatal("expected b.txt to exist before rollback")
	}

	status := e.Rollback(context.Background(), snap1)
	if !strings.Contains(status, "rolled back") {
		t.Fatalf("unexpected rollback status: %q", status)
	}
	if _, err := os.Stat(filepath.Join(dir, "b.txt")); err == nil {
		t.Fatal("expected b.txt to be removed after rollback to snap1")
	}
	if _, err := os.Stat(filepath.Join(dir, "a.txt")); err != nil {
		t.Fatal("expected a.txt to survive rollback to snap1")
	}
}

func TestSnapshotNoChangesReturnsNil(t *testing.T) {
	dir := initRepo(t)
	e := New(dir, true)
	e.Begin(context.Background())

	snap := e.Snapshot(context.Background(), "nothing changed")
	if snap != nil {
		t.Fatal("expected nil snapshot when nothing changed")
	}
}

func TestFinishKeepChangesMergesIntoOriginalBranch(t *testing.T) {
	dir := initRepo(t)
	e := New(dir, true)
	e.Begin(context.Background())

	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\n"), 0o644)
	e.Snapshot(context.Background(), "add a.txt")

	status := e.Finish(context.Background(), true)
	if !strings.Contains(status, "merged") {
		t.Fatalf("expected merged status, got %q", status)
	}
	if e.Active() {
		t.Fatal("expected engine to be inactive after Finish")
	}

	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("rev-parse failed: %v", err)
	}
	if strings.TrimSpace(string(out)) != "main" {
		t.Fatalf("expected to be back on main, got %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.txt")); err != nil {
		t.Fatal("expected a.txt to be present on main after squash-merge")
	}
}

func TestFinishDiscardDropsChanges(t *testing.T) {
	dir := initRepo(t)
	e := New(dir, true)
	e.Begin(context.Background())

	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\n"), 0o644)
	e.Snapshot(context.Background(), "add a.txt")

	status := e.Finish(context.Background(), false)
	if !strings.Contains(status, "discarded") {
		t.Fatalf("expected discarded status, got %q", status)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.txt")); err == nil {
		t.Fatal("expected a.txt to be gone after discard finish")
	}
}

func TestNoGitIsNoop(t *testing.T) {
	e := New(t.TempDir(), false)
	if status := e.Begin(context.Background()); status != "no git" {
		t.Fatalf("expected no-git status, got %q", status)
	}
	if e.Snapshot(context.Background(), "x") != nil {
		t.Fatal("expected nil snapshot with no git")
	}
}
