// Package checkpoint implements a transactional git-backed safety net
// for autonomous goal execution: stash any dirty working tree, work on
// a disposable branch, snapshot along the way, and either squash-merge
// or discard when the goal finishes.
package checkpoint

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/nexus/pkg/harnesstypes"
)

func git(ctx context.Context, cwd string, timeout time.Duration, args ...string) (string, string, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(runCtx, "git", args...)
	cmd.Dir = cwd
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return strings.TrimSpace(stdout.String()), strings.TrimSpace(stderr.String()), err
}

// Engine manages git-based checkpoints for one autonomous goal run.
// Not safe for concurrent use by multiple goroutines on the same
// instance — one Engine drives one goal's lifecycle at a time.
type Engine struct {
	cwd    string
	hasGit bool

	originalBranch string
	workBranch     string
	stashed        bool
	snapshots      []harnesstypes.Snapshot
	active         bool
}

// New returns an Engine rooted at projectRoot. hasGit should be false
// when the project isn't a git repository, in which case every
// operation becomes a no-op that reports so in its status message.
func New(projectRoot string, hasGit bool) *Engine {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		abs = projectRoot
	}
	return &Engine{cwd: abs, hasGit: hasGit}
}

// Active reports whether a checkpoint session is currently open.
func (e *Engine) Active() bool { return e.active }

// Snapshots returns a copy of the snapshots recorded so far.
func (e *Engine) Snapshots() []harnesstypes.Snapshot {
	out := make([]harnesstypes.Snapshot, len(e.snapshots))
	copy(out, e.snapshots)
	return out
}

// Begin starts a checkpoint session: stashes any dirty working tree
// and switches to a fresh disposable work branch. Call once before
// autonomous work begins.
func (e *Engine) Begin(ctx context.Context) string {
	if !e.hasGit {
		return "no git"
	}
	if e.active {
		return "already active"
	}
	e.active = true

	branch, _, err := git(ctx, e.cwd, 15*time.Second, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil || branch == "" {
		branch = "main"
	}
	e.originalBranch = branch

	status, _, _ := git(ctx, e.cwd, 15*time.Second, "status", "--porcelain")
	if status != "" {
		out, _, err := git(ctx, e.cwd, 15*time.Second, "stash", "push", "-m", "harness: pre-goal checkpoint")
		if err == nil && !strings.Contains(out, "No local changes") {
			e.stashed = true
		}
	}

	ts := time.Now().Unix()
	e.workBranch = fmt.Sprintf("harness/goal-%d", ts)
	_, _, err = git(ctx, e.cwd, 15*time.Second, "checkout", "-b", e.workBranch)
	if err != nil {
		e.workBranch = fmt.Sprintf("harness/goal-%d-retry", ts)
		git(ctx, e.cwd, 15*time.Second, "checkout", "-b", e.workBranch)
	}

	var parts []string
	if e.stashed {
		parts = append(parts, "stashed uncommitted changes")
	}
	parts = append(parts, "branch: "+e.workBranch)
	return strings.Join(parts, ", ")
}

// Snapshot stages and commits all current changes as a lightweight
// checkpoint. Returns nil if there was nothing to snapshot.
func (e *Engine) Snapshot(ctx context.Context, description string) *harnesstypes.Snapshot {
	if !e.active || !e.hasGit {
		return nil
	}
	status, _, _ := git(ctx, e.cwd, 15*time.Second, "status", "--porcelain")
	if status == "" {
		return nil
	}

	git(ctx, e.cwd, 15*time.Second, "add", "-A")
	msg := "harness-snapshot: " + description
	if _, _, err := git(ctx, e.cwd, 15*time.Second, "commit", "-m", msg, "--allow-empty"); err != nil {
		return nil
	}

	hash, _, err := git(ctx, e.cwd, 15*time.Second, "rev-parse", "--short", "HEAD")
	if err != nil {
		return nil
	}

	snap := harnesstypes.Snapshot{CommitHash: hash, Description: description, Timestamp: time.Now()}
	e.snapshots = append(e.snapshots, snap)
	return &snap
}

// Rollback resets the work branch to toSnapshot, or to the pre-goal
// state when toSnapshot is nil.
func (e *Engine) Rollback(ctx context.Context, toSnapshot *harnesstypes.Snapshot) string {
	if !e.active || !e.hasGit {
		return "no active checkpoint"
	}

	if toSnapshot != nil {
		_, _, err := git(ctx, e.cwd, 15*time.Second, "reset", "--hard", toSnapshot.CommitHash)
		if err != nil {
			return "rollback failed"
		}
		idx := -1
		for i, s := range e.snapshots {
			if s.CommitHash == toSnapshot.CommitHash {
				idx = i
				break
			}
		}
		if idx >= 0 {
			e.snapshots = e.snapshots[:idx+1]
		}
		return "rolled back to " + toSnapshot.CommitHash + ": " + toSnapshot.Description
	}

	var err error
	if len(e.snapshots) > 0 {
		_, _, err = git(ctx, e.cwd, 15*time.Second, "reset", "--hard", e.snapshots[0].CommitHash+"~1")
	} else {
		_, _, err = git(ctx, e.cwd, 15*time.Second, "reset", "--hard", "HEAD")
	}
	if err != nil {
		return "rollback failed"
	}
	e.snapshots = nil
	return "rolled back all goal changes"
}

// Finish ends the checkpoint session. When keepChanges is true, the
// work branch's snapshots are squash-merged into the original branch;
// otherwise the work branch is discarded entirely. Either way, any
// stash created at Begin is restored.
func (e *Engine) Finish(ctx context.Context, keepChanges bool) string {
	if !e.active || !e.hasGit {
		e.active = false
		return "no active checkpoint"
	}
	e.active = false

	var parts []string

	switch {
	case keepChanges && e.workBranch != "":
		status, _, _ := git(ctx, e.cwd, 15*time.Second, "status", "--porcelain")
		if status != "" {
			git(ctx, e.cwd, 15*time.Second, "add", "-A")
			git(ctx, e.cwd, 15*time.Second, "commit", "-m", "harness-snapshot: uncommitted changes at finish")
		}

		_, checkoutErr, err := git(ctx, e.cwd, 15*time.Second, "checkout", e.originalBranch)
		if err != nil {
			_, checkoutErr, err = git(ctx, e.cwd, 15*time.Second, "checkout", "-f", e.originalBranch)
			if err != nil {
				parts = append(parts, "checkout failed: "+truncate(checkoutErr, 100))
				e.cleanupStash(ctx, &parts)
				e.snapshots = nil
				e.workBranch = ""
				return strings.Join(parts, ", ")
			}
		}

		_, mergeErr, err := git(ctx, e.cwd, 15*time.Second, "merge", "--squash", e.workBranch)
		if err == nil {
			status, _, _ := git(ctx, e.cwd, 15*time.Second, "status", "--porcelain")
			if status != "" {
				parts = append(parts, "merged "+strconv.Itoa(len(e.snapshots))+" snapshots")
			} else {
				parts = append(parts, "no net changes to merge")
			}
		} else {
			parts = append(parts, "merge conflict: "+truncate(mergeErr, 100))
		}
		git(ctx, e.cwd, 15*time.Second, "branch", "-D", e.workBranch)

	case e.workBranch != "":
		git(ctx, e.cwd, 15*time.Second, "checkout", "-f", e.originalBranch)
		git(ctx, e.cwd, 15*time.Second, "branch", "-D", e.workBranch)
		parts = append(parts, "discarded goal changes")
	}

	e.cleanupStash(ctx, &parts)
	e.snapshots = nil
	e.workBranch = ""
	if len(parts) == 0 {
		return "clean finish"
	}
	return strings.Join(parts, ", ")
}

func (e *Engine) cleanupStash(ctx context.Context, parts *[]string) {
	if !e.stashed {
		return
	}
	_, stderr, err := git(ctx, e.cwd, 15*time.Second, "stash", "pop")
	if err == nil {
		*parts = append(*parts, "restored stashed changes")
	} else {
		*parts = append(*parts, "stash pop failed: "+truncate(stderr, 80))
	}
	e.stashed = false
}

// GetDiffSinceStart summarizes every change made since Begin, across
// all recorded snapshots.
func (e *Engine) GetDiffSinceStart(ctx context.Context) string {
	if !e.active || !e.hasGit {
		return ""
	}
	out, _, err := git(ctx, e.cwd, 15*time.Second, "diff", "--stat", fmt.Sprintf("HEAD~%d", len(e.snapshots)), "HEAD")
	if err != nil {
		return ""
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
