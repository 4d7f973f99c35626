package gitplumbing

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Identity is a commit author or committer identity.
type Identity struct {
	Name  string
	Email string
}

// MergeStrategy selects how Merge resolves the incoming ref.
type MergeStrategy string

const (
	MergeStrategyRecursive MergeStrategy = "recursive"
	MergeStrategyOurs      MergeStrategy = "ours"
)

// Git is the consumed git plumbing interface: clone/fetch a seed, then
// operate on a scoped working tree cloned from it.
type Git struct {
	runner CommandRunner
}

// New constructs a Git backed by runner (RealCommandRunner in production).
func New(runner CommandRunner) *Git {
	if runner == nil {
		runner = RealCommandRunner{}
	}
	return &Git{runner: runner}
}

// EnsureBareClone clones remoteURL into barePath as a bare mirror if it does
// not already exist, otherwise fetches into it. Grounded on the teacher's
// Clone (clone.go), generalized from a throwaway per-PR clone to a
// long-lived seed shared across work items for the same repository.
func (g *Git) EnsureBareClone(barePath, remoteURL string) error {
	if _, err := os.Stat(barePath); err == nil {
		_, err := g.runner.RunInDir(barePath, "git", "fetch", "--prune", "origin", "+refs/heads/*:refs/heads/*")
		if err != nil {
			return fmt.Errorf("gitplumbing: fetch %s: %w", remoteURL, err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(barePath), 0o755); err != nil {
		return fmt.Errorf("gitplumbing: mkdir %s: %w", filepath.Dir(barePath), err)
	}
	if _, err := g.runner.RunInDir("", "git", "clone", "--mirror", remoteURL, barePath); err != nil {
		return fmt.Errorf("gitplumbing: mirror clone %s: %w", remoteURL, err)
	}
	return nil
}

// ScopedWorktree is a private working tree cloned from a seed bare clone,
// created on entry and deleted on exit (spec.md §5): "Temporary working
// trees are scoped: created on entry, deleted on all exits, best-effort and
// idempotent."
type ScopedWorktree struct {
	Dir string
	git *Git
}

// NewScopedWorktree clones barePath into a private directory under
// workRoot, checked out at ref. Callers must call Close on every exit path.
func (g *Git) NewScopedWorktree(workRoot, barePath, ref string) (*ScopedWorktree, error) {
	dir := filepath.Join(workRoot, fmt.Sprintf("wt-%d", time.Now().UnixNano()))
	if err := os.MkdirAll(workRoot, 0o755); err != nil {
		return nil, fmt.Errorf("gitplumbing: mkdir %s: %w", workRoot, err)
	}
	if _, err := g.runner.RunInDir("", "git", "clone", barePath, dir); err != nil {
		return nil, fmt.Errorf("gitplumbing: clone seed into worktree: %w", err)
	}
	wt := &ScopedWorktree{Dir: dir, git: g}
	if ref != "" {
		if err := wt.Checkout(ref); err != nil {
			wt.Close()
			return nil, err
		}
	}
	return wt, nil
}

// Close removes the working tree. Best-effort and idempotent per spec.md §5.
func (w *ScopedWorktree) Close() {
	_ = os.RemoveAll(w.Dir)
}

func (w *ScopedWorktree) run(name string, args ...string) ([]byte, error) {
	out, err := w.git.runner.RunInDir(w.Dir, name, args...)
	if err != nil {
		return out, fmt.Errorf("gitplumbing: %s %s: %w\n%s", name, strings.Join(args, " "), err, string(out))
	}
	return out, nil
}

// Fetch fetches ref from remote into the worktree.
func (w *ScopedWorktree) Fetch(remote, ref string) error {
	_, err := w.run("git", "fetch", remote, ref)
	return err
}

// Checkout checks out ref, creating a detached HEAD if ref is a commit.
func (w *ScopedWorktree) Checkout(ref string) error {
	_, err := w.run("git", "checkout", "--detach", ref)
	return err
}

// Branch creates name pointing at HEAD (or startPoint, if given) without
// checking it out.
func (w *ScopedWorktree) Branch(name, startPoint string) error {
	args := []string{"branch", "--force", name}
	if startPoint != "" {
		args = append(args, startPoint)
	}
	_, err := w.run("git", args...)
	return err
}

// Merge merges ref into HEAD using strategy, returning a conflict-detected
// boolean instead of an error when the merge leaves unresolved paths, so
// callers (internal/integrate) can distinguish "merge conflict, abort with
// guidance" from a genuine tool failure.
func (w *ScopedWorktree) Merge(ref string, strategy MergeStrategy) (conflict bool, err error) {
	args := []string{"merge", "--no-edit"}
	if strategy != "" {
		args = append(args, "-s", string(strategy))
	}
	args = append(args, ref)
	if _, err := w.run("git", args...); err != nil {
		if w.hasUnmergedPaths() {
			_, _ = w.run("git", "merge", "--abort")
			return true, nil
		}
		return false, err
	}
	return false, nil
}

// Rebase rebases HEAD onto upstream, reporting a conflict the same way
// Merge does.
func (w *ScopedWorktree) Rebase(upstream string) (conflict bool, err error) {
	if _, err := w.run("git", "rebase", upstream); err != nil {
		if w.hasUnmergedPaths() {
			_, _ = w.run("git", "rebase", "--abort")
			return true, nil
		}
		return false, err
	}
	return false, nil
}

func (w *ScopedWorktree) hasUnmergedPaths() bool {
	out, err := w.run("git", "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) != ""
}

// Commit creates a commit from the current index/worktree state with the
// given author, committer, and message, returning the new commit hash.
func (w *ScopedWorktree) Commit(author, committer Identity, message string) (string, error) {
	args := []string{"commit", "--allow-empty", "-m", message,
		"--author", fmt.Sprintf("%s <%s>", author.Name, author.Email),
	}
	env := []string{
		"GIT_COMMITTER_NAME=" + committer.Name,
		"GIT_COMMITTER_EMAIL=" + committer.Email,
	}
	if _, err := w.runWithEnv(env, "git", args...); err != nil {
		return "", err
	}
	return w.Resolve("HEAD")
}

// Amend rewrites HEAD's message and author/committer identity without
// changing its tree, used by internal/integrate to turn a rebased commit
// into the final composed commit message with census-resolved identities
// (spec.md §4.4 step 3-4).
func (w *ScopedWorktree) Amend(author, committer Identity, message string) (string, error) {
	args := []string{"commit", "--amend", "-m", message,
		"--author", fmt.Sprintf("%s <%s>", author.Name, author.Email),
	}
	env := []string{
		"GIT_COMMITTER_NAME=" + committer.Name,
		"GIT_COMMITTER_EMAIL=" + committer.Email,
	}
	if _, err := w.runWithEnv(env, "git", args...); err != nil {
		return "", err
	}
	return w.Resolve("HEAD")
}

// runWithEnv scopes the committer identity to this one invocation via
// CommandRunner.RunInDirWithEnv, rather than os.Setenv, which would race
// across commits made by concurrently running work items (spec.md §5).
func (w *ScopedWorktree) runWithEnv(env []string, name string, args ...string) ([]byte, error) {
	out, err := w.git.runner.RunInDirWithEnv(w.Dir, env, name, args...)
	if err != nil {
		return out, fmt.Errorf("gitplumbing: %s %s: %w\n%s", name, strings.Join(args, " "), err, string(out))
	}
	return out, nil
}

// Push pushes local ref to remote's branch with a compare-and-set
// constraint via --force-with-lease, matching spec.md's CAS push contract.
func (w *ScopedWorktree) Push(remote, localRef, remoteBranch, expectedOldSHA string) error {
	leaseArg := fmt.Sprintf("--force-with-lease=%s:%s", remoteBranch, expectedOldSHA)
	if expectedOldSHA == "" {
		leaseArg = fmt.Sprintf("--force-with-lease=%s", remoteBranch)
	}
	_, err := w.run("git", "push", leaseArg, remote, localRef+":refs/heads/"+remoteBranch)
	return err
}

// Resolve resolves ref to a full commit hash.
func (w *ScopedWorktree) Resolve(ref string) (string, error) {
	out, err := w.run("git", "rev-parse", ref)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// WalkCommits walks back up to maxDepth commits from start, calling visit
// for each; stops early if visit returns false.
func (w *ScopedWorktree) WalkCommits(start string, maxDepth int, visit func(hash string) bool) error {
	out, err := w.run("git", "rev-list", fmt.Sprintf("--max-count=%d", maxDepth), start)
	if err != nil {
		return err
	}
	for _, hash := range strings.Fields(string(out)) {
		if !visit(hash) {
			return nil
		}
	}
	return nil
}

// DiffApplies reports whether the worktree's current state has no
// unresolved conflict markers left from a prior Merge/Rebase attempt — used
// by internal/prstate's Materializer to detect "merge-conflict" (spec.md
// §4.2 step 3).
func (w *ScopedWorktree) DiffApplies() bool {
	return !w.hasUnmergedPaths()
}
