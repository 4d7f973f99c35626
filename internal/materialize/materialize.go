// Package materialize implements internal/prstate's Materializer (spec.md
// §4.2 step 3): compute the proposed commit a successful integration would
// push, by actually rebasing (or, for a declared merge PR, merging) the
// PR's head onto the target branch in a scoped working tree. Grounded on
// the teacher's clone.go (throwaway clone per task), generalized to a
// long-lived seed (internal/seedstorage) plus a scoped worktree
// (internal/gitplumbing) per invocation.
package materialize

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/cexll/reviewbot/internal/forge"
	"github.com/cexll/reviewbot/internal/gitplumbing"
	"github.com/cexll/reviewbot/internal/prstate"
	"github.com/cexll/reviewbot/internal/seedstorage"
)

// MergeTitleRe matches a declared-merge-PR title, spec.md §4.2 step 3's
// "Merge <repo>:<branch>" convention.
var MergeTitleRe = regexp.MustCompile(`^Merge \S+:\S+`)

// Materializer computes the proposed commit for a PR by actually
// performing the rebase/merge against a real git working tree.
type Materializer struct {
	Git          *gitplumbing.Git
	Seeds        *seedstorage.Store
	WorkRoot     string
	RemoteURLFor func(repo string) string
}

// RemoteURL returns the clone URL for repo, defaulting to GitHub's
// convention unless RemoteURLFor overrides it.
func (m *Materializer) RemoteURL(repo string) string {
	if m.RemoteURLFor != nil {
		return m.RemoteURLFor(repo)
	}
	return fmt.Sprintf("https://github.com/%s.git", repo)
}

// Materialize implements prstate.Materializer.
func (m *Materializer) Materialize(ctx context.Context, repo string, pr *forge.PullRequest) (prstate.MaterializeResult, error) {
	unlock := m.Seeds.Lock(repo)
	defer unlock()

	bare := m.Seeds.BareClonePath(repo)
	if err := m.Git.EnsureBareClone(bare, m.RemoteURL(repo)); err != nil {
		return prstate.MaterializeResult{}, fmt.Errorf("materialize: %w", err)
	}

	wt, err := m.Git.NewScopedWorktree(m.WorkRoot, bare, "")
	if err != nil {
		return prstate.MaterializeResult{}, fmt.Errorf("materialize: %w", err)
	}
	defer wt.Close()

	prRef := fmt.Sprintf("refs/pull/%d/head", pr.ID)
	localPR := fmt.Sprintf("pr-%d", pr.ID)
	if err := wt.Fetch("origin", prRef+":"+localPR); err != nil {
		return prstate.MaterializeResult{}, fmt.Errorf("materialize: fetch %s: %w", prRef, err)
	}

	isMerge := MergeTitleRe.MatchString(pr.Title)

	var conflict bool
	if isMerge {
		if err := wt.Checkout("origin/" + pr.TargetBranch); err != nil {
			return prstate.MaterializeResult{}, fmt.Errorf("materialize: checkout target: %w", err)
		}
		conflict, err = wt.Merge(localPR, gitplumbing.MergeStrategyRecursive)
	} else {
		if err := wt.Checkout(localPR); err != nil {
			return prstate.MaterializeResult{}, fmt.Errorf("materialize: checkout pr head: %w", err)
		}
		conflict, err = wt.Rebase("origin/" + pr.TargetBranch)
	}
	if err != nil {
		return prstate.MaterializeResult{}, fmt.Errorf("materialize: %w", err)
	}
	if conflict {
		return prstate.MaterializeResult{IsMergePR: isMerge, DiffApplies: false}, nil
	}

	head, err := wt.Resolve("HEAD")
	if err != nil {
		return prstate.MaterializeResult{}, fmt.Errorf("materialize: resolve head: %w", err)
	}

	return prstate.MaterializeResult{
		ProposedHeadHash:  head,
		CommitMessageBody: strings.TrimSpace(pr.Body),
		IsMergePR:         isMerge,
		DiffApplies:       true,
	}, nil
}
