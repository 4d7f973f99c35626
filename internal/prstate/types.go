// Package prstate implements C5, the PR state machine of spec.md §4.2.
// State is never stored: each run recomputes it from the PR's observable
// state plus the census snapshot, and the seven numbered transitions are
// re-applied in order. Grounded on the teacher's
// internal/github/postprocess package (a fixed ordered pipeline of steps
// over one PR) and, for the single-state-per-sync projection idea, the
// other_examples Prow tide.go/codereview.go pattern.
package prstate

import (
	"context"

	"github.com/cexll/reviewbot/internal/forge"
)

// State is the label the machine projects a PR onto for exactly one run.
type State string

const (
	StateDraft             State = "draft"
	StateNeedsReview       State = "needs-review"
	StateReadyToIntegrate  State = "ready-to-integrate"
	StateReadyToSponsor    State = "ready-to-sponsor"
	StateIntegrating       State = "integrating"
	StateIntegrated        State = "integrated"
)

// Blocking labels that veto Ready-to-integrate regardless of approvals.
var blockingLabels = []string{"csr", "merge-conflict", "work"}

// MaterializeResult is what step 3 (materialize a working copy, compute
// the proposed commit) produces.
type MaterializeResult struct {
	// ProposedHeadHash is the hash jcheck must validate and the hash
	// recorded in the prePush comment and eventual commit.
	ProposedHeadHash string
	// CommitMessageBody is the rebased/rewritten commit body, before the
	// trailer block internal/integrate appends.
	CommitMessageBody string
	// IsMergePR reports whether the PR's title declares it a merge PR
	// ("Merge <repo>:<branch>"), which changes how step 3 treats the
	// target: rewritten minimally instead of rebased.
	IsMergePR bool
	// DiffApplies is false when the target moved in a way the PR's diff
	// no longer applies cleanly against ("merge-conflict" edge case).
	DiffApplies bool
}

// Materializer performs step 3: compute the proposed commit a successful
// integration would push.
type Materializer interface {
	Materialize(ctx context.Context, repo string, pr *forge.PullRequest) (MaterializeResult, error)
}

// JcheckRunner performs step 4: validate the proposed commit against
// project policy, publishing the jcheck status check.
type JcheckRunner interface {
	Run(ctx context.Context, repo string, proposedHash string, pr *forge.PullRequest) (forge.CheckStatus, error)
}

// Labeler performs the C9 file-pattern half of step 5. Governs reports
// whether a label name is one this Labeler's configuration computes, so
// step 5 can tell a stale file-pattern label (drop it) from a manually
// managed one like a /label addition or a bot state flag (keep it).
type Labeler interface {
	Labels(files []forge.FileChange) []string
	Governs(label string) bool
}

// ReviewRequirement is the currently configured reviewer gate, defaulting
// to the project's jcheck rule unless overridden by /reviewers.
type ReviewRequirement struct {
	Count int
	Role  string // "reviewer", "committer", "author", "contributor"
}

// Result is what Reconcile computed and already applied for one run.
type Result struct {
	State           State
	HeadHash        string
	Labels          []string
	PrePushComment  string
	Aborted         bool // true if H changed mid-run; caller should re-run
	MergeConflict   bool
}
