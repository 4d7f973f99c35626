package forge

import (
	"context"
	"errors"
	"time"
)

// ErrRefMoved is returned by PushRef when the compare-and-set precondition
// fails: the branch's current head no longer matches ExpectedOldSHA.
var ErrRefMoved = errors.New("forge: ref has moved since it was observed")

// ErrNotFound is returned when a PR, commit, or ref does not exist.
var ErrNotFound = errors.New("forge: not found")

// Client is the narrow interface the core consumes from the forge. Every
// operation is retriable and must be side-effect-free on a retried
// operation that ultimately fails before its final mutation (e.g. a
// push that never updates the ref leaves no partial state behind).
type Client interface {
	// ListPullRequestsUpdatedSince lists PRs in repo with UpdatedAt >= since.
	ListPullRequestsUpdatedSince(ctx context.Context, repo string, since time.Time) ([]*PullRequest, error)

	// GetPullRequest fetches the current state of one PR.
	GetPullRequest(ctx context.Context, repo string, number int) (*PullRequest, error)

	// ListCommitCommentsSince lists new commit comments on repo's mainline
	// branches, created at or after since.
	ListCommitCommentsSince(ctx context.Context, repo string, since time.Time) ([]*CommitComment, error)

	// GetCommit fetches one commit and its commit comments.
	GetCommit(ctx context.Context, repo, hash string) (*Commit, error)

	// CreateComment posts a new comment on a PR and returns its ID.
	CreateComment(ctx context.Context, repo string, number int, body string) (int64, error)

	// UpdateComment replaces the body of an existing comment.
	UpdateComment(ctx context.Context, repo string, commentID int64, body string) error

	// DeleteComment removes a comment. Only used by the core during
	// crash recovery on its own previously-posted comments.
	DeleteComment(ctx context.Context, repo string, commentID int64) error

	// SetLabels replaces the PR's full label set.
	SetLabels(ctx context.Context, repo string, number int, labels []string) error

	// SetBody replaces the PR body.
	SetBody(ctx context.Context, repo string, number int, body string) error

	// SetTitle replaces the PR title.
	SetTitle(ctx context.Context, repo string, number int, title string) error

	// ClosePullRequest closes the PR.
	ClosePullRequest(ctx context.Context, repo string, number int) error

	// CreateCommitComment posts a comment on a commit (used by /backport,
	// /tag, /branch replies).
	CreateCommitComment(ctx context.Context, repo, hash, body string) (int64, error)

	// SetStatusCheck creates or updates a named status check for a commit.
	SetStatusCheck(ctx context.Context, repo string, status CheckStatus) error

	// GetRef returns the current SHA a branch ref points at.
	GetRef(ctx context.Context, repo, branch string) (string, error)

	// PushRef performs a compare-and-set update of branch to point at sha.
	// If expectedOldSHA is non-empty and the branch's current head does not
	// match it, PushRef returns ErrRefMoved without mutating anything.
	PushRef(ctx context.Context, repo, branch, sha, expectedOldSHA string) error

	// WalkCommits walks back up to maxDepth commits from start (inclusive),
	// calling visit for each. Walking stops early if visit returns false.
	WalkCommits(ctx context.Context, repo, start string, maxDepth int, visit func(hash string) bool) error

	// CreateBranch creates branch pointing at sha if it does not already exist.
	CreateBranch(ctx context.Context, repo, branch, sha string) error
}
