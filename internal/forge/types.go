// Package forge defines the data model and consumed interface the core
// uses to talk to the hosted source forge. Only the contract is specified
// here; internal/forgegh provides one concrete, go-github-backed
// implementation.
package forge

import (
	"strconv"
	"time"
)

// PRState is the open/closed lifecycle state of a pull request.
type PRState string

const (
	PRStateOpen   PRState = "open"
	PRStateClosed PRState = "closed"
)

// User identifies a forge account.
type User struct {
	Login string
	Type  string // "User" or "Bot"
}

// IsBot reports whether the account is a bot, either by declared type or
// by the "[bot]" login suffix convention GitHub Apps use.
func (u User) IsBot() bool {
	if u.Type == "Bot" {
		return true
	}
	return hasBotSuffix(u.Login)
}

func hasBotSuffix(login string) bool {
	const suffix = "[bot]"
	return len(login) > len(suffix) && login[len(login)-len(suffix):] == suffix
}

// ReviewState is the outcome of a PR review.
type ReviewState string

const (
	ReviewApproved         ReviewState = "APPROVED"
	ReviewChangesRequested ReviewState = "CHANGES_REQUESTED"
	ReviewCommented        ReviewState = "COMMENTED"
	ReviewDismissed        ReviewState = "DISMISSED"
)

// Review is one PR review.
type Review struct {
	ID        int64
	Author    User
	State     ReviewState
	Body      string
	HeadHash  string // the commit the review was submitted against
	CreatedAt time.Time
}

// Comment is one PR (issue) comment, ordered by CreatedAt.
type Comment struct {
	ID        int64
	Author    User
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CommitComment is a comment attached to a commit on a mainline branch.
type CommitComment struct {
	ID        int64
	CommitSHA string
	Author    User
	Body      string
	CreatedAt time.Time
}

// FileChange is one changed path in a PR's diff, used by the labeler.
type FileChange struct {
	Path   string
	Status string // "added", "modified", "removed", "renamed"
}

// PullRequest is the bot's view of a PR. The forge owns it; the core
// mutates only through forge.Client operations.
type PullRequest struct {
	Repo         string // "owner/name"
	ID           int
	Title        string
	Body         string
	SourceBranch string
	TargetBranch string
	HeadHash     string
	State        PRState
	Draft        bool
	Labels       []string
	Reviews      []Review
	Comments     []Comment
	Author       User
	UpdatedAt    time.Time
	ChangedFiles []FileChange
}

// Key is the stable scheduler key for this PR, "pr:<repo>/<id>".
func (pr *PullRequest) Key() string {
	return "pr:" + pr.Repo + "/" + strconv.Itoa(pr.ID)
}

// HasLabel reports whether label l is currently present on the PR.
func (pr *PullRequest) HasLabel(l string) bool {
	for _, have := range pr.Labels {
		if have == l {
			return true
		}
	}
	return false
}

// Commit is the bot's view of a landed commit, used for commit-comment
// workflows (/backport, /tag, /branch).
type Commit struct {
	Repo           string
	Hash           string
	Message        string
	Author         User
	Committer      User
	Parents        []string
	CommitComments []CommitComment
}

// Key is the stable scheduler key for this commit, "commit:<repo>/<hash>".
func (c *Commit) Key() string {
	return "commit:" + c.Repo + "/" + c.Hash
}

// CheckConclusion is the result of a status check.
type CheckConclusion string

const (
	CheckSuccess    CheckConclusion = "success"
	CheckFailure    CheckConclusion = "failure"
	CheckInProgress CheckConclusion = "in_progress"
)

// CheckStatus is a named status check (e.g. "jcheck") attached to a commit.
type CheckStatus struct {
	Name       string
	CommitHash string
	Conclusion CheckConclusion
	Summary    string
	Metadata   map[string]string
}
