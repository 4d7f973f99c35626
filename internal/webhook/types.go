package webhook

// GitHub webhook event payloads, trimmed to the fields this bot reads.
// Grounded on the teacher's internal/webhook/types.go, extended from one
// event kind (issue_comment) to the three spec.md §3 actually schedules
// work from: pull_request, issue_comment on a PR, and commit_comment.

// User identifies the GitHub account that triggered or authored an event.
type User struct {
	Login string `json:"login"`
	Type  string `json:"type"`
}

// Repository identifies the GitHub repository an event belongs to.
type Repository struct {
	FullName string `json:"full_name"`
}

// pullRequestEvent covers opened/synchronize/reopened/ready_for_review/
// labeled actions, the ones that can move a PR's head, labels, or body.
type pullRequestEvent struct {
	Action     string     `json:"action"`
	Number     int        `json:"number"`
	Repository Repository `json:"repository"`
	Sender     User       `json:"sender"`
}

// issue is the subset of a GitHub issue payload needed to tell a PR
// comment apart from a plain issue comment.
type issue struct {
	Number      int `json:"number"`
	PullRequest *struct {
		URL string `json:"url"`
	} `json:"pull_request,omitempty"`
}

// comment is a review-thread (issue_comment) comment, which is how
// GitHub delivers both top-level PR comments and command invocations.
type comment struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
	User User   `json:"user"`
}

// issueCommentEvent covers a comment created on either an issue or a PR;
// only the PR case (Issue.PullRequest != nil) feeds this bot's scheduler.
type issueCommentEvent struct {
	Action     string     `json:"action"`
	Issue      issue      `json:"issue"`
	Comment    comment    `json:"comment"`
	Repository Repository `json:"repository"`
	Sender     User       `json:"sender"`
}

// commitComment is a comment left directly on a commit, rather than on a
// PR's review thread.
type commitComment struct {
	ID       int64  `json:"id"`
	CommitID string `json:"commit_id"`
	Body     string `json:"body"`
	User     User   `json:"user"`
}

// commitCommentEvent covers a commit_comment webhook delivery, the
// second work-item kind of spec.md §3.
type commitCommentEvent struct {
	Action     string        `json:"action"`
	Comment    commitComment `json:"comment"`
	Repository Repository    `json:"repository"`
	Sender     User          `json:"sender"`
}

func (u User) isBot() bool {
	return u.Type == "Bot" || hasBotSuffix(u.Login)
}

func hasBotSuffix(login string) bool {
	const suffix = "[bot]"
	return len(login) > len(suffix) && login[len(login)-len(suffix):] == suffix
}
