package forgegh

import (
	"context"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"

	"github.com/cexll/reviewbot/internal/forge"
)

// Client implements forge.Client against the real GitHub API via
// go-github, authenticating each call with a per-repository installation
// token from Auth. Grounded on the teacher's internal/github/apicommit.go
// (get-ref -> get-commit -> create-tree -> create-commit -> CAS update-ref)
// for PushRef, and auth.go for the App/installation token exchange.
type Client struct {
	Auth *AppAuth
}

// NewClient constructs a Client authenticating through auth.
func NewClient(auth *AppAuth) *Client {
	return &Client{Auth: auth}
}

func (c *Client) client(ctx context.Context, repo string) (*gh.Client, error) {
	return c.Auth.ClientFor(ctx, repo)
}

func (c *Client) ListPullRequestsUpdatedSince(ctx context.Context, repo string, since time.Time) ([]*forge.PullRequest, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	var out []*forge.PullRequest
	err = withRetry(func() error {
		gc, err := c.client(ctx, repo)
		if err != nil {
			return err
		}
		opts := &gh.PullRequestListOptions{
			State:       "open",
			Sort:        "updated",
			Direction:   "desc",
			ListOptions: gh.ListOptions{PerPage: 100},
		}
		out = out[:0]
		for {
			prs, resp, err := gc.PullRequests.List(ctx, owner, name, opts)
			if err != nil {
				return err
			}
			stop := false
			for _, pr := range prs {
				if pr.GetUpdatedAt().Before(since) {
					stop = true
					break
				}
				full, err := c.fetchPullRequest(ctx, gc, owner, name, pr.GetNumber())
				if err != nil {
					return err
				}
				out = append(out, full)
			}
			if stop || resp.NextPage == 0 {
				break
			}
			opts.Page = resp.NextPage
		}
		return nil
	})
	return out, err
}

func (c *Client) GetPullRequest(ctx context.Context, repo string, number int) (*forge.PullRequest, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	var pr *forge.PullRequest
	err = withRetry(func() error {
		gc, err := c.client(ctx, repo)
		if err != nil {
			return err
		}
		pr, err = c.fetchPullRequest(ctx, gc, owner, name, number)
		return err
	})
	return pr, err
}

func (c *Client) fetchPullRequest(ctx context.Context, gc *gh.Client, owner, name string, number int) (*forge.PullRequest, error) {
	raw, _, err := gc.PullRequests.Get(ctx, owner, name, number)
	if err != nil {
		return nil, err
	}

	reviews, _, err := gc.PullRequests.ListReviews(ctx, owner, name, number, nil)
	if err != nil {
		return nil, err
	}
	comments, _, err := gc.Issues.ListComments(ctx, owner, name, number, nil)
	if err != nil {
		return nil, err
	}
	files, _, err := gc.PullRequests.ListFiles(ctx, owner, name, number, nil)
	if err != nil {
		return nil, err
	}

	pr := &forge.PullRequest{
		Repo:         owner + "/" + name,
		ID:           number,
		Title:        raw.GetTitle(),
		Body:         raw.GetBody(),
		SourceBranch: raw.GetHead().GetRef(),
		TargetBranch: raw.GetBase().GetRef(),
		HeadHash:     raw.GetHead().GetSHA(),
		State:        stateOf(raw),
		Draft:        raw.GetDraft(),
		Author:       userOf(raw.GetUser()),
		UpdatedAt:    raw.GetUpdatedAt(),
	}
	for _, l := range raw.Labels {
		pr.Labels = append(pr.Labels, l.GetName())
	}
	for _, r := range reviews {
		pr.Reviews = append(pr.Reviews, forge.Review{
			ID:        r.GetID(),
			Author:    userOf(r.GetUser()),
			State:     forge.ReviewState(strings.ToUpper(r.GetState())),
			Body:      r.GetBody(),
			HeadHash:  r.GetCommitID(),
			CreatedAt: r.GetSubmittedAt(),
		})
	}
	for _, cm := range comments {
		pr.Comments = append(pr.Comments, forge.Comment{
			ID:        cm.GetID(),
			Author:    userOf(cm.GetUser()),
			Body:      cm.GetBody(),
			CreatedAt: cm.GetCreatedAt(),
			UpdatedAt: cm.GetUpdatedAt(),
		})
	}
	for _, f := range files {
		pr.ChangedFiles = append(pr.ChangedFiles, forge.FileChange{Path: f.GetFilename(), Status: f.GetStatus()})
	}
	return pr, nil
}

func stateOf(pr *gh.PullRequest) forge.PRState {
	if pr.GetState() == "closed" {
		return forge.PRStateClosed
	}
	return forge.PRStateOpen
}

func userOf(u *gh.User) forge.User {
	if u == nil {
		return forge.User{}
	}
	typ := "User"
	if u.GetType() == "Bot" {
		typ = "Bot"
	}
	return forge.User{Login: u.GetLogin(), Type: typ}
}

func (c *Client) ListCommitCommentsSince(ctx context.Context, repo string, since time.Time) ([]*forge.CommitComment, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	var out []*forge.CommitComment
	err = withRetry(func() error {
		gc, err := c.client(ctx, repo)
		if err != nil {
			return err
		}
		opts := &gh.ListOptions{PerPage: 100}
		out = out[:0]
		for {
			comments, resp, err := gc.Repositories.ListCommitComments(ctx, owner, name, "", opts)
			if err != nil {
				return err
			}
			for _, cm := range comments {
				if cm.GetCreatedAt().Before(since) {
					continue
				}
				out = append(out, &forge.CommitComment{
					ID:        cm.GetID(),
					CommitSHA: cm.GetCommitID(),
					Author:    userOf(cm.GetUser()),
					Body:      cm.GetBody(),
					CreatedAt: cm.GetCreatedAt(),
				})
			}
			if resp.NextPage == 0 {
				break
			}
			opts.Page = resp.NextPage
		}
		return nil
	})
	return out, err
}

func (c *Client) GetCommit(ctx context.Context, repo, hash string) (*forge.Commit, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	var out *forge.Commit
	err = withRetry(func() error {
		gc, err := c.client(ctx, repo)
		if err != nil {
			return err
		}
		raw, _, err := gc.Repositories.GetCommit(ctx, owner, name, hash, nil)
		if err != nil {
			return err
		}
		commitComments, _, err := gc.Repositories.ListCommitComments(ctx, owner, name, hash, nil)
		if err != nil {
			return err
		}
		out = &forge.Commit{
			Repo:      repo,
			Hash:      raw.GetSHA(),
			Message:   raw.GetCommit().GetMessage(),
			Author:    userOf(raw.GetAuthor()),
			Committer: userOf(raw.GetCommitter()),
		}
		for _, p := range raw.Parents {
			out.Parents = append(out.Parents, p.GetSHA())
		}
		for _, cm := range commitComments {
			out.CommitComments = append(out.CommitComments, forge.CommitComment{
				ID:        cm.GetID(),
				CommitSHA: hash,
				Author:    userOf(cm.GetUser()),
				Body:      cm.GetBody(),
				CreatedAt: cm.GetCreatedAt(),
			})
		}
		return nil
	})
	return out, err
}

func (c *Client) CreateComment(ctx context.Context, repo string, number int, body string) (int64, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return 0, err
	}
	var id int64
	err = withRetry(func() error {
		gc, err := c.client(ctx, repo)
		if err != nil {
			return err
		}
		created, _, err := gc.Issues.CreateComment(ctx, owner, name, number, &gh.IssueComment{Body: &body})
		if err != nil {
			return err
		}
		id = created.GetID()
		return nil
	})
	return id, err
}

func (c *Client) UpdateComment(ctx context.Context, repo string, commentID int64, body string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	return withRetry(func() error {
		gc, err := c.client(ctx, repo)
		if err != nil {
			return err
		}
		_, _, err = gc.Issues.EditComment(ctx, owner, name, commentID, &gh.IssueComment{Body: &body})
		return err
	})
}

func (c *Client) DeleteComment(ctx context.Context, repo string, commentID int64) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	return withRetry(func() error {
		gc, err := c.client(ctx, repo)
		if err != nil {
			return err
		}
		_, err = gc.Issues.DeleteComment(ctx, owner, name, commentID)
		return err
	})
}

func (c *Client) SetLabels(ctx context.Context, repo string, number int, labels []string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	if labels == nil {
		labels = []string{}
	}
	return withRetry(func() error {
		gc, err := c.client(ctx, repo)
		if err != nil {
			return err
		}
		_, _, err = gc.Issues.ReplaceLabelsForIssue(ctx, owner, name, number, labels)
		return err
	})
}

func (c *Client) SetBody(ctx context.Context, repo string, number int, body string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	return withRetry(func() error {
		gc, err := c.client(ctx, repo)
		if err != nil {
			return err
		}
		_, _, err = gc.PullRequests.Edit(ctx, owner, name, number, &gh.PullRequest{Body: &body})
		return err
	})
}

func (c *Client) SetTitle(ctx context.Context, repo string, number int, title string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	return withRetry(func() error {
		gc, err := c.client(ctx, repo)
		if err != nil {
			return err
		}
		_, _, err = gc.PullRequests.Edit(ctx, owner, name, number, &gh.PullRequest{Title: &title})
		return err
	})
}

func (c *Client) ClosePullRequest(ctx context.Context, repo string, number int) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	closed := "closed"
	return withRetry(func() error {
		gc, err := c.client(ctx, repo)
		if err != nil {
			return err
		}
		_, _, err = gc.PullRequests.Edit(ctx, owner, name, number, &gh.PullRequest{State: &closed})
		return err
	})
}

func (c *Client) CreateCommitComment(ctx context.Context, repo, hash, body string) (int64, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return 0, err
	}
	var id int64
	err = withRetry(func() error {
		gc, err := c.client(ctx, repo)
		if err != nil {
			return err
		}
		created, _, err := gc.Repositories.CreateComment(ctx, owner, name, hash, &gh.RepositoryComment{Body: &body})
		if err != nil {
			return err
		}
		id = created.GetID()
		return nil
	})
	return id, err
}

func (c *Client) SetStatusCheck(ctx context.Context, repo string, status forge.CheckStatus) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	state := checkState(status.Conclusion)
	return withRetry(func() error {
		gc, err := c.client(ctx, repo)
		if err != nil {
			return err
		}
		_, _, err = gc.Repositories.CreateStatus(ctx, owner, name, status.CommitHash, &gh.RepoStatus{
			State:       &state,
			Context:     &status.Name,
			Description: &status.Summary,
		})
		return err
	})
}

func checkState(c forge.CheckConclusion) string {
	switch c {
	case forge.CheckSuccess:
		return "success"
	case forge.CheckFailure:
		return "failure"
	default:
		return "pending"
	}
}

func (c *Client) GetRef(ctx context.Context, repo, branch string) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}
	var sha string
	err = withRetry(func() error {
		gc, err := c.client(ctx, repo)
		if err != nil {
			return err
		}
		ref, _, err := gc.Git.GetRef(ctx, owner, name, "refs/heads/"+branch)
		if err != nil {
			return err
		}
		sha = ref.GetObject().GetSHA()
		return nil
	})
	return sha, err
}

// PushRef performs the compare-and-set branch update spec.md §4.4 requires:
// a direct git reference update succeeds only if expectedOldSHA still
// matches, since go-github's UpdateRef is itself a CAS against the ref's
// current value when force=false.
func (c *Client) PushRef(ctx context.Context, repo, branch, sha, expectedOldSHA string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	return withRetry(func() error {
		gc, err := c.client(ctx, repo)
		if err != nil {
			return err
		}
		if expectedOldSHA != "" {
			current, _, err := gc.Git.GetRef(ctx, owner, name, "refs/heads/"+branch)
			if err != nil {
				return err
			}
			if current.GetObject().GetSHA() != expectedOldSHA {
				return forge.ErrRefMoved
			}
		}
		noForce := false
		ref := &gh.Reference{
			Ref:    gh.String("refs/heads/" + branch),
			Object: &gh.GitObject{SHA: &sha},
		}
		_, _, err = gc.Git.UpdateRef(ctx, owner, name, ref, noForce)
		return err
	})
}

func (c *Client) WalkCommits(ctx context.Context, repo, start string, maxDepth int, visit func(hash string) bool) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	return withRetry(func() error {
		gc, err := c.client(ctx, repo)
		if err != nil {
			return err
		}
		hash := start
		for depth := 0; depth < maxDepth && hash != ""; depth++ {
			if !visit(hash) {
				return nil
			}
			commit, _, err := gc.Git.GetCommit(ctx, owner, name, hash)
			if err != nil {
				return err
			}
			if len(commit.Parents) == 0 {
				break
			}
			hash = commit.Parents[0].GetSHA()
		}
		return nil
	})
}

func (c *Client) CreateBranch(ctx context.Context, repo, branch, sha string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	return withRetry(func() error {
		gc, err := c.client(ctx, repo)
		if err != nil {
			return err
		}
		if _, _, err := gc.Git.GetRef(ctx, owner, name, "refs/heads/"+branch); err == nil {
			return nil // already exists
		}
		ref := &gh.Reference{
			Ref:    gh.String("refs/heads/" + branch),
			Object: &gh.GitObject{SHA: &sha},
		}
		_, _, err = gc.Git.CreateRef(ctx, owner, name, ref)
		return err
	})
}

// IsBotComment reports whether comment was authored by the bot identified
// by botLogin, the GitHub App's "<name>[bot]" convention.
func IsBotComment(comment forge.Comment, botLogin string) bool {
	return strings.EqualFold(comment.Author.Login, botLogin)
}
