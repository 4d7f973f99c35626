package ratelimit

import (
	"context"
	"time"

	"github.com/cexll/reviewbot/internal/forge"
)

// LimitedClient wraps a forge.Client, suspending every call on a shared
// token bucket before it reaches the underlying client.
type LimitedClient struct {
	Client  forge.Client
	limiter *Limiter
}

// Wrap returns a forge.Client that rate-limits calls to client.
func Wrap(client forge.Client, limiter *Limiter) forge.Client {
	return &LimitedClient{Client: client, limiter: limiter}
}

func (c *LimitedClient) wait(ctx context.Context) error { return c.limiter.Wait(ctx) }

func (c *LimitedClient) ListPullRequestsUpdatedSince(ctx context.Context, repo string, since time.Time) ([]*forge.PullRequest, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.Client.ListPullRequestsUpdatedSince(ctx, repo, since)
}

func (c *LimitedClient) GetPullRequest(ctx context.Context, repo string, number int) (*forge.PullRequest, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.Client.GetPullRequest(ctx, repo, number)
}

func (c *LimitedClient) ListCommitCommentsSince(ctx context.Context, repo string, since time.Time) ([]*forge.CommitComment, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.Client.ListCommitCommentsSince(ctx, repo, since)
}

func (c *LimitedClient) GetCommit(ctx context.Context, repo, hash string) (*forge.Commit, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.Client.GetCommit(ctx, repo, hash)
}

func (c *LimitedClient) CreateComment(ctx context.Context, repo string, number int, body string) (int64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	return c.Client.CreateComment(ctx, repo, number, body)
}

func (c *LimitedClient) UpdateComment(ctx context.Context, repo string, commentID int64, body string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return c.Client.UpdateComment(ctx, repo, commentID, body)
}

func (c *LimitedClient) DeleteComment(ctx context.Context, repo string, commentID int64) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return c.Client.DeleteComment(ctx, repo, commentID)
}

func (c *LimitedClient) SetLabels(ctx context.Context, repo string, number int, labels []string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return c.Client.SetLabels(ctx, repo, number, labels)
}

func (c *LimitedClient) SetBody(ctx context.Context, repo string, number int, body string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return c.Client.SetBody(ctx, repo, number, body)
}

func (c *LimitedClient) SetTitle(ctx context.Context, repo string, number int, title string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return c.Client.SetTitle(ctx, repo, number, title)
}

func (c *LimitedClient) ClosePullRequest(ctx context.Context, repo string, number int) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return c.Client.ClosePullRequest(ctx, repo, number)
}

func (c *LimitedClient) CreateCommitComment(ctx context.Context, repo, hash, body string) (int64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	return c.Client.CreateCommitComment(ctx, repo, hash, body)
}

func (c *LimitedClient) SetStatusCheck(ctx context.Context, repo string, status forge.CheckStatus) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return c.Client.SetStatusCheck(ctx, repo, status)
}

func (c *LimitedClient) GetRef(ctx context.Context, repo, branch string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	return c.Client.GetRef(ctx, repo, branch)
}

func (c *LimitedClient) PushRef(ctx context.Context, repo, branch, sha, expectedOldSHA string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return c.Client.PushRef(ctx, repo, branch, sha, expectedOldSHA)
}

func (c *LimitedClient) WalkCommits(ctx context.Context, repo, start string, maxDepth int, visit func(hash string) bool) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return c.Client.WalkCommits(ctx, repo, start, maxDepth, visit)
}

func (c *LimitedClient) CreateBranch(ctx context.Context, repo, branch, sha string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return c.Client.CreateBranch(ctx, repo, branch, sha)
}
