package workitem

import (
	"context"
	"time"

	"github.com/cexll/reviewbot/internal/forge"
	"github.com/cexll/reviewbot/internal/scheduler"
)

// ForgePollSource implements scheduler.PollSource over a fixed set of
// repositories, turning ListPullRequestsUpdatedSince/
// ListCommitCommentsSince results into PRItem/CommitItem work items. This
// is the ticker-driven tick source of spec.md §4.1; the webhook receiver
// is the other, enqueuing directly rather than going through a Poller.
type ForgePollSource struct {
	Forge forge.Client
	Repos []string
}

// Poll implements scheduler.PollSource.
func (s *ForgePollSource) Poll(ctx context.Context, since time.Time) ([]scheduler.WorkItem, error) {
	var items []scheduler.WorkItem
	for _, repo := range s.Repos {
		prs, err := s.Forge.ListPullRequestsUpdatedSince(ctx, repo, since)
		if err != nil {
			return nil, err
		}
		for _, pr := range prs {
			items = append(items, PRItem{Repo: repo, Number: pr.ID})
		}

		comments, err := s.Forge.ListCommitCommentsSince(ctx, repo, since)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool, len(comments))
		for _, c := range comments {
			if seen[c.CommitSHA] {
				continue
			}
			seen[c.CommitSHA] = true
			items = append(items, CommitItem{Repo: repo, Hash: c.CommitSHA})
		}
	}
	return items, nil
}
