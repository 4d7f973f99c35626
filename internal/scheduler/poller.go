package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Enqueuer is the subset of Scheduler a Poller needs, so tests can supply
// a fake without standing up a real worker pool.
type Enqueuer interface {
	Enqueue(item WorkItem) error
}

// PollSource produces work items discovered since a point in time. One
// implementation exists per tick source of spec.md §4.1: a ticker-driven
// pass over ListPullRequestsUpdatedSince/ListCommitCommentsSince, and (via
// a different, webhook-fed path) individual event-triggered enqueues that
// bypass the Poller entirely.
type PollSource interface {
	Poll(ctx context.Context, since time.Time) ([]WorkItem, error)
}

// Poller periodically asks every PollSource for work discovered since its
// last run and hands each item to Target. Grounded on the pack's
// ticker-driven Start(ctx)/ticker.C loop idiom (internal/unifi.Poller in
// the retrieval pack), adapted from device-location polling to PR/commit
// discovery.
type Poller struct {
	Target   Enqueuer
	Sources  []PollSource
	Interval time.Duration
	Log      *logrus.Entry

	since time.Time
}

// NewPoller creates a Poller. interval defaults to one minute if <= 0.
func NewPoller(target Enqueuer, sources []PollSource, interval time.Duration, log *logrus.Entry) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Poller{Target: target, Sources: sources, Interval: interval, Log: log}
}

// Start runs the polling loop until ctx is cancelled. It blocks, so
// callers run it in its own goroutine.
func (p *Poller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	since := p.since
	now := time.Now()

	for _, src := range p.Sources {
		items, err := src.Poll(ctx, since)
		if err != nil {
			p.Log.WithError(err).Warn("poll source failed; will retry next tick")
			continue
		}
		for _, item := range items {
			if err := p.Target.Enqueue(item); err != nil {
				p.Log.WithField("key", item.Key()).WithError(err).Warn("failed to enqueue discovered work item")
			}
		}
	}

	p.since = now
}
