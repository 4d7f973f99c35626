// Package workitem wires the two work-item kinds of spec.md §3 (PR checks
// and commit-comment commands) into a single scheduler.Runner: fetch the
// current state from the forge, run C5's reconcile pass, and trigger C7's
// integration protocol once the PR is ready and a committer has asked for
// it. Grounded on the teacher's internal/executor/task.go: a numbered,
// linear Execute sequence over one webhook-sized unit of work.
package workitem

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cexll/reviewbot/internal/botconfig"
	"github.com/cexll/reviewbot/internal/census"
	"github.com/cexll/reviewbot/internal/command"
	"github.com/cexll/reviewbot/internal/forge"
	"github.com/cexll/reviewbot/internal/integrate"
	"github.com/cexll/reviewbot/internal/prstate"
	"github.com/cexll/reviewbot/internal/scheduler"
)

// PRItem schedules a reconcile pass for one pull request.
type PRItem struct {
	Repo   string
	Number int
}

// Key implements scheduler.WorkItem.
func (i PRItem) Key() string { return fmt.Sprintf("pr:%s/%d", i.Repo, i.Number) }

// CommitItem schedules a dispatch pass for commands left in a commit's
// comments (spec.md §3's second work-item kind).
type CommitItem struct {
	Repo string
	Hash string
}

// Key implements scheduler.WorkItem.
func (i CommitItem) Key() string { return fmt.Sprintf("commit:%s/%s", i.Repo, i.Hash) }

// CensusProvider resolves the current census snapshot for repo's project.
type CensusProvider interface {
	Census(ctx context.Context, repo string) (*census.CensusInstance, error)
}

// ConfigProvider resolves a repository's bot configuration.
type ConfigProvider interface {
	Config(ctx context.Context, repo string) (*botconfig.Config, error)
}

// ProtocolRunner is the one integrate.Protocol method Runner needs,
// narrowed to an interface (*integrate.Protocol satisfies it as-is) so
// tests can substitute a spy instead of wiring a full git/forge stack,
// the same interface-for-mockability shape the forge client is built on.
type ProtocolRunner interface {
	Run(ctx context.Context, req integrate.Request) (integrate.Result, error)
}

// Runner implements scheduler.Runner, dispatching each WorkItem to its
// reconcile-and-maybe-integrate sequence.
type Runner struct {
	Forge      forge.Client
	Reconciler *prstate.Reconciler
	Protocol   ProtocolRunner
	Census     CensusProvider
	Configs    ConfigProvider
	Dispatcher *command.Dispatcher
	BotLogin   string
	Log        *logrus.Entry
}

func (r *Runner) logger() *logrus.Entry {
	if r.Log != nil {
		return r.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// Run implements scheduler.Runner.
func (r *Runner) Run(ctx context.Context, item scheduler.WorkItem) error {
	switch it := item.(type) {
	case PRItem:
		return r.runPR(ctx, it)
	case CommitItem:
		return r.runCommit(ctx, it)
	default:
		return fmt.Errorf("workitem: unrecognized item %T", item)
	}
}

func (r *Runner) runPR(ctx context.Context, it PRItem) error {
	log := r.logger().WithField("repo", it.Repo).WithField("pr", it.Number)

	pr, err := r.Forge.GetPullRequest(ctx, it.Repo, it.Number)
	if err != nil {
		return fmt.Errorf("workitem: get pull request: %w", err)
	}

	cfg, err := r.Configs.Config(ctx, it.Repo)
	if err != nil {
		return fmt.Errorf("workitem: load config: %w", err)
	}
	if !cfg.ProcessesPullRequests() {
		return nil
	}

	inst, err := r.Census.Census(ctx, it.Repo)
	if err != nil {
		return fmt.Errorf("workitem: load census: %w", err)
	}

	project := projectOf(it.Repo)

	result, err := r.Reconciler.Reconcile(ctx, it.Repo, project, pr, inst, cfg)
	if err != nil {
		return fmt.Errorf("workitem: reconcile: %w", err)
	}
	if result.Aborted {
		log.Debug("head moved mid-reconcile; the next tick will retry")
		return nil
	}

	switch result.State {
	case prstate.StateReadyToIntegrate:
		return r.maybeIntegrate(ctx, it.Repo, project, pr, inst, cfg)
	case prstate.StateReadyToSponsor:
		return r.maybeSponsor(ctx, it.Repo, project, pr, inst, cfg)
	}
	return nil
}

// maybeIntegrate acts on a Ready-to-integrate PR only if integration has
// been asked for, either via a standing /integrate invocation or the
// "auto" label /integrate auto sets; a standing /integrate in manual mode
// withholds it. The author's committer standing is not checked here.
func (r *Runner) maybeIntegrate(ctx context.Context, repo, project string, pr *forge.PullRequest, inst *census.CensusInstance, cfg *botconfig.Config) error {
	var intent struct {
		Mode string `json:"mode"`
		Hash string `json:"hash,omitempty"`
	}
	hasIntent := command.LatestIntent(pr.Comments, command.IntentIntegrate, &intent)
	if !hasIntent && !pr.HasLabel("auto") {
		return nil
	}
	if intent.Mode == "manual" {
		return nil
	}

	req := integrate.Request{
		Repo:             repo,
		Project:          project,
		PR:               pr,
		Census:           inst,
		Cfg:              cfg,
		PinnedTargetHash: intent.Hash,
	}
	_, err := r.Protocol.Run(ctx, req)
	return err
}

// maybeSponsor acts on a Ready-to-sponsor PR once a committer has issued
// /sponsor; the committer performing the push is whoever authored that
// comment, not the PR's author.
func (r *Runner) maybeSponsor(ctx context.Context, repo, project string, pr *forge.PullRequest, inst *census.CensusInstance, cfg *botconfig.Config) error {
	sponsor, ok := command.LatestIntentAuthor(pr.Comments, command.IntentSponsor)
	if !ok {
		return nil
	}
	var intent struct {
		Hash string `json:"hash,omitempty"`
	}
	command.LatestIntent(pr.Comments, command.IntentSponsor, &intent)

	req := integrate.Request{
		Repo:             repo,
		Project:          project,
		PR:               pr,
		Census:           inst,
		Cfg:              cfg,
		CommitterLogin:   sponsor.Login,
		PinnedTargetHash: intent.Hash,
	}
	_, err := r.Protocol.Run(ctx, req)
	return err
}

// runCommit dispatches any commands left in a landed commit's comments
// (spec.md §3's second work-item kind: /backport, /tag, /branch and
// whatever else a deployment's externalCommitCommands advertises). Unlike
// a PR, a commit has no readiness state to project; this is the dispatch
// step alone, the commit-comment analogue of runPR's body/comment-command
// steps.
func (r *Runner) runCommit(ctx context.Context, it CommitItem) error {
	commit, err := r.Forge.GetCommit(ctx, it.Repo, it.Hash)
	if err != nil {
		return fmt.Errorf("workitem: get commit: %w", err)
	}

	cfg, err := r.Configs.Config(ctx, it.Repo)
	if err != nil {
		return fmt.Errorf("workitem: load config: %w", err)
	}
	if !cfg.ProcessesCommits() {
		return nil
	}

	inst, err := r.Census.Census(ctx, it.Repo)
	if err != nil {
		return fmt.Errorf("workitem: load census: %w", err)
	}

	project := projectOf(it.Repo)
	hc := &command.Context{
		Forge:    r.Forge,
		Census:   inst,
		Config:   cfg,
		Repo:     it.Repo,
		Commit:   commit,
		BotLogin: r.BotLogin,
		RoleOf: func(user forge.User) command.Role {
			return prstate.ResolveCommandRole(inst, project, cfg, user)
		},
	}

	var invs []command.Invocation
	for _, c := range commit.CommitComments {
		raws := command.Parse(command.SourceComment, c.Body)
		for i, raw := range raws {
			invs = append(invs, command.Invocation{
				User:        c.Author,
				Source:      command.SourceComment,
				CommandName: raw.CommandName,
				Arguments:   raw.Arguments,
				ComponentID: c.ID,
				Ordinal:     i,
				CreatedAt:   c.CreatedAt,
			})
		}
	}
	if len(invs) == 0 {
		return nil
	}

	botComments := botCommitCommentsOnly(commit.CommitComments, r.BotLogin)
	replies, err := r.Dispatcher.Run(ctx, hc, invs, botComments)
	if err != nil {
		return fmt.Errorf("workitem: dispatch commit commands: %w", err)
	}
	for _, reply := range replies {
		if _, err := r.Forge.CreateCommitComment(ctx, it.Repo, it.Hash, reply.Body); err != nil {
			return fmt.Errorf("workitem: post commit reply: %w", err)
		}
	}
	return nil
}

// botCommitCommentsOnly adapts forge.CommitComment into forge.Comment so
// the dispatcher's already-replied marker scan (which only knows about
// forge.Comment) can run over commit comments too.
func botCommitCommentsOnly(comments []forge.CommitComment, botLogin string) []forge.Comment {
	out := make([]forge.Comment, 0, len(comments))
	for _, c := range comments {
		if !strings.EqualFold(c.Author.Login, botLogin) {
			continue
		}
		out = append(out, forge.Comment{ID: c.ID, Author: c.Author, Body: c.Body, CreatedAt: c.CreatedAt})
	}
	return out
}

// projectOf derives the census project name from "owner/repo" (the
// OpenJDK/Skara convention the pack's fixtures use: the project name is
// the repository's short name).
func projectOf(repo string) string {
	if idx := strings.LastIndex(repo, "/"); idx >= 0 {
		return repo[idx+1:]
	}
	return repo
}
