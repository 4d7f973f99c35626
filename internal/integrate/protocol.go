// Package integrate implements C7, the integration/sponsor protocol of
// spec.md §4.4: atomic push-and-finalize with crash recovery. Grounded on
// the teacher's internal/github/branch/manager.go and apicommit.go
// (compare-and-set ref update sequence) and internal/github/retry.go
// (bounded retry on a rejected push).
package integrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/cexll/reviewbot/internal/botconfig"
	"github.com/cexll/reviewbot/internal/census"
	"github.com/cexll/reviewbot/internal/forge"
	"github.com/cexll/reviewbot/internal/gitplumbing"
	"github.com/cexll/reviewbot/internal/metrics"
	"github.com/cexll/reviewbot/internal/seedstorage"
)

const maxPushAttempts = 3

// Protocol runs C7 for one PR that internal/prstate has already projected
// onto Ready-to-integrate or Ready-to-sponsor, and whose pending command
// the work-item runner has determined should be acted on now.
type Protocol struct {
	Forge             forge.Client
	Git               *gitplumbing.Git
	Seeds             *seedstorage.Store
	WorkRoot          string
	RemoteURLFor      func(repo string) string
	RecoveryWalkDepth int // default 50
}

func (p *Protocol) remoteURL(repo string) string {
	if p.RemoteURLFor != nil {
		return p.RemoteURLFor(repo)
	}
	return fmt.Sprintf("https://github.com/%s.git", repo)
}

func (p *Protocol) recoveryDepth() int {
	if p.RecoveryWalkDepth > 0 {
		return p.RecoveryWalkDepth
	}
	return 50
}

// Request carries the inputs Run needs beyond the PR itself.
type Request struct {
	Repo             string
	Project          string
	PR               *forge.PullRequest
	Census           *census.CensusInstance
	Cfg              *botconfig.Config
	CommitterLogin   string // who is performing the integration: the author, or a sponsoring committer
	PinnedTargetHash string // from /integrate <hash>; empty means "current target head"
	BackportOfHash   string
}

// Result is the outcome of one Run.
type Result struct {
	Integrated bool
	CommitHash string
	Recovered  bool
}

// Run executes the protocol for req, resuming from a crash if req.PR
// already carries an unfinished push-anchor marker, and records the
// outcome for C17's integration metrics.
func (p *Protocol) Run(ctx context.Context, req Request) (Result, error) {
	result, err := p.run(ctx, req)
	metrics.ObserveIntegrationOutcome(outcomeLabel(req, result, err))
	return result, err
}

func outcomeLabel(req Request, result Result, err error) string {
	switch {
	case err != nil:
		return "failed"
	case result.Recovered:
		return "recovered"
	case req.CommitterLogin != "":
		return "sponsored"
	default:
		return "integrated"
	}
}

func (p *Protocol) run(ctx context.Context, req Request) (Result, error) {
	if req.PR.State != forge.PRStateOpen {
		return Result{}, userErrorf("the pull request is not open")
	}
	if !req.PR.HasLabel("ready") {
		return Result{}, userErrorf("the pull request is not marked ready")
	}

	if anchor, ok := findPushAnchor(req.PR); ok {
		return p.recover(ctx, req, anchor)
	}

	var lastErr error
	for attempt := 0; attempt < maxPushAttempts; attempt++ {
		result, err := p.attempt(ctx, req)
		if err == nil {
			return result, nil
		}
		if err != forge.ErrRefMoved {
			return Result{}, err
		}
		lastErr = err
	}
	return Result{}, semanticErrorf("integration request cannot be fulfilled at this time: %v", lastErr)
}

// attempt performs one full pass of steps 1-4: materialize, compose the
// commit, post the pre-push anchor, push, and finalize.
func (p *Protocol) attempt(ctx context.Context, req Request) (Result, error) {
	repo, pr := req.Repo, req.PR

	unlock := p.Seeds.Lock(repo)
	defer unlock()

	bare := p.Seeds.BareClonePath(repo)
	if err := p.Git.EnsureBareClone(bare, p.remoteURL(repo)); err != nil {
		return Result{}, boterrorsTransient(err)
	}

	wt, err := p.Git.NewScopedWorktree(p.WorkRoot, bare, "")
	if err != nil {
		return Result{}, boterrorsTransient(err)
	}
	defer wt.Close()

	targetHead, err := wt.Resolve("origin/" + pr.TargetBranch)
	if err != nil {
		return Result{}, boterrorsTransient(err)
	}
	if req.PinnedTargetHash != "" && targetHead != req.PinnedTargetHash {
		return Result{}, semanticErrorf("the target branch is no longer at the requested hash")
	}

	prRef := fmt.Sprintf("refs/pull/%d/head", pr.ID)
	localPR := fmt.Sprintf("pr-%d", pr.ID)
	if err := wt.Fetch("origin", prRef+":"+localPR); err != nil {
		return Result{}, boterrorsTransient(err)
	}

	isMerge := mergeTitleRe.MatchString(pr.Title)
	var conflict bool
	if isMerge {
		if err := wt.Checkout("origin/" + pr.TargetBranch); err != nil {
			return Result{}, boterrorsTransient(err)
		}
		conflict, err = wt.Merge(localPR, gitplumbing.MergeStrategyRecursive)
	} else {
		if err := wt.Checkout(localPR); err != nil {
			return Result{}, boterrorsTransient(err)
		}
		conflict, err = wt.Rebase("origin/" + pr.TargetBranch)
	}
	if err != nil {
		return Result{}, boterrorsTransient(err)
	}
	if conflict {
		_ = p.Forge.SetLabels(ctx, repo, pr.ID, removeLabel(pr.Labels, "ready"))
		return Result{}, semanticErrorf("this pull request can not be integrated; please merge target")
	}

	authorIdentity, committerIdentity := p.resolveIdentities(req)
	msg := buildCommitMessage(pr, req.BackportOfHash)

	candidateHash, err := wt.Amend(authorIdentity, committerIdentity, msg.String())
	if err != nil {
		return Result{}, boterrorsTransient(err)
	}

	anchor := pushAnchor{
		PRID:          pr.ID,
		TargetBranch:  pr.TargetBranch,
		TargetHead:    targetHead,
		CandidateHash: candidateHash,
		Digest:        digestMessage(msg.String()),
	}
	if err := p.postPushAnchor(ctx, repo, pr, anchor); err != nil {
		return Result{}, boterrorsTransient(err)
	}

	if err := p.Forge.PushRef(ctx, repo, pr.TargetBranch, candidateHash, targetHead); err != nil {
		if err == forge.ErrRefMoved {
			return Result{}, forge.ErrRefMoved
		}
		return Result{}, boterrorsTransient(err)
	}

	if err := p.finalize(ctx, repo, pr, candidateHash); err != nil {
		return Result{}, err
	}
	return Result{Integrated: true, CommitHash: candidateHash}, nil
}

// postPushAnchor posts the "Going to push as commit…" comment unless an
// existing, consistent one already covers this exact candidate.
func (p *Protocol) postPushAnchor(ctx context.Context, repo string, pr *forge.PullRequest, anchor pushAnchor) error {
	if existing, ok := findPushAnchor(pr); ok && existing == anchor {
		return nil
	}
	body := fmt.Sprintf("Going to push as commit `%s`.\n\n%s", anchor.CandidateHash, encodePushAnchor(anchor))
	_, err := p.Forge.CreateComment(ctx, repo, pr.ID, body)
	return err
}

// finalize performs steps 3-4: the "Pushed as commit" comment, close, and
// relabel. Idempotent so crash recovery can re-run it safely.
func (p *Protocol) finalize(ctx context.Context, repo string, pr *forge.PullRequest, hash string) error {
	if !hasPushedComment(pr, hash) {
		if _, err := p.Forge.CreateComment(ctx, repo, pr.ID, fmt.Sprintf("Pushed as commit `%s`.", hash)); err != nil {
			return boterrorsTransient(err)
		}
	}
	if pr.State != forge.PRStateClosed {
		if err := p.Forge.ClosePullRequest(ctx, repo, pr.ID); err != nil {
			return boterrorsTransient(err)
		}
	}
	labels := removeLabel(removeLabel(removeLabel(pr.Labels, "ready"), "rfr"), "sponsor")
	labels = addLabelIfMissing(labels, "integrated")
	if err := p.Forge.SetLabels(ctx, repo, pr.ID, labels); err != nil {
		return boterrorsTransient(err)
	}
	return nil
}

// recover implements spec.md §4.4's crash recovery: a re-entry finds an
// unfinished push-anchor marker and must determine, without ever
// re-pushing, whether the described commit already landed.
func (p *Protocol) recover(ctx context.Context, req Request, anchor pushAnchor) (Result, error) {
	repo, pr := req.Repo, req.PR

	var matchedHash string
	walkErr := p.Forge.WalkCommits(ctx, repo, pr.TargetBranch, p.recoveryDepth(), func(hash string) bool {
		commit, err := p.Forge.GetCommit(ctx, repo, hash)
		if err != nil {
			return true // keep walking; a transient lookup failure shouldn't abort recovery
		}
		if digestMessage(commit.Message) == anchor.Digest {
			matchedHash = hash
			return false
		}
		return true
	})
	if walkErr != nil {
		return Result{}, boterrorsTransient(walkErr)
	}

	if matchedHash != "" {
		if err := p.finalize(ctx, repo, pr, matchedHash); err != nil {
			return Result{}, err
		}
		return Result{Integrated: true, CommitHash: matchedHash, Recovered: true}, nil
	}

	// The anchored commit never landed: safe to restart from step 1. A
	// fresh attempt posts a new anchor; the stale one is simply superseded.
	return p.attempt(ctx, req)
}

func (p *Protocol) resolveIdentities(req Request) (author, committer gitplumbing.Identity) {
	author = identityFor(req.Census, req.PR.Author.Login)
	committerLogin := req.CommitterLogin
	if committerLogin == "" {
		committerLogin = req.PR.Author.Login
	}
	committer = identityFor(req.Census, committerLogin)
	return author, committer
}

func identityFor(inst *census.CensusInstance, login string) gitplumbing.Identity {
	if inst != nil {
		if id, ok := inst.ContributorByForgeLogin("github", login); ok {
			c := inst.Contributors[id]
			return gitplumbing.Identity{Name: c.FullName, Email: login + "@users.noreply.github.com"}
		}
	}
	return gitplumbing.Identity{Name: login, Email: login + "@users.noreply.github.com"}
}

func hasPushedComment(pr *forge.PullRequest, hash string) bool {
	want := fmt.Sprintf("Pushed as commit `%s`.", hash)
	for _, c := range pr.Comments {
		if strings.Contains(c.Body, want) {
			return true
		}
	}
	return false
}

func removeLabel(labels []string, name string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if l != name {
			out = append(out, l)
		}
	}
	return out
}

func addLabelIfMissing(labels []string, name string) []string {
	for _, l := range labels {
		if l == name {
			return labels
		}
	}
	return append(labels, name)
}
