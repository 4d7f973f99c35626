package prstate

import (
	"context"
	"fmt"
	"strings"

	"github.com/cexll/reviewbot/internal/botconfig"
	"github.com/cexll/reviewbot/internal/census"
	"github.com/cexll/reviewbot/internal/command"
	"github.com/cexll/reviewbot/internal/forge"
	"github.com/cexll/reviewbot/internal/issuetracker"
)

// Reconciler runs the seven-step pipeline of spec.md §4.2 for one pull
// request per invocation. Grounded on the teacher's
// internal/github/postprocess.Processor: a fixed sequence of numbered
// steps, each allowed to short-circuit the rest by returning early.
type Reconciler struct {
	Forge        forge.Client
	Labeler      Labeler
	Materializer Materializer
	Jcheck       JcheckRunner
	Dispatcher   *command.Dispatcher
	Registry     *command.Registry
	BotLogin     string
	// IssueTracker enriches linked-issue references with the tracker's
	// own description when /issue didn't supply one (spec.md §6's "issue-
	// tracker linkage" policy). Nil disables enrichment; the checklist
	// still reflects the recorded intent either way.
	IssueTracker issuetracker.Client
}

// Reconcile runs all seven steps against pr, mutating it via Reconciler.Forge
// as needed, and returns the resulting projected state. project is the
// census project name used for role resolution (conventionally the
// repository's short name).
func (r *Reconciler) Reconcile(ctx context.Context, repo, project string, pr *forge.PullRequest, inst *census.CensusInstance, cfg *botconfig.Config) (Result, error) {
	if pr.Draft {
		labels := r.computeLabels(pr, nil)
		if err := r.applyLabels(ctx, repo, pr, labels); err != nil {
			return Result{}, err
		}
		return Result{State: StateDraft, HeadHash: pr.HeadHash, Labels: labels}, nil
	}

	headBefore := pr.HeadHash

	hc := r.buildContext(repo, project, pr, inst, cfg)

	// Step 1: normalize title from the latest issue intent, if any.
	r.normalizeTitle(ctx, repo, pr)

	// Step 2: re-run body commands (idempotent via the marker scan).
	if err := r.runBodyCommands(ctx, hc, pr); err != nil {
		return Result{}, err
	}

	// Step 2.5: re-run comment and review-body commands (also idempotent).
	if err := r.runCommentCommands(ctx, hc, pr); err != nil {
		return Result{}, err
	}
	if err := r.runReviewCommands(ctx, hc, pr); err != nil {
		return Result{}, err
	}

	// Step 3: materialize the proposed commit.
	mat, err := r.Materializer.Materialize(ctx, repo, pr)
	if err != nil {
		return Result{}, err
	}

	if pr.HeadHash != headBefore {
		// H changed mid-run: abort and let the scheduler re-run.
		return Result{Aborted: true, HeadHash: pr.HeadHash}, nil
	}

	if !mat.DiffApplies {
		labels := r.computeLabels(pr, nil)
		labels = addLabel(labels, "merge-conflict")
		if err := r.applyLabels(ctx, repo, pr, labels); err != nil {
			return Result{}, err
		}
		return Result{State: StateNeedsReview, HeadHash: pr.HeadHash, Labels: labels, MergeConflict: true}, nil
	}

	// Step 4: run jcheck, publish the status check.
	check, err := r.Jcheck.Run(ctx, repo, mat.ProposedHeadHash, pr)
	if err != nil {
		return Result{}, err
	}
	if err := r.Forge.SetStatusCheck(ctx, repo, check); err != nil {
		return Result{}, err
	}

	var intentReviewers struct {
		Count int    `json:"count"`
		Role  string `json:"role,omitempty"`
	}
	command.LatestIntent(pr.Comments, command.IntentReviewers, &intentReviewers)

	var intentCSRRequired bool
	hasCSRIntent := command.LatestIntent(pr.Comments, command.IntentCSR, &intentCSRRequired)

	sufficient := sufficientReviews(pr, inst, project, intentReviewers.Count, intentReviewers.Role)
	blocked := hasBlockingLabel(pr) || (hasCSRIntent && intentCSRRequired)
	committerCheck := project != "" && inst != nil && inst.IsCommitter(project, contributorIDFor(inst, pr.Author))

	state := StateNeedsReview
	switch {
	case check.Conclusion == forge.CheckSuccess && sufficient && !blocked:
		state = r.resolveReadyState(pr, committerCheck)
	default:
		state = StateNeedsReview
	}

	checklist := r.buildChecklist(pr, inst, project, sufficient, hasCSRIntent, intentCSRRequired)

	var issues []IssueRef
	var intentIssue struct {
		Action      string   `json:"action"`
		IDs         []string `json:"ids,omitempty"`
		Description string   `json:"description,omitempty"`
	}
	if command.LatestIntent(pr.Comments, command.IntentIssue, &intentIssue) {
		for _, id := range intentIssue.IDs {
			issues = append(issues, IssueRef{ID: id, Description: r.describeIssue(ctx, id, intentIssue.Description)})
		}
	}

	// Step 5: compute labels.
	labels := r.computeLabels(pr, nil)

	// Step 6: rewrite the PR body with the progress checklist.
	newBody := RenderBody(pr.Body, checklist, issues)
	if newBody != pr.Body {
		if err := r.Forge.SetBody(ctx, repo, pr.ID, newBody); err != nil {
			return Result{}, err
		}
	}

	if err := r.applyLabels(ctx, repo, pr, labels); err != nil {
		return Result{}, err
	}

	// Step 7: create or update the prePush instructional comment.
	prePush := RenderPrePushComment(state, mat.ProposedHeadHash, checklist, committerCheck)
	if err := r.upsertPrePushComment(ctx, repo, pr, state, mat.ProposedHeadHash, prePush); err != nil {
		return Result{}, err
	}

	return Result{State: state, HeadHash: mat.ProposedHeadHash, Labels: labels, PrePushComment: prePush}, nil
}

// describeIssue returns fallback (the description /issue recorded, if
// any) unless IssueTracker is configured and can resolve id to something
// more specific, e.g. "Bug (unresolved)". A tracker lookup failure is not
// fatal: the checklist still renders using whatever description is known.
func (r *Reconciler) describeIssue(ctx context.Context, id, fallback string) string {
	if fallback != "" || r.IssueTracker == nil {
		return fallback
	}
	issue, err := r.IssueTracker.Lookup(ctx, id)
	if err != nil || issue == nil {
		return fallback
	}
	status := "unresolved"
	if issue.Resolved {
		status = "resolved"
	}
	if issue.Type == "" {
		return fmt.Sprintf("(%s)", status)
	}
	return fmt.Sprintf("%s (%s)", issue.Type, status)
}

func (r *Reconciler) resolveReadyState(pr *forge.PullRequest, authorIsCommitter bool) State {
	var intent struct {
		Mode string `json:"mode"`
		Hash string `json:"hash,omitempty"`
	}
	if command.LatestIntent(pr.Comments, command.IntentIntegrate, &intent) {
		if !authorIsCommitter {
			// A non-committer author who already asked to /integrate is
			// waiting on a committer's /sponsor (spec.md §4.2 Ready-to-
			// sponsor: "the author issued /integrate and is not a
			// committer"). Committer standing is the census role, not
			// the integrators allow-list /branch uses.
			return StateReadyToSponsor
		}
	}
	return StateReadyToIntegrate
}

func (r *Reconciler) buildContext(repo, project string, pr *forge.PullRequest, inst *census.CensusInstance, cfg *botconfig.Config) *command.Context {
	return &command.Context{
		Forge:    r.Forge,
		Census:   inst,
		Config:   cfg,
		Repo:     repo,
		PR:       pr,
		BotLogin: r.BotLogin,
		RoleOf: func(user forge.User) command.Role {
			return ResolveCommandRole(inst, project, cfg, user)
		},
	}
}

func (r *Reconciler) normalizeTitle(ctx context.Context, repo string, pr *forge.PullRequest) {
	var intentIssue struct {
		Action string   `json:"action"`
		IDs    []string `json:"ids,omitempty"`
	}
	if !command.LatestIntent(pr.Comments, command.IntentIssue, &intentIssue) || len(intentIssue.IDs) == 0 {
		return
	}
	id := intentIssue.IDs[0]
	prefix := id + ": "
	if strings.HasPrefix(pr.Title, prefix) {
		return
	}
	newTitle := prefix + pr.Title
	if err := r.Forge.SetTitle(ctx, repo, pr.ID, newTitle); err == nil {
		pr.Title = newTitle
	}
}

func (r *Reconciler) runBodyCommands(ctx context.Context, hc *command.Context, pr *forge.PullRequest) error {
	raws := command.Parse(command.SourceBody, pr.Body)
	invs := toInvocations(raws, command.SourceBody, pr.Author, 0)
	return r.postReplies(ctx, hc, pr, invs)
}

func (r *Reconciler) runCommentCommands(ctx context.Context, hc *command.Context, pr *forge.PullRequest) error {
	var invs []command.Invocation
	for _, c := range pr.Comments {
		raws := command.Parse(command.SourceComment, c.Body)
		invs = append(invs, toInvocations(raws, command.SourceComment, c.Author, c.ID)...)
	}
	return r.postReplies(ctx, hc, pr, invs)
}

// runReviewCommands dispatches commands found in review bodies (spec.md
// §4.3 Inputs (c)). command.Parse already restricts these to a command on
// the review's leading line; the dispatcher's AllowedInBody capability
// gate (shared with the PR body) further restricts which commands a
// review may invoke at all.
func (r *Reconciler) runReviewCommands(ctx context.Context, hc *command.Context, pr *forge.PullRequest) error {
	var invs []command.Invocation
	for _, rev := range pr.Reviews {
		raws := command.Parse(command.SourceReview, rev.Body)
		invs = append(invs, toInvocations(raws, command.SourceReview, rev.Author, rev.ID)...)
	}
	return r.postReplies(ctx, hc, pr, invs)
}

func (r *Reconciler) postReplies(ctx context.Context, hc *command.Context, pr *forge.PullRequest, invs []command.Invocation) error {
	if len(invs) == 0 {
		return nil
	}
	botComments := botOnly(pr.Comments, r.BotLogin)
	replies, err := r.Dispatcher.Run(ctx, hc, invs, botComments)
	if err != nil {
		return err
	}
	for _, reply := range replies {
		if _, err := r.Forge.CreateComment(ctx, hc.Repo, pr.ID, reply.Body); err != nil {
			return err
		}
	}
	return nil
}

func toInvocations(raws []command.RawInvocation, source command.Source, user forge.User, componentID int64) []command.Invocation {
	out := make([]command.Invocation, 0, len(raws))
	for i, raw := range raws {
		out = append(out, command.Invocation{
			User:        user,
			Source:      source,
			CommandName: raw.CommandName,
			Arguments:   raw.Arguments,
			ComponentID: componentID,
			Ordinal:     i,
		})
	}
	return out
}

func botOnly(comments []forge.Comment, botLogin string) []forge.Comment {
	var out []forge.Comment
	for _, c := range comments {
		if strings.EqualFold(c.Author.Login, botLogin) {
			out = append(out, c)
		}
	}
	return out
}

func hasBlockingLabel(pr *forge.PullRequest) bool {
	for _, l := range blockingLabels {
		if pr.HasLabel(l) {
			return true
		}
	}
	return false
}

func addLabel(labels []string, l string) []string {
	for _, have := range labels {
		if have == l {
			return labels
		}
	}
	return append(labels, l)
}

func (r *Reconciler) computeLabels(pr *forge.PullRequest, extra []string) []string {
	set := map[string]bool{}
	if r.Labeler != nil {
		for _, l := range r.Labeler.Labels(pr.ChangedFiles) {
			set[l] = true
		}
	}
	for _, l := range pr.Labels {
		// Preserve manually-managed labels the labeler doesn't govern
		// (e.g. those set by /label, or bot state flags added as extra)
		// instead of dropping them as stale file-pattern labels.
		if r.Labeler == nil || !r.Labeler.Governs(l) {
			set[l] = true
		}
	}
	for _, l := range extra {
		set[l] = true
	}
	out := make([]string, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	return out
}

func (r *Reconciler) applyLabels(ctx context.Context, repo string, pr *forge.PullRequest, labels []string) error {
	if sameSet(pr.Labels, labels) {
		return nil
	}
	if err := r.Forge.SetLabels(ctx, repo, pr.ID, labels); err != nil {
		return err
	}
	pr.Labels = labels
	return nil
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := map[string]bool{}
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if !set[v] {
			return false
		}
	}
	return true
}

func (r *Reconciler) upsertPrePushComment(ctx context.Context, repo string, pr *forge.PullRequest, state State, headHash, body string) error {
	marker := PrePushMarkerFor(state, headHash)
	for _, c := range pr.Comments {
		if !strings.EqualFold(c.Author.Login, r.BotLogin) {
			continue
		}
		if strings.Contains(c.Body, prePushMarkerStart) {
			if strings.Contains(c.Body, marker) {
				return nil // already current
			}
			return r.Forge.UpdateComment(ctx, repo, c.ID, body)
		}
	}
	_, err := r.Forge.CreateComment(ctx, repo, pr.ID, body)
	return err
}

func contributorIDFor(inst *census.CensusInstance, user forge.User) string {
	if inst == nil {
		return ""
	}
	id, _ := inst.ContributorByForgeLogin("github", user.Login)
	return id
}

// ResolveCommandRole maps a forge user onto the command package's rank
// hierarchy using the census and bot configuration. Exported so
// internal/workitem can build a command.Context for commit-comment
// dispatch using the same role logic a PR reconcile pass uses.
func ResolveCommandRole(inst *census.CensusInstance, project string, cfg *botconfig.Config, user forge.User) command.Role {
	if cfg != nil && cfg.IsIntegrator(user.Login) {
		return command.RoleIntegrator
	}
	if inst != nil {
		id, ok := inst.ContributorByForgeLogin("github", user.Login)
		if ok {
			switch inst.RoleOf(project, id) {
			case census.RoleLead, census.RoleCommitter:
				return command.RoleCommitter
			case census.RoleReviewer:
				return command.RoleReviewer
			}
		}
	}
	return command.RoleAnyone
}

// sufficientReviews reports whether pr has enough approving reviews of at
// least requiredRole standing, at the current head hash. The count and
// role come from the /reviewers intent; without one, a single approval
// of reviewer standing is required. The repository configuration is not
// consulted.
func sufficientReviews(pr *forge.PullRequest, inst *census.CensusInstance, project string, requiredCount int, requiredRole string) bool {
	if requiredCount == 0 {
		requiredCount = 1
	}
	if requiredRole == "" {
		requiredRole = "reviewer"
	}

	approvals := map[string]bool{}
	for _, rev := range pr.Reviews {
		if rev.State != forge.ReviewApproved || rev.HeadHash != pr.HeadHash {
			continue
		}
		if meetsReviewerRole(inst, project, rev.Author, requiredRole) {
			approvals[strings.ToLower(rev.Author.Login)] = true
		}
	}
	return len(approvals) >= requiredCount
}

func meetsReviewerRole(inst *census.CensusInstance, project string, user forge.User, requiredRole string) bool {
	if requiredRole == "contributor" {
		return true
	}
	if inst == nil {
		return false
	}
	id, ok := inst.ContributorByForgeLogin("github", user.Login)
	if !ok {
		return false
	}
	role := inst.RoleOf(project, id)
	switch requiredRole {
	case "committer":
		return role == census.RoleCommitter || role == census.RoleLead
	case "author":
		return role == census.RoleAuthor || role == census.RoleCommitter || role == census.RoleLead || role == census.RoleReviewer
	default: // "reviewer"
		return role == census.RoleReviewer || role == census.RoleCommitter || role == census.RoleLead
	}
}
