package command

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cexll/reviewbot/internal/forge"
)

// RegisterBuiltins installs every built-in command from spec.md §4.3's
// table into r. Handlers here only record intent (via hidden markers) or
// perform direct, idempotent forge mutations (labels, title); the
// integration protocol itself (C7) and PR-state rendering (C5) read these
// intents back out of the comment stream on their own reconcile pass, so
// this package never imports internal/prstate or internal/integrate.
func RegisterBuiltins(r *Registry) {
	r.Register(helpDescriptor(r))
	r.Register(integrateDescriptor())
	r.Register(sponsorDescriptor())
	r.Register(reviewersDescriptor())
	r.Register(contributorDescriptor())
	r.Register(issueDescriptor("issue"))
	r.Register(issueDescriptor("solves"))
	r.Register(summaryDescriptor())
	r.Register(labelDescriptor())
	r.Register(csrDescriptor())
	r.Register(backportDescriptor())
	r.Register(branchDescriptor())
}

func helpDescriptor(r *Registry) Descriptor {
	return Descriptor{
		Name:                 "help",
		AllowedInPullRequest: true,
		AllowedInCommit:      true,
		AllowedInBody:        true,
		RequiredRole:         RoleAnyone,
		Summary:              "List the commands available in this context.",
		Handler: func(_ context.Context, hc *Context, _ Invocation) (string, error) {
			isCommit := hc.Commit != nil
			var b strings.Builder
			b.WriteString("Available commands:\n")
			for _, d := range r.All() {
				if isCommit && !d.AllowedInCommit {
					continue
				}
				if !isCommit && !d.AllowedInPullRequest {
					continue
				}
				fmt.Fprintf(&b, "- `/%s` — %s\n", d.Name, d.Summary)
			}
			return b.String(), nil
		},
	}
}

type integrateIntent struct {
	Mode string `json:"mode"` // "auto", "manual", or "" (plain /integrate)
	Hash string `json:"hash,omitempty"`
}

func integrateDescriptor() Descriptor {
	return Descriptor{
		Name:                 "integrate",
		AllowedInPullRequest: true,
		AllowedInCommit:      false,
		AllowedInBody:        false,
		RequiredRole:         RoleAuthor,
		SelfCommandAllowed:   true,
		Summary:              "Integrate this pull request, optionally pinning the expected target hash or toggling auto mode.",
		Handler: func(ctx context.Context, hc *Context, inv Invocation) (string, error) {
			arg := strings.TrimSpace(inv.Arguments)
			intent := integrateIntent{}

			switch {
			case arg == "":
				// plain /integrate: integrate against the current target head
			case arg == "auto":
				intent.Mode = "auto"
				if err := addLabels(ctx, hc, "auto"); err != nil {
					return "", err
				}
			case arg == "manual":
				intent.Mode = "manual"
				if err := removeLabels(ctx, hc, "auto"); err != nil {
					return "", err
				}
			default:
				intent.Hash = arg
			}

			reply := "Going to push as soon as the automated pre-integration checks pass."
			if intent.Mode == "auto" {
				reply = "This pull request will be automatically integrated when it is ready."
			} else if intent.Mode == "manual" {
				reply = "Automatic integration has been disabled for this pull request."
			} else if intent.Hash != "" {
				reply = fmt.Sprintf("Going to push as soon as the target branch head is at `%s`.", intent.Hash)
			}

			return reply + "\n\n" + EncodeIntent(IntentIntegrate, intent), nil
		},
	}
}

type sponsorIntent struct {
	Hash string `json:"hash,omitempty"`
}

func sponsorDescriptor() Descriptor {
	return Descriptor{
		Name:                 "sponsor",
		AllowedInPullRequest: true,
		AllowedInCommit:      false,
		AllowedInBody:        false,
		RequiredRole:         RoleCommitter,
		Summary:              "Sponsor a previously /integrate'd pull request whose author cannot integrate directly.",
		Handler: func(_ context.Context, hc *Context, inv Invocation) (string, error) {
			if hc.PR != nil && strings.EqualFold(inv.User.Login, hc.PR.Author.Login) {
				return "The author of a pull request cannot sponsor their own integration.", nil
			}
			arg := strings.TrimSpace(inv.Arguments)
			intent := sponsorIntent{Hash: arg}
			return "Will now sponsor this pull request.\n\n" + EncodeIntent(IntentSponsor, intent), nil
		},
	}
}

type reviewersIntent struct {
	Count int    `json:"count"`
	Role  string `json:"role,omitempty"`
}

func reviewersDescriptor() Descriptor {
	return Descriptor{
		Name:                 "reviewers",
		AllowedInPullRequest: true,
		AllowedInCommit:      false,
		AllowedInBody:        true,
		RequiredRole:         RoleAuthor,
		Summary:              "Adjust the required reviewer count (and role) for this pull request.",
		Handler: func(_ context.Context, _ *Context, inv Invocation) (string, error) {
			fields := strings.Fields(inv.Arguments)
			if len(fields) == 0 {
				return "Usage: `/reviewers N [role]`.", nil
			}
			n, err := strconv.Atoi(fields[0])
			if err != nil || n < 0 || n > 5 {
				return "The number of reviewers must be an integer between 0 and 5.", nil
			}
			role := "reviewer"
			if len(fields) > 1 {
				role = strings.ToLower(fields[1])
			}
			switch role {
			case "reviewer", "committer", "author", "contributor":
			default:
				return fmt.Sprintf("Unknown reviewer role `%s`. Valid roles are reviewer, committer, author, contributor.", role), nil
			}
			reply := fmt.Sprintf("Requiring at least %d %s%s for this pull request.", n, role, pluralSuffix(n))
			return reply + "\n\n" + EncodeIntent(IntentReviewers, reviewersIntent{Count: n, Role: role}), nil
		},
	}
}

func pluralSuffix(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

type contributorIntent struct {
	Action string `json:"action"` // "add" or "remove"
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
}

func contributorDescriptor() Descriptor {
	return Descriptor{
		Name:                 "contributor",
		AllowedInPullRequest: true,
		AllowedInCommit:      false,
		AllowedInBody:        true,
		RequiredRole:         RoleAuthor,
		Summary:              "Add or remove an additional co-author credited on the integrated commit.",
		Handler: func(_ context.Context, _ *Context, inv Invocation) (string, error) {
			fields := strings.Fields(inv.Arguments)
			if len(fields) < 2 {
				return "Usage: `/contributor (add|remove) Name <email>`.", nil
			}
			action := strings.ToLower(fields[0])
			if action != "add" && action != "remove" {
				return "The first argument to `/contributor` must be `add` or `remove`.", nil
			}
			rest := strings.Join(fields[1:], " ")
			name, email := rest, ""
			if i := strings.LastIndex(rest, "<"); i >= 0 && strings.HasSuffix(rest, ">") {
				name = strings.TrimSpace(rest[:i])
				email = strings.Trim(rest[i:], "<>")
			}
			if action == "add" && (name == "" || email == "") {
				return "`/contributor add` requires both a name and an email address.", nil
			}
			reply := fmt.Sprintf("Contributor `%s` %sed.", name, action)
			return reply + "\n\n" + EncodeIntent(IntentContributor, contributorIntent{Action: action, Name: name, Email: email}), nil
		},
	}
}

type issueIntent struct {
	Action      string   `json:"action"` // "add", "remove", "create"
	IDs         []string `json:"ids,omitempty"`
	Description string   `json:"description,omitempty"`
}

func issueDescriptor(name string) Descriptor {
	return Descriptor{
		Name:                 name,
		AllowedInPullRequest: true,
		AllowedInCommit:      false,
		AllowedInBody:        true,
		RequiredRole:         RoleAuthor,
		Summary:              "Add, remove, or create additional issue links for this pull request.",
		Handler: func(_ context.Context, _ *Context, inv Invocation) (string, error) {
			arg := strings.TrimSpace(inv.Arguments)
			if arg == "" {
				return "Usage: `/" + name + " (add|remove|create …) | <id>[,<id>]… | <id>: <desc>`.", nil
			}

			fields := strings.Fields(arg)
			lower := strings.ToLower(fields[0])
			if lower == "add" || lower == "remove" || lower == "create" {
				rest := strings.TrimSpace(strings.TrimPrefix(arg, fields[0]))
				if lower == "create" {
					return "Created issue and linked it to this pull request.\n\n" +
						EncodeIntent(IntentIssue, issueIntent{Action: "create", Description: rest}), nil
				}
				ids := splitIDs(rest)
				verb := "Added"
				if lower == "remove" {
					verb = "Removed"
				}
				return fmt.Sprintf("%s issue link(s): %s.", verb, strings.Join(ids, ", ")) + "\n\n" +
					EncodeIntent(IntentIssue, issueIntent{Action: lower, IDs: ids}), nil
			}

			if idx := strings.Index(arg, ":"); idx >= 0 {
				id := strings.TrimSpace(arg[:idx])
				desc := strings.TrimSpace(arg[idx+1:])
				return fmt.Sprintf("Updated description for issue `%s`.", id) + "\n\n" +
					EncodeIntent(IntentIssue, issueIntent{Action: "add", IDs: []string{id}, Description: desc}), nil
			}

			ids := splitIDs(arg)
			return fmt.Sprintf("Added issue link(s): %s.", strings.Join(ids, ", ")) + "\n\n" +
				EncodeIntent(IntentIssue, issueIntent{Action: "add", IDs: ids}), nil
		},
	}
}

func splitIDs(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func summaryDescriptor() Descriptor {
	return Descriptor{
		Name:                 "summary",
		AllowedInPullRequest: true,
		AllowedInCommit:      false,
		AllowedInBody:        true,
		RequiredRole:         RoleAuthor,
		Summary:              "Set the commit message summary used when this pull request is integrated.",
		Handler: func(_ context.Context, _ *Context, inv Invocation) (string, error) {
			text := strings.TrimSpace(inv.Arguments)
			if text == "" {
				return "The commit message summary has been cleared.\n\n" + EncodeIntent(IntentSummary, text), nil
			}
			return "Setting the commit message summary to:\n\n" + text + "\n\n" + EncodeIntent(IntentSummary, text), nil
		},
	}
}

type labelIntent struct {
	Action string   `json:"action"`
	Names  []string `json:"names"`
}

func labelDescriptor() Descriptor {
	return Descriptor{
		Name:                 "label",
		AllowedInPullRequest: true,
		AllowedInCommit:      false,
		AllowedInBody:        true,
		RequiredRole:         RoleCommitter,
		Summary:              "Add or remove labels from the configured set.",
		Handler: func(ctx context.Context, hc *Context, inv Invocation) (string, error) {
			fields := strings.Fields(inv.Arguments)
			if len(fields) < 2 {
				return "Usage: `/label (add|remove) <name>…`.", nil
			}
			action := strings.ToLower(fields[0])
			if action != "add" && action != "remove" {
				return "The first argument to `/label` must be `add` or `remove`.", nil
			}
			names := fields[1:]
			if hc.Config != nil && len(hc.Config.LabelConfiguration) > 0 {
				configured := configuredLabels(hc.Config.LabelConfiguration)
				for _, n := range names {
					if !contains(configured, n) {
						return fmt.Sprintf("Label `%s` is not in the configured set of labels for this repository.", n), nil
					}
				}
			}

			var err error
			if action == "add" {
				err = addLabels(ctx, hc, names...)
			} else {
				err = removeLabels(ctx, hc, names...)
			}
			if err != nil {
				return "", err
			}
			verb := "Added"
			if action == "remove" {
				verb = "Removed"
			}
			return fmt.Sprintf("%s label(s): %s.", verb, strings.Join(names, ", ")) + "\n\n" +
				EncodeIntent(IntentLabel, labelIntent{Action: action, Names: names}), nil
		},
	}
}

// configuredLabels returns the label names governed by a labelConfiguration
// map (label -> ordered path regex list), the vocabulary /label is allowed
// to add or remove.
func configuredLabels(cfg map[string][]string) []string {
	out := make([]string, 0, len(cfg))
	for label := range cfg {
		out = append(out, label)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func csrDescriptor() Descriptor {
	return Descriptor{
		Name:                 "csr",
		AllowedInPullRequest: true,
		AllowedInCommit:      false,
		AllowedInBody:        true,
		RequiredRole:         RoleCommitter,
		Summary:              "Toggle whether a compatibility and specification review is required.",
		Handler: func(_ context.Context, _ *Context, inv Invocation) (string, error) {
			arg := strings.ToLower(strings.TrimSpace(inv.Arguments))
			switch arg {
			case "needed":
				return "A compatibility and specification review (CSR) is now required before this pull request can be integrated.\n\n" +
					EncodeIntent(IntentCSR, true), nil
			case "unneeded", "":
				return "A compatibility and specification review (CSR) is no longer required for this pull request.\n\n" +
					EncodeIntent(IntentCSR, false), nil
			default:
				return "Usage: `/csr [needed|unneeded]`.", nil
			}
		},
	}
}

func backportDescriptor() Descriptor {
	return Descriptor{
		Name:                 "backport",
		AllowedInPullRequest: true,
		AllowedInCommit:      true,
		AllowedInBody:        false,
		RequiredRole:         RoleCommitter,
		Summary:              "Create a backport of an integrated commit onto another repository or branch.",
		Handler: func(_ context.Context, hc *Context, inv Invocation) (string, error) {
			if hc.Commit == nil && (hc.PR == nil || hc.PR.State != forge.PRStateClosed || !hc.PR.HasLabel("integrated")) {
				return "`/backport` can only be used on commits, or on a pull request that has already been integrated.", nil
			}
			fields := strings.Fields(inv.Arguments)
			if len(fields) == 0 {
				return "Usage: `/backport <repo> [branch]`.", nil
			}
			repo := fields[0]
			branch := ""
			if len(fields) > 1 {
				branch = fields[1]
			}
			reply := fmt.Sprintf("Backport requested to `%s`.", repo)
			if branch != "" {
				reply = fmt.Sprintf("Backport requested to `%s` (branch `%s`).", repo, branch)
			}
			return reply + "\n\n" + EncodeIntent(IntentBackport, map[string]string{"repo": repo, "branch": branch}), nil
		},
	}
}

func branchDescriptor() Descriptor {
	return Descriptor{
		Name:                 "branch",
		AllowedInPullRequest: false,
		AllowedInCommit:      true,
		AllowedInBody:        false,
		RequiredRole:         RoleIntegrator,
		Summary:              "Create a branch pointing at this commit.",
		Handler: func(ctx context.Context, hc *Context, inv Invocation) (string, error) {
			name := strings.TrimSpace(inv.Arguments)
			if name == "" {
				return "Usage: `/branch <name>`.", nil
			}
			if hc.Commit == nil {
				return "`/branch` can only be used on commits.", nil
			}
			if err := hc.Forge.CreateBranch(ctx, hc.Repo, name, hc.Commit.Hash); err != nil {
				return "", err
			}
			return fmt.Sprintf("Branch `%s` has been created at `%s`.", name, hc.Commit.Hash), nil
		},
	}
}

// prNumber extracts the pull request number from hc, for handlers that
// only run in a pull-request context.
func prNumber(hc *Context) int {
	if hc.PR == nil {
		return 0
	}
	return hc.PR.ID
}

// addLabels and removeLabels adapt the command package's add/remove
// vocabulary onto forge.Client.SetLabels, which replaces the full set.
func addLabels(ctx context.Context, hc *Context, names ...string) error {
	if hc.PR == nil {
		return nil
	}
	set := map[string]bool{}
	for _, l := range hc.PR.Labels {
		set[l] = true
	}
	for _, n := range names {
		set[n] = true
	}
	return hc.Forge.SetLabels(ctx, hc.Repo, prNumber(hc), sortedKeys(set))
}

func removeLabels(ctx context.Context, hc *Context, names ...string) error {
	if hc.PR == nil {
		return nil
	}
	remove := map[string]bool{}
	for _, n := range names {
		remove[n] = true
	}
	set := map[string]bool{}
	for _, l := range hc.PR.Labels {
		if !remove[l] {
			set[l] = true
		}
	}
	return hc.Forge.SetLabels(ctx, hc.Repo, prNumber(hc), sortedKeys(set))
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
