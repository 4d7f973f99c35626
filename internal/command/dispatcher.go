package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/cexll/reviewbot/internal/boterrors"
	"github.com/cexll/reviewbot/internal/forge"
	"github.com/cexll/reviewbot/internal/metrics"
)

// markerPrefix begins every hidden dispatcher reply marker.
const markerPrefix = "<!-- command: '"
const markerSuffix = "' -->"

// buildMarker returns the hidden marker for invocationID, matching
// spec.md §4.3 "<!-- X: '<invocation-id>' -->".
func buildMarker(invocationID string) string {
	return markerPrefix + invocationID + markerSuffix
}

// alreadyReplied reports whether any comment in replies already carries
// the marker for invocationID.
func alreadyReplied(replies []forge.Comment, invocationID string) bool {
	needle := buildMarker(invocationID)
	for _, c := range replies {
		if strings.Contains(c.Body, needle) {
			return true
		}
	}
	return false
}

// Dispatcher runs commands against a Registry in comment order, enforcing
// authorization and the command-once idempotence guarantee (C6). The
// bot's own forge login is read per-call from Context.BotLogin, not fixed
// at construction, since one Dispatcher serves every repository the bot
// operates on.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher creates a Dispatcher over registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Reply is one posted (or to-be-posted) dispatcher reply.
type Reply struct {
	InvocationID string
	CommandName  string
	Body         string
}

// Run dispatches every invocation found in the PR/commit's body, comments,
// and reviews (in that priority then chronological order, per spec.md
// §4.3), skipping any already processed (command-once) or handled by an
// external consumer, and returns one Reply per invocation that was
// actually executed this run. botComments is the set of the bot's own
// existing comments, scanned for prior markers.
func (d *Dispatcher) Run(ctx context.Context, hc *Context, invocations []Invocation, botComments []forge.Comment) ([]Reply, error) {
	var replies []Reply

	for _, inv := range invocations {
		if alreadyReplied(botComments, inv.ID()) {
			continue
		}

		if hc.Config != nil {
			if inv.Source != SourceComment {
				// body/review invocations are never external-passthrough
			} else if hc.Commit == nil && hc.Config.IsExternalPullRequestCommand(inv.CommandName) {
				continue
			} else if hc.Commit != nil && hc.Config.IsExternalCommitCommand(inv.CommandName) {
				continue
			}
		}

		body, handled, err := d.dispatchOne(ctx, hc, inv)
		if err != nil {
			metrics.ObserveCommandDispatch(inv.CommandName, metrics.OutcomeFailure)
			return replies, err
		}
		if !handled {
			continue
		}
		metrics.ObserveCommandDispatch(inv.CommandName, metrics.OutcomeSuccess)

		replies = append(replies, Reply{
			InvocationID: inv.ID(),
			CommandName:  inv.CommandName,
			Body:         body + "\n\n" + buildMarker(inv.ID()),
		})
	}

	return replies, nil
}

// dispatchOne authorizes and executes a single invocation, returning the
// unmarked reply body and whether it was handled at all. It reports false
// for a bot-authored invocation that is not an allowed, marked self-command
// (silently ignored), and for a retryable handler error (returned so the
// caller can retry); every other invocation either executes or produces a
// canonical rejection reply.
func (d *Dispatcher) dispatchOne(ctx context.Context, hc *Context, inv Invocation) (string, bool, error) {
	isBotAuthor := hc.BotLogin != "" && strings.EqualFold(inv.User.Login, hc.BotLogin)
	if isBotAuthor {
		desc, ok := d.registry.Get(inv.CommandName)
		if !ok || !desc.SelfCommandAllowed || !inv.HasSelfMarker {
			return "", false, nil
		}
	}

	desc, ok := d.registry.Get(inv.CommandName)
	if !ok {
		return fmt.Sprintf("Unknown command `%s` — for a list of available commands, see `/help`.", inv.CommandName), true, nil
	}

	if reply, rejected := d.authorize(hc, desc, inv); rejected {
		return reply, true, nil
	}

	reply, err := desc.Handler(ctx, hc, inv)
	if err != nil {
		if !boterrors.IsRetryable(err) {
			// Semantic/user-input failures still produce a reply; the
			// handler is expected to have returned one alongside the
			// error for surfacing, but if it didn't, fall back to the
			// error text itself so nothing is silently swallowed.
			if reply == "" {
				reply = err.Error()
			}
			return reply, true, nil
		}
		return "", false, err
	}

	return reply, true, nil
}

// authorize applies the dispatcher's rejection predicate, which must
// match the Descriptor's declared capability exactly (spec.md §8: "no
// divergence between documentation and enforcement").
func (d *Dispatcher) authorize(hc *Context, desc Descriptor, inv Invocation) (reply string, rejected bool) {
	isCommitContext := hc.Commit != nil

	if inv.Source == SourceBody && !desc.AllowedInBody {
		return fmt.Sprintf("The command `/%s` cannot be used in the pull request body.", desc.Name), true
	}
	// A review body is a one-shot declarative blob like the PR body, not a
	// live back-and-forth like a comment, so it shares the same capability
	// gate (spec.md §4.3's "only commands whose capability allows it").
	if inv.Source == SourceReview && !desc.AllowedInBody {
		return fmt.Sprintf("The command `/%s` cannot be used in a review.", desc.Name), true
	}
	if isCommitContext && !desc.AllowedInCommit {
		return fmt.Sprintf("The command `/%s` can only be used in pull requests.", desc.Name), true
	}
	if !isCommitContext && !desc.AllowedInPullRequest {
		return fmt.Sprintf("The command `/%s` can only be used on commits.", desc.Name), true
	}

	if rejected, reply := d.authorizeRole(hc, desc, inv); rejected {
		return reply, true
	}

	return "", false
}

// roleRank orders roles from least to most privileged for the hierarchical
// (non-identity) half of authorization: a committer can do anything a
// reviewer can, an integrator anything a committer can. RoleAuthor is
// deliberately absent — authorship is an identity check ("is this user
// literally the PR's author"), not a rank a census role can satisfy.
var roleRank = map[Role]int{
	RoleAnyone:     0,
	RoleReviewer:   1,
	RoleCommitter:  2,
	RoleIntegrator: 3,
}

func (d *Dispatcher) authorizeRole(hc *Context, desc Descriptor, inv Invocation) (bool, string) {
	if desc.RequiredRole == RoleAnyone || desc.RequiredRole == "" {
		return false, ""
	}

	if desc.RequiredRole == RoleAuthor {
		if hc.isAuthor(inv.User) {
			return false, ""
		}
		return true, "Only the author of the pull request can use this command."
	}

	actual := hc.resolveRole(inv.User)
	if roleRank[actual] >= roleRank[desc.RequiredRole] {
		return false, ""
	}

	switch desc.RequiredRole {
	case RoleCommitter:
		return true, "Only a committer can use this command."
	case RoleReviewer:
		return true, "Only a reviewer can use this command."
	case RoleIntegrator:
		return true, "Only integrators can use this command."
	default:
		return true, "You are not authorized to use this command."
	}
}

// PendingInvocations filters invocations down to those not yet replied to,
// for callers that want to know what remains without executing anything
// (e.g. the state machine deciding whether an /integrate is still
// outstanding).
func PendingInvocations(invocations []Invocation, botComments []forge.Comment) []Invocation {
	var out []Invocation
	for _, inv := range invocations {
		if !alreadyReplied(botComments, inv.ID()) {
			out = append(out, inv)
		}
	}
	return out
}
