// Package command implements C1 (command registry), C2 (command parser),
// and C6 (command dispatcher) of spec.md §4.3.
package command

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cexll/reviewbot/internal/botconfig"
	"github.com/cexll/reviewbot/internal/census"
	"github.com/cexll/reviewbot/internal/forge"
)

// Source is where an invocation was found.
type Source string

const (
	SourceBody    Source = "body"
	SourceComment Source = "comment"
	SourceReview  Source = "review"
)

// Role is the authorization level a handler may require.
type Role string

const (
	RoleAnyone     Role = "anyone"
	RoleAuthor     Role = "author"
	RoleCommitter  Role = "committer"
	RoleReviewer   Role = "reviewer"
	RoleIntegrator Role = "integrator"
	RoleBotSelf    Role = "bot-self"
)

// Invocation is one parsed command invocation.
type Invocation struct {
	User        forge.User
	Source      Source
	CommandName string
	Arguments   string

	// ComponentID identifies the comment or review the invocation came
	// from (0 for the PR/commit body). Together with Source and Ordinal
	// it forms the invocation's stable identity for idempotence.
	ComponentID int64
	// Ordinal is the invocation's position within its source text,
	// independent of argument content — so an edit that reintroduces the
	// same command at the same position is not treated as a new
	// invocation (spec.md §9 open question, resolved as "not re-run").
	Ordinal int

	// HasSelfMarker is true if a comment-sourced invocation's text carries
	// the "<!-- Valid self-command -->" marker, required for a bot-authored
	// comment's command to be honored.
	HasSelfMarker bool

	CreatedAt time.Time
}

// ID is the stable identity of this invocation used for the command-once
// idempotence check and the hidden reply marker.
func (inv Invocation) ID() string {
	switch inv.Source {
	case SourceBody:
		return "body#" + strconv.Itoa(inv.Ordinal)
	default:
		return string(inv.Source) + "#" + strconv.FormatInt(inv.ComponentID, 10) + "#" + strconv.Itoa(inv.Ordinal)
	}
}

// Context is the read-only view a handler receives. Handlers mutate PR
// state only through the Forge client, never by writing back into this
// struct — this avoids the shared-mutable-dispatcher state the teacher's
// class-based handlers would otherwise need (spec.md §9).
type Context struct {
	Forge  forge.Client
	Census *census.CensusInstance
	Config *botconfig.Config

	Repo string

	// Exactly one of PR or Commit is set, matching the invocation's
	// origin (a PR check or a commit-comment work item).
	PR     *forge.PullRequest
	Commit *forge.Commit

	// RoleOf resolves the role a given forge user holds for authorization
	// purposes. It is called once per invocation (not once per Context),
	// since a single dispatch run processes invocations authored by many
	// different users across a PR's comments and reviews.
	RoleOf func(user forge.User) Role

	// BotLogin is the bot's own forge account login, for the bot-self
	// authorization path.
	BotLogin string

	Now time.Time
}

// resolveRole calls hc.RoleOf if set, defaulting to RoleAnyone so a
// Context built without a resolver (e.g. in tests) still authorizes
// anyone-level commands.
func (hc *Context) resolveRole(user forge.User) Role {
	if hc.RoleOf == nil {
		return RoleAnyone
	}
	return hc.RoleOf(user)
}

// isAuthor reports whether user is literally the PR's author. Commands
// requiring RoleAuthor are PR-only (AllowedInCommit: false), so a commit
// Context never satisfies this check.
func (hc *Context) isAuthor(user forge.User) bool {
	if hc.PR == nil {
		return false
	}
	return strings.EqualFold(user.Login, hc.PR.Author.Login)
}

// Handler executes one command invocation and returns the markdown reply
// to post. On a non-nil error the dispatcher uses boterrors classification:
// a retryable error aborts without posting, while any other error still
// posts a reply (the returned reply if non-empty, otherwise the error text).
type Handler func(ctx context.Context, hc *Context, inv Invocation) (reply string, err error)

// Descriptor is a command's capability descriptor: the static facts the
// dispatcher needs to authorize and route an invocation, independent of
// any particular PR. Grounded on the teacher's modes.Mode interface,
// generalized from "one trigger, one mode" to a full per-command
// capability record (spec.md §4.3).
type Descriptor struct {
	Name string

	AllowedInPullRequest bool
	AllowedInCommit      bool
	AllowedInBody        bool

	RequiredRole Role

	// SelfCommandAllowed: whether a comment authored by the bot account
	// itself is honored for this command, and only when the hidden
	// "<!-- Valid self-command -->" marker is present.
	SelfCommandAllowed bool

	Summary string

	Handler Handler
}
