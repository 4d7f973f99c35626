package command

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cexll/reviewbot/internal/boterrors"
	"github.com/cexll/reviewbot/internal/forge"
)

func testRegistry() *Registry {
	r := NewRegistry()
	r.Register(Descriptor{
		Name:                 "echo",
		AllowedInPullRequest: true,
		AllowedInCommit:      true,
		AllowedInBody:        true,
		RequiredRole:         RoleAnyone,
		Handler: func(_ context.Context, _ *Context, inv Invocation) (string, error) {
			return "echo: " + inv.Arguments, nil
		},
	})
	r.Register(Descriptor{
		Name:                 "integrators-only",
		AllowedInPullRequest: true,
		AllowedInCommit:      true,
		RequiredRole:         RoleIntegrator,
		Handler: func(_ context.Context, _ *Context, _ Invocation) (string, error) {
			return "done", nil
		},
	})
	r.Register(Descriptor{
		Name:                 "body-only",
		AllowedInPullRequest: true,
		AllowedInBody:        true,
		RequiredRole:         RoleAnyone,
		Handler: func(_ context.Context, _ *Context, _ Invocation) (string, error) {
			return "ok", nil
		},
	})
	r.Register(Descriptor{
		Name:                 "flaky",
		AllowedInPullRequest: true,
		RequiredRole:         RoleAnyone,
		Handler: func(_ context.Context, _ *Context, _ Invocation) (string, error) {
			return "", boterrors.Transient(errors.New("forge unavailable"))
		},
	})
	return r
}

func roleOf(role Role) func(forge.User) Role {
	return func(forge.User) Role { return role }
}

func baseContext() *Context {
	return &Context{
		PR:       &forge.PullRequest{ID: 1, Repo: "test/repo", Author: forge.User{Login: "alice"}},
		RoleOf:   roleOf(RoleAnyone),
		BotLogin: "reviewbot[bot]",
		Now:      time.Now(),
	}
}

func TestDispatcherPostsOneReplyPerInvocation(t *testing.T) {
	d := NewDispatcher(testRegistry())
	invs := []Invocation{
		{Source: SourceComment, CommandName: "echo", Arguments: "hi", ComponentID: 1, Ordinal: 0},
	}
	replies, err := d.Run(context.Background(), baseContext(), invs, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(replies))
	}
	if !strings.Contains(replies[0].Body, "echo: hi") {
		t.Fatalf("unexpected reply body: %s", replies[0].Body)
	}
	if !strings.Contains(replies[0].Body, buildMarker(invs[0].ID())) {
		t.Fatalf("expected reply to carry its marker, got: %s", replies[0].Body)
	}
}

func TestDispatcherSkipsAlreadyRepliedInvocation(t *testing.T) {
	d := NewDispatcher(testRegistry())
	inv := Invocation{Source: SourceComment, CommandName: "echo", Arguments: "hi", ComponentID: 1, Ordinal: 0}
	existing := []forge.Comment{{Body: "previous reply\n\n" + buildMarker(inv.ID())}}

	replies, err := d.Run(context.Background(), baseContext(), []Invocation{inv}, existing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(replies) != 0 {
		t.Fatalf("expected no replies for an already-processed invocation, got %d", len(replies))
	}
}

func TestDispatcherUnknownCommand(t *testing.T) {
	d := NewDispatcher(testRegistry())
	inv := Invocation{Source: SourceComment, CommandName: "frobnicate", ComponentID: 1, Ordinal: 0}

	replies, err := d.Run(context.Background(), baseContext(), []Invocation{inv}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(replies) != 1 || !strings.Contains(replies[0].Body, "Unknown command `frobnicate`") {
		t.Fatalf("unexpected replies: %+v", replies)
	}
}

func TestDispatcherRejectsWrongRole(t *testing.T) {
	d := NewDispatcher(testRegistry())
	inv := Invocation{Source: SourceComment, CommandName: "integrators-only", ComponentID: 1, Ordinal: 0}
	hc := baseContext()
	hc.RoleOf = roleOf(RoleAnyone)

	replies, err := d.Run(context.Background(), hc, []Invocation{inv}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(replies) != 1 || !strings.Contains(replies[0].Body, "Only integrators") {
		t.Fatalf("unexpected replies: %+v", replies)
	}
}

func TestDispatcherRejectsBodyDisallowedCommand(t *testing.T) {
	d := NewDispatcher(testRegistry())
	inv := Invocation{Source: SourceBody, CommandName: "integrators-only", Ordinal: 0}
	hc := baseContext()
	hc.RoleOf = roleOf(RoleIntegrator)

	replies, err := d.Run(context.Background(), hc, []Invocation{inv}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(replies) != 1 || !strings.Contains(replies[0].Body, "cannot be used in the pull request body") {
		t.Fatalf("unexpected replies: %+v", replies)
	}
}

func TestDispatcherRejectsReviewDisallowedCommand(t *testing.T) {
	d := NewDispatcher(testRegistry())
	inv := Invocation{Source: SourceReview, CommandName: "integrators-only", ComponentID: 1, Ordinal: 0}
	hc := baseContext()
	hc.RoleOf = roleOf(RoleIntegrator)

	replies, err := d.Run(context.Background(), hc, []Invocation{inv}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(replies) != 1 || !strings.Contains(replies[0].Body, "cannot be used in a review") {
		t.Fatalf("unexpected replies: %+v", replies)
	}
}

func TestDispatcherAllowsReviewCapableCommand(t *testing.T) {
	d := NewDispatcher(testRegistry())
	inv := Invocation{Source: SourceReview, CommandName: "body-only", ComponentID: 1, Ordinal: 0}

	replies, err := d.Run(context.Background(), baseContext(), []Invocation{inv}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(replies) != 1 || !strings.Contains(replies[0].Body, "ok") {
		t.Fatalf("expected a body-capable command to also run from a review, got: %+v", replies)
	}
}

func TestDispatcherIntegratorSatisfiesCommitterRequirement(t *testing.T) {
	r := NewRegistry()
	r.Register(Descriptor{
		Name:                 "committers-only",
		AllowedInPullRequest: true,
		RequiredRole:         RoleCommitter,
		Handler: func(_ context.Context, _ *Context, _ Invocation) (string, error) {
			return "done", nil
		},
	})
	d := NewDispatcher(r)
	inv := Invocation{Source: SourceComment, CommandName: "committers-only", ComponentID: 1, Ordinal: 0}
	hc := baseContext()
	hc.RoleOf = roleOf(RoleIntegrator)

	replies, err := d.Run(context.Background(), hc, []Invocation{inv}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(replies) != 1 || !strings.Contains(replies[0].Body, "done") {
		t.Fatalf("expected an integrator to satisfy a committer-level requirement, got: %+v", replies)
	}
}

func TestDispatcherAuthorCheckIsIdentityNotRank(t *testing.T) {
	r := NewRegistry()
	r.Register(Descriptor{
		Name:                 "author-only",
		AllowedInPullRequest: true,
		RequiredRole:         RoleAuthor,
		Handler: func(_ context.Context, _ *Context, _ Invocation) (string, error) {
			return "done", nil
		},
	})
	d := NewDispatcher(r)
	inv := Invocation{User: forge.User{Login: "someone-else"}, Source: SourceComment, CommandName: "author-only", ComponentID: 1, Ordinal: 0}
	hc := baseContext()
	hc.RoleOf = roleOf(RoleIntegrator)

	replies, err := d.Run(context.Background(), hc, []Invocation{inv}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(replies) != 1 || !strings.Contains(replies[0].Body, "Only the author") {
		t.Fatalf("expected an integrator who is not the author to still be rejected, got: %+v", replies)
	}
}

func TestDispatcherRejectsCommitOnlyCommandInPullRequest(t *testing.T) {
	r := NewRegistry()
	r.Register(Descriptor{
		Name:            "commit-only",
		AllowedInCommit: true,
		RequiredRole:    RoleAnyone,
		Handler: func(_ context.Context, _ *Context, _ Invocation) (string, error) {
			return "done", nil
		},
	})
	d := NewDispatcher(r)
	inv := Invocation{Source: SourceComment, CommandName: "commit-only", ComponentID: 1, Ordinal: 0}

	replies, err := d.Run(context.Background(), baseContext(), []Invocation{inv}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(replies) != 1 || !strings.Contains(replies[0].Body, "can only be used on commits") {
		t.Fatalf("unexpected replies: %+v", replies)
	}
}

func TestDispatcherTransientErrorIsNotReplied(t *testing.T) {
	d := NewDispatcher(testRegistry())
	inv := Invocation{Source: SourceComment, CommandName: "flaky", ComponentID: 1, Ordinal: 0}

	replies, err := d.Run(context.Background(), baseContext(), []Invocation{inv}, nil)
	if err == nil {
		t.Fatalf("expected a transient error to propagate for scheduler retry")
	}
	if len(replies) != 0 {
		t.Fatalf("expected no replies when the handler fails transiently, got %+v", replies)
	}
}

func TestDispatcherIgnoresSelfAuthoredCommandWithoutMarker(t *testing.T) {
	d := NewDispatcher(testRegistry())
	hc := baseContext()
	inv := Invocation{
		User:          forge.User{Login: "reviewbot[bot]"},
		Source:        SourceComment,
		CommandName:   "echo",
		Arguments:     "hi",
		ComponentID:   1,
		Ordinal:       0,
		HasSelfMarker: false,
	}

	replies, err := d.Run(context.Background(), hc, []Invocation{inv}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(replies) != 0 {
		t.Fatalf("expected self-authored command without marker and SelfCommandAllowed=false to be ignored, got %+v", replies)
	}
}
