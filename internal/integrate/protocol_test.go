package integrate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cexll/reviewbot/internal/census"
	"github.com/cexll/reviewbot/internal/forge"
	"github.com/cexll/reviewbot/internal/gitplumbing"
	"github.com/cexll/reviewbot/internal/seedstorage"
)

// fakeForge is a minimal in-memory forge.Client, grounded on
// internal/prstate's reconcile_test.go fakeForge.
type fakeForge struct {
	labels   map[int][]string
	closed   map[int]bool
	comments []forge.Comment
	nextID   int64
	commits  map[string]*forge.Commit
	order    []string
	pushed   []pushCall
	pushErr  error
}

type pushCall struct {
	repo, branch, sha, expectedOldSHA string
}

func newFakeForge() *fakeForge {
	return &fakeForge{labels: map[int][]string{}, closed: map[int]bool{}, commits: map[string]*forge.Commit{}}
}

func (f *fakeForge) ListPullRequestsUpdatedSince(context.Context, string, time.Time) ([]*forge.PullRequest, error) {
	return nil, nil
}
func (f *fakeForge) GetPullRequest(context.Context, string, int) (*forge.PullRequest, error) {
	return nil, nil
}
func (f *fakeForge) ListCommitCommentsSince(context.Context, string, time.Time) ([]*forge.CommitComment, error) {
	return nil, nil
}
func (f *fakeForge) GetCommit(_ context.Context, _ string, hash string) (*forge.Commit, error) {
	if c, ok := f.commits[hash]; ok {
		return c, nil
	}
	return nil, forge.ErrNotFound
}
func (f *fakeForge) CreateComment(_ context.Context, _ string, _ int, body string) (int64, error) {
	f.nextID++
	f.comments = append(f.comments, forge.Comment{ID: f.nextID, Body: body})
	return f.nextID, nil
}
func (f *fakeForge) UpdateComment(context.Context, string, int64, string) error { return nil }
func (f *fakeForge) DeleteComment(context.Context, string, int64) error        { return nil }
func (f *fakeForge) SetLabels(_ context.Context, _ string, number int, labels []string) error {
	f.labels[number] = labels
	return nil
}
func (f *fakeForge) SetBody(context.Context, string, int, string) error   { return nil }
func (f *fakeForge) SetTitle(context.Context, string, int, string) error  { return nil }
func (f *fakeForge) ClosePullRequest(_ context.Context, _ string, number int) error {
	f.closed[number] = true
	return nil
}
func (f *fakeForge) CreateCommitComment(context.Context, string, string, string) (int64, error) {
	return 0, nil
}
func (f *fakeForge) SetStatusCheck(context.Context, string, forge.CheckStatus) error { return nil }
func (f *fakeForge) GetRef(context.Context, string, string) (string, error)         { return "", nil }
func (f *fakeForge) PushRef(_ context.Context, repo, branch, sha, expectedOldSHA string) error {
	f.pushed = append(f.pushed, pushCall{repo, branch, sha, expectedOldSHA})
	return f.pushErr
}
func (f *fakeForge) WalkCommits(_ context.Context, _ string, _ string, maxDepth int, visit func(string) bool) error {
	for i, hash := range f.order {
		if i >= maxDepth {
			break
		}
		if !visit(hash) {
			break
		}
	}
	return nil
}
func (f *fakeForge) CreateBranch(context.Context, string, string, string) error { return nil }

// fakeRunner is a CommandRunner stub, grounded on
// internal/gitplumbing's git_test.go fakeRunner.
type recordedCall struct {
	env  []string
	args []string
}

type fakeRunner struct {
	results        map[string][]byte
	errors         map[string]error
	unmergedOutput []byte
	calls          []recordedCall
}

func (r *fakeRunner) key(args []string) string { return strings.Join(args, " ") }

func (r *fakeRunner) RunInDir(dir, name string, args ...string) ([]byte, error) {
	return r.RunInDirWithEnv(dir, nil, name, args...)
}

func (r *fakeRunner) RunInDirWithEnv(dir string, env []string, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, recordedCall{env: env, args: args})
	k := r.key(args)
	if strings.HasPrefix(k, "diff --name-only") {
		return r.unmergedOutput, nil
	}
	if err, ok := r.errors[k]; ok {
		return nil, err
	}
	return r.results[k], nil
}

func basePR() *forge.PullRequest {
	return &forge.PullRequest{
		Repo:         "openjdk/jdk",
		ID:           42,
		Title:        "Fix the thing",
		Body:         "Description of the fix.",
		TargetBranch: "master",
		State:        forge.PRStateOpen,
		Labels:       []string{"ready", "rfr"},
		Author:       forge.User{Login: "contributor1"},
		Reviews: []forge.Review{
			{Author: forge.User{Login: "reviewer1"}, State: forge.ReviewApproved},
		},
	}
}

func newProtocol(t *testing.T, r *fakeRunner) *Protocol {
	t.Helper()
	return &Protocol{
		Git:      gitplumbing.New(r),
		Seeds:    seedstorage.New(t.TempDir()),
		WorkRoot: t.TempDir(),
	}
}

func TestRunIntegratesAndFinalizes(t *testing.T) {
	ff := newFakeForge()
	r := &fakeRunner{results: map[string][]byte{"rev-parse HEAD": []byte("newhash\n")}}
	p := newProtocol(t, r)
	p.Forge = ff

	pr := basePR()
	result, err := p.Run(context.Background(), Request{Repo: "openjdk/jdk", PR: pr, Census: &census.CensusInstance{Contributors: map[string]census.Contributor{}}})
	if err != nil {
		t.Fatalf("Run err = %v, want nil", err)
	}
	if !result.Integrated || result.CommitHash != "newhash" {
		t.Fatalf("Run result = %+v, want Integrated with hash newhash", result)
	}
	if len(ff.pushed) != 1 || ff.pushed[0].sha != "newhash" {
		t.Fatalf("pushed = %+v, want one push of newhash", ff.pushed)
	}
	if !ff.closed[pr.ID] {
		t.Fatalf("expected the PR to be closed")
	}
	for _, l := range ff.labels[pr.ID] {
		if l == "ready" || l == "rfr" {
			t.Fatalf("expected ready/rfr to be removed, got %v", ff.labels[pr.ID])
		}
	}
	var sawIntegrated bool
	for _, l := range ff.labels[pr.ID] {
		if l == "integrated" {
			sawIntegrated = true
		}
	}
	if !sawIntegrated {
		t.Fatalf("expected the integrated label, got %v", ff.labels[pr.ID])
	}
}

func TestRunRejectsPinnedHashMismatch(t *testing.T) {
	ff := newFakeForge()
	r := &fakeRunner{results: map[string][]byte{"rev-parse origin/master": []byte("current\n")}}
	p := newProtocol(t, r)
	p.Forge = ff

	pr := basePR()
	_, err := p.Run(context.Background(), Request{Repo: "openjdk/jdk", PR: pr, PinnedTargetHash: "stale", Census: &census.CensusInstance{Contributors: map[string]census.Contributor{}}})
	if err == nil {
		t.Fatalf("Run err = nil, want an error for a stale pinned hash")
	}
	if len(ff.pushed) != 0 {
		t.Fatalf("expected no push, got %+v", ff.pushed)
	}
}

func TestRunAbortsOnMergeConflict(t *testing.T) {
	ff := newFakeForge()
	r := &fakeRunner{
		results:        map[string][]byte{"rev-parse origin/master": []byte("target\n")},
		errors:         map[string]error{"rebase origin/master": errors.New("CONFLICT")},
		unmergedOutput: []byte("src/Main.java\n"),
	}
	p := newProtocol(t, r)
	p.Forge = ff

	pr := basePR()
	_, err := p.Run(context.Background(), Request{Repo: "openjdk/jdk", PR: pr, Census: &census.CensusInstance{Contributors: map[string]census.Contributor{}}})
	if err == nil {
		t.Fatalf("Run err = nil, want a semantic conflict error")
	}
	for _, l := range ff.labels[pr.ID] {
		if l == "ready" {
			t.Fatalf("expected the ready label to be cleared on conflict, got %v", ff.labels[pr.ID])
		}
	}
}

func TestRunUsesSponsorAsCommitterIdentity(t *testing.T) {
	ff := newFakeForge()
	r := &fakeRunner{results: map[string][]byte{"rev-parse HEAD": []byte("sponsored\n")}}
	p := newProtocol(t, r)
	p.Forge = ff

	pr := basePR()
	_, err := p.Run(context.Background(), Request{
		Repo: "openjdk/jdk", PR: pr, CommitterLogin: "sponsor1",
		Census: &census.CensusInstance{Contributors: map[string]census.Contributor{}},
	})
	if err != nil {
		t.Fatalf("Run err = %v, want nil", err)
	}

	var amendCall *recordedCall
	for i := range r.calls {
		if len(r.calls[i].args) > 0 && r.calls[i].args[0] == "commit" && strings.Contains(strings.Join(r.calls[i].args, " "), "--amend") {
			amendCall = &r.calls[i]
		}
	}
	if amendCall == nil {
		t.Fatalf("expected a commit --amend call, calls = %+v", r.calls)
	}
	if !strings.Contains(strings.Join(amendCall.args, " "), "--author contributor1 <contributor1@users.noreply.github.com>") {
		t.Fatalf("amend author = %v, want the PR author's identity", amendCall.args)
	}
	wantEnv := "GIT_COMMITTER_NAME=sponsor1,GIT_COMMITTER_EMAIL=sponsor1@users.noreply.github.com"
	if strings.Join(amendCall.env, ",") != wantEnv {
		t.Fatalf("amend committer env = %v, want %s", amendCall.env, wantEnv)
	}
}

func TestRecoverFinalizesWhenCommitAlreadyLanded(t *testing.T) {
	ff := newFakeForge()
	ff.order = []string{"tophash", "matchhash", "older"}
	digest := digestMessage("Fix the thing\n")
	ff.commits["tophash"] = &forge.Commit{Hash: "tophash", Message: "unrelated"}
	ff.commits["matchhash"] = &forge.Commit{Hash: "matchhash", Message: "Fix the thing\n"}

	r := &fakeRunner{}
	p := newProtocol(t, r)
	p.Forge = ff

	pr := basePR()
	pr.Comments = []forge.Comment{{Body: encodePushAnchor(pushAnchor{
		PRID: pr.ID, TargetBranch: "master", CandidateHash: "matchhash", Digest: digest,
	})}}

	result, err := p.Run(context.Background(), Request{Repo: "openjdk/jdk", PR: pr, Census: &census.CensusInstance{Contributors: map[string]census.Contributor{}}})
	if err != nil {
		t.Fatalf("Run err = %v, want nil", err)
	}
	if !result.Recovered || result.CommitHash != "matchhash" {
		t.Fatalf("Run result = %+v, want Recovered with matchhash", result)
	}
	if len(ff.pushed) != 0 {
		t.Fatalf("expected recovery to never re-push, got %+v", ff.pushed)
	}
	if !ff.closed[pr.ID] {
		t.Fatalf("expected the PR to be closed by finalize")
	}
}

func TestRecoverRestartsWhenCommitNeverLanded(t *testing.T) {
	ff := newFakeForge()
	ff.order = []string{"tophash"}
	ff.commits["tophash"] = &forge.Commit{Hash: "tophash", Message: "unrelated"}

	r := &fakeRunner{results: map[string][]byte{"rev-parse HEAD": []byte("freshhash\n")}}
	p := newProtocol(t, r)
	p.Forge = ff

	pr := basePR()
	pr.Comments = []forge.Comment{{Body: encodePushAnchor(pushAnchor{
		PRID: pr.ID, TargetBranch: "master", CandidateHash: "stalehash", Digest: "deadbeefdeadbeef",
	})}}

	result, err := p.Run(context.Background(), Request{Repo: "openjdk/jdk", PR: pr, Census: &census.CensusInstance{Contributors: map[string]census.Contributor{}}})
	if err != nil {
		t.Fatalf("Run err = %v, want nil", err)
	}
	if result.Recovered {
		t.Fatalf("expected a fresh attempt, not a recovered finalize")
	}
	if len(ff.pushed) != 1 || ff.pushed[0].sha != "freshhash" {
		t.Fatalf("expected a fresh push of freshhash, got %+v", ff.pushed)
	}
}
