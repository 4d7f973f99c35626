package materialize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cexll/reviewbot/internal/forge"
	"github.com/cexll/reviewbot/internal/gitplumbing"
	"github.com/cexll/reviewbot/internal/seedstorage"
)

type fakeRunner struct {
	calls          []string
	errors         map[string]error
	results        map[string][]byte
	unmergedOutput []byte
}

func (f *fakeRunner) RunInDir(dir, name string, args ...string) ([]byte, error) {
	k := strings.Join(args, " ")
	f.calls = append(f.calls, k)
	if strings.HasPrefix(k, "diff --name-only") {
		return f.unmergedOutput, nil
	}
	if err, ok := f.errors[k]; ok {
		return nil, err
	}
	return f.results[k], nil
}

func (f *fakeRunner) RunInDirWithEnv(dir string, env []string, name string, args ...string) ([]byte, error) {
	return f.RunInDir(dir, name, args...)
}

func newMaterializer(t *testing.T, r *fakeRunner) *Materializer {
	t.Helper()
	return &Materializer{
		Git:      gitplumbing.New(r),
		Seeds:    seedstorage.New(t.TempDir()),
		WorkRoot: t.TempDir(),
	}
}

func TestMaterializeRebasesNonMergePR(t *testing.T) {
	r := &fakeRunner{results: map[string][]byte{"rev-parse HEAD": []byte("cafef00d\n")}}
	m := newMaterializer(t, r)
	pr := &forge.PullRequest{ID: 7, Title: "Fix the thing", Body: "desc", TargetBranch: "master"}

	result, err := m.Materialize(context.Background(), "openjdk/jdk", pr)
	if err != nil {
		t.Fatalf("Materialize err = %v, want nil", err)
	}
	if !result.DiffApplies {
		t.Fatalf("DiffApplies = false, want true")
	}
	if result.ProposedHeadHash != "cafef00d" {
		t.Fatalf("ProposedHeadHash = %q, want cafef00d", result.ProposedHeadHash)
	}
	if result.IsMergePR {
		t.Fatalf("IsMergePR = true, want false")
	}

	var sawRebase bool
	for _, c := range r.calls {
		if strings.HasPrefix(c, "rebase origin/master") {
			sawRebase = true
		}
	}
	if !sawRebase {
		t.Fatalf("expected a rebase onto origin/master, calls = %v", r.calls)
	}
}

func TestMaterializeMergesDeclaredMergePR(t *testing.T) {
	r := &fakeRunner{results: map[string][]byte{"rev-parse HEAD": []byte("abc123\n")}}
	m := newMaterializer(t, r)
	pr := &forge.PullRequest{ID: 9, Title: "Merge openjdk/jdk:feature", TargetBranch: "master"}

	result, err := m.Materialize(context.Background(), "openjdk/jdk", pr)
	if err != nil {
		t.Fatalf("Materialize err = %v, want nil", err)
	}
	if !result.IsMergePR {
		t.Fatalf("IsMergePR = false, want true")
	}

	var sawMerge bool
	for _, c := range r.calls {
		if strings.Contains(c, "merge --no-edit") {
			sawMerge = true
		}
	}
	if !sawMerge {
		t.Fatalf("expected a merge invocation, calls = %v", r.calls)
	}
}

func TestMaterializeReportsConflictWithoutError(t *testing.T) {
	r := &fakeRunner{
		errors:         map[string]error{"rebase origin/master": errors.New("CONFLICT")},
		unmergedOutput: []byte("file.java\n"),
	}
	m := newMaterializer(t, r)
	pr := &forge.PullRequest{ID: 3, Title: "Fix", TargetBranch: "master"}

	result, err := m.Materialize(context.Background(), "openjdk/jdk", pr)
	if err != nil {
		t.Fatalf("Materialize err = %v, want nil (conflict should not surface as error)", err)
	}
	if result.DiffApplies {
		t.Fatalf("DiffApplies = true, want false for a conflicting rebase")
	}
}
