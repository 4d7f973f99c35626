package command

import "testing"

func TestRegistryGetAndAll(t *testing.T) {
	r := NewRegistry()
	r.Register(Descriptor{Name: "zzz", Summary: "last"})
	r.Register(Descriptor{Name: "aaa", Summary: "first"})

	if _, ok := r.Get("missing"); ok {
		t.Fatalf("expected missing command to not be found")
	}
	d, ok := r.Get("aaa")
	if !ok || d.Summary != "first" {
		t.Fatalf("unexpected descriptor: %+v", d)
	}

	all := r.All()
	if len(all) != 2 || all[0].Name != "aaa" || all[1].Name != "zzz" {
		t.Fatalf("expected sorted descriptors, got %+v", all)
	}
}

func TestRegisterBuiltinsCoversSpecTable(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r)

	for _, name := range []string{
		"help", "integrate", "sponsor", "reviewers", "contributor",
		"issue", "solves", "summary", "label", "csr", "backport", "branch",
	} {
		if _, ok := r.Get(name); !ok {
			t.Fatalf("expected builtin command %q to be registered", name)
		}
	}
}

func TestBranchIsCommitOnlyAndIntegratorOnly(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r)
	d, _ := r.Get("branch")
	if d.AllowedInPullRequest {
		t.Fatalf("/branch must not be allowed in pull requests")
	}
	if !d.AllowedInCommit {
		t.Fatalf("/branch must be allowed on commits")
	}
	if d.RequiredRole != RoleIntegrator {
		t.Fatalf("/branch must require integrator role, got %v", d.RequiredRole)
	}
}
