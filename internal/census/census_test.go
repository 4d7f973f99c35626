package census

import "testing"

const testContributors = `<?xml version="1.0"?>
<contributors>
  <contributor id="duke">
    <full-name>Duke Oracle</full-name>
    <username forge="github">dukeoracle</username>
  </contributor>
  <contributor id="ada">
    <full-name>Ada Lovelace</full-name>
    <username forge="github">ada</username>
  </contributor>
</contributors>`

const testProjects = `<?xml version="1.0"?>
<projects>
  <project name="core">
    <lead>duke</lead>
    <committer>duke</committer>
    <reviewer>ada</reviewer>
  </project>
</projects>`

func TestParseResolvesLoginAndRole(t *testing.T) {
	inst, err := Parse("r1", []byte(testContributors), nil, []byte(testProjects))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	id, ok := inst.ContributorByForgeLogin("github", "dukeoracle")
	if !ok || id != "duke" {
		t.Fatalf("ContributorByForgeLogin = (%q, %v), want (duke, true)", id, ok)
	}

	if got := inst.RoleOf("core", "duke"); got != RoleLead {
		t.Fatalf("RoleOf(core, duke) = %q, want %q", got, RoleLead)
	}
	if !inst.IsCommitter("core", "duke") {
		t.Fatal("duke should be a committer on core (lead implies committer)")
	}

	if got := inst.RoleOf("core", "ada"); got != RoleReviewer {
		t.Fatalf("RoleOf(core, ada) = %q, want %q", got, RoleReviewer)
	}
	if inst.IsCommitter("core", "ada") {
		t.Fatal("ada is only a reviewer, not a committer")
	}
}

func TestRoleOfUnknownProjectOrContributor(t *testing.T) {
	inst, err := Parse("r1", []byte(testContributors), nil, []byte(testProjects))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if got := inst.RoleOf("nonexistent", "duke"); got != "" {
		t.Fatalf("RoleOf(nonexistent, duke) = %q, want empty", got)
	}
	if got := inst.RoleOf("core", "nobody"); got != "" {
		t.Fatalf("RoleOf(core, nobody) = %q, want empty", got)
	}
}
