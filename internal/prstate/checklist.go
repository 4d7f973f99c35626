package prstate

import (
	"fmt"

	"github.com/cexll/reviewbot/internal/census"
	"github.com/cexll/reviewbot/internal/command"
	"github.com/cexll/reviewbot/internal/forge"
)

// buildChecklist assembles the five-item progress checklist (step 6) from
// the PR's current state and the intents recorded by command handlers.
func (r *Reconciler) buildChecklist(pr *forge.PullRequest, inst *census.CensusInstance, project string, sufficientReviewers, hasCSRIntent, csrNeeded bool) Checklist {
	var contributorIntent struct {
		Action string `json:"action"`
		Name   string `json:"name"`
		Email  string `json:"email,omitempty"`
	}
	hasContributor := command.LatestIntent(pr.Comments, command.IntentContributor, &contributorIntent) && contributorIntent.Action == "add"

	var intentReviewers struct {
		Count int    `json:"count"`
		Role  string `json:"role,omitempty"`
	}
	command.LatestIntent(pr.Comments, command.IntentReviewers, &intentReviewers)
	count := intentReviewers.Count
	if count == 0 {
		count = 1
	}
	role := intentReviewers.Role
	if role == "" {
		role = "reviewer"
	}

	csrLabel := "No compatibility and specification review (CSR) required"
	csrDone := true
	if hasCSRIntent && csrNeeded {
		csrLabel = "Compatibility and specification review (CSR) is required"
		csrDone = false
	}

	contributorLabel := "No additional contributors"
	if hasContributor {
		contributorLabel = fmt.Sprintf("Additional contributor: %s <%s>", contributorIntent.Name, contributorIntent.Email)
	}

	return Checklist{
		Reviewers:   ChecklistItem{Done: sufficientReviewers, Label: fmt.Sprintf("Change must be properly reviewed (%d %s)", count, role)},
		IssueLinked: ChecklistItem{Done: hasIssueIntent(pr), Label: "Change must not contain extraneous whitespace or unexplained issue links"},
		CSR:         ChecklistItem{Done: csrDone, Label: csrLabel},
		Contributor: ChecklistItem{Done: true, Label: contributorLabel},
		Testing:     ChecklistItem{Done: true, Label: "Change must be properly tested"},
	}
}

func hasIssueIntent(pr *forge.PullRequest) bool {
	var intent struct {
		Action string   `json:"action"`
		IDs    []string `json:"ids,omitempty"`
	}
	return command.LatestIntent(pr.Comments, command.IntentIssue, &intent) && len(intent.IDs) > 0
}
