package integrate

import (
	"fmt"
	"strings"

	"github.com/cexll/reviewbot/internal/command"
	"github.com/cexll/reviewbot/internal/forge"
)

// CommitMessage is the fully composed commit message components spec.md
// §4.4 step 3 assembles, in the order the commit body writer emits them.
type CommitMessage struct {
	TitleLines     []string
	CoAuthoredBy   []string
	Summary        string
	ReviewedBy     []string
	BackportOfHash string
}

// String renders the message body in the order spec.md §4.4 step 3
// prescribes: title line(s), blank line, Co-authored-by, Summary,
// Reviewed-by, Backport-of.
func (m CommitMessage) String() string {
	var b strings.Builder
	b.WriteString(strings.Join(m.TitleLines, "\n"))
	b.WriteString("\n")

	var trailers []string
	for _, co := range m.CoAuthoredBy {
		trailers = append(trailers, "Co-authored-by: "+co)
	}
	if m.Summary != "" {
		trailers = append(trailers, "\n"+m.Summary)
	}
	if len(m.ReviewedBy) > 0 {
		trailers = append(trailers, "Reviewed-by: "+strings.Join(m.ReviewedBy, ", "))
	}
	if m.BackportOfHash != "" {
		trailers = append(trailers, "Backport-of: "+m.BackportOfHash)
	}
	if len(trailers) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(trailers, "\n"))
	}
	return b.String()
}

// buildCommitMessage composes the commit message for pr from its recorded
// command intents (summary, additional issues, contributors) and its
// current reviews, grounded on spec.md §4.4 step 3.
func buildCommitMessage(pr *forge.PullRequest, backportOfHash string) CommitMessage {
	msg := CommitMessage{TitleLines: []string{pr.Title}}

	var intentIssue struct {
		Action string   `json:"action"`
		IDs    []string `json:"ids,omitempty"`
	}
	if command.LatestIntent(pr.Comments, command.IntentIssue, &intentIssue) && intentIssue.Action == "add" {
		msg.TitleLines = append(msg.TitleLines, intentIssue.IDs...)
	}

	var intentContributor struct {
		Action string `json:"action"`
		Name   string `json:"name"`
		Email  string `json:"email,omitempty"`
	}
	if command.LatestIntent(pr.Comments, command.IntentContributor, &intentContributor) && intentContributor.Action == "add" {
		msg.CoAuthoredBy = append(msg.CoAuthoredBy, fmt.Sprintf("%s <%s>", intentContributor.Name, intentContributor.Email))
	}

	var summaryText string
	if command.LatestIntent(pr.Comments, command.IntentSummary, &summaryText) {
		msg.Summary = summaryText
	}

	msg.ReviewedBy = reviewersStillValid(pr)
	msg.BackportOfHash = backportOfHash
	return msg
}

// reviewersStillValid returns the users whose latest review is an
// approval, in the order each user first reviewed. Any later review from
// the same user (of whatever state, including a plain comment) supersedes
// an earlier approval; the review's head hash is not consulted.
func reviewersStillValid(pr *forge.PullRequest) []string {
	latest := map[string]forge.ReviewState{}
	order := []string{}
	for _, rv := range pr.Reviews {
		if _, seen := latest[rv.Author.Login]; !seen {
			order = append(order, rv.Author.Login)
		}
		latest[rv.Author.Login] = rv.State
	}
	var reviewers []string
	for _, login := range order {
		if latest[login] == forge.ReviewApproved {
			reviewers = append(reviewers, login)
		}
	}
	return reviewers
}
