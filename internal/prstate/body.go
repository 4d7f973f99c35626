package prstate

import (
	"fmt"
	"regexp"
	"strings"
)

// ChecklistItem is one line of the progress checklist (step 6).
type ChecklistItem struct {
	Done  bool
	Label string
}

// Checklist is the full progress checklist spec.md §4.2 step 6 names:
// reviewers, issue linkage, CSR, contributor, testing.
type Checklist struct {
	Reviewers   ChecklistItem
	IssueLinked ChecklistItem
	CSR         ChecklistItem
	Contributor ChecklistItem
	Testing     ChecklistItem
}

// IssueRef is one linked issue rendered in the issues block.
type IssueRef struct {
	ID          string
	Description string
}

// progressMarkerStart/End delimit the machine-owned region of a PR body,
// grounded on the teacher's CommentTracker.renderBody: a single render
// function that always branches on explicit state, never ad hoc booleans
// scattered through callers, and is idempotent to re-invocation.
const (
	progressMarkerStart = "<!-- progress-checklist:start -->"
	progressMarkerEnd   = "<!-- progress-checklist:end -->"
)

var progressBlockRe = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(progressMarkerStart) + `.*?` + regexp.QuoteMeta(progressMarkerEnd))

// RenderBody rewrites originalBody's progress-checklist region (replacing
// a prior one if present, appending if not) with the current checklist
// and issues block.
func RenderBody(originalBody string, checklist Checklist, issues []IssueRef) string {
	block := renderChecklistBlock(checklist, issues)

	if progressBlockRe.MatchString(originalBody) {
		return progressBlockRe.ReplaceAllString(originalBody, block)
	}

	trimmed := strings.TrimRight(originalBody, "\n")
	if trimmed == "" {
		return block
	}
	return trimmed + "\n\n" + block
}

func renderChecklistBlock(c Checklist, issues []IssueRef) string {
	var b strings.Builder
	b.WriteString(progressMarkerStart + "\n")
	b.WriteString("### Progress\n")
	writeItem(&b, c.Reviewers)
	writeItem(&b, c.IssueLinked)
	writeItem(&b, c.CSR)
	writeItem(&b, c.Contributor)
	writeItem(&b, c.Testing)

	if len(issues) > 0 {
		b.WriteString("\n### Issues\n")
		for _, iss := range issues {
			if iss.Description != "" {
				fmt.Fprintf(&b, " * [%s](https://bugs.example.com/browse/%s): %s\n", iss.ID, iss.ID, iss.Description)
			} else {
				fmt.Fprintf(&b, " * [%s](https://bugs.example.com/browse/%s)\n", iss.ID, iss.ID)
			}
		}
	}

	b.WriteString(progressMarkerEnd)
	return b.String()
}

func writeItem(b *strings.Builder, item ChecklistItem) {
	box := " "
	if item.Done {
		box = "x"
	}
	fmt.Fprintf(b, " - [%s] %s\n", box, item.Label)
}

// prePushMarkerStart/End delimit the single instructional comment body
// (step 7), re-rendered in place across runs instead of reposted.
const (
	prePushMarkerStart = "<!-- prepush:state="
	prePushMarkerEnd   = " -->"
)

// RenderPrePushComment builds the single instructional comment body for
// state, embedding a hidden marker recording the state it was rendered
// for, so a later run can tell whether the comment is already current.
func RenderPrePushComment(state State, headHash string, checklist Checklist, isCommitter bool) string {
	marker := prePushMarkerStart + string(state) + ":" + headHash + prePushMarkerEnd

	switch state {
	case StateReadyToIntegrate:
		if isCommitter {
			return fmt.Sprintf("This change now passes all automated pre-integration checks.\n\nto integrate it to the `%s` branch, type `/integrate`.\n\n%s", "target", marker)
		}
		return fmt.Sprintf("This change now passes all automated pre-integration checks.\n\nSince you are not a committer, after integration approval a committer must sponsor it: ask one to issue `/sponsor`.\n\n%s", marker)
	case StateReadyToSponsor:
		return fmt.Sprintf("This pull request is ready to be sponsored at version `%s`.\n\nA committer may issue `/sponsor` to integrate it.\n\n%s", headHash, marker)
	default:
		return fmt.Sprintf("This pull request is not yet ready to be integrated.\n\n%s\n\n%s", renderChecklistBlock(checklist, nil), marker)
	}
}

// PrePushMarkerFor returns the marker RenderPrePushComment would embed for
// state/headHash, so a caller can detect whether an existing comment is
// already current without re-rendering the whole body.
func PrePushMarkerFor(state State, headHash string) string {
	return prePushMarkerStart + string(state) + ":" + headHash + prePushMarkerEnd
}
