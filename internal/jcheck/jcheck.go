// Package jcheck implements C4, the policy-validation facade spec.md §4.2
// step 4 runs against the proposed commit and publishes as the PR's
// "jcheck" status check. Grounded on the teacher's internal/github/label.go
// (compiled-regex path matching) and internal/github/validation's small,
// single-purpose check functions, generalized into a rule-based checker so
// projects can configure which checks apply.
package jcheck

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/cexll/reviewbot/internal/botconfig"
	"github.com/cexll/reviewbot/internal/forge"
)

const defaultMaxSynopsisLength = 80

// issuePrefixRe matches a leading "<digits>: " synopsis prefix, the
// convention a linked-issue title takes once /issue has run.
var issuePrefixRe = regexp.MustCompile(`^\d+: `)

// mergeTitleRe matches the declared-merge-PR title spec.md §4.2 step 3
// treats specially ("Merge <repo>:<branch>").
var mergeTitleRe = regexp.MustCompile(`^Merge \S+:\S+`)

// Issue is one policy violation found against the proposed commit.
type Issue struct {
	Rule    string
	Message string
}

// Checker validates a proposed commit against one repository's configured
// rules and publishes the result as a forge.CheckStatus, implementing
// internal/prstate.JcheckRunner.
type Checker struct {
	cfg botconfig.JcheckConfig
}

// New constructs a Checker bound to cfg (the repository's jcheck
// configuration; zero value uses built-in defaults).
func New(cfg botconfig.JcheckConfig) *Checker {
	return &Checker{cfg: cfg}
}

// Run validates pr's proposed commit (identified by proposedHash, the hash
// internal/prstate.Materializer computed) and returns the resulting check
// status, keyed at that hash per spec.md §3's CheckStatus contract.
func (c *Checker) Run(ctx context.Context, repo, proposedHash string, pr *forge.PullRequest) (forge.CheckStatus, error) {
	var issues []Issue
	isMerge := mergeTitleRe.MatchString(pr.Title)

	if !isMerge {
		issues = append(issues, c.checkSynopsis(pr.Title)...)
	}
	issues = append(issues, c.checkForbiddenPaths(pr.ChangedFiles)...)
	issues = append(issues, checkWhitespace(pr.Body)...)

	status := forge.CheckStatus{
		Name:       "jcheck",
		CommitHash: proposedHash,
		Metadata:   map[string]string{"issueCount": fmt.Sprintf("%d", len(issues))},
	}
	if len(issues) == 0 {
		status.Conclusion = forge.CheckSuccess
		status.Summary = "jcheck passed"
		return status, nil
	}
	status.Conclusion = forge.CheckFailure
	status.Summary = summarize(issues)
	return status, nil
}

func (c *Checker) checkSynopsis(title string) []Issue {
	var issues []Issue
	if strings.TrimSpace(title) == "" {
		return append(issues, Issue{Rule: "synopsis", Message: "commit title must not be empty"})
	}
	max := c.cfg.MaxSynopsisLength
	if max == 0 {
		max = defaultMaxSynopsisLength
	}
	if len(title) > max {
		issues = append(issues, Issue{Rule: "synopsis", Message: fmt.Sprintf("commit title exceeds %d characters", max)})
	}
	if strings.HasSuffix(strings.TrimRight(title, " "), ".") {
		issues = append(issues, Issue{Rule: "synopsis", Message: "commit title must not end with a period"})
	}
	if c.cfg.RequireIssuePrefix && !issuePrefixRe.MatchString(title) {
		issues = append(issues, Issue{Rule: "synopsis", Message: "commit title must start with an issue id, e.g. \"1234: Fix the thing\""})
	}
	return issues
}

func (c *Checker) checkForbiddenPaths(files []forge.FileChange) []Issue {
	var issues []Issue
	for _, pattern := range c.cfg.ForbiddenPathPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		for _, f := range files {
			if re.MatchString(f.Path) {
				issues = append(issues, Issue{Rule: "forbidden-path", Message: fmt.Sprintf("%s matches forbidden pattern %q", f.Path, pattern)})
			}
		}
	}
	return issues
}

// checkWhitespace flags trailing whitespace and tab characters in the PR
// description, the closest proxy jcheck has to the eventual commit body
// without materializing the diff's text content.
func checkWhitespace(body string) []Issue {
	var issues []Issue
	for i, line := range strings.Split(body, "\n") {
		if strings.Contains(line, "\t") {
			issues = append(issues, Issue{Rule: "whitespace", Message: fmt.Sprintf("line %d contains a tab character", i+1)})
		}
		if trimmed := strings.TrimRight(line, " \t"); trimmed != line {
			issues = append(issues, Issue{Rule: "whitespace", Message: fmt.Sprintf("line %d has trailing whitespace", i+1)})
		}
	}
	return issues
}

func summarize(issues []Issue) string {
	var b strings.Builder
	for i, iss := range issues {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %s", iss.Rule, iss.Message)
	}
	return b.String()
}
