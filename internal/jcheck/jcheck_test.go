package jcheck

import (
	"context"
	"strings"
	"testing"

	"github.com/cexll/reviewbot/internal/botconfig"
	"github.com/cexll/reviewbot/internal/forge"
)

func TestRunSuccessWhenNoIssues(t *testing.T) {
	c := New(botconfig.JcheckConfig{})
	pr := &forge.PullRequest{Title: "Fix the thing", Body: "A clean description."}
	status, err := c.Run(context.Background(), "openjdk/jdk", "deadbeef", pr)
	if err != nil {
		t.Fatalf("Run err = %v, want nil", err)
	}
	if status.Conclusion != forge.CheckSuccess {
		t.Fatalf("Conclusion = %q, want success; summary=%q", status.Conclusion, status.Summary)
	}
	if status.CommitHash != "deadbeef" {
		t.Fatalf("CommitHash = %q, want deadbeef", status.CommitHash)
	}
}

func TestRunFailsOnEmptyTitle(t *testing.T) {
	c := New(botconfig.JcheckConfig{})
	pr := &forge.PullRequest{Title: "   ", Body: ""}
	status, err := c.Run(context.Background(), "openjdk/jdk", "h", pr)
	if err != nil {
		t.Fatalf("Run err = %v, want nil", err)
	}
	if status.Conclusion != forge.CheckFailure {
		t.Fatalf("Conclusion = %q, want failure", status.Conclusion)
	}
	if !strings.Contains(status.Summary, "synopsis") {
		t.Fatalf("Summary = %q, want it to mention synopsis", status.Summary)
	}
}

func TestRunFailsOnOverlongTitle(t *testing.T) {
	c := New(botconfig.JcheckConfig{MaxSynopsisLength: 10})
	pr := &forge.PullRequest{Title: "This title is way too long for ten characters"}
	status, _ := c.Run(context.Background(), "r", "h", pr)
	if status.Conclusion != forge.CheckFailure {
		t.Fatalf("Conclusion = %q, want failure", status.Conclusion)
	}
}

func TestRunFailsOnTrailingPeriod(t *testing.T) {
	c := New(botconfig.JcheckConfig{})
	pr := &forge.PullRequest{Title: "Fix the thing."}
	status, _ := c.Run(context.Background(), "r", "h", pr)
	if status.Conclusion != forge.CheckFailure {
		t.Fatalf("Conclusion = %q, want failure for a trailing period", status.Conclusion)
	}
}

func TestRunRequiresIssuePrefixWhenConfigured(t *testing.T) {
	c := New(botconfig.JcheckConfig{RequireIssuePrefix: true})
	bad := &forge.PullRequest{Title: "Fix the thing"}
	status, _ := c.Run(context.Background(), "r", "h", bad)
	if status.Conclusion != forge.CheckFailure {
		t.Fatalf("Conclusion = %q, want failure without an issue prefix", status.Conclusion)
	}

	good := &forge.PullRequest{Title: "1234: Fix the thing"}
	status, _ = c.Run(context.Background(), "r", "h", good)
	if status.Conclusion != forge.CheckSuccess {
		t.Fatalf("Conclusion = %q, want success with a valid issue prefix; summary=%q", status.Conclusion, status.Summary)
	}
}

func TestRunSkipsSynopsisChecksForMergeTitles(t *testing.T) {
	c := New(botconfig.JcheckConfig{MaxSynopsisLength: 5})
	pr := &forge.PullRequest{Title: "Merge openjdk/jdk:master"}
	status, _ := c.Run(context.Background(), "r", "h", pr)
	if status.Conclusion != forge.CheckSuccess {
		t.Fatalf("Conclusion = %q, want success for a merge-PR title; summary=%q", status.Conclusion, status.Summary)
	}
}

func TestRunFlagsForbiddenPath(t *testing.T) {
	c := New(botconfig.JcheckConfig{ForbiddenPathPatterns: []string{`^vendor/`}})
	pr := &forge.PullRequest{
		Title:        "Fix the thing",
		ChangedFiles: []forge.FileChange{{Path: "vendor/lib/x.go", Status: "modified"}},
	}
	status, _ := c.Run(context.Background(), "r", "h", pr)
	if status.Conclusion != forge.CheckFailure {
		t.Fatalf("Conclusion = %q, want failure for a forbidden path", status.Conclusion)
	}
	if !strings.Contains(status.Summary, "forbidden-path") {
		t.Fatalf("Summary = %q, want it to mention forbidden-path", status.Summary)
	}
}

func TestRunFlagsTrailingWhitespaceAndTabs(t *testing.T) {
	c := New(botconfig.JcheckConfig{})
	pr := &forge.PullRequest{Title: "Fix the thing", Body: "line one  \nline\ttwo"}
	status, _ := c.Run(context.Background(), "r", "h", pr)
	if status.Conclusion != forge.CheckFailure {
		t.Fatalf("Conclusion = %q, want failure", status.Conclusion)
	}
	if !strings.Contains(status.Summary, "whitespace") {
		t.Fatalf("Summary = %q, want it to mention whitespace", status.Summary)
	}
}
