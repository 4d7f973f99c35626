package command

import (
	"reflect"
	"testing"
)

func TestParseSingleCommandWithArgs(t *testing.T) {
	got := Parse(SourceComment, "/reviewers 3 committer")
	want := []RawInvocation{{CommandName: "reviewers", Arguments: "3 committer", LineIndex: 0}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestParseMultiLineArgumentContinuation(t *testing.T) {
	text := "/summary This is\na multi-line\nsummary."
	got := Parse(SourceComment, text)
	if len(got) != 1 {
		t.Fatalf("expected 1 invocation, got %d", len(got))
	}
	if got[0].Arguments != "This is\na multi-line\nsummary." {
		t.Fatalf("unexpected arguments: %q", got[0].Arguments)
	}
}

func TestParseThreeCommandsInOneComment(t *testing.T) {
	text := "/label add foo\n/summary hello\n/issue 123"
	got := Parse(SourceComment, text)
	if len(got) != 3 {
		t.Fatalf("expected 3 invocations, got %d: %+v", len(got), got)
	}
	names := []string{got[0].CommandName, got[1].CommandName, got[2].CommandName}
	want := []string{"label", "summary", "issue"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("got %v, want %v", names, want)
	}
}

func TestParseReviewBodyOnlyLeadingLineIsCommand(t *testing.T) {
	text := "/approve\nthanks, also /label add x would be nice"
	got := Parse(SourceReview, text)
	if len(got) != 1 {
		t.Fatalf("expected 1 invocation, got %d: %+v", len(got), got)
	}
	if got[0].CommandName != "approve" {
		t.Fatalf("unexpected command: %s", got[0].CommandName)
	}
	if got[0].Arguments == "" {
		t.Fatalf("expected the non-leading command-shaped line to survive as argument text")
	}
}

func TestParseStripsMarkersBeforeParsing(t *testing.T) {
	text := "/integrate\n\n<!-- integrate-request: {\"mode\":\"\"} -->"
	got := Parse(SourceComment, text)
	if len(got) != 1 || got[0].CommandName != "integrate" {
		t.Fatalf("unexpected parse: %+v", got)
	}
	if got[0].Arguments != "" {
		t.Fatalf("expected no leftover argument text, got %q", got[0].Arguments)
	}
}

func TestParseEmptyTextYieldsNoInvocations(t *testing.T) {
	got := Parse(SourceComment, "just a plain comment, no commands here")
	if len(got) != 0 {
		t.Fatalf("expected 0 invocations, got %d", len(got))
	}
}
