package command

import (
	"regexp"
	"strings"
)

// commandLineRe matches a line beginning a command invocation: a leading
// "/name" optionally followed by arguments on the same line.
var commandLineRe = regexp.MustCompile(`^/([A-Za-z][A-Za-z0-9_-]*)(.*)$`)

// RawInvocation is one parsed occurrence, before role/context attachment.
type RawInvocation struct {
	CommandName string
	Arguments   string
	LineIndex   int
}

// Parse extracts command invocations from text (a PR body, a comment
// body, or a review body), grounded on the teacher's
// internal/prompt/parser.go regex-block-extraction shape: a primary
// pattern (leading "/name") with multi-line argument continuation until
// the next command line or end of input.
//
// For source == SourceReview, only a command on the text's first line is
// recognized; a command appearing later in a review body is ignored
// (spec.md §4.3, §8 "Command inside a review body on a non-leading line
// -> ignored"). For SourceBody and SourceComment every leading-column
// command line starts a new invocation (spec.md §8 scenario 7: three
// separate commands in one comment each produce a reply).
func Parse(source Source, text string) []RawInvocation {
	text = StripBotMarkers(text)
	lines := strings.Split(text, "\n")

	var out []RawInvocation
	var current *RawInvocation
	var argLines []string

	flush := func() {
		if current == nil {
			return
		}
		current.Arguments = strings.TrimSpace(strings.Join(argLines, "\n"))
		out = append(out, *current)
		current = nil
		argLines = nil
	}

	for i, line := range lines {
		m := commandLineRe.FindStringSubmatch(line)
		startsInvocation := m != nil && (source != SourceReview || i == 0)

		if startsInvocation {
			flush()
			current = &RawInvocation{CommandName: strings.ToLower(m[1]), LineIndex: i}
			if arg := strings.TrimSpace(m[2]); arg != "" {
				argLines = append(argLines, arg)
			}
			continue
		}

		// A command-shaped line in a review body past the first line is
		// ignored as a command, but its text still belongs to whatever
		// invocation is currently capturing arguments (spec.md §8
		// "Command inside a review body on a non-leading line ->
		// ignored" only withholds its command status).
		if current != nil {
			argLines = append(argLines, line)
		}
	}
	flush()

	return out
}
