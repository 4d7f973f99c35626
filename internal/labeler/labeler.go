// Package labeler implements C9: deriving labels from the PR's changed
// file set per a LabelConfiguration (label -> ordered path regexes).
// Grounded on the teacher's internal/github/label.go add/remove
// primitives; the matching logic itself is new (the teacher never
// computes labels from a diff, only applies a label given by name).
package labeler

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/cexll/reviewbot/internal/forge"
)

// Matcher evaluates a LabelConfiguration against a changed-file set.
type Matcher struct {
	compiled map[string][]*regexp.Regexp
	order    []string
}

// Compile parses a label -> path-regex-list configuration. Labels are
// evaluated sorted by name, not in map order, for determinism.
func Compile(cfg map[string][]string) (*Matcher, error) {
	m := &Matcher{compiled: make(map[string][]*regexp.Regexp, len(cfg))}
	for label, patterns := range cfg {
		m.order = append(m.order, label)
		for _, p := range patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("labeler: label %q: invalid pattern %q: %w", label, p, err)
			}
			m.compiled[label] = append(m.compiled[label], re)
		}
	}
	sort.Strings(m.order)
	return m, nil
}

// Labels returns the set of labels whose path patterns match at least one
// of the given changed files.
func (m *Matcher) Labels(files []forge.FileChange) []string {
	var matched []string
	for _, label := range m.order {
		for _, re := range m.compiled[label] {
			if anyMatches(re, files) {
				matched = append(matched, label)
				break
			}
		}
	}
	return matched
}

// Governs reports whether label is one of the names this Matcher's
// configuration computes, as opposed to a label some other mechanism
// manages (a manual /label, or a bot state flag like "ready").
func (m *Matcher) Governs(label string) bool {
	_, ok := m.compiled[label]
	return ok
}

func anyMatches(re *regexp.Regexp, files []forge.FileChange) bool {
	for _, f := range files {
		if re.MatchString(f.Path) {
			return true
		}
	}
	return false
}
