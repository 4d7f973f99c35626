package integrate

import (
	"fmt"
	"regexp"

	"github.com/cexll/reviewbot/internal/boterrors"
)

// mergeTitleRe matches a declared-merge-PR title, the same "Merge
// <repo>:<branch>" convention internal/materialize recognizes.
var mergeTitleRe = regexp.MustCompile(`^Merge \S+:\S+`)

func userErrorf(format string, args ...any) error {
	return boterrors.UserInput(fmt.Errorf(format, args...))
}

func semanticErrorf(format string, args ...any) error {
	return boterrors.Semantic(fmt.Errorf(format, args...))
}

func boterrorsTransient(err error) error {
	return boterrors.Transient(err)
}
