package command

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cexll/reviewbot/internal/forge"
)

// Intent markers are the wire anchor stateful commands use to record a
// decision that a downstream reconciler (internal/prstate,
// internal/integrate) must later act on, without the command package
// needing to depend on either. Grounded on spec.md's hidden
// "<!-- X: '<id>' -->" marker idiom, generalized to carry a small JSON
// payload instead of just an invocation id.
const (
	IntentIntegrate  = "integrate-request"
	IntentSponsor    = "sponsor-request"
	IntentReviewers  = "reviewers"
	IntentContributor = "contributor"
	IntentIssue      = "issue"
	IntentSummary    = "summary"
	IntentLabel      = "label"
	IntentCSR        = "csr"
	IntentBackport   = "backport-request"
	IntentBranch     = "branch-request"
)

// EncodeIntent renders a hidden marker carrying kind and a JSON-encoded
// payload, appended to a handler's reply body.
func EncodeIntent(kind string, payload any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("{}")
	}
	return fmt.Sprintf("<!-- %s: %s -->", kind, string(data))
}

// LatestIntent scans comments (oldest first; the slice itself must already
// be chronological) for the most recent marker of kind, decoding its
// payload into out. Returns false if no marker of kind is present.
func LatestIntent(comments []forge.Comment, kind string, out any) bool {
	prefix := "<!-- " + kind + ": "
	var payload string
	found := false
	for _, c := range comments {
		idx := strings.LastIndex(c.Body, prefix)
		if idx < 0 {
			continue
		}
		rest := c.Body[idx+len(prefix):]
		end := strings.Index(rest, " -->")
		if end < 0 {
			continue
		}
		payload = rest[:end]
		found = true
	}
	if !found {
		return false
	}
	return json.Unmarshal([]byte(payload), out) == nil
}

// LatestIntentAuthor reports who authored the comment carrying the most
// recent marker of kind. Used where the decision itself needs the
// identity of whoever issued it (e.g. /sponsor's committer), which the
// JSON payload alone does not carry.
func LatestIntentAuthor(comments []forge.Comment, kind string) (forge.User, bool) {
	prefix := "<!-- " + kind + ": "
	var author forge.User
	found := false
	for _, c := range comments {
		if strings.Contains(c.Body, prefix) {
			author = c.Author
			found = true
		}
	}
	return author, found
}
