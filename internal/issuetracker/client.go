// Package issuetracker defines the consumed interface to the project's
// issue tracker (spec.md §6: lookup issue by id, tolerant of PROJ-123/123/
// case variants; read resolution, type, fix versions, and linked issues;
// create an issue with {components, issuetype, priority, custom fields}).
// internal/issuetracker/jira provides one concrete, Jira-REST-backed
// implementation.
package issuetracker

import "context"

// Issue is the subset of an issue-tracker issue C4/C6 need: whether it is
// resolved, its type (used by jcheck to require a matching commit prefix),
// its fix versions, and any linked issues ("csr for", "backported by").
type Issue struct {
	ID          string
	Resolved    bool
	Type        string
	FixVersions []string
	Links       []Link
}

// Link is one directed relationship between two issues, e.g. "csr for" or
// "backported by".
type Link struct {
	Relation string
	IssueID  string
}

// CreateRequest describes an issue to create, used by /csr and /backport.
type CreateRequest struct {
	Project     string
	Summary     string
	Description string
	IssueType   string
	Priority    string
	Components  []string
	// Fields carries tracker-specific custom fields (e.g. a CSR's
	// "Compatibility Risk" field) that don't have a first-class spot above.
	Fields map[string]string
}

// Client is the narrow interface C4 (jcheck) and C6 (commands like /csr,
// /backport) consume. Exactly one concrete adapter exists:
// internal/issuetracker/jira.Client.
type Client interface {
	// Lookup resolves id (tolerant of "PROJ-123", "123", and case
	// variants) to its current Issue state.
	Lookup(ctx context.Context, id string) (*Issue, error)
	// Create files a new issue and returns its assigned id.
	Create(ctx context.Context, req CreateRequest) (*Issue, error)
	// Link records a directed relation from fromID to toID (e.g.
	// relation "csr for" from the CSR issue to the tracked issue).
	Link(ctx context.Context, fromID, relation, toID string) error
}
