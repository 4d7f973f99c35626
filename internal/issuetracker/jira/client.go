// Package jira implements internal/issuetracker.Client against the Jira
// Cloud REST API. Grounded on the teacher's internal/github/apicommit.go
// (raw net/http REST calls the go-github SDK doesn't cover, with a
// bytes.Buffer request body and a decoded JSON response) and
// internal/github/retry.go (bounded exponential backoff over transient
// failures), adapted from GitHub's REST shape to Jira's
// /rest/api/2/issue, /rest/api/2/issue/ID and /rest/api/2/issueLink
// endpoints.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cexll/reviewbot/internal/boterrors"
	"github.com/cexll/reviewbot/internal/issuetracker"
)

// Client talks to one Jira instance over its REST API.
type Client struct {
	BaseURL        string
	Email          string
	APIToken       string
	DefaultProject string
	HTTP           *http.Client
}

// NewClient creates a Client. An http.Client with a 15s timeout is used
// if httpClient is nil.
func NewClient(baseURL, email, apiToken, defaultProject string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		BaseURL:        strings.TrimSuffix(baseURL, "/"),
		Email:          email,
		APIToken:       apiToken,
		DefaultProject: defaultProject,
		HTTP:           httpClient,
	}
}

// normalizeID tolerates "PROJ-123", "proj-123", and a bare "123" (which
// is qualified with c's DefaultProject), per spec.md §6.
func (c *Client) normalizeID(id string) string {
	id = strings.TrimSpace(id)
	if _, err := strconv.Atoi(id); err == nil {
		return fmt.Sprintf("%s-%s", strings.ToUpper(c.DefaultProject), id)
	}
	if idx := strings.Index(id, "-"); idx > 0 {
		return strings.ToUpper(id[:idx]) + id[idx:]
	}
	return strings.ToUpper(id)
}

type jiraIssueResponse struct {
	Key    string `json:"key"`
	Fields struct {
		Status struct {
			StatusCategory struct {
				Key string `json:"key"`
			} `json:"statusCategory"`
		} `json:"status"`
		IssueType struct {
			Name string `json:"name"`
		} `json:"issuetype"`
		FixVersions []struct {
			Name string `json:"name"`
		} `json:"fixVersions"`
		IssueLinks []struct {
			Type struct {
				Name string `json:"name"`
			} `json:"type"`
			OutwardIssue *struct {
				Key string `json:"key"`
			} `json:"outwardIssue"`
			InwardIssue *struct {
				Key string `json:"key"`
			} `json:"inwardIssue"`
		} `json:"issuelinks"`
	} `json:"fields"`
}

// Lookup implements issuetracker.Client.
func (c *Client) Lookup(ctx context.Context, id string) (*issuetracker.Issue, error) {
	key := c.normalizeID(id)

	var resp jiraIssueResponse
	err := c.withRetry(func() error {
		return c.doJSON(ctx, http.MethodGet, "/rest/api/2/issue/"+key, nil, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("issuetracker: lookup %s: %w", key, err)
	}

	issue := &issuetracker.Issue{
		ID:       resp.Key,
		Resolved: resp.Fields.Status.StatusCategory.Key == "done",
		Type:     resp.Fields.IssueType.Name,
	}
	for _, v := range resp.Fields.FixVersions {
		issue.FixVersions = append(issue.FixVersions, v.Name)
	}
	for _, l := range resp.Fields.IssueLinks {
		switch {
		case l.OutwardIssue != nil:
			issue.Links = append(issue.Links, issuetracker.Link{Relation: l.Type.Name, IssueID: l.OutwardIssue.Key})
		case l.InwardIssue != nil:
			issue.Links = append(issue.Links, issuetracker.Link{Relation: l.Type.Name, IssueID: l.InwardIssue.Key})
		}
	}
	return issue, nil
}

type jiraRef struct {
	Key  string `json:"key,omitempty"`
	Name string `json:"name,omitempty"`
}

type createIssuePayload struct {
	Fields struct {
		Project     jiraRef   `json:"project"`
		Summary     string    `json:"summary"`
		Description string    `json:"description,omitempty"`
		IssueType   jiraRef   `json:"issuetype"`
		Priority    *jiraRef  `json:"priority,omitempty"`
		Components  []jiraRef `json:"components,omitempty"`
	} `json:"fields"`
}

// Create implements issuetracker.Client.
func (c *Client) Create(ctx context.Context, req issuetracker.CreateRequest) (*issuetracker.Issue, error) {
	project := req.Project
	if project == "" {
		project = c.DefaultProject
	}

	var payload createIssuePayload
	payload.Fields.Project.Key = strings.ToUpper(project)
	payload.Fields.Summary = req.Summary
	payload.Fields.Description = req.Description
	payload.Fields.IssueType.Name = req.IssueType
	if req.Priority != "" {
		payload.Fields.Priority = &jiraRef{Name: req.Priority}
	}
	for _, comp := range req.Components {
		payload.Fields.Components = append(payload.Fields.Components, jiraRef{Name: comp})
	}

	var resp jiraIssueResponse
	err := c.withRetry(func() error {
		return c.doJSON(ctx, http.MethodPost, "/rest/api/2/issue", payload, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("issuetracker: create issue in %s: %w", project, err)
	}
	return &issuetracker.Issue{ID: resp.Key, Type: req.IssueType, FixVersions: nil}, nil
}

type issueLinkPayload struct {
	Type         jiraRef `json:"type"`
	InwardIssue  jiraRef `json:"inwardIssue"`
	OutwardIssue jiraRef `json:"outwardIssue"`
}

// Link implements issuetracker.Client.
func (c *Client) Link(ctx context.Context, fromID, relation, toID string) error {
	var payload issueLinkPayload
	payload.Type.Name = relation
	payload.InwardIssue.Key = c.normalizeID(fromID)
	payload.OutwardIssue.Key = c.normalizeID(toID)

	err := c.withRetry(func() error {
		return c.doJSON(ctx, http.MethodPost, "/rest/api/2/issueLink", payload, nil)
	})
	if err != nil {
		return fmt.Errorf("issuetracker: link %s -> %s (%s): %w", fromID, toID, relation, err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return boterrors.UserInput(fmt.Errorf("encode request: %w", err))
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return boterrors.Fatal(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.Email, c.APIToken)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return boterrors.Transient(err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 500 {
		return boterrors.Transient(fmt.Errorf("jira %s %s: %d: %s", method, path, resp.StatusCode, respBody))
	}
	if resp.StatusCode == http.StatusNotFound {
		return boterrors.Semantic(fmt.Errorf("jira %s %s: not found", method, path))
	}
	if resp.StatusCode >= 400 {
		return boterrors.UserInput(fmt.Errorf("jira %s %s: %d: %s", method, path, resp.StatusCode, respBody))
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return boterrors.Transient(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// Retry configuration, grounded on the teacher's retryWithBackoff
// (internal/github/retry.go): bounded exponential backoff, stopping as
// soon as an error is classified non-retryable.
const (
	defaultMaxRetries   = 5
	defaultInitialDelay = 500 * time.Millisecond
)

func (c *Client) withRetry(fn func() error) error {
	delay := defaultInitialDelay
	var lastErr error
	for attempt := 0; attempt <= defaultMaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(delay)
			delay *= 2
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !boterrors.IsRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
