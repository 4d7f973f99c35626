package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cexll/reviewbot/internal/scheduler"
	"github.com/cexll/reviewbot/internal/workitem"
)

// fakeEnqueuer records every item handed to it, standing in for the real
// scheduler.Scheduler.
type fakeEnqueuer struct {
	items []scheduler.WorkItem
	err   error
}

func (f *fakeEnqueuer) Enqueue(item scheduler.WorkItem) error {
	if f.err != nil {
		return f.err
	}
	f.items = append(f.items, item)
	return nil
}

const secret = "s3cret"

func sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func post(t *testing.T, h *Handler, event string, payload []byte, signed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set("X-GitHub-Event", event)
	if signed {
		req.Header.Set("X-Hub-Signature-256", sign(payload))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServeHTTPRejectsMissingSignature(t *testing.T) {
	target := &fakeEnqueuer{}
	h := NewHandler(secret, target, nil)

	rec := post(t, h, "pull_request", []byte(`{}`), false)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(target.items) != 0 {
		t.Fatalf("expected no enqueue on signature failure, got %d", len(target.items))
	}
}

func TestServeHTTPRejectsBadSignature(t *testing.T) {
	target := &fakeEnqueuer{}
	h := NewHandler(secret, target, nil)

	payload := []byte(`{"number":7}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set("X-GitHub-Event", "pull_request")
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestServeHTTPPullRequestEnqueuesPRItem(t *testing.T) {
	target := &fakeEnqueuer{}
	h := NewHandler(secret, target, nil)

	payload := []byte(`{"action":"synchronize","number":42,"repository":{"full_name":"openjdk/core"},"sender":{"login":"contributor1","type":"User"}}`)
	rec := post(t, h, "pull_request", payload, true)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(target.items) != 1 {
		t.Fatalf("expected one enqueued item, got %d", len(target.items))
	}
	item, ok := target.items[0].(workitem.PRItem)
	if !ok {
		t.Fatalf("item type = %T, want workitem.PRItem", target.items[0])
	}
	if item.Repo != "openjdk/core" || item.Number != 42 {
		t.Fatalf("item = %+v, want repo openjdk/core number 42", item)
	}
}

func TestServeHTTPPullRequestIgnoresBotSender(t *testing.T) {
	target := &fakeEnqueuer{}
	h := NewHandler(secret, target, nil)

	payload := []byte(`{"action":"synchronize","number":42,"repository":{"full_name":"openjdk/core"},"sender":{"login":"reviewbot[bot]","type":"Bot"}}`)
	rec := post(t, h, "pull_request", payload, true)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(target.items) != 0 {
		t.Fatalf("expected no enqueue for a bot-authored event, got %d", len(target.items))
	}
}

func TestServeHTTPIssueCommentOnPullRequestEnqueuesPRItem(t *testing.T) {
	target := &fakeEnqueuer{}
	h := NewHandler(secret, target, nil)

	payload := []byte(`{"action":"created","issue":{"number":7,"pull_request":{"url":"https://api.github.com/pr/7"}},"comment":{"id":1,"body":"/integrate","user":{"login":"lead1","type":"User"}},"repository":{"full_name":"openjdk/core"}}`)
	rec := post(t, h, "issue_comment", payload, true)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(target.items) != 1 {
		t.Fatalf("expected one enqueued item, got %d", len(target.items))
	}
	item, ok := target.items[0].(workitem.PRItem)
	if !ok || item.Number != 7 {
		t.Fatalf("item = %+v, want PRItem number 7", target.items[0])
	}
}

func TestServeHTTPIssueCommentOnPlainIssueIsIgnored(t *testing.T) {
	target := &fakeEnqueuer{}
	h := NewHandler(secret, target, nil)

	payload := []byte(`{"action":"created","issue":{"number":9},"comment":{"id":1,"body":"hi","user":{"login":"someone","type":"User"}},"repository":{"full_name":"openjdk/core"}}`)
	rec := post(t, h, "issue_comment", payload, true)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(target.items) != 0 {
		t.Fatalf("expected no enqueue for a non-PR issue comment, got %d", len(target.items))
	}
}

func TestServeHTTPIssueCommentIgnoresBotAuthor(t *testing.T) {
	target := &fakeEnqueuer{}
	h := NewHandler(secret, target, nil)

	payload := []byte(`{"action":"created","issue":{"number":7,"pull_request":{"url":"x"}},"comment":{"id":1,"body":"ready","user":{"login":"reviewbot[bot]","type":"Bot"}},"repository":{"full_name":"openjdk/core"}}`)
	rec := post(t, h, "issue_comment", payload, true)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(target.items) != 0 {
		t.Fatalf("expected no enqueue for a bot-authored comment, got %d", len(target.items))
	}
}

func TestServeHTTPCommitCommentEnqueuesCommitItem(t *testing.T) {
	target := &fakeEnqueuer{}
	h := NewHandler(secret, target, nil)

	payload := []byte(`{"action":"created","comment":{"id":1,"commit_id":"abc123","body":"/backport jdk21","user":{"login":"lead1","type":"User"}},"repository":{"full_name":"openjdk/core"}}`)
	rec := post(t, h, "commit_comment", payload, true)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(target.items) != 1 {
		t.Fatalf("expected one enqueued item, got %d", len(target.items))
	}
	item, ok := target.items[0].(workitem.CommitItem)
	if !ok || item.Hash != "abc123" {
		t.Fatalf("item = %+v, want CommitItem hash abc123", target.items[0])
	}
}

func TestServeHTTPUnknownEventIsIgnored(t *testing.T) {
	target := &fakeEnqueuer{}
	h := NewHandler(secret, target, nil)

	rec := post(t, h, "deployment", []byte(`{}`), true)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(target.items) != 0 {
		t.Fatalf("expected no enqueue for an unhandled event type, got %d", len(target.items))
	}
}

func TestServeHTTPEnqueueFailureReturnsServiceUnavailable(t *testing.T) {
	target := &fakeEnqueuer{err: scheduler.ErrQueueFull}
	h := NewHandler(secret, target, nil)

	payload := []byte(`{"action":"synchronize","number":42,"repository":{"full_name":"openjdk/core"},"sender":{"login":"contributor1","type":"User"}}`)
	rec := post(t, h, "pull_request", payload, true)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
