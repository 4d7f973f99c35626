package webhook

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/cexll/reviewbot/internal/scheduler"
	"github.com/cexll/reviewbot/internal/workitem"
)

// Handler receives GitHub webhook deliveries and turns pull_request,
// issue_comment, and commit_comment events into scheduler work items.
// Grounded on the teacher's internal/webhook/handler.go: read payload,
// verify signature, decode event, drop bot-authored deliveries, dispatch
// — generalized from a single issue_comment-to-Executor flow into a
// three-event router feeding a scheduler.Enqueuer instead of calling an
// Executor directly.
type Handler struct {
	Secret string
	Target scheduler.Enqueuer
	Log    *logrus.Entry
}

// NewHandler creates a Handler.
func NewHandler(secret string, target scheduler.Enqueuer, log *logrus.Entry) *Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{Secret: secret, Target: target, Log: log}
}

func (h *Handler) logger() *logrus.Entry {
	if h.Log != nil {
		return h.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// ServeHTTP implements http.Handler. It verifies the delivery's HMAC
// signature once, then dispatches on the X-GitHub-Event header.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	signature := r.Header.Get("X-Hub-Signature-256")
	if err := ValidateSignatureHeader(signature); err != nil {
		h.logger().WithError(err).Warn("invalid signature header")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger().WithError(err).Warn("error reading webhook payload")
		http.Error(w, "error reading payload", http.StatusBadRequest)
		return
	}

	if !VerifySignature(payload, signature, h.Secret) {
		h.logger().Warn("webhook signature verification failed")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	switch event := r.Header.Get("X-GitHub-Event"); event {
	case "pull_request":
		h.handlePullRequest(w, payload)
	case "issue_comment":
		h.handleIssueComment(w, payload)
	case "commit_comment":
		h.handleCommitComment(w, payload)
	case "ping":
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	default:
		h.logger().WithField("event", event).Debug("ignoring unhandled webhook event")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("event ignored"))
	}
}

func (h *Handler) handlePullRequest(w http.ResponseWriter, payload []byte) {
	var event pullRequestEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger().WithError(err).Warn("error parsing pull_request event")
		http.Error(w, "error parsing event", http.StatusBadRequest)
		return
	}
	if event.Sender.isBot() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("bot event ignored"))
		return
	}

	h.enqueue(w, workitem.PRItem{Repo: event.Repository.FullName, Number: event.Number})
}

func (h *Handler) handleIssueComment(w http.ResponseWriter, payload []byte) {
	var event issueCommentEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger().WithError(err).Warn("error parsing issue_comment event")
		http.Error(w, "error parsing event", http.StatusBadRequest)
		return
	}
	if event.Issue.PullRequest == nil {
		// A comment on a plain issue, not a PR; this bot only watches PRs.
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("not a pull request comment"))
		return
	}
	if event.Comment.User.isBot() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("bot comment ignored"))
		return
	}

	h.enqueue(w, workitem.PRItem{Repo: event.Repository.FullName, Number: event.Issue.Number})
}

func (h *Handler) handleCommitComment(w http.ResponseWriter, payload []byte) {
	var event commitCommentEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger().WithError(err).Warn("error parsing commit_comment event")
		http.Error(w, "error parsing event", http.StatusBadRequest)
		return
	}
	if event.Comment.User.isBot() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("bot comment ignored"))
		return
	}

	h.enqueue(w, workitem.CommitItem{Repo: event.Repository.FullName, Hash: event.Comment.CommitID})
}

func (h *Handler) enqueue(w http.ResponseWriter, item scheduler.WorkItem) {
	if err := h.Target.Enqueue(item); err != nil {
		h.logger().WithField("key", item.Key()).WithError(err).Warn("failed to enqueue webhook-triggered work item")
		http.Error(w, "too busy, try again later", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("accepted"))
}
