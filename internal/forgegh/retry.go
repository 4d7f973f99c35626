package forgegh

import (
	"errors"
	"net"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"

	"github.com/cexll/reviewbot/internal/boterrors"
)

// Retry configuration, grounded on the teacher's retryWithBackoff
// (internal/github/retry.go): bounded exponential backoff, retrying only
// errors classified as transient.
const (
	defaultMaxRetries   = 5
	defaultInitialDelay = 500 * time.Millisecond
)

// withRetry runs fn, retrying with exponential backoff while the error is
// classified transient. A non-retryable error is returned as-is; an error
// still transient after the last retry is wrapped as boterrors.Transient.
func withRetry(fn func() error) error {
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
		if !isRetryable(lastErr) {
			return lastErr
		}
	}
	return boterrors.Transient(lastErr)
}

// isRetryable classifies a go-github/network error as transient: rate
// limits, abuse-detection backoff, 5xx responses, and common network
// failures. Anything else (404, 422, auth failures) is not retried here.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var rle *gh.RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	var ale *gh.AbuseRateLimitError
	if errors.As(err, &ale) {
		return true
	}
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"eof", "timeout", "connection reset", "broken pipe", "no such host"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
