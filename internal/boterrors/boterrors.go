// Package boterrors classifies failures into the three categories the core
// distinguishes: user input errors (reply, don't retry), transient errors
// (retry with backoff), and semantic failures (reply a named diagnostic,
// don't retry). Fatal misconfiguration is its own non-retryable kind.
package boterrors

import "errors"

// Kind is the error taxonomy of spec.md §7.
type Kind string

const (
	KindUserInput Kind = "user_input"
	KindTransient Kind = "transient"
	KindSemantic  Kind = "semantic"
	KindFatal     Kind = "fatal"
)

// Classified wraps an error with its handling category.
type Classified struct {
	Kind      Kind
	Retryable bool
	Err       error
}

func (c *Classified) Error() string {
	if c.Err == nil {
		return string(c.Kind)
	}
	return c.Err.Error()
}

func (c *Classified) Unwrap() error { return c.Err }

// Transient wraps err as a retryable transient error.
func Transient(err error) error {
	return &Classified{Kind: KindTransient, Retryable: true, Err: err}
}

// UserInput wraps err as a non-retryable user-input error, surfaced as a
// single reply.
func UserInput(err error) error {
	return &Classified{Kind: KindUserInput, Retryable: false, Err: err}
}

// Semantic wraps err as a non-retryable semantic failure (merge conflict,
// jcheck failure, missing issue), surfaced to the PR.
func Semantic(err error) error {
	return &Classified{Kind: KindSemantic, Retryable: false, Err: err}
}

// Fatal wraps err as a non-retryable configuration failure. Callers should
// not retry until configuration changes.
func Fatal(err error) error {
	return &Classified{Kind: KindFatal, Retryable: false, Err: err}
}

// IsRetryable reports whether err (or a Classified it wraps) should be
// retried by the scheduler.
func IsRetryable(err error) bool {
	var c *Classified
	if errors.As(err, &c) {
		return c.Retryable
	}
	// An unclassified error is assumed transient: every caught error must
	// either become a user-facing reply or be retried, never silently
	// swallowed; defaulting to retryable keeps that promise for code that
	// forgot to classify.
	return true
}

// KindOf returns the Kind of err, or KindTransient if unclassified.
func KindOf(err error) Kind {
	var c *Classified
	if errors.As(err, &c) {
		return c.Kind
	}
	return KindTransient
}
