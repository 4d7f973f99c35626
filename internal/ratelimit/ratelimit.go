// Package ratelimit wraps a forge.Client with a token-bucket limiter
// (spec.md §5: "work items that saturate the bucket are suspended, not
// failed"). The wrapping-struct shape is grounded on the teacher's
// internal/costcontrol.CostTracker (a struct interposed between a caller
// and its outbound calls, tracking a budget); costcontrol tracks dollar
// spend per issue/day, not requests per second, so the accounting itself
// is golang.org/x/time/rate rather than a literal port of CostTracker.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter suspends callers until a token is available.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a Limiter allowing burst immediate calls and refilling at
// ratePerSecond tokens/second thereafter.
func New(ratePerSecond float64, burst int) *Limiter {
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// Wait blocks until a token is available or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
