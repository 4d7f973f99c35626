package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/cexll/reviewbot/internal/forge"
)

type countingClient struct {
	forge.Client
	calls int
}

func (c *countingClient) GetPullRequest(ctx context.Context, repo string, number int) (*forge.PullRequest, error) {
	c.calls++
	return &forge.PullRequest{Repo: repo, ID: number}, nil
}

func TestWrapSuspendsBeyondBurst(t *testing.T) {
	inner := &countingClient{}
	limiter := New(1, 1) // 1 token, refills at 1/s
	client := Wrap(inner, limiter)

	ctx := context.Background()
	if _, err := client.GetPullRequest(ctx, "org/repo", 1); err != nil {
		t.Fatalf("first call: %v", err)
	}

	start := time.Now()
	if _, err := client.GetPullRequest(ctx, "org/repo", 2); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 400*time.Millisecond {
		t.Fatalf("second call returned after %v, expected to be suspended waiting for refill", elapsed)
	}

	if inner.calls != 2 {
		t.Fatalf("inner.calls = %d, want 2", inner.calls)
	}
}

func TestWrapReturnsCtxErrorWithoutCallingUnderlying(t *testing.T) {
	inner := &countingClient{}
	limiter := New(1, 0)
	client := Wrap(inner, limiter)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.GetPullRequest(ctx, "org/repo", 1); err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if inner.calls != 0 {
		t.Fatalf("inner.calls = %d, want 0", inner.calls)
	}
}
