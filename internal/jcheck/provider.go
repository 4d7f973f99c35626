package jcheck

import (
	"context"
	"sync"

	"github.com/cexll/reviewbot/internal/botconfig"
	"github.com/cexll/reviewbot/internal/forge"
)

// PerRepoChecker implements internal/prstate's JcheckRunner across every
// repository one bot process serves, each validated against its own
// botconfig.Config.Jcheck policy (spec.md §6) rather than one process-wide
// rule set. A Checker is built once per repository the first time it's
// needed and reused after that; botconfig.DirProvider's own caching means
// a repository's jcheck policy only changes on redeploy, same as the rest
// of its configuration.
type PerRepoChecker struct {
	ConfigFor func(ctx context.Context, repo string) (*botconfig.Config, error)

	mu       sync.Mutex
	checkers map[string]*Checker
}

// Run implements prstate.JcheckRunner.
func (p *PerRepoChecker) Run(ctx context.Context, repo, proposedHash string, pr *forge.PullRequest) (forge.CheckStatus, error) {
	checker, err := p.checkerFor(ctx, repo)
	if err != nil {
		return forge.CheckStatus{}, err
	}
	return checker.Run(ctx, repo, proposedHash, pr)
}

func (p *PerRepoChecker) checkerFor(ctx context.Context, repo string) (*Checker, error) {
	p.mu.Lock()
	if c, ok := p.checkers[repo]; ok {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	cfg, err := p.ConfigFor(ctx, repo)
	if err != nil {
		return nil, err
	}
	checker := New(cfg.Jcheck)

	p.mu.Lock()
	if p.checkers == nil {
		p.checkers = make(map[string]*Checker)
	}
	p.checkers[repo] = checker
	p.mu.Unlock()

	return checker, nil
}
