package census

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cexll/reviewbot/internal/botconfig"
	"github.com/cexll/reviewbot/internal/gitplumbing"
	"github.com/cexll/reviewbot/internal/seedstorage"
)

// GitProvider resolves a CensusInstance by maintaining a local mirror of
// each repository's configured census repo (botconfig.Config.CensusRepo)
// and parsing contributors.xml/groups.xml/projects.xml out of its working
// tree, the same seed-plus-scoped-worktree plumbing internal/materialize
// uses for PR content (Skara's own census is itself a plain git repo, not
// an API this bot would otherwise have to poll). Parses are cached per
// census repo and only redone when the repo's HEAD has moved, so a poll
// tick against an unchanged census is a fetch plus a hash compare, not a
// re-parse.
type GitProvider struct {
	Git          *gitplumbing.Git
	Seeds        *seedstorage.Store
	WorkRoot     string
	RemoteURLFor func(censusRepo string) string
	ConfigFor    func(ctx context.Context, repo string) (*botconfig.Config, error)

	mu    sync.Mutex
	cache map[string]cachedCensus
}

type cachedCensus struct {
	revision string
	instance *CensusInstance
}

// Census implements internal/workitem's CensusProvider.
func (p *GitProvider) Census(ctx context.Context, repo string) (*CensusInstance, error) {
	cfg, err := p.ConfigFor(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("census: resolve config for %s: %w", repo, err)
	}
	if cfg.CensusRepo == "" {
		return nil, fmt.Errorf("census: %s has no censusRepo configured", repo)
	}
	return p.censusFor(cfg.CensusRepo)
}

func (p *GitProvider) remoteURL(censusRepo string) string {
	if p.RemoteURLFor != nil {
		return p.RemoteURLFor(censusRepo)
	}
	return fmt.Sprintf("https://github.com/%s.git", censusRepo)
}

func (p *GitProvider) censusFor(censusRepo string) (*CensusInstance, error) {
	barePath := p.Seeds.BareClonePath(censusRepo)
	unlock := p.Seeds.Lock(censusRepo)
	defer unlock()

	if err := p.Git.EnsureBareClone(barePath, p.remoteURL(censusRepo)); err != nil {
		return nil, err
	}

	wt, err := p.Git.NewScopedWorktree(p.WorkRoot, barePath, "")
	if err != nil {
		return nil, err
	}
	defer wt.Close()

	revision, err := wt.Resolve("HEAD")
	if err != nil {
		return nil, err
	}

	if inst, ok := p.cached(censusRepo, revision); ok {
		return inst, nil
	}

	contributorsDoc, err := os.ReadFile(filepath.Join(wt.Dir, "contributors.xml"))
	if err != nil {
		return nil, fmt.Errorf("census: read contributors.xml: %w", err)
	}
	projectsDoc, err := os.ReadFile(filepath.Join(wt.Dir, "projects.xml"))
	if err != nil {
		return nil, fmt.Errorf("census: read projects.xml: %w", err)
	}
	// groups.xml is optional; census.Parse treats an absent/empty document
	// as informational-only.
	groupsDoc, _ := os.ReadFile(filepath.Join(wt.Dir, "groups.xml"))

	inst, err := Parse(revision, contributorsDoc, groupsDoc, projectsDoc)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.cache == nil {
		p.cache = make(map[string]cachedCensus)
	}
	p.cache[censusRepo] = cachedCensus{revision: revision, instance: inst}
	p.mu.Unlock()

	return inst, nil
}

func (p *GitProvider) cached(censusRepo, revision string) (*CensusInstance, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.cache[censusRepo]
	if !ok || c.revision != revision {
		return nil, false
	}
	return c.instance, true
}
