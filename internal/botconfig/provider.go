package botconfig

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DirProvider resolves a repository's Config from a flat directory of
// YAML documents, one per repository, named after its sanitized full name
// (e.g. "openjdk/jdk" -> "openjdk-jdk.yml"). Grounded on the teacher's
// config.Load reading a single process-wide file; generalized here to one
// file per tenant repository, since this bot serves many repositories
// from one process (spec.md §6).
type DirProvider struct {
	Dir string

	mu    sync.Mutex
	cache map[string]*Config
}

// Config implements internal/workitem's ConfigProvider. Results are cached
// per repository for the lifetime of the provider; operators redeploy (or
// a future file-watch) to pick up edits, the same refresh model the
// teacher's own Load uses for its process-wide configuration.
func (p *DirProvider) Config(_ context.Context, repo string) (*Config, error) {
	p.mu.Lock()
	if cfg, ok := p.cache[repo]; ok {
		p.mu.Unlock()
		return cfg, nil
	}
	p.mu.Unlock()

	path := filepath.Join(p.Dir, sanitizeRepoFilename(repo)+".yml")
	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("botconfig: read %s: %w", path, err)
	}
	cfg, err := Load(doc)
	if err != nil {
		return nil, fmt.Errorf("botconfig: %s: %w", repo, err)
	}

	p.mu.Lock()
	if p.cache == nil {
		p.cache = make(map[string]*Config)
	}
	p.cache[repo] = cfg
	p.mu.Unlock()

	return cfg, nil
}

func sanitizeRepoFilename(repo string) string {
	out := make([]rune, 0, len(repo))
	for _, r := range repo {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}
