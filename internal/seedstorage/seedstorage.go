// Package seedstorage manages the per-repository materialization cache
// (spec.md §5 "seed storage"): bare clones and fetched refs shared across
// work items for the same upstream repository, guarded by a per-repository
// mutex so two work items for different PRs of the same repo don't race
// on the shared fetch while each still gets a private working tree.
//
// Grounded on the teacher's internal/concurrency.Manager (a per-key
// semaphore built on sync.Map), generalized from a non-blocking try-lock
// (used there to avoid double-dispatch) to a blocking lock, since seed
// storage access is a resource mutex rather than a work-coalescing guard.
package seedstorage

import (
	"path/filepath"
	"sync"
)

// Store tracks one mutex per upstream repository and the on-disk location
// of its bare clone under the configured root directory.
type Store struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Store rooted at dir (the configured seedStorage directory).
func New(dir string) *Store {
	return &Store{root: dir, locks: make(map[string]*sync.Mutex)}
}

// BareClonePath returns the on-disk path for repo's bare clone.
func (s *Store) BareClonePath(repo string) string {
	return filepath.Join(s.root, sanitize(repo)+".git")
}

// Lock acquires the per-repository mutex for repo, returning an unlock
// function. Callers should defer the returned function.
func (s *Store) Lock(repo string) func() {
	s.mu.Lock()
	m, ok := s.locks[repo]
	if !ok {
		m = &sync.Mutex{}
		s.locks[repo] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func sanitize(repo string) string {
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
