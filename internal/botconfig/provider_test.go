package botconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestDirProviderLoadsAndCachesConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "openjdk-jdk.yml")
	if err := os.WriteFile(path, []byte("censusRepo: openjdk/census\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p := &DirProvider{Dir: dir}

	cfg, err := p.Config(context.Background(), "openjdk/jdk")
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if cfg.CensusRepo != "openjdk/census" {
		t.Fatalf("CensusRepo = %q, want openjdk/census", cfg.CensusRepo)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	cached, err := p.Config(context.Background(), "openjdk/jdk")
	if err != nil {
		t.Fatalf("Config on cached repo: %v", err)
	}
	if cached != cfg {
		t.Fatal("expected the cached *Config instance to be returned once the file is gone")
	}
}

func TestDirProviderMissingFile(t *testing.T) {
	p := &DirProvider{Dir: t.TempDir()}
	if _, err := p.Config(context.Background(), "openjdk/jdk"); err == nil {
		t.Fatal("expected an error for a repository with no configuration file")
	}
}

func TestSanitizeRepoFilename(t *testing.T) {
	if got := sanitizeRepoFilename("openjdk/jdk"); got != "openjdk-jdk" {
		t.Fatalf("sanitizeRepoFilename = %q, want openjdk-jdk", got)
	}
}
