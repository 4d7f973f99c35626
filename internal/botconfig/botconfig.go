// Package botconfig loads per-repository bot configuration (spec.md §6
// Configuration). Grounded on the teacher's internal/config.Load/validate
// defaulting idiom, retargeted from process-wide environment variables to
// a per-repository YAML document, since this bot is multi-tenant across
// many repositories and each needs its own label configuration, census
// binding, and command allow-lists.
package botconfig

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config is one repository's bot configuration.
type Config struct {
	CensusRepo   string `yaml:"censusRepo"`
	CensusLink   string `yaml:"censusLink"`
	IssueProject string `yaml:"issueProject"`

	LabelConfiguration map[string][]string `yaml:"labelConfiguration"`

	ExternalPullRequestCommands []string `yaml:"externalPullRequestCommands"`
	ExternalCommitCommands      []string `yaml:"externalCommitCommands"`

	SeedStorage string `yaml:"seedStorage"`

	Forks map[string]string `yaml:"forks"`

	ProcessPR     *bool `yaml:"processPR"`
	ProcessCommit *bool `yaml:"processCommit"`

	EnableCsr       bool `yaml:"enableCsr"`
	UseStaleReviews bool `yaml:"useStaleReviews"`

	Integrators []string `yaml:"integrators"`

	// Jcheck configures C4's policy validation against the proposed commit.
	Jcheck JcheckConfig `yaml:"jcheck"`
}

// JcheckConfig is the per-repository policy jcheck validates against.
type JcheckConfig struct {
	// MaxSynopsisLength bounds the commit title length; 0 means the
	// jcheck package default (80) applies.
	MaxSynopsisLength int `yaml:"maxSynopsisLength"`
	// ForbiddenPathPatterns are regexes against ChangedFiles paths; a
	// match is reported as a jcheck issue (e.g. generated or vendored
	// trees the project doesn't want touched by a plain PR).
	ForbiddenPathPatterns []string `yaml:"forbiddenPathPatterns"`
	// RequireIssuePrefix requires the title to start with "<digits>: ".
	RequireIssuePrefix bool `yaml:"requireIssuePrefix"`
}

// Load parses a repository's YAML configuration document and applies
// defaults.
func Load(doc []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(doc, cfg); err != nil {
		return nil, fmt.Errorf("botconfig: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SeedStorage == "" {
		c.SeedStorage = "/var/lib/reviewbot/seeds"
	}
	if c.ProcessPR == nil {
		t := true
		c.ProcessPR = &t
	}
	if c.ProcessCommit == nil {
		t := true
		c.ProcessCommit = &t
	}
}

func (c *Config) validate() error {
	if c.CensusRepo == "" {
		return fmt.Errorf("botconfig: censusRepo is required")
	}
	return nil
}

// ProcessesPullRequests reports whether PR processing is enabled.
func (c *Config) ProcessesPullRequests() bool {
	return c.ProcessPR == nil || *c.ProcessPR
}

// ProcessesCommits reports whether commit-comment processing is enabled.
func (c *Config) ProcessesCommits() bool {
	return c.ProcessCommit == nil || *c.ProcessCommit
}

// IsExternalPullRequestCommand reports whether name is advertised in
// /help but handled by an external consumer, not this dispatcher.
func (c *Config) IsExternalPullRequestCommand(name string) bool {
	return contains(c.ExternalPullRequestCommands, name)
}

// IsExternalCommitCommand reports whether name is advertised in /help for
// commit comments but handled by an external consumer.
func (c *Config) IsExternalCommitCommand(name string) bool {
	return contains(c.ExternalCommitCommands, name)
}

// IsIntegrator reports whether login is allow-listed for /branch.
func (c *Config) IsIntegrator(login string) bool {
	return contains(c.Integrators, login)
}

// Fork returns the hosted fork for repo, used by /backport.
func (c *Config) Fork(repo string) (string, bool) {
	fork, ok := c.Forks[repo]
	return fork, ok
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
