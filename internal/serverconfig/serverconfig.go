// Package serverconfig loads the bot process's own environment-variable
// configuration: GitHub App credentials, the repository set it serves,
// on-disk storage roots, and scheduler/issue-tracker tuning. Grounded on
// the teacher's internal/config.Load (env vars, getEnv*/Load/validate
// idiom); generalized from one provider's credentials to a multi-tenant
// GitHub App plus the repository-scoped knobs spec.md §6 leaves to
// per-repository botconfig.Config instead.
package serverconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the bot process's environment.
type Config struct {
	Port int

	GitHubAppID         string
	GitHubPrivateKey    string
	GitHubWebhookSecret string
	GitHubBaseURL       string // empty for github.com; set for GitHub Enterprise

	Repos []string // "owner/name", the repositories this process polls and serves

	RepoConfigDir  string // directory of per-repository botconfig YAML documents
	SeedStorageDir string // seedstorage.Store root
	WorkRootDir    string // scratch root for scoped worktrees

	PollInterval time.Duration

	SchedulerWorkers     int
	SchedulerQueueSize   int
	SchedulerMaxAttempts int
	SchedulerRetryInitial time.Duration
	SchedulerRetryMax     time.Duration
	SchedulerBackoffMultiplier float64

	BotLogin string

	GitHubRateLimitPerSecond float64
	GitHubRateLimitBurst     int

	JiraBaseURL        string // empty disables issue-tracker enrichment
	JiraEmail          string
	JiraAPIToken       string
	JiraDefaultProject string
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                       getEnvInt("PORT", 8000),
		GitHubAppID:                os.Getenv("GITHUB_APP_ID"),
		GitHubPrivateKey:           normalizePrivateKey(os.Getenv("GITHUB_PRIVATE_KEY")),
		GitHubWebhookSecret:        os.Getenv("GITHUB_WEBHOOK_SECRET"),
		GitHubBaseURL:              os.Getenv("GITHUB_BASE_URL"),
		Repos:                      splitList(os.Getenv("REVIEWBOT_REPOS")),
		RepoConfigDir:              getEnv("REVIEWBOT_CONFIG_DIR", "/etc/reviewbot/repos"),
		SeedStorageDir:             getEnv("REVIEWBOT_SEED_DIR", "/var/lib/reviewbot/seeds"),
		WorkRootDir:                getEnv("REVIEWBOT_WORK_DIR", "/var/lib/reviewbot/work"),
		PollInterval:               time.Duration(getEnvInt("REVIEWBOT_POLL_SECONDS", 60)) * time.Second,
		SchedulerWorkers:           getEnvInt("SCHEDULER_WORKERS", 4),
		SchedulerQueueSize:         getEnvInt("SCHEDULER_QUEUE_SIZE", 64),
		SchedulerMaxAttempts:       getEnvInt("SCHEDULER_MAX_ATTEMPTS", 3),
		SchedulerRetryInitial:      time.Duration(getEnvInt("SCHEDULER_RETRY_SECONDS", 15)) * time.Second,
		SchedulerRetryMax:          time.Duration(getEnvInt("SCHEDULER_RETRY_MAX_SECONDS", 300)) * time.Second,
		SchedulerBackoffMultiplier: getEnvFloat("SCHEDULER_BACKOFF_MULTIPLIER", 2.0),
		BotLogin:                   getEnv("REVIEWBOT_BOT_LOGIN", "reviewbot[bot]"),
		GitHubRateLimitPerSecond:   getEnvFloat("GITHUB_RATE_LIMIT_PER_SECOND", 10.0),
		GitHubRateLimitBurst:       getEnvInt("GITHUB_RATE_LIMIT_BURST", 20),
		JiraBaseURL:                os.Getenv("JIRA_BASE_URL"),
		JiraEmail:                  os.Getenv("JIRA_EMAIL"),
		JiraAPIToken:               os.Getenv("JIRA_API_TOKEN"),
		JiraDefaultProject:         os.Getenv("JIRA_DEFAULT_PROJECT"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.GitHubAppID == "" {
		return fmt.Errorf("GITHUB_APP_ID is required")
	}
	if c.GitHubPrivateKey == "" {
		return fmt.Errorf("GITHUB_PRIVATE_KEY is required")
	}
	if c.GitHubWebhookSecret == "" {
		return fmt.Errorf("GITHUB_WEBHOOK_SECRET is required")
	}
	if len(c.Repos) == 0 {
		return fmt.Errorf("REVIEWBOT_REPOS is required (comma-separated owner/name list)")
	}
	return nil
}

// normalizePrivateKey undoes the common ways a PEM key gets mangled
// passing through a shell/env var/secret manager.
func normalizePrivateKey(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	trimmed = strings.Trim(trimmed, "\"'")
	trimmed = strings.ReplaceAll(trimmed, "\r\n", "\n")
	trimmed = strings.ReplaceAll(trimmed, "\r", "\n")
	if strings.Contains(trimmed, "\\n") {
		trimmed = strings.ReplaceAll(trimmed, "\\n", "\n")
	}
	return trimmed
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
