package serverconfig

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "all required fields present",
			env: map[string]string{
				"GITHUB_APP_ID":         "123456",
				"GITHUB_PRIVATE_KEY":    "test-private-key",
				"GITHUB_WEBHOOK_SECRET": "test-webhook-secret",
				"REVIEWBOT_REPOS":       "openjdk/jdk, openjdk/jfx",
				"PORT":                  "9090",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Port != 9090 {
					t.Errorf("Port = %d, want 9090", cfg.Port)
				}
				if len(cfg.Repos) != 2 || cfg.Repos[0] != "openjdk/jdk" || cfg.Repos[1] != "openjdk/jfx" {
					t.Errorf("Repos = %v, want [openjdk/jdk openjdk/jfx]", cfg.Repos)
				}
				if cfg.BotLogin != "reviewbot[bot]" {
					t.Errorf("BotLogin = %s, want default", cfg.BotLogin)
				}
			},
		},
		{
			name: "scheduler and poll defaults",
			env: map[string]string{
				"GITHUB_APP_ID":         "123456",
				"GITHUB_PRIVATE_KEY":    "test-private-key",
				"GITHUB_WEBHOOK_SECRET": "test-webhook-secret",
				"REVIEWBOT_REPOS":       "openjdk/jdk",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Port != 8000 {
					t.Errorf("Port = %d, want 8000 (default)", cfg.Port)
				}
				if cfg.PollInterval != 60*time.Second {
					t.Errorf("PollInterval = %s, want 1m", cfg.PollInterval)
				}
				if cfg.SchedulerWorkers != 4 {
					t.Errorf("SchedulerWorkers = %d, want 4", cfg.SchedulerWorkers)
				}
				if cfg.SchedulerMaxAttempts != 3 {
					t.Errorf("SchedulerMaxAttempts = %d, want 3", cfg.SchedulerMaxAttempts)
				}
				if cfg.SchedulerBackoffMultiplier != 2 {
					t.Errorf("SchedulerBackoffMultiplier = %f, want 2", cfg.SchedulerBackoffMultiplier)
				}
				if cfg.GitHubRateLimitPerSecond != 10 {
					t.Errorf("GitHubRateLimitPerSecond = %f, want 10", cfg.GitHubRateLimitPerSecond)
				}
				if cfg.GitHubRateLimitBurst != 20 {
					t.Errorf("GitHubRateLimitBurst = %d, want 20", cfg.GitHubRateLimitBurst)
				}
			},
		},
		{
			name: "private key with escaped newlines is normalized",
			env: map[string]string{
				"GITHUB_APP_ID":         "123456",
				"GITHUB_PRIVATE_KEY":    "\"-----BEGIN KEY-----\\nabc\\n-----END KEY-----\"",
				"GITHUB_WEBHOOK_SECRET": "test-webhook-secret",
				"REVIEWBOT_REPOS":       "openjdk/jdk",
			},
			check: func(t *testing.T, cfg *Config) {
				want := "-----BEGIN KEY-----\nabc\n-----END KEY-----"
				if cfg.GitHubPrivateKey != want {
					t.Errorf("GitHubPrivateKey = %q, want %q", cfg.GitHubPrivateKey, want)
				}
			},
		},
		{
			name: "missing GITHUB_APP_ID",
			env: map[string]string{
				"GITHUB_PRIVATE_KEY":    "test-private-key",
				"GITHUB_WEBHOOK_SECRET": "test-webhook-secret",
				"REVIEWBOT_REPOS":       "openjdk/jdk",
			},
			wantErr: true,
		},
		{
			name: "missing REVIEWBOT_REPOS",
			env: map[string]string{
				"GITHUB_APP_ID":         "123456",
				"GITHUB_PRIVATE_KEY":    "test-private-key",
				"GITHUB_WEBHOOK_SECRET": "test-webhook-secret",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			cfg, err := Load()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}
