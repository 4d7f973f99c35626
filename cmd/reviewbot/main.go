// Command reviewbot runs the PR-review/integration bot: a webhook receiver
// plus a polling fallback feeding one scheduler, which reconciles pull
// request state (C5), dispatches commit-comment commands, and performs
// the integration protocol (C7). Grounded on the teacher's cmd/main.go
// (gorilla/mux router, signal-driven graceful shutdown).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gh "github.com/google/go-github/v66/github"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/cexll/reviewbot/internal/botconfig"
	"github.com/cexll/reviewbot/internal/census"
	"github.com/cexll/reviewbot/internal/command"
	"github.com/cexll/reviewbot/internal/forgegh"
	"github.com/cexll/reviewbot/internal/gitplumbing"
	"github.com/cexll/reviewbot/internal/integrate"
	"github.com/cexll/reviewbot/internal/issuetracker"
	"github.com/cexll/reviewbot/internal/issuetracker/jira"
	"github.com/cexll/reviewbot/internal/jcheck"
	"github.com/cexll/reviewbot/internal/labeler"
	"github.com/cexll/reviewbot/internal/materialize"
	"github.com/cexll/reviewbot/internal/prstate"
	"github.com/cexll/reviewbot/internal/ratelimit"
	"github.com/cexll/reviewbot/internal/scheduler"
	"github.com/cexll/reviewbot/internal/seedstorage"
	"github.com/cexll/reviewbot/internal/serverconfig"
	"github.com/cexll/reviewbot/internal/webhook"
	"github.com/cexll/reviewbot/internal/workitem"
)

func main() {
	log := logrus.NewEntry(logrus.StandardLogger())

	cfg, err := serverconfig.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	baseClient, err := githubBaseClient(cfg)
	if err != nil {
		log.Fatalf("build github client: %v", err)
	}
	auth := forgegh.NewAppAuth(cfg.GitHubAppID, cfg.GitHubPrivateKey, baseClient)
	forgeClient := ratelimit.Wrap(forgegh.NewClient(auth), ratelimit.New(cfg.GitHubRateLimitPerSecond, cfg.GitHubRateLimitBurst))

	configs := &botconfig.DirProvider{Dir: cfg.RepoConfigDir}

	git := gitplumbing.New(nil)
	seeds := seedstorage.New(cfg.SeedStorageDir)
	censusProvider := &census.GitProvider{
		Git:       git,
		Seeds:     seeds,
		WorkRoot:  cfg.WorkRootDir,
		ConfigFor: configs.Config,
	}

	mat := &materialize.Materializer{Git: git, Seeds: seeds, WorkRoot: cfg.WorkRootDir}
	checker := &jcheck.PerRepoChecker{ConfigFor: configs.Config}

	var tracker issuetracker.Client
	if cfg.JiraBaseURL != "" {
		tracker = jira.NewClient(cfg.JiraBaseURL, cfg.JiraEmail, cfg.JiraAPIToken, cfg.JiraDefaultProject, nil)
	}

	registry := command.NewRegistry()
	command.RegisterBuiltins(registry)
	dispatcher := command.NewDispatcher(registry)

	reconciler := &prstate.Reconciler{
		Forge:        forgeClient,
		Labeler:      compileDefaultLabeler(configs, cfg.Repos, log),
		Materializer: mat,
		Jcheck:       checker,
		Dispatcher:   dispatcher,
		Registry:     registry,
		BotLogin:     cfg.BotLogin,
		IssueTracker: tracker,
	}

	protocol := &integrate.Protocol{
		Forge:    forgeClient,
		Git:      git,
		Seeds:    seeds,
		WorkRoot: cfg.WorkRootDir,
	}

	runner := &workitem.Runner{
		Forge:      forgeClient,
		Reconciler: reconciler,
		Protocol:   protocol,
		Census:     censusProvider,
		Configs:    configs,
		Dispatcher: dispatcher,
		BotLogin:   cfg.BotLogin,
		Log:        log,
	}

	sched := scheduler.New(runner, scheduler.Config{
		Workers:           cfg.SchedulerWorkers,
		QueueSize:         cfg.SchedulerQueueSize,
		MaxAttempts:       cfg.SchedulerMaxAttempts,
		InitialBackoff:    cfg.SchedulerRetryInitial,
		BackoffMultiplier: cfg.SchedulerBackoffMultiplier,
		MaxBackoff:        cfg.SchedulerRetryMax,
	}, log)
	sched.OnExhausted(func(item scheduler.WorkItem, err error) {
		log.WithError(err).WithField("item", item.Key()).Warn("work item retries exhausted")
	})

	pollSource := &workitem.ForgePollSource{Forge: forgeClient, Repos: cfg.Repos}
	poller := scheduler.NewPoller(sched, []scheduler.PollSource{pollSource}, cfg.PollInterval, log)

	webhookHandler := webhook.NewHandler(cfg.GitHubWebhookSecret, sched, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)

	r := mux.NewRouter()
	r.Handle("/webhook", webhookHandler).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	sched.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}
	log.Info("server exited")
}

// compileDefaultLabeler builds the one process-wide labeler.Matcher used
// across every repository this process serves, from the first configured
// repository's labelConfiguration (see DESIGN.md's "Label configuration
// across a multi-tenant process" note: prstate.Labeler carries no repo
// parameter, so it can't be switched per call the way JcheckRunner is).
func compileDefaultLabeler(configs *botconfig.DirProvider, repos []string, log *logrus.Entry) prstate.Labeler {
	if len(repos) == 0 {
		return nil
	}
	cfg, err := configs.Config(context.Background(), repos[0])
	if err != nil {
		log.WithError(err).Warn("could not load label configuration at startup; label application disabled")
		return nil
	}
	matcher, err := labeler.Compile(cfg.LabelConfiguration)
	if err != nil {
		log.WithError(err).Warn("invalid label configuration; label application disabled")
		return nil
	}
	return matcher
}

// githubBaseClient builds the unauthenticated client AppAuth exchanges
// JWTs through, pointed at GitHub Enterprise when configured.
func githubBaseClient(cfg *serverconfig.Config) (*gh.Client, error) {
	client := gh.NewClient(nil)
	if cfg.GitHubBaseURL == "" {
		return client, nil
	}
	enterprise, err := client.WithEnterpriseURLs(cfg.GitHubBaseURL, cfg.GitHubBaseURL)
	if err != nil {
		return nil, fmt.Errorf("github enterprise client: %w", err)
	}
	return enterprise, nil
}
