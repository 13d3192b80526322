package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/quietloop/backlogpilot/internal/config"
	"github.com/quietloop/backlogpilot/internal/domain"
	"github.com/quietloop/backlogpilot/internal/eligibility"
	"github.com/quietloop/backlogpilot/internal/executor"
	"github.com/quietloop/backlogpilot/internal/issues"
	"github.com/quietloop/backlogpilot/internal/lease"
	"github.com/quietloop/backlogpilot/internal/notify"
	"github.com/quietloop/backlogpilot/internal/orchestrator"
	"github.com/quietloop/backlogpilot/internal/prompts"
	"github.com/quietloop/backlogpilot/internal/results"
	"github.com/quietloop/backlogpilot/internal/scoring"
	"github.com/quietloop/backlogpilot/internal/taskdb"
)

// backlogStore is the task-side surface both backlog kinds provide.
type backlogStore interface {
	ListTasks() ([]*domain.Task, error)
	GetTask(id string) (*domain.Task, error)
	UpdateTaskStatus(id string, status domain.TaskStatus) error
	AttachArtifact(id, ref string) error
}

// sqliteBacklog adapts taskdb.Store to the unfiltered listing the
// eligibility fetcher wants.
type sqliteBacklog struct {
	*taskdb.Store
}

func (b sqliteBacklog) ListTasks() ([]*domain.Task, error) {
	return b.Store.ListTasks(taskdb.ListOptions{})
}

// engine bundles everything a session needs. Batch mode builds one and
// reuses it across sessions so the eligibility cache and lease pool
// survive between runs. Sessions are always recorded in the sqlite
// store, whichever backlog kind serves the tasks.
type engine struct {
	cfg      *config.Config
	store    *taskdb.Store
	backlog  backlogStore
	cache    *eligibility.Cache
	leases   *lease.Manager
	executor *executor.CLI
	notifier notify.Notifier
	results  *results.Processor
}

func newEngine(cfg *config.Config) (*engine, error) {
	store, err := taskdb.New(cfg.Backlog.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening backlog db: %w", err)
	}

	var backlog backlogStore
	switch cfg.Backlog.Kind {
	case "github":
		backlog = issues.NewClient(&cfg.Backlog)
	default:
		backlog = sqliteBacklog{store}
	}

	root := cfg.Lease.RepoDir
	if root == "" {
		root = "."
	}
	loader := prompts.DefaultLoader(root)

	var estimator scoring.Estimator
	if cfg.Scoring.SemanticCommand != "" {
		estimator = scoring.NewCLIEstimator(cfg.Scoring.SemanticCommand, loader)
	}
	scorer := scoring.NewScorer(&cfg.Scoring, estimator)

	fetcher := eligibility.NewFetcher(backlog, scorer)
	cache := eligibility.NewCache(fetcher, time.Duration(cfg.Cache.TTLMinutes)*time.Minute)

	taskTimeout := time.Duration(cfg.Session.TaskTimeoutMinutes) * time.Minute
	notifier := notify.NewMultiNotifier(
		notify.NewDesktopNotifier(cfg.Notifications.Desktop),
		notify.NewSlackNotifier(cfg.Notifications.SlackWebhook),
	)

	return &engine{
		cfg:      cfg,
		store:    store,
		backlog:  backlog,
		cache:    cache,
		leases:   lease.NewManager(&cfg.Lease, taskTimeout),
		executor: executor.NewCLI(&cfg.Executor, loader),
		notifier: notifier,
		results:  results.NewProcessor(backlog, notifier),
	}, nil
}

func (e *engine) close() {
	if err := e.store.Close(); err != nil {
		log.Printf("warning: closing backlog db: %v", err)
	}
}

// run executes one session. cfg may carry per-batch overrides on top
// of the engine's base config; a nil notifier means the engine's own.
func (e *engine) run(ctx context.Context, cfg *config.Config, notifier notify.Notifier) (*orchestrator.Report, error) {
	if notifier == nil {
		notifier = e.notifier
	}
	orch := orchestrator.New(cfg, orchestrator.Deps{
		Source:   e.cache,
		Leases:   e.leases,
		Executor: e.executor,
		Results:  e.results,
		Store:    e.store,
		Notifier: notifier,
	})
	return orch.Run(ctx)
}
