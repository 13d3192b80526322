package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration. It is read once at session
// start; nothing reloads it mid-run.
type Config struct {
	Session       SessionConfig       `toml:"session"`
	Queue         QueueConfig         `toml:"queue"`
	Scoring       ScoringConfig       `toml:"scoring"`
	Cache         CacheConfig         `toml:"cache"`
	Lease         LeaseConfig         `toml:"lease"`
	Backlog       BacklogConfig       `toml:"backlog"`
	Executor      ExecutorConfig      `toml:"executor"`
	Notifications NotificationsConfig `toml:"notifications"`
	Batch         BatchConfig         `toml:"batch"`
}

// SessionConfig holds the per-session safety and sizing limits
type SessionConfig struct {
	MaxTasks               int     `toml:"max_tasks"`
	TimeBudgetHours        float64 `toml:"time_budget_hours"`
	CostLimitUSD           float64 `toml:"cost_limit_usd"`
	TimeLimitMinutes       int     `toml:"time_limit_minutes"`
	MaxConsecutiveFailures int     `toml:"max_consecutive_failures"`
	TaskTimeoutMinutes     int     `toml:"task_timeout_minutes"`
}

// QueueConfig holds the queue admission ceilings
type QueueConfig struct {
	ComplexityCeiling float64 `toml:"complexity_ceiling"`
	TaskHoursCeiling  float64 `toml:"task_hours_ceiling"`
}

// ScoringConfig holds the complexity blend weights and the optional
// semantic estimator command (empty = heuristic-only scoring).
type ScoringConfig struct {
	HeuristicWeight float64 `toml:"heuristic_weight"`
	SemanticWeight  float64 `toml:"semantic_weight"`
	SemanticCommand string  `toml:"semantic_command"`
}

// CacheConfig holds the eligibility cache settings
type CacheConfig struct {
	TTLMinutes int `toml:"ttl_minutes"`
}

// LeaseConfig holds the worktree lease pool settings. A zero acquire wait
// means derive one long enough to ride out a full task, so a pool of one
// drains the queue sequentially instead of deferring everything behind the
// first task; negative means never wait.
type LeaseConfig struct {
	MaxConcurrent      int    `toml:"max_concurrent"`
	AcquireWaitSeconds int    `toml:"acquire_wait_seconds"`
	RepoDir            string `toml:"repo_dir"`
	WorktreeDir        string `toml:"worktree_dir"`
	BaseBranch         string `toml:"base_branch"`
}

// BacklogConfig selects and locates the task backlog store
type BacklogConfig struct {
	Kind         string `toml:"kind"` // "sqlite" or "github"
	DatabasePath string `toml:"database_path"`
	TasksDir     string `toml:"tasks_dir"`
	Repo         string `toml:"repo"`  // owner/name, github kind only
	Label        string `toml:"label"` // optional candidate label filter
}

// ExecutorConfig holds settings for the claude CLI executor
type ExecutorConfig struct {
	Command string `toml:"command"`
	Model   string `toml:"model"`
}

// NotificationsConfig holds notification sink settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// BatchConfig holds the unattended batch-mode schedule
type BatchConfig struct {
	Schedule string `toml:"schedule"` // cron expression, e.g. "0 2 * * *"
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Session: SessionConfig{
			MaxTasks:               5,
			TimeBudgetHours:        4.0,
			CostLimitUSD:           5.0,
			TimeLimitMinutes:       120,
			MaxConsecutiveFailures: 3,
			TaskTimeoutMinutes:     30,
		},
		Queue: QueueConfig{
			ComplexityCeiling: 8.0,
			TaskHoursCeiling:  3.0,
		},
		Scoring: ScoringConfig{
			HeuristicWeight: 0.4,
			SemanticWeight:  0.6,
		},
		Cache: CacheConfig{
			TTLMinutes: 10,
		},
		Lease: LeaseConfig{
			MaxConcurrent:      1,
			AcquireWaitSeconds: 0,
			WorktreeDir:        filepath.Join(home, ".backlogpilot", "worktrees"),
			BaseBranch:         "main",
		},
		Backlog: BacklogConfig{
			Kind:         "sqlite",
			DatabasePath: filepath.Join(home, ".backlogpilot", "backlog.db"),
		},
		Executor: ExecutorConfig{
			Command: "claude",
		},
		Notifications: NotificationsConfig{
			Desktop: true,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
// when the file does not exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.Lease.RepoDir = ExpandPath(cfg.Lease.RepoDir)
	cfg.Lease.WorktreeDir = ExpandPath(cfg.Lease.WorktreeDir)
	cfg.Backlog.DatabasePath = ExpandPath(cfg.Backlog.DatabasePath)
	cfg.Backlog.TasksDir = ExpandPath(cfg.Backlog.TasksDir)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Session.MaxTasks < 1 {
		return fmt.Errorf("session.max_tasks must be >= 1, got %d", c.Session.MaxTasks)
	}
	if c.Session.TimeBudgetHours <= 0 {
		return fmt.Errorf("session.time_budget_hours must be positive, got %v", c.Session.TimeBudgetHours)
	}
	if c.Session.TaskTimeoutMinutes < 1 {
		return fmt.Errorf("session.task_timeout_minutes must be >= 1, got %d", c.Session.TaskTimeoutMinutes)
	}
	if c.Scoring.HeuristicWeight+c.Scoring.SemanticWeight <= 0 {
		return fmt.Errorf("scoring weights must sum to a positive value")
	}
	if c.Lease.MaxConcurrent < 1 {
		return fmt.Errorf("lease.max_concurrent must be >= 1, got %d", c.Lease.MaxConcurrent)
	}
	switch c.Backlog.Kind {
	case "sqlite", "github":
	default:
		return fmt.Errorf("backlog.kind must be \"sqlite\" or \"github\", got %q", c.Backlog.Kind)
	}
	if c.Backlog.Kind == "github" && c.Backlog.Repo == "" {
		return fmt.Errorf("backlog.repo is required when backlog.kind is \"github\"")
	}
	return nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "backlogpilot", "config.toml")
}
