// Package batch schedules unattended sessions from cron expressions.
// Each batch names a recurring window and may tighten or loosen the
// session limits for runs started inside it.
package batch

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/quietloop/backlogpilot/internal/config"
)

// BatchConfig describes one scheduled session window.
type BatchConfig struct {
	Name             string  `toml:"name"`
	Cron             string  `toml:"cron"`
	MaxTasks         int     `toml:"max_tasks"`
	TimeBudgetHours  float64 `toml:"time_budget_hours"`
	CostLimitUSD     float64 `toml:"cost_limit_usd"`
	NotifyOnComplete bool    `toml:"notify_on_complete"`
}

// ScheduleConfig is the root of a batches.toml file.
type ScheduleConfig struct {
	Batches []BatchConfig `toml:"batch"`
}

// Validate checks that the batch is runnable. Zero-valued limits are
// legal and mean "inherit from the base config".
func (b *BatchConfig) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("batch name is required")
	}
	if b.Cron == "" {
		return fmt.Errorf("batch %q: cron expression is required", b.Name)
	}
	if _, err := ParseCron(b.Cron); err != nil {
		return fmt.Errorf("batch %q: invalid cron expression: %w", b.Name, err)
	}
	if b.MaxTasks < 0 {
		return fmt.Errorf("batch %q: max_tasks must not be negative", b.Name)
	}
	if b.TimeBudgetHours < 0 {
		return fmt.Errorf("batch %q: time_budget_hours must not be negative", b.Name)
	}
	if b.CostLimitUSD < 0 {
		return fmt.Errorf("batch %q: cost_limit_usd must not be negative", b.Name)
	}
	return nil
}

// Apply returns a copy of base with this batch's overrides folded into
// the session limits. Zero-valued fields leave the base value alone.
func (b *BatchConfig) Apply(base *config.Config) *config.Config {
	cfg := *base
	if b.MaxTasks > 0 {
		cfg.Session.MaxTasks = b.MaxTasks
	}
	if b.TimeBudgetHours > 0 {
		cfg.Session.TimeBudgetHours = b.TimeBudgetHours
	}
	if b.CostLimitUSD > 0 {
		cfg.Session.CostLimitUSD = b.CostLimitUSD
	}
	return &cfg
}

// LoadScheduleConfig reads a batch schedule from path. A missing file
// is not an error; it yields an empty schedule.
func LoadScheduleConfig(path string) (*ScheduleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ScheduleConfig{}, nil
		}
		return nil, fmt.Errorf("reading schedule config: %w", err)
	}

	var cfg ScheduleConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing schedule config: %w", err)
	}

	for i := range cfg.Batches {
		if err := cfg.Batches[i].Validate(); err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
	}
	return &cfg, nil
}
