package batch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quietloop/backlogpilot/internal/config"
)

func TestParseCron(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"nightly", "0 22 * * *", false},
		{"every five minutes", "*/5 * * * *", false},
		{"weekdays at nine", "0 9 * * 1-5", false},
		{"too few fields", "0 22 * *", true},
		{"garbage", "not a cron", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCron(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestBatchConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     BatchConfig
		wantErr bool
	}{
		{
			name: "valid",
			cfg:  BatchConfig{Name: "nightly", Cron: "0 22 * * *"},
		},
		{
			name: "valid with overrides",
			cfg: BatchConfig{
				Name: "weekend", Cron: "0 9 * * 6",
				MaxTasks: 10, TimeBudgetHours: 8, CostLimitUSD: 20,
			},
		},
		{
			name:    "missing name",
			cfg:     BatchConfig{Cron: "0 22 * * *"},
			wantErr: true,
		},
		{
			name:    "missing cron",
			cfg:     BatchConfig{Name: "nightly"},
			wantErr: true,
		},
		{
			name:    "bad cron",
			cfg:     BatchConfig{Name: "nightly", Cron: "61 * * * *"},
			wantErr: true,
		},
		{
			name:    "negative max tasks",
			cfg:     BatchConfig{Name: "nightly", Cron: "0 22 * * *", MaxTasks: -1},
			wantErr: true,
		},
		{
			name:    "negative cost limit",
			cfg:     BatchConfig{Name: "nightly", Cron: "0 22 * * *", CostLimitUSD: -5},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApply_OverridesSessionLimits(t *testing.T) {
	base := config.Default()
	b := BatchConfig{
		Name: "weekend", Cron: "0 9 * * 6",
		MaxTasks: 12, TimeBudgetHours: 8, CostLimitUSD: 20,
	}

	got := b.Apply(base)

	if got.Session.MaxTasks != 12 {
		t.Errorf("MaxTasks = %d, want 12", got.Session.MaxTasks)
	}
	if got.Session.TimeBudgetHours != 8 {
		t.Errorf("TimeBudgetHours = %v, want 8", got.Session.TimeBudgetHours)
	}
	if got.Session.CostLimitUSD != 20 {
		t.Errorf("CostLimitUSD = %v, want 20", got.Session.CostLimitUSD)
	}
	if base.Session.MaxTasks == 12 {
		t.Error("Apply mutated the base config")
	}
}

func TestApply_ZeroFieldsInherit(t *testing.T) {
	base := config.Default()
	b := BatchConfig{Name: "nightly", Cron: "0 22 * * *"}

	got := b.Apply(base)

	if got.Session.MaxTasks != base.Session.MaxTasks {
		t.Errorf("MaxTasks = %d, want inherited %d", got.Session.MaxTasks, base.Session.MaxTasks)
	}
	if got.Session.CostLimitUSD != base.Session.CostLimitUSD {
		t.Errorf("CostLimitUSD = %v, want inherited %v", got.Session.CostLimitUSD, base.Session.CostLimitUSD)
	}
}

func TestScheduler_NextRun(t *testing.T) {
	s := NewScheduler([]BatchConfig{
		{Name: "nightly", Cron: "0 22 * * *"},
	})

	next, err := s.NextRun("nightly")
	if err != nil {
		t.Fatalf("NextRun() error = %v", err)
	}
	if !next.After(time.Now()) {
		t.Errorf("NextRun() = %v, want a future time", next)
	}

	if _, err := s.NextRun("missing"); err == nil {
		t.Error("NextRun(missing) error = nil, want error")
	}
}

func TestScheduler_ShouldRun(t *testing.T) {
	s := NewScheduler([]BatchConfig{
		{Name: "minutely", Cron: "* * * * *"},
	})

	// Backdate the last run so the next slot is already in the past.
	s.mu.Lock()
	s.lastRun["minutely"] = time.Now().Add(-2 * time.Minute)
	s.mu.Unlock()

	if !s.ShouldRun("minutely") {
		t.Error("ShouldRun() = false, want true for an overdue batch")
	}

	s.MarkComplete("minutely")
	if s.ShouldRun("minutely") {
		t.Error("ShouldRun() = true right after completion, want false")
	}
}

func TestScheduler_ShouldRunSkipsWhileRunning(t *testing.T) {
	s := NewScheduler([]BatchConfig{
		{Name: "minutely", Cron: "* * * * *"},
	})

	s.mu.Lock()
	s.lastRun["minutely"] = time.Now().Add(-2 * time.Minute)
	s.mu.Unlock()

	s.MarkRunning("minutely")
	if s.ShouldRun("minutely") {
		t.Error("ShouldRun() = true while batch is running, want false")
	}

	s.MarkComplete("minutely")
	if s.ShouldRun("minutely") {
		t.Error("ShouldRun() = true right after completion, want false")
	}
}

func TestScheduler_ShouldRunUnknownBatch(t *testing.T) {
	s := NewScheduler(nil)
	if s.ShouldRun("ghost") {
		t.Error("ShouldRun(ghost) = true, want false")
	}
}

func TestScheduler_ListBatches(t *testing.T) {
	s := NewScheduler([]BatchConfig{
		{Name: "weekend", Cron: "0 9 * * 6"},
		{Name: "nightly", Cron: "0 22 * * *"},
	})

	got := s.ListBatches()
	want := []string{"nightly", "weekend"}
	if len(got) != len(want) {
		t.Fatalf("ListBatches() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ListBatches()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLoadScheduleConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batches.toml")
	content := `
[[batch]]
name = "nightly"
cron = "0 22 * * *"
max_tasks = 8
cost_limit_usd = 10.0
notify_on_complete = true

[[batch]]
name = "lunch"
cron = "30 12 * * 1-5"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadScheduleConfig(path)
	if err != nil {
		t.Fatalf("LoadScheduleConfig() error = %v", err)
	}
	if len(cfg.Batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(cfg.Batches))
	}

	nightly := cfg.Batches[0]
	if nightly.Name != "nightly" {
		t.Errorf("Name = %q, want nightly", nightly.Name)
	}
	if nightly.MaxTasks != 8 {
		t.Errorf("MaxTasks = %d, want 8", nightly.MaxTasks)
	}
	if nightly.CostLimitUSD != 10.0 {
		t.Errorf("CostLimitUSD = %v, want 10.0", nightly.CostLimitUSD)
	}
	if !nightly.NotifyOnComplete {
		t.Error("NotifyOnComplete = false, want true")
	}

	lunch := cfg.Batches[1]
	if lunch.MaxTasks != 0 {
		t.Errorf("MaxTasks = %d, want 0 (inherit)", lunch.MaxTasks)
	}
}

func TestLoadScheduleConfig_MissingFile(t *testing.T) {
	cfg, err := LoadScheduleConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadScheduleConfig() error = %v, want nil for missing file", err)
	}
	if len(cfg.Batches) != 0 {
		t.Errorf("got %d batches, want 0", len(cfg.Batches))
	}
}

func TestLoadScheduleConfig_InvalidBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batches.toml")
	content := `
[[batch]]
name = "broken"
cron = "not a cron"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadScheduleConfig(path); err == nil {
		t.Error("LoadScheduleConfig() error = nil, want error for invalid cron")
	}
}
