package queue

import (
	"testing"

	"github.com/quietloop/backlogpilot/internal/domain"
)

func entry(id string, priority, complexity, hours float64) domain.QueueEntry {
	return domain.QueueEntry{
		Task:  &domain.Task{ID: id, Title: id, Status: domain.StatusOpen},
		Score: domain.ScoreResult{Priority: priority, Complexity: complexity, EstimatedHours: hours},
	}
}

func queueIDs(entries []domain.QueueEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.Task.ID
	}
	return ids
}

func assertIDs(t *testing.T, got []domain.QueueEntry, want ...string) {
	t.Helper()
	ids := queueIDs(got)
	if len(ids) != len(want) {
		t.Fatalf("queue = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("queue = %v, want %v", ids, want)
		}
	}
}

func TestBuild_GreedyPacking(t *testing.T) {
	b := NewBuilder(Limits{ComplexityCeiling: 8, TaskHoursCeiling: 3, BudgetHours: 4, MaxTasks: 10})

	// Hours follow the complexity buckets: <3 is 0.5h, <6 is 1.5h, else 3h.
	entries := []domain.QueueEntry{
		entry("c1", 10, 1, 0.5),
		entry("c2", 9, 2, 0.5),
		entry("c3", 8, 3, 1.5),
		entry("c4", 7, 4, 1.5),
		entry("c5", 6, 5, 1.5),
		entry("c9", 5, 9, 3),
		entry("c10", 4, 10, 3),
	}

	got := b.Build(entries)

	// c9 and c10 fall to the complexity ceiling; c5 would push the total
	// past 4 hours.
	assertIDs(t, got, "c1", "c2", "c3", "c4")
	if Hours(got) != 4 {
		t.Errorf("Hours = %v, want 4", Hours(got))
	}
}

func TestBuild_PerTaskHoursCeiling(t *testing.T) {
	b := NewBuilder(Limits{ComplexityCeiling: 10, TaskHoursCeiling: 3, BudgetHours: 10})

	got := b.Build([]domain.QueueEntry{
		entry("long", 10, 5, 3.5),
		entry("ok", 5, 5, 1.5),
	})

	assertIDs(t, got, "ok")
}

func TestBuild_MaxTasks(t *testing.T) {
	b := NewBuilder(Limits{ComplexityCeiling: 10, TaskHoursCeiling: 3, BudgetHours: 10, MaxTasks: 2})

	got := b.Build([]domain.QueueEntry{
		entry("a", 4, 1, 0.5),
		entry("b", 3, 1, 0.5),
		entry("c", 2, 1, 0.5),
	})

	assertIDs(t, got, "a", "b")
}

func TestBuild_SkipsOversizedAdmitsSmaller(t *testing.T) {
	b := NewBuilder(Limits{ComplexityCeiling: 10, TaskHoursCeiling: 3, BudgetHours: 4})

	got := b.Build([]domain.QueueEntry{
		entry("big", 10, 5, 3),
		entry("medium", 9, 5, 2),
		entry("small", 8, 5, 1),
	})

	// medium would overflow the budget after big; small still fits.
	assertIDs(t, got, "big", "small")
}

func TestBuild_SortsInput(t *testing.T) {
	b := NewBuilder(Limits{ComplexityCeiling: 10, TaskHoursCeiling: 3, BudgetHours: 10})

	got := b.Build([]domain.QueueEntry{
		entry("low", 1, 1, 0.5),
		entry("high", 9, 1, 0.5),
		entry("mid", 5, 1, 0.5),
	})

	assertIDs(t, got, "high", "mid", "low")
}

func TestBuild_Empty(t *testing.T) {
	b := NewBuilder(Limits{ComplexityCeiling: 8, TaskHoursCeiling: 3, BudgetHours: 4})

	if got := b.Build(nil); len(got) != 0 {
		t.Errorf("Build(nil) = %v, want empty", queueIDs(got))
	}
}
