package queue

import (
	"sort"

	"github.com/quietloop/backlogpilot/internal/domain"
	"github.com/quietloop/backlogpilot/internal/scoring"
)

// Limits bound what one session queue may take on.
type Limits struct {
	ComplexityCeiling float64
	TaskHoursCeiling  float64
	BudgetHours       float64
	MaxTasks          int
}

// Builder selects the ordered task subset for one session.
type Builder struct {
	limits Limits
}

// NewBuilder creates a Builder with the given limits.
func NewBuilder(limits Limits) *Builder {
	return &Builder{limits: limits}
}

// Build admits tasks greedily in descending priority order. A task above
// the complexity or per-task hours ceiling is excluded outright; one that
// would push cumulative hours past the budget is passed over, though
// smaller tasks behind it may still fit. Greedy packing deliberately
// trades a fuller queue for running the highest-value work first.
func (b *Builder) Build(entries []domain.QueueEntry) []domain.QueueEntry {
	sorted := append([]domain.QueueEntry{}, entries...)
	sort.Slice(sorted, func(i, j int) bool { return scoring.Less(sorted[i], sorted[j]) })

	var admitted []domain.QueueEntry
	var hours float64

	for _, e := range sorted {
		if b.limits.MaxTasks > 0 && len(admitted) >= b.limits.MaxTasks {
			break
		}
		if e.Score.Complexity > b.limits.ComplexityCeiling {
			continue
		}
		if e.Score.EstimatedHours > b.limits.TaskHoursCeiling {
			continue
		}
		if hours+e.Score.EstimatedHours > b.limits.BudgetHours {
			continue
		}
		admitted = append(admitted, e)
		hours += e.Score.EstimatedHours
	}

	return admitted
}

// Hours sums the estimated duration of a queue.
func Hours(entries []domain.QueueEntry) float64 {
	var total float64
	for _, e := range entries {
		total += e.Score.EstimatedHours
	}
	return total
}
