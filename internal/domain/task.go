package domain

import (
	"strings"
	"time"
)

// Task is an immutable per-cycle snapshot of one backlog work item.
// The backlog store owns the record; the scheduler only requests status
// transitions through the result processor.
type Task struct {
	ID          string
	Title       string
	Description string
	Labels      []string
	DependsOn   []string
	Status      TaskStatus
	HasPR       bool
	SourceRef   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasLabel reports whether the task carries the given label (case-insensitive)
func (t *Task) HasLabel(label string) bool {
	for _, l := range t.Labels {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}

// Age returns how long the task has been open relative to now
func (t *Task) Age(now time.Time) time.Duration {
	if t.CreatedAt.IsZero() {
		return 0
	}
	return now.Sub(t.CreatedAt)
}
