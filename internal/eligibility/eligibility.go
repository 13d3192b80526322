// Package eligibility turns the raw backlog into a scored, ordered view of
// what could run right now. It filters out tasks that are closed, blocked,
// cyclic, or already have a PR in flight, scores the rest, and sorts them
// by priority.
package eligibility

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/quietloop/backlogpilot/internal/domain"
	"github.com/quietloop/backlogpilot/internal/resolver"
	"github.com/quietloop/backlogpilot/internal/scoring"
)

// scoreParallelism bounds concurrent semantic estimator calls.
const scoreParallelism = 4

// Source lists every known task from the external backlog, including
// finished ones so dependencies on them resolve.
type Source interface {
	ListTasks() ([]*domain.Task, error)
}

// BlockedTask pairs an open task with the reason it cannot run yet.
type BlockedTask struct {
	Task   *domain.Task
	Reason string
}

// Snapshot is one fully scored view of the backlog. A snapshot is built
// completely or not at all; consumers never see a half-scored state.
type Snapshot struct {
	Entries   []domain.QueueEntry // eligible, highest priority first
	Blocked   []BlockedTask       // open but not admissible
	Total     int                 // tasks seen at the source
	Warnings  []string
	FetchedAt time.Time
}

func (s *Snapshot) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	s.Warnings = append(s.Warnings, msg)
	log.Printf("warning: %s", msg)
}

// Fetcher runs the fetch, resolve, and score pipeline.
type Fetcher struct {
	source Source
	scorer *scoring.Scorer
}

// NewFetcher creates a Fetcher over the given source and scorer.
func NewFetcher(source Source, scorer *scoring.Scorer) *Fetcher {
	return &Fetcher{source: source, scorer: scorer}
}

// Fetch lists the backlog and returns the scored eligible tasks. One bad
// record never aborts the fetch; it is skipped with a warning.
func (f *Fetcher) Fetch(ctx context.Context) (*Snapshot, error) {
	tasks, err := f.source.ListTasks()
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	// One clock reading for the whole fetch. Per-task readings would skew
	// the age bonus by scheduler noise and equal tasks would never tie.
	now := time.Now()
	snap := &Snapshot{Total: len(tasks), FetchedAt: now}
	res := resolver.New(tasks)

	var candidates []*domain.Task
	for _, task := range tasks {
		if task.ID == "" {
			snap.warn("skipping task with empty id (title %q)", task.Title)
			continue
		}
		if task.Status != domain.StatusOpen {
			continue
		}
		if task.HasPR {
			snap.Blocked = append(snap.Blocked, BlockedTask{Task: task, Reason: "has an open PR"})
			continue
		}

		switch r := res.Resolve(task); r.State {
		case resolver.Blocked:
			snap.Blocked = append(snap.Blocked, BlockedTask{
				Task:   task,
				Reason: "waiting on " + strings.Join(r.Unsatisfied, ", "),
			})
		case resolver.CycleDetected:
			snap.Blocked = append(snap.Blocked, BlockedTask{
				Task:   task,
				Reason: "dependency cycle: " + strings.Join(r.Cycle, " -> "),
			})
			snap.warn("task %s sits on a dependency cycle: %s", task.ID, strings.Join(r.Cycle, " -> "))
		case resolver.Satisfied:
			if len(r.Missing) > 0 {
				snap.warn("task %s references missing dependencies %s; treating as satisfied", task.ID, strings.Join(r.Missing, ", "))
			}
			candidates = append(candidates, task)
		}
	}

	// Score with bounded parallelism; the semantic estimator is a remote
	// call per task.
	entries := make([]domain.QueueEntry, len(candidates))
	sem := make(chan struct{}, scoreParallelism)
	for i, task := range candidates {
		sem <- struct{}{}
		go func(i int, task *domain.Task) {
			defer func() { <-sem }()
			score := f.scorer.Score(ctx, task, now)
			score.Priority = scoring.Priority(task, score, now)
			entries[i] = domain.QueueEntry{Task: task, Score: score}
		}(i, task)
	}
	for i := 0; i < cap(sem); i++ {
		sem <- struct{}{}
	}

	sort.Slice(entries, func(i, j int) bool { return scoring.Less(entries[i], entries[j]) })
	snap.Entries = entries

	return snap, nil
}
