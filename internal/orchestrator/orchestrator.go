// Package orchestrator drives one bounded scheduling session: queue
// construction, gated admission, parallel execution inside leases, and the
// terminal summary.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quietloop/backlogpilot/internal/config"
	"github.com/quietloop/backlogpilot/internal/domain"
	"github.com/quietloop/backlogpilot/internal/eligibility"
	"github.com/quietloop/backlogpilot/internal/lease"
	"github.com/quietloop/backlogpilot/internal/notify"
	"github.com/quietloop/backlogpilot/internal/queue"
	"github.com/quietloop/backlogpilot/internal/safety"
)

// Executor runs one task inside its lease and reports the outcome. It never
// returns an error; failures are outcomes with Success false.
type Executor interface {
	Run(ctx context.Context, task *domain.Task, l *lease.Lease, timeout time.Duration) domain.Outcome
}

// Leases is the pool surface the admission loop drives.
type Leases interface {
	Acquire(ctx context.Context, taskID string) (*lease.Lease, error)
	Release(l *lease.Lease) error
	ReclaimExpired() []string
	CleanupStale() (int, error)
}

// ResultSink applies one finished outcome to the backlog.
type ResultSink interface {
	Process(o domain.Outcome) error
}

// SessionStore persists sessions and their outcomes.
type SessionStore interface {
	SaveSession(s *domain.Session) error
	RecordOutcome(sessionID string, o domain.Outcome) error
}

// SnapshotProvider yields the current eligibility snapshot.
type SnapshotProvider interface {
	Fetch(ctx context.Context, force bool) (*eligibility.Snapshot, error)
}

// Deps bundles the collaborators a session needs.
type Deps struct {
	Source   SnapshotProvider
	Leases   Leases
	Executor Executor
	Results  ResultSink
	Store    SessionStore
	Notifier notify.Notifier
}

// Orchestrator runs scheduling sessions.
type Orchestrator struct {
	cfg      *config.Config
	source   SnapshotProvider
	leases   Leases
	executor Executor
	sink     ResultSink
	store    SessionStore
	notifier notify.Notifier
}

// New creates an Orchestrator.
func New(cfg *config.Config, deps Deps) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		source:   deps.Source,
		leases:   deps.Leases,
		executor: deps.Executor,
		sink:     deps.Results,
		store:    deps.Store,
		notifier: deps.Notifier,
	}
}

// Report summarizes one session for the caller's exit decision.
type Report struct {
	Session  *domain.Session
	Admitted int
	Eligible int // eligible candidates before queue limits
	Blocked  int // open tasks held back by deps, cycles, or open PRs
}

// Run drives one session to a terminal state. Canceling ctx stops admission;
// in-flight tasks run to their own timeout before the session finalizes.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	session := &domain.Session{
		ID:        uuid.NewString(),
		Status:    domain.SessionInitializing,
		StartedAt: time.Now(),
	}
	if err := o.store.SaveSession(session); err != nil {
		return nil, fmt.Errorf("persisting session: %w", err)
	}

	log.Printf("session %s starting", session.ID)
	o.send(notify.SessionStarted(session.ID))

	if n, err := o.leases.CleanupStale(); err != nil {
		log.Printf("warning: cleaning stale worktrees: %v", err)
	} else if n > 0 {
		log.Printf("removed %d stale worktrees", n)
	}

	snap, err := o.source.Fetch(ctx, true)
	if err != nil {
		o.fail(session, fmt.Sprintf("task backlog unavailable: %v", err))
		return nil, fmt.Errorf("fetching backlog: %w", err)
	}

	limits := queue.Limits{
		ComplexityCeiling: o.cfg.Queue.ComplexityCeiling,
		TaskHoursCeiling:  o.cfg.Queue.TaskHoursCeiling,
		BudgetHours:       o.cfg.Session.TimeBudgetHours,
		MaxTasks:          o.cfg.Session.MaxTasks,
	}
	entries := queue.NewBuilder(limits).Build(snap.Entries)

	report := &Report{
		Session:  session,
		Admitted: len(entries),
		Eligible: len(snap.Entries),
		Blocked:  len(snap.Blocked),
	}

	notEligible := len(snap.Blocked) + len(snap.Entries) - len(entries)
	log.Printf("queue built: %d admitted of %d eligible, %d held back",
		len(entries), len(snap.Entries), notEligible)
	o.send(notify.QueueBuilt(len(entries), notEligible, queue.Hours(entries)))

	monitor := safety.NewMonitor(&o.cfg.Session)

	if len(entries) == 0 {
		o.finalize(session, monitor, "")
		return report, nil
	}

	session.Status = domain.SessionRunning
	if err := o.store.SaveSession(session); err != nil {
		log.Printf("warning: persisting session: %v", err)
	}

	taskTimeout := time.Duration(o.cfg.Session.TaskTimeoutMinutes) * time.Minute

	var (
		wg sync.WaitGroup
		mu sync.Mutex // single writer for session state and checkpoints
	)

	record := func(out domain.Outcome) {
		mu.Lock()
		defer mu.Unlock()
		session.Record(out)
		if err := o.store.RecordOutcome(session.ID, out); err != nil {
			log.Printf("warning: persisting outcome for %s: %v", out.TaskID, err)
		}
		if err := o.sink.Process(out); err != nil {
			log.Printf("warning: processing outcome for %s: %v", out.TaskID, err)
		}
	}

	var haltErr error
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if haltErr = monitor.Check(); haltErr != nil {
			break
		}

		if ids := o.leases.ReclaimExpired(); len(ids) > 0 {
			log.Printf("force-reclaimed expired leases: %s", strings.Join(ids, ", "))
		}

		l, err := o.leases.Acquire(ctx, entry.Task.ID)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			mu.Lock()
			session.Deferred++
			mu.Unlock()
			log.Printf("deferring %s: %v", entry.Task.ID, err)
			continue
		}

		// Counters may have moved while waiting for the slot. This is the
		// gate that guarantees no task starts past a limit.
		if haltErr = monitor.Check(); haltErr != nil {
			if err := o.leases.Release(l); err != nil {
				log.Printf("warning: releasing lease for %s: %v", entry.Task.ID, err)
			}
			break
		}

		log.Printf("running %s: %s", entry.Task.ID, entry.Task.Title)

		wg.Add(1)
		go func(task *domain.Task, l *lease.Lease) {
			defer wg.Done()
			defer func() {
				if err := o.leases.Release(l); err != nil {
					log.Printf("warning: releasing lease for %s: %v", task.ID, err)
				}
			}()

			// Interrupts stop admission but never cancel in-flight work, so
			// the executor runs under its own timeout only.
			out := o.executor.Run(context.Background(), task, l, taskTimeout)
			monitor.RecordOutcome(out.Success, out.CostUSD, out.Duration)
			record(out)
		}(entry.Task, l)
	}

	wg.Wait()

	reason := ""
	if haltErr != nil {
		reason = haltErr.Error()
	}
	if ctx.Err() != nil {
		session.Status = domain.SessionInterrupted
		reason = ""
	}
	o.finalize(session, monitor, reason)

	return report, nil
}

// finalize persists the terminal session state and sends exactly one
// closing notification.
func (o *Orchestrator) finalize(session *domain.Session, monitor *safety.Monitor, haltReason string) {
	now := time.Now()
	session.FinishedAt = &now

	switch {
	case session.Status == domain.SessionInterrupted:
		// set by the caller
	case haltReason != "":
		session.Status = domain.SessionHalted
		session.HaltReason = haltReason
	default:
		session.Status = domain.SessionCompleted
	}

	if err := o.store.SaveSession(session); err != nil {
		log.Printf("warning: persisting session: %v", err)
	}

	remaining := 0.0
	if monitor != nil {
		remaining = monitor.Stats().RemainingCost()
	}

	if session.Status == domain.SessionHalted {
		o.send(notify.SafetyHalt(session, remaining))
	} else {
		o.send(notify.SessionComplete(session, remaining))
	}

	log.Printf("session %s %s: %d attempted, %d succeeded, %d failed, %d deferred, $%.2f spent",
		session.ID, session.Status, session.Attempted, session.Succeeded,
		session.Failed, session.Deferred, session.TotalCost)
}

// fail persists a session that never got to run its queue. It notifies
// session-failed rather than safety-halt; no breaker fired here.
func (o *Orchestrator) fail(session *domain.Session, reason string) {
	now := time.Now()
	session.FinishedAt = &now
	session.Status = domain.SessionHalted
	session.HaltReason = reason

	if err := o.store.SaveSession(session); err != nil {
		log.Printf("warning: persisting session: %v", err)
	}

	o.send(notify.SessionFailed(session.ID, reason))
	log.Printf("session %s failed: %s", session.ID, reason)
}

func (o *Orchestrator) send(n notify.Notification) {
	if err := o.notifier.Send(n); err != nil {
		log.Printf("warning: %s notification: %v", n.Event, err)
	}
}
