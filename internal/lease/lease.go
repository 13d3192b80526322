// Package lease bounds how many tasks execute at once and provisions an
// isolated git worktree for each running task. A lease is exclusive: its
// worktree and branch belong to one task until released or reclaimed.
package lease

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/quietloop/backlogpilot/internal/config"
)

// ErrPoolExhausted is returned when no lease frees up within the acquire
// wait. The caller should defer the task rather than fail it.
var ErrPoolExhausted = errors.New("lease pool exhausted")

// reclaimGrace pads the lease deadline past the task timeout so a normally
// finishing task always releases before reclamation can touch it.
const reclaimGrace = 5 * time.Minute

// Lease grants one task an isolated execution context.
type Lease struct {
	ID       string
	TaskID   string
	Dir      string
	Branch   string
	Deadline time.Time
}

// Manager hands out leases up to a fixed concurrency cap.
type Manager struct {
	repoDir     string
	worktreeDir string
	baseBranch  string
	acquireWait time.Duration
	ttl         time.Duration

	sem *semaphore.Weighted

	mu     sync.Mutex
	active map[string]*Lease
}

// NewManager creates a Manager from the lease pool settings. taskTimeout is
// the per-task execution limit; lease deadlines and the default acquire
// wait are derived from it. An unset acquire wait must outlast a full task
// or a pool of one executes a single task and defers the rest of the queue.
func NewManager(cfg *config.LeaseConfig, taskTimeout time.Duration) *Manager {
	wait := time.Duration(cfg.AcquireWaitSeconds) * time.Second
	if cfg.AcquireWaitSeconds == 0 {
		wait = taskTimeout + reclaimGrace
	}
	return &Manager{
		repoDir:     cfg.RepoDir,
		worktreeDir: cfg.WorktreeDir,
		baseBranch:  cfg.BaseBranch,
		acquireWait: wait,
		ttl:         taskTimeout + reclaimGrace,
		sem:         semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		active:      make(map[string]*Lease),
	}
}

// Acquire blocks until a slot frees up, then provisions a worktree and branch
// for the task. It returns ErrPoolExhausted when no slot opens within the
// acquire wait (a negative wait means don't block at all), or the context
// error when the caller is shutting down.
func (m *Manager) Acquire(ctx context.Context, taskID string) (*Lease, error) {
	if err := m.acquireSlot(ctx); err != nil {
		return nil, err
	}

	dir, branch, err := m.createWorktree(taskID)
	if err != nil {
		m.sem.Release(1)
		return nil, fmt.Errorf("creating worktree for %s: %w", taskID, err)
	}

	l := &Lease{
		ID:       uuid.NewString(),
		TaskID:   taskID,
		Dir:      dir,
		Branch:   branch,
		Deadline: time.Now().Add(m.ttl),
	}

	m.mu.Lock()
	m.active[l.ID] = l
	m.mu.Unlock()

	return l, nil
}

func (m *Manager) acquireSlot(ctx context.Context) error {
	if m.acquireWait <= 0 {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !m.sem.TryAcquire(1) {
			return ErrPoolExhausted
		}
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, m.acquireWait)
	defer cancel()

	if err := m.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrPoolExhausted
	}
	return nil
}

// Release tears down the lease's worktree and frees its slot. Releasing a
// lease twice is a no-op; the slot is returned exactly once, even when the
// worktree removal fails.
func (m *Manager) Release(l *Lease) error {
	m.mu.Lock()
	_, held := m.active[l.ID]
	if held {
		delete(m.active, l.ID)
	}
	m.mu.Unlock()

	if !held {
		return nil
	}

	err := m.removeWorktree(l.Dir, l.Branch)
	m.sem.Release(1)
	if err != nil {
		return fmt.Errorf("removing worktree for %s: %w", l.TaskID, err)
	}
	return nil
}

// ReclaimExpired force-releases leases whose deadline has passed. An executor
// crash can orphan a lease; the deadline bounds how long its slot stays lost.
// It returns the task IDs of the reclaimed leases.
func (m *Manager) ReclaimExpired() []string {
	now := time.Now()

	m.mu.Lock()
	var expired []*Lease
	for _, l := range m.active {
		if now.After(l.Deadline) {
			expired = append(expired, l)
		}
	}
	m.mu.Unlock()

	var taskIDs []string
	for _, l := range expired {
		if err := m.Release(l); err != nil {
			log.Printf("warning: reclaiming lease for %s: %v", l.TaskID, err)
		}
		taskIDs = append(taskIDs, l.TaskID)
	}
	sort.Strings(taskIDs)
	return taskIDs
}

// Active returns the number of leases currently held.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}
