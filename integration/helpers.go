//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quietloop/backlogpilot/internal/domain"
	"github.com/quietloop/backlogpilot/internal/lease"
	"github.com/quietloop/backlogpilot/internal/notify"
	"github.com/quietloop/backlogpilot/internal/scoring"
	"github.com/quietloop/backlogpilot/internal/taskdb"
	"github.com/quietloop/backlogpilot/internal/taskfile"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %s", args, out)
	}
}

// setupRepo creates a git repository with one commit so worktrees can
// branch off it.
func setupRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	runGit(t, dir, "init")
	runGit(t, dir, "config", "user.email", "test@test.com")
	runGit(t, dir, "config", "user.name", "Test")

	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# test\n"), 0644); err != nil {
		t.Fatal(err)
	}
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "initial commit")

	return dir
}

// openStore creates a sqlite store in a temp directory.
func openStore(t *testing.T) *taskdb.Store {
	t.Helper()
	store, err := taskdb.New(filepath.Join(t.TempDir(), "backlog.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// writeTaskFile writes one markdown task file with YAML frontmatter.
func writeTaskFile(t *testing.T, dir, id string, deps []string, status string) {
	t.Helper()

	var sb strings.Builder
	sb.WriteString("---\n")
	fmt.Fprintf(&sb, "id: %s\n", id)
	if len(deps) > 0 {
		fmt.Fprintf(&sb, "depends_on: [%s]\n", strings.Join(deps, ", "))
	}
	if status != "" {
		fmt.Fprintf(&sb, "status: %s\n", status)
	}
	sb.WriteString("created: 2026-08-01\n")
	sb.WriteString("---\n\n")
	fmt.Fprintf(&sb, "# Task %s\n\nDo the work for %s.\n", id, id)

	path := filepath.Join(dir, id+".md")
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		t.Fatal(err)
	}
}

// syncTasks imports every task file under dir into the store.
func syncTasks(t *testing.T, store *taskdb.Store, dir string) int {
	t.Helper()

	tasks, errs := taskfile.ParseDir(dir)
	for _, err := range errs {
		t.Fatalf("parsing task files: %v", err)
	}
	for _, task := range tasks {
		if err := store.UpsertTask(task); err != nil {
			t.Fatalf("upserting %s: %v", task.ID, err)
		}
	}
	return len(tasks)
}

// sqliteSource adapts the store to the unfiltered task listing the
// eligibility fetcher consumes.
type sqliteSource struct {
	*taskdb.Store
}

func (s sqliteSource) ListTasks() ([]*domain.Task, error) {
	return s.Store.ListTasks(taskdb.ListOptions{})
}

// scriptedEstimator returns a fixed complexity per task id, standing in
// for the semantic model so scores are exact.
type scriptedEstimator struct {
	complexity map[string]float64
}

func (e scriptedEstimator) Estimate(ctx context.Context, task *domain.Task) (*scoring.Estimate, error) {
	c, ok := e.complexity[task.ID]
	if !ok {
		return nil, fmt.Errorf("no scripted estimate for %s", task.ID)
	}
	return &scoring.Estimate{Complexity: c}, nil
}

// scriptedExecutor reports a fixed cost per task and records execution
// order. It checks that the lease's worktree really exists.
type scriptedExecutor struct {
	mu    sync.Mutex
	costs map[string]float64
	fail  map[string]bool
	ran   []string
	noDir []string
}

func (e *scriptedExecutor) Run(ctx context.Context, task *domain.Task, l *lease.Lease, timeout time.Duration) domain.Outcome {
	e.mu.Lock()
	e.ran = append(e.ran, task.ID)
	if _, err := os.Stat(l.Dir); err != nil {
		e.noDir = append(e.noDir, task.ID)
	}
	e.mu.Unlock()

	out := domain.Outcome{
		TaskID:      task.ID,
		Success:     !e.fail[task.ID],
		CostUSD:     e.costs[task.ID],
		Duration:    10 * time.Millisecond,
		ArtifactRef: l.Branch,
		FinishedAt:  time.Now(),
	}
	if !out.Success {
		out.Detail = "scripted failure"
	}
	return out
}

func (e *scriptedExecutor) ranOrder() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string{}, e.ran...)
}

// recordingNotifier collects every notification in order.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (n *recordingNotifier) Send(msg notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) events() []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var evs []notify.Event
	for _, msg := range n.sent {
		evs = append(evs, msg.Event)
	}
	return evs
}

func (n *recordingNotifier) last() notify.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return notify.Notification{}
	}
	return n.sent[len(n.sent)-1]
}
