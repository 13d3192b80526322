package resolver

import (
	"github.com/quietloop/backlogpilot/internal/domain"
)

// State classifies the dependency resolution of one task.
type State string

const (
	Satisfied     State = "satisfied"
	Blocked       State = "blocked"
	CycleDetected State = "cycle_detected"
)

// Result is the outcome of resolving one task's dependencies. Unsatisfied
// holds direct dependency ids that exist but are not done or closed.
// Missing holds direct dependency ids unknown to the index; they never
// block, so stale references cannot deadlock the queue.
type Result struct {
	State       State
	Unsatisfied []string
	Missing     []string
	Cycle       []string
}

// Resolver checks task dependencies against the full known task set.
type Resolver struct {
	index map[string]*domain.Task
}

// New builds a Resolver over the given tasks.
func New(tasks []*domain.Task) *Resolver {
	index := make(map[string]*domain.Task, len(tasks))
	for _, t := range tasks {
		index[t.ID] = t
	}
	return &Resolver{index: index}
}

// Resolve classifies admission of a task by its dependency chain. A cycle
// anywhere on the reachable chain wins over plain blockage since no amount
// of waiting resolves it.
func (r *Resolver) Resolve(task *domain.Task) Result {
	if cycle := r.findCycle(task.ID, make(map[string]bool), make(map[string]bool), nil); cycle != nil {
		return Result{State: CycleDetected, Cycle: cycle}
	}

	var unsatisfied, missing []string
	for _, dep := range task.DependsOn {
		found, ok := r.index[dep]
		if !ok {
			missing = append(missing, dep)
			continue
		}
		if !found.Status.Satisfies() {
			unsatisfied = append(unsatisfied, dep)
		}
	}

	if len(unsatisfied) > 0 {
		return Result{State: Blocked, Unsatisfied: unsatisfied, Missing: missing}
	}
	return Result{State: Satisfied, Missing: missing}
}

// findCycle walks dependency edges depth-first and returns the ids on the
// first cycle found, or nil. Satisfied and unknown dependencies are pruned;
// a finished task cannot hold a live edge.
func (r *Resolver) findCycle(id string, onPath, settled map[string]bool, path []string) []string {
	if settled[id] {
		return nil
	}
	onPath[id] = true
	path = append(path, id)

	if task := r.index[id]; task != nil {
		for _, dep := range task.DependsOn {
			next, ok := r.index[dep]
			if !ok || next.Status.Satisfies() {
				continue
			}
			if onPath[dep] {
				return extractCycle(path, dep)
			}
			if cycle := r.findCycle(dep, onPath, settled, path); cycle != nil {
				return cycle
			}
		}
	}

	onPath[id] = false
	settled[id] = true
	return nil
}

func extractCycle(path []string, start string) []string {
	for i, id := range path {
		if id == start {
			return append([]string{}, path[i:]...)
		}
	}
	return path
}
