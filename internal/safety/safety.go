// Package safety is the session circuit breaker. It watches cumulative
// cost, elapsed wall time, and consecutive failures, and refuses further
// task admission once any limit is reached.
package safety

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quietloop/backlogpilot/internal/config"
)

var (
	ErrCostLimit    = errors.New("cost limit reached")
	ErrTimeLimit    = errors.New("time limit reached")
	ErrFailureLimit = errors.New("consecutive failure limit reached")
)

// Monitor tracks safety counters for one session. Limits set to zero are
// disabled.
type Monitor struct {
	costLimit    float64
	timeLimit    time.Duration
	failureLimit int

	mu                  sync.Mutex
	startedAt           time.Time
	cost                float64
	busy                time.Duration
	attempted           int
	succeeded           int
	failed              int
	consecutiveFailures int
	haltErr             error
}

// NewMonitor creates a Monitor from session limits. The session window
// starts now; use Start to align it with an explicit timestamp.
func NewMonitor(cfg *config.SessionConfig) *Monitor {
	return &Monitor{
		costLimit:    cfg.CostLimitUSD,
		timeLimit:    time.Duration(cfg.TimeLimitMinutes) * time.Minute,
		failureLimit: cfg.MaxConsecutiveFailures,
		startedAt:    time.Now(),
	}
}

// Start marks the beginning of the session window.
func (m *Monitor) Start(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startedAt = at
}

// Check reports whether the next task may start. A nil return allows it;
// otherwise the error names the tripped limit. Once tripped, the halt is
// permanent for the rest of the session, even if a later success would
// bring a counter back under its limit.
func (m *Monitor) Check() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.haltErr != nil {
		return m.haltErr
	}

	if m.costLimit > 0 && m.cost >= m.costLimit {
		m.haltErr = fmt.Errorf("cumulative cost $%.2f reached limit $%.2f: %w", m.cost, m.costLimit, ErrCostLimit)
		return m.haltErr
	}
	if m.timeLimit > 0 {
		if elapsed := time.Since(m.startedAt); elapsed >= m.timeLimit {
			m.haltErr = fmt.Errorf("elapsed %s reached limit %s: %w", elapsed.Round(time.Second), m.timeLimit, ErrTimeLimit)
			return m.haltErr
		}
	}
	if m.failureLimit > 0 && m.consecutiveFailures >= m.failureLimit {
		m.haltErr = fmt.Errorf("%d consecutive failures reached limit %d: %w", m.consecutiveFailures, m.failureLimit, ErrFailureLimit)
		return m.haltErr
	}

	return nil
}

// RecordOutcome folds one task result into the counters. A success resets
// the consecutive failure streak; a failure extends it. Counters are never
// rolled back mid-session.
func (m *Monitor) RecordOutcome(success bool, cost float64, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempted++
	m.cost += cost
	m.busy += duration
	if success {
		m.succeeded++
		m.consecutiveFailures = 0
	} else {
		m.failed++
		m.consecutiveFailures++
	}
}

// Stats is a point-in-time copy of the safety counters.
type Stats struct {
	Cost                float64
	CostLimit           float64
	Elapsed             time.Duration
	TimeLimit           time.Duration
	Busy                time.Duration
	Attempted           int
	Succeeded           int
	Failed              int
	ConsecutiveFailures int
}

// RemainingCost is the budget left before the cost limit trips.
func (s Stats) RemainingCost() float64 {
	if s.CostLimit <= 0 {
		return 0
	}
	if s.Cost >= s.CostLimit {
		return 0
	}
	return s.CostLimit - s.Cost
}

// Stats returns a snapshot of the current counters.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		Cost:                m.cost,
		CostLimit:           m.costLimit,
		Elapsed:             time.Since(m.startedAt),
		TimeLimit:           m.timeLimit,
		Busy:                m.busy,
		Attempted:           m.attempted,
		Succeeded:           m.succeeded,
		Failed:              m.failed,
		ConsecutiveFailures: m.consecutiveFailures,
	}
}
