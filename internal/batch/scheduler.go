package batch

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts standard five-field crontab expressions.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// ParseCron parses a five-field cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

// Scheduler tracks which batches are due and which are running. It
// does not persist anything; restarting the process resets lastRun,
// which at worst triggers one extra session.
type Scheduler struct {
	mu       sync.RWMutex
	configs  map[string]BatchConfig
	lastRun  map[string]time.Time
	running  map[string]bool
	stopChan chan struct{}
}

// NewScheduler builds a scheduler over the given batches.
func NewScheduler(batches []BatchConfig) *Scheduler {
	configs := make(map[string]BatchConfig, len(batches))
	for _, b := range batches {
		configs[b.Name] = b
	}
	return &Scheduler{
		configs:  configs,
		lastRun:  make(map[string]time.Time),
		running:  make(map[string]bool),
		stopChan: make(chan struct{}),
	}
}

// NextRun reports the next time the named batch is due.
func (s *Scheduler) NextRun(name string) (time.Time, error) {
	s.mu.RLock()
	cfg, ok := s.configs[name]
	s.mu.RUnlock()
	if !ok {
		return time.Time{}, fmt.Errorf("unknown batch %q", name)
	}

	sched, err := ParseCron(cfg.Cron)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(time.Now()), nil
}

// ShouldRun reports whether the named batch is due now. A batch that
// is already running is never due again until it completes.
func (s *Scheduler) ShouldRun(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[name]
	if !ok || s.running[name] {
		return false
	}

	sched, err := ParseCron(cfg.Cron)
	if err != nil {
		return false
	}

	last := s.lastRun[name]
	if last.IsZero() {
		// First check after startup: only fire if the schedule had a
		// slot within the last day, so stale batches stay quiet.
		last = time.Now().Add(-24 * time.Hour)
	}
	return time.Now().After(sched.Next(last))
}

// MarkRunning records that the named batch has started.
func (s *Scheduler) MarkRunning(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = true
}

// MarkComplete records that the named batch finished and resets its
// due time.
func (s *Scheduler) MarkComplete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = false
	s.lastRun[name] = time.Now()
}

// GetConfig returns the named batch's configuration.
func (s *Scheduler) GetConfig(name string) (BatchConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[name]
	return cfg, ok
}

// ListBatches returns all batch names in stable order.
func (s *Scheduler) ListBatches() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.configs))
	for name := range s.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start polls once a minute and runs every due batch. It blocks until
// Stop is called. Batches run one at a time: sessions share a lease
// pool and a backlog, and two running at once would admit the same
// tasks twice. Ticks that arrive mid-session are dropped; the next
// tick re-checks what is due.
func (s *Scheduler) Start(runFunc func(BatchConfig) error) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			for _, name := range s.ListBatches() {
				if !s.ShouldRun(name) {
					continue
				}
				cfg, _ := s.GetConfig(name)
				s.MarkRunning(name)
				if err := runFunc(cfg); err != nil {
					log.Printf("batch %s: %v", cfg.Name, err)
				}
				s.MarkComplete(name)
			}
		}
	}
}

// Stop terminates the Start loop. A batch already inside runFunc
// finishes before the loop observes the stop.
func (s *Scheduler) Stop() {
	close(s.stopChan)
}
