package domain

import "time"

// Outcome records the result of one task execution attempt
type Outcome struct {
	TaskID      string
	Success     bool
	CostUSD     float64
	Duration    time.Duration
	ArtifactRef string
	Detail      string
	FinishedAt  time.Time
}

// Session aggregates one bounded scheduler run from start to
// completion, halt, or interrupt.
type Session struct {
	ID         string
	Status     SessionStatus
	StartedAt  time.Time
	FinishedAt *time.Time
	Outcomes   []Outcome

	Attempted  int
	Succeeded  int
	Failed     int
	Deferred   int
	TotalCost  float64
	HaltReason string
}

// Record appends an outcome and updates the session counters
func (s *Session) Record(o Outcome) {
	s.Outcomes = append(s.Outcomes, o)
	s.Attempted++
	if o.Success {
		s.Succeeded++
	} else {
		s.Failed++
	}
	s.TotalCost += o.CostUSD
}

// Elapsed returns the session duration, using now while still running
func (s *Session) Elapsed(now time.Time) time.Duration {
	if s.FinishedAt != nil {
		return s.FinishedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}
