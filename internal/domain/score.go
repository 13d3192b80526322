package domain

// ScoreResult is the derived, per-cycle scoring of one task. It is a pure
// function of the task snapshot (plus an optional semantic estimate) and is
// never persisted as source of truth.
type ScoreResult struct {
	Complexity     float64 // 0-10
	EstimatedHours float64
	Risk           Risk
	Priority       float64 // higher = more valuable to run now
	Rationale      string
}

// QueueEntry pairs a task with its score inside a built session queue
type QueueEntry struct {
	Task  *Task
	Score ScoreResult
}
