package domain

// TaskStatus represents the lifecycle state of a backlog task
type TaskStatus string

const (
	StatusOpen    TaskStatus = "open"
	StatusBlocked TaskStatus = "blocked"
	StatusDone    TaskStatus = "done"
	StatusClosed  TaskStatus = "closed"
)

// Satisfies reports whether a dependency in this status unblocks its dependents
func (s TaskStatus) Satisfies() bool {
	return s == StatusDone || s == StatusClosed
}

// Risk represents the estimated execution risk of a task
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// SessionStatus represents the state of one scheduler session
type SessionStatus string

const (
	SessionInitializing SessionStatus = "initializing"
	SessionRunning      SessionStatus = "running"
	SessionCompleted    SessionStatus = "completed"
	SessionHalted       SessionStatus = "halted"
	SessionInterrupted  SessionStatus = "interrupted"
)
