package notify

import (
	"fmt"
	"time"

	"github.com/quietloop/backlogpilot/internal/domain"
)

// SessionStarted announces a new scheduling session.
func SessionStarted(sessionID string) Notification {
	return Notification{
		Event:    EventSessionStart,
		Severity: SeverityInfo,
		Title:    "Session started",
		Message:  fmt.Sprintf("scheduling session %s is starting", sessionID),
	}
}

// QueueBuilt reports what was admitted for this session.
func QueueBuilt(admitted, notEligible int, hours float64) Notification {
	return Notification{
		Event:    EventQueueBuilt,
		Severity: SeverityInfo,
		Title:    "Queue built",
		Message:  fmt.Sprintf("%d tasks admitted (%.1fh planned), %d not eligible", admitted, hours, notEligible),
	}
}

// TaskOutcome reports one finished task.
func TaskOutcome(o domain.Outcome) Notification {
	if o.Success {
		msg := fmt.Sprintf("succeeded in %s for $%.2f", o.Duration.Round(time.Second), o.CostUSD)
		if o.ArtifactRef != "" {
			msg += ", work on " + o.ArtifactRef
		}
		return Notification{
			Event:    EventTaskOutcome,
			Severity: SeveritySuccess,
			Title:    "Task " + o.TaskID + " succeeded",
			Message:  msg,
			TaskID:   o.TaskID,
		}
	}

	msg := fmt.Sprintf("failed after %s ($%.2f spent)", o.Duration.Round(time.Second), o.CostUSD)
	if o.Detail != "" {
		msg += ": " + o.Detail
	}
	if o.ArtifactRef != "" {
		msg += ", partial work on " + o.ArtifactRef
	}
	return Notification{
		Event:    EventTaskOutcome,
		Severity: SeverityWarning,
		Title:    "Task " + o.TaskID + " failed",
		Message:  msg,
		TaskID:   o.TaskID,
	}
}

// summarize renders the spend and outcome counters that every terminal
// notification carries.
func summarize(s *domain.Session, remainingBudget float64) string {
	return fmt.Sprintf("%d attempted, %d succeeded, %d failed, %d deferred; spent $%.2f, $%.2f budget remaining",
		s.Attempted, s.Succeeded, s.Failed, s.Deferred, s.TotalCost, remainingBudget)
}

// SafetyHalt reports that a circuit breaker stopped the session.
func SafetyHalt(s *domain.Session, remainingBudget float64) Notification {
	return Notification{
		Event:    EventSafetyHalt,
		Severity: SeverityError,
		Title:    "Safety halt",
		Message:  s.HaltReason + "; " + summarize(s, remainingBudget),
	}
}

// SessionFailed reports a session that could not run at all, such as when
// the task backlog is unreachable. No breaker fired and nothing executed.
func SessionFailed(sessionID, reason string) Notification {
	return Notification{
		Event:    EventSessionFailed,
		Severity: SeverityError,
		Title:    "Session failed",
		Message:  fmt.Sprintf("session %s: %s", sessionID, reason),
	}
}

// SessionComplete reports a session that reached a terminal state on its own.
func SessionComplete(s *domain.Session, remainingBudget float64) Notification {
	title := "Session complete"
	sev := SeveritySuccess
	switch {
	case s.Status == domain.SessionInterrupted:
		title = "Session interrupted"
		sev = SeverityWarning
	case s.Failed > 0:
		sev = SeverityWarning
	}

	return Notification{
		Event:    EventSessionComplete,
		Severity: sev,
		Title:    title,
		Message:  summarize(s, remainingBudget),
	}
}
