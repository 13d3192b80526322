// Package notify fans scheduling events out to the configured sinks.
// Delivery is best effort: a failing sink never alters scheduling state.
package notify

// Severity controls how a notification is rendered by sinks that
// distinguish urgency.
type Severity int

const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityWarning
	SeverityError
)

// Event identifies which scheduling transition a notification describes.
type Event string

const (
	EventSessionStart    Event = "session-start"
	EventQueueBuilt      Event = "queue-built"
	EventTaskOutcome     Event = "task-outcome"
	EventSafetyHalt      Event = "safety-halt"
	EventSessionFailed   Event = "session-failed"
	EventSessionComplete Event = "session-complete"
)

// Notification is one rendered event.
type Notification struct {
	Event    Event
	Severity Severity
	Title    string
	Message  string
	TaskID   string // optional task reference
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers. Every sink is attempted
// even when an earlier one fails; the last error is returned.
func (m *MultiNotifier) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }
