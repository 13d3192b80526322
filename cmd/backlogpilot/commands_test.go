package main

import (
	"testing"

	"github.com/quietloop/backlogpilot/internal/domain"
	"github.com/quietloop/backlogpilot/internal/notify"
	"github.com/quietloop/backlogpilot/internal/orchestrator"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name   string
		report orchestrator.Report
		want   int
	}{
		{
			name: "successes exit clean",
			report: orchestrator.Report{
				Session:  &domain.Session{Status: domain.SessionCompleted, Attempted: 3, Succeeded: 2, Failed: 1},
				Admitted: 3, Eligible: 5, Blocked: 1,
			},
			want: exitOK,
		},
		{
			name: "empty backlog exits clean",
			report: orchestrator.Report{
				Session: &domain.Session{Status: domain.SessionCompleted},
			},
			want: exitOK,
		},
		{
			name: "safety halt",
			report: orchestrator.Report{
				Session:  &domain.Session{Status: domain.SessionHalted, Attempted: 2, Succeeded: 2, HaltReason: "cost limit"},
				Admitted: 4, Eligible: 4,
			},
			want: exitSafetyHalt,
		},
		{
			name: "open tasks but none admissible",
			report: orchestrator.Report{
				Session: &domain.Session{Status: domain.SessionCompleted},
				Blocked: 3,
			},
			want: exitNoEligible,
		},
		{
			name: "eligible but over every ceiling",
			report: orchestrator.Report{
				Session:  &domain.Session{Status: domain.SessionCompleted},
				Eligible: 2,
			},
			want: exitNoEligible,
		},
		{
			name: "interrupt wins over halt state",
			report: orchestrator.Report{
				Session:  &domain.Session{Status: domain.SessionInterrupted, Attempted: 1, Succeeded: 1},
				Admitted: 3, Eligible: 3,
			},
			want: exitInterrupted,
		},
		{
			name: "all attempts failed",
			report: orchestrator.Report{
				Session:  &domain.Session{Status: domain.SessionCompleted, Attempted: 2, Failed: 2},
				Admitted: 2, Eligible: 2,
			},
			want: exitError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(&tt.report); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

type captureNotifier struct {
	sent []notify.Notification
}

func (c *captureNotifier) Send(n notify.Notification) error {
	c.sent = append(c.sent, n)
	return nil
}

func TestQuietNotifier(t *testing.T) {
	inner := &captureNotifier{}
	q := quietNotifier{inner}

	drop := notify.Notification{Event: notify.EventSessionComplete, Severity: notify.SeveritySuccess}
	if err := q.Send(drop); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(inner.sent) != 0 {
		t.Errorf("routine completion passed through, want it dropped")
	}

	keep := []notify.Notification{
		{Event: notify.EventSessionComplete, Severity: notify.SeverityWarning},
		{Event: notify.EventSafetyHalt, Severity: notify.SeverityError},
		{Event: notify.EventSessionFailed, Severity: notify.SeverityError},
		{Event: notify.EventTaskOutcome, Severity: notify.SeveritySuccess},
	}
	for _, n := range keep {
		if err := q.Send(n); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	if len(inner.sent) != len(keep) {
		t.Errorf("got %d notifications through, want %d", len(inner.sent), len(keep))
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 50); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	long := "a task title that goes on much longer than the column allows"
	got := truncate(long, 20)
	if len(got) != 20 {
		t.Errorf("len = %d, want 20", len(got))
	}
	if got[17:] != "..." {
		t.Errorf("truncated string %q does not end in ellipsis", got)
	}
}
