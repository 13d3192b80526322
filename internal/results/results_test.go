package results

import (
	"errors"
	"testing"

	"github.com/quietloop/backlogpilot/internal/domain"
	"github.com/quietloop/backlogpilot/internal/notify"
)

type fakeBacklog struct {
	statuses  map[string]domain.TaskStatus
	artifacts map[string]string
	err       error
}

func newFakeBacklog() *fakeBacklog {
	return &fakeBacklog{
		statuses:  make(map[string]domain.TaskStatus),
		artifacts: make(map[string]string),
	}
}

func (f *fakeBacklog) UpdateTaskStatus(id string, status domain.TaskStatus) error {
	if f.err != nil {
		return f.err
	}
	f.statuses[id] = status
	return nil
}

func (f *fakeBacklog) AttachArtifact(id, ref string) error {
	if f.err != nil {
		return f.err
	}
	f.artifacts[id] = ref
	return nil
}

type recordingNotifier struct {
	sent []notify.Notification
	err  error
}

func (r *recordingNotifier) Send(n notify.Notification) error {
	r.sent = append(r.sent, n)
	return r.err
}

func TestProcess_Success(t *testing.T) {
	backlog := newFakeBacklog()
	notifier := &recordingNotifier{}
	p := NewProcessor(backlog, notifier)

	err := p.Process(domain.Outcome{
		TaskID:      "auth-42",
		Success:     true,
		ArtifactRef: "backlogpilot/auth-42",
		CostUSD:     0.42,
	})
	if err != nil {
		t.Fatal(err)
	}

	if got := backlog.statuses["auth-42"]; got != domain.StatusDone {
		t.Errorf("status = %q, want done", got)
	}
	if got := backlog.artifacts["auth-42"]; got != "backlogpilot/auth-42" {
		t.Errorf("artifact = %q", got)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("notifications = %d, want exactly 1", len(notifier.sent))
	}
	if notifier.sent[0].Event != notify.EventTaskOutcome {
		t.Errorf("event = %q", notifier.sent[0].Event)
	}
}

func TestProcess_FailureLeavesTaskOpen(t *testing.T) {
	backlog := newFakeBacklog()
	notifier := &recordingNotifier{}
	p := NewProcessor(backlog, notifier)

	err := p.Process(domain.Outcome{TaskID: "auth-42", Detail: "tests kept failing"})
	if err != nil {
		t.Fatal(err)
	}

	if len(backlog.statuses) != 0 {
		t.Errorf("statuses touched: %v", backlog.statuses)
	}
	if len(backlog.artifacts) != 0 {
		t.Errorf("artifacts touched: %v", backlog.artifacts)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("notifications = %d, want exactly 1", len(notifier.sent))
	}
	if notifier.sent[0].Severity != notify.SeverityWarning {
		t.Errorf("severity = %v, want warning", notifier.sent[0].Severity)
	}
}

// A failed attempt that still produced a branch or PR must leave that
// artifact on the task, while the task itself stays open for a retry.
func TestProcess_FailureAttachesDanglingArtifact(t *testing.T) {
	backlog := newFakeBacklog()
	notifier := &recordingNotifier{}
	p := NewProcessor(backlog, notifier)

	err := p.Process(domain.Outcome{
		TaskID:      "auth-42",
		Detail:      "tests kept failing",
		ArtifactRef: "backlogpilot/auth-42",
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(backlog.statuses) != 0 {
		t.Errorf("statuses touched: %v", backlog.statuses)
	}
	if got := backlog.artifacts["auth-42"]; got != "backlogpilot/auth-42" {
		t.Errorf("artifact = %q, want the dangling branch recorded", got)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("notifications = %d, want exactly 1", len(notifier.sent))
	}
}

func TestProcess_SuccessWithoutArtifact(t *testing.T) {
	backlog := newFakeBacklog()
	p := NewProcessor(backlog, &recordingNotifier{})

	if err := p.Process(domain.Outcome{TaskID: "auth-42", Success: true}); err != nil {
		t.Fatal(err)
	}

	if got := backlog.statuses["auth-42"]; got != domain.StatusDone {
		t.Errorf("status = %q, want done", got)
	}
	if len(backlog.artifacts) != 0 {
		t.Errorf("artifacts touched: %v", backlog.artifacts)
	}
}

func TestProcess_BacklogErrorStillNotifies(t *testing.T) {
	backlog := newFakeBacklog()
	backlog.err = errors.New("gh is down")
	notifier := &recordingNotifier{}
	p := NewProcessor(backlog, notifier)

	err := p.Process(domain.Outcome{TaskID: "auth-42", Success: true, ArtifactRef: "x"})
	if err == nil {
		t.Fatal("expected the backlog error to surface")
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("notifications = %d, want exactly 1", len(notifier.sent))
	}
}

func TestProcess_NotifierErrorIsSwallowed(t *testing.T) {
	backlog := newFakeBacklog()
	notifier := &recordingNotifier{err: errors.New("webhook down")}
	p := NewProcessor(backlog, notifier)

	if err := p.Process(domain.Outcome{TaskID: "auth-42", Success: true}); err != nil {
		t.Errorf("notifier error surfaced: %v", err)
	}
}
