// Package results applies finished task outcomes back to the backlog and
// emits the matching notifications.
package results

import (
	"fmt"
	"log"

	"github.com/quietloop/backlogpilot/internal/domain"
	"github.com/quietloop/backlogpilot/internal/notify"
)

// Backlog is the slice of the task source the processor writes back to.
type Backlog interface {
	UpdateTaskStatus(id string, status domain.TaskStatus) error
	AttachArtifact(id, ref string) error
}

// Processor turns outcomes into backlog updates.
type Processor struct {
	backlog  Backlog
	notifier notify.Notifier
}

// NewProcessor creates a Processor writing to backlog.
func NewProcessor(backlog Backlog, notifier notify.Notifier) *Processor {
	return &Processor{backlog: backlog, notifier: notifier}
}

// Process applies one outcome. A successful task is marked done and gets its
// artifact attached; a failed task keeps its open status so a later session
// can retry it, but any artifact the attempt left behind is still attached
// so the dangling work is findable from the task. Exactly one task-outcome
// notification is sent either way, and a failure to deliver it never
// surfaces as a processing error.
func (p *Processor) Process(o domain.Outcome) error {
	var firstErr error

	if o.Success {
		if err := p.backlog.UpdateTaskStatus(o.TaskID, domain.StatusDone); err != nil {
			firstErr = fmt.Errorf("marking %s done: %w", o.TaskID, err)
		}
	}
	if o.ArtifactRef != "" {
		if err := p.backlog.AttachArtifact(o.TaskID, o.ArtifactRef); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("attaching artifact to %s: %w", o.TaskID, err)
		}
	}

	if err := p.notifier.Send(notify.TaskOutcome(o)); err != nil {
		log.Printf("warning: task outcome notification for %s: %v", o.TaskID, err)
	}

	return firstErr
}
