// Package executor runs a single task through an agent CLI inside the
// task's leased worktree.
package executor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/quietloop/backlogpilot/internal/config"
	"github.com/quietloop/backlogpilot/internal/domain"
	"github.com/quietloop/backlogpilot/internal/lease"
	"github.com/quietloop/backlogpilot/internal/prompts"
)

// detailLimit caps how much result text is carried into an outcome record.
const detailLimit = 500

// CLI drives the claude command line in non-interactive mode.
type CLI struct {
	command string
	model   string
	loader  *prompts.Loader
}

// NewCLI creates an executor that invokes cfg.Command for each task.
func NewCLI(cfg *config.ExecutorConfig, loader *prompts.Loader) *CLI {
	return &CLI{
		command: cfg.Command,
		model:   cfg.Model,
		loader:  loader,
	}
}

// Run executes one task inside its leased worktree and reports the outcome.
// It never returns an error: every failure mode, including a timeout or a
// crash of the underlying command, becomes an unsuccessful outcome carrying
// whatever cost and duration are known.
func (c *CLI) Run(ctx context.Context, task *domain.Task, l *lease.Lease, timeout time.Duration) domain.Outcome {
	started := time.Now()
	outcome := domain.Outcome{TaskID: task.ID}

	fail := func(detail string) domain.Outcome {
		outcome.Detail = detail
		outcome.Duration = time.Since(started)
		outcome.FinishedAt = time.Now()
		return outcome
	}

	prompt, err := c.loader.BuildTaskPrompt(prompts.TaskData{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		Branch:      l.Branch,
		Labels:      strings.Join(task.Labels, ", "),
	})
	if err != nil {
		return fail(fmt.Sprintf("building prompt: %v", err))
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{
		"--print",
		"--verbose",
		"--dangerously-skip-permissions",
		"--output-format", "stream-json",
	}
	if c.model != "" {
		args = append(args, "--model", c.model)
	}
	args = append(args, "-p", prompt)

	cmd := exec.CommandContext(runCtx, c.command, args...)
	cmd.Dir = l.Dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fail(fmt.Sprintf("opening stdout: %v", err))
	}
	if err := cmd.Start(); err != nil {
		return fail(fmt.Sprintf("starting %s: %v", c.command, err))
	}

	var res *resultMessage
	scanner := bufio.NewScanner(stdout)
	// Stream-json lines can be long
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		if m := parseResultLine(scanner.Text()); m != nil {
			res = m
		}
	}

	waitErr := cmd.Wait()

	outcome.Duration = time.Since(started)
	outcome.FinishedAt = time.Now()
	// The agent ran on the lease branch whether or not it finished, so the
	// ref is carried even for failures; partial work stays findable.
	outcome.ArtifactRef = l.Branch
	if res != nil {
		outcome.CostUSD = res.cost()
	}

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		outcome.Detail = fmt.Sprintf("timed out after %s", timeout)
	case ctx.Err() != nil:
		outcome.Detail = "interrupted"
	case waitErr != nil:
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = waitErr.Error()
		}
		outcome.Detail = truncate(detail, detailLimit)
	case res == nil:
		outcome.Detail = "no result message in output"
	case res.IsError:
		outcome.Detail = truncate(res.Result, detailLimit)
	default:
		outcome.Success = true
		outcome.Detail = truncate(res.Result, detailLimit)
	}

	return outcome
}

// resultMessage is the final message the CLI emits on its stream-json
// output. Older releases report cost_usd, newer ones total_cost_usd.
type resultMessage struct {
	Type         string  `json:"type"`
	Subtype      string  `json:"subtype"`
	IsError      bool    `json:"is_error"`
	Result       string  `json:"result"`
	CostUSD      float64 `json:"cost_usd"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

func (m *resultMessage) cost() float64 {
	if m.TotalCostUSD > 0 {
		return m.TotalCostUSD
	}
	return m.CostUSD
}

// parseResultLine decodes one stream-json line, returning it only when it is
// the final result message.
func parseResultLine(line string) *resultMessage {
	var m resultMessage
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		return nil
	}
	if m.Type != "result" {
		return nil
	}
	return &m
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
