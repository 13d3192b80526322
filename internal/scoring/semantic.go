package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/quietloop/backlogpilot/internal/domain"
	"github.com/quietloop/backlogpilot/internal/prompts"
)

// Estimate is an independent complexity judgment from a secondary
// estimator.
type Estimate struct {
	Complexity float64 `json:"complexity"`
	Hours      float64 `json:"estimated_hours"`
	Risk       string  `json:"risk"`
}

// Estimator produces a semantic Estimate for a task. Implementations may
// call out to an external model; any failure degrades scoring to the
// heuristic signal alone.
type Estimator interface {
	Estimate(ctx context.Context, task *domain.Task) (*Estimate, error)
}

// CLIEstimator asks an external agent CLI for a one-shot estimate.
type CLIEstimator struct {
	command string
	loader  *prompts.Loader
}

// NewCLIEstimator creates an estimator that invokes the given command with
// the estimate prompt template from loader.
func NewCLIEstimator(command string, loader *prompts.Loader) *CLIEstimator {
	return &CLIEstimator{command: command, loader: loader}
}

// Estimate runs the estimator CLI in print mode and parses its JSON reply.
func (e *CLIEstimator) Estimate(ctx context.Context, task *domain.Task) (*Estimate, error) {
	prompt, err := e.loader.BuildEstimatePrompt(prompts.EstimateData{
		Title:       task.Title,
		Description: task.Description,
		Labels:      strings.Join(task.Labels, ", "),
	})
	if err != nil {
		return nil, fmt.Errorf("estimator: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.command,
		"--print",
		"--output-format", "text",
		"-p", prompt)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("estimator: %w", err)
	}

	return extractEstimate(output)
}

// extractEstimate finds the first balanced JSON object in the output,
// which may be wrapped in prose or a markdown code block.
func extractEstimate(output []byte) (*Estimate, error) {
	str := string(output)

	start := -1
	depth := 0
	for i, c := range str {
		if c == '{' {
			if start == -1 {
				start = i
			}
			depth++
		} else if c == '}' {
			depth--
			if depth == 0 && start != -1 {
				var est Estimate
				if err := json.Unmarshal([]byte(str[start:i+1]), &est); err != nil {
					return nil, err
				}
				return &est, nil
			}
		}
	}
	return nil, fmt.Errorf("no JSON object found in output")
}
