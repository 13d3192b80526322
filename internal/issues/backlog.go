// internal/issues/backlog.go
package issues

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/quietloop/backlogpilot/internal/config"
	"github.com/quietloop/backlogpilot/internal/domain"
)

const (
	blockedLabel = "blocked"
	prLabel      = "has-pr"

	issueFields = "number,title,body,labels,state,stateReason,url,createdAt,updatedAt"
)

// Client reads and updates a GitHub-issues backlog via the gh CLI.
type Client struct {
	repo  string
	label string
}

// NewClient creates a new Client for the configured repository.
func NewClient(cfg *config.BacklogConfig) *Client {
	return &Client{repo: cfg.Repo, label: cfg.Label}
}

type ghIssue struct {
	Number      int       `json:"number"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	State       string    `json:"state"`
	StateReason string    `json:"stateReason"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Labels      []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

// ListTasks returns all issues in the repository mapped to tasks. Closed
// issues are included so that dependencies on them resolve as satisfied.
func (c *Client) ListTasks() ([]*domain.Task, error) {
	args := []string{"issue", "list",
		"--repo", c.repo,
		"--state", "all",
		"--json", issueFields,
		"--limit", "200"}
	if c.label != "" {
		args = append(args, "--label", c.label)
	}

	output, err := exec.Command("gh", args...).Output()
	if err != nil {
		return nil, fmt.Errorf("gh issue list: %w", err)
	}

	var ghIssues []ghIssue
	if err := json.Unmarshal(output, &ghIssues); err != nil {
		return nil, fmt.Errorf("parse gh output: %w", err)
	}

	tasks := make([]*domain.Task, len(ghIssues))
	for i, gh := range ghIssues {
		tasks[i] = issueToTask(gh)
	}
	return tasks, nil
}

// GetTask retrieves a single issue by number.
func (c *Client) GetTask(id string) (*domain.Task, error) {
	cmd := exec.Command("gh", "issue", "view", id,
		"--repo", c.repo,
		"--json", issueFields)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("gh issue view %s: %w", id, err)
	}

	var gh ghIssue
	if err := json.Unmarshal(output, &gh); err != nil {
		return nil, fmt.Errorf("parse gh output: %w", err)
	}
	return issueToTask(gh), nil
}

// UpdateTaskStatus maps a status change onto gh issue state and labels.
func (c *Client) UpdateTaskStatus(id string, status domain.TaskStatus) error {
	switch status {
	case domain.StatusDone:
		return c.run("issue", "close", id, "--repo", c.repo, "--reason", "completed")
	case domain.StatusClosed:
		return c.run("issue", "close", id, "--repo", c.repo, "--reason", "not planned")
	case domain.StatusBlocked:
		return c.run("issue", "edit", id, "--repo", c.repo, "--add-label", blockedLabel)
	case domain.StatusOpen:
		return c.run("issue", "reopen", id, "--repo", c.repo)
	}
	return fmt.Errorf("unsupported status %q", status)
}

// AttachArtifact posts the artifact reference as an issue comment.
func (c *Client) AttachArtifact(id string, ref string) error {
	return c.run("issue", "comment", id, "--repo", c.repo, "--body", "Artifact: "+ref)
}

func (c *Client) run(args ...string) error {
	if err := exec.Command("gh", args...).Run(); err != nil {
		return fmt.Errorf("gh %s %s: %w", args[0], args[1], err)
	}
	return nil
}

func issueToTask(gh ghIssue) *domain.Task {
	labels := make([]string, len(gh.Labels))
	for i, l := range gh.Labels {
		labels[i] = l.Name
	}

	return &domain.Task{
		ID:          strconv.Itoa(gh.Number),
		Title:       gh.Title,
		Description: gh.Body,
		Labels:      labels,
		DependsOn:   ParseDependsOn(gh.Body),
		Status:      mapState(gh.State, gh.StateReason, labels),
		HasPR:       hasLabel(labels, prLabel),
		SourceRef:   gh.URL,
		CreatedAt:   gh.CreatedAt,
		UpdatedAt:   gh.UpdatedAt,
	}
}

func mapState(state, stateReason string, labels []string) domain.TaskStatus {
	if strings.EqualFold(state, "closed") {
		if strings.EqualFold(stateReason, "completed") {
			return domain.StatusDone
		}
		return domain.StatusClosed
	}
	if hasLabel(labels, blockedLabel) {
		return domain.StatusBlocked
	}
	return domain.StatusOpen
}

var dependsOnRe = regexp.MustCompile(`(?im)^depends[- ]on:[ \t]*(.+)$`)

// ParseDependsOn extracts issue references from "Depends-On:" lines in an
// issue body. References may be comma or space separated, with or without
// a leading '#'.
func ParseDependsOn(body string) []string {
	var deps []string
	for _, m := range dependsOnRe.FindAllStringSubmatch(body, -1) {
		for _, ref := range strings.FieldsFunc(m[1], func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		}) {
			ref = strings.TrimPrefix(ref, "#")
			if ref != "" {
				deps = append(deps, ref)
			}
		}
	}
	return deps
}

func hasLabel(labels []string, target string) bool {
	for _, l := range labels {
		if strings.EqualFold(l, target) {
			return true
		}
	}
	return false
}
