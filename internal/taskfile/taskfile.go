// Package taskfile reads backlog task files: markdown documents with a YAML
// frontmatter block describing id, labels, dependencies, and status.
package taskfile

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quietloop/backlogpilot/internal/domain"
)

var (
	titleRegex = regexp.MustCompile(`^#\s+(.+)$`)
	idRegex    = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)
)

// Frontmatter is the YAML header of a task file
type Frontmatter struct {
	ID        string   `yaml:"id"`
	Labels    []string `yaml:"labels"`
	DependsOn []string `yaml:"depends_on"`
	Status    string   `yaml:"status"`
	Created   string   `yaml:"created"`
	HasPR     bool     `yaml:"has_pr"`
}

// ParseFrontmatter extracts the YAML frontmatter from markdown content.
// Returns the frontmatter, the remaining body, and any error.
func ParseFrontmatter(content []byte) (*Frontmatter, []byte, error) {
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return &Frontmatter{}, content, nil
	}

	rest := content[4:]
	endIdx := bytes.Index(rest, []byte("\n---"))
	if endIdx == -1 {
		return &Frontmatter{}, content, nil
	}

	fmData := rest[:endIdx]
	remaining := rest[endIdx+4:]

	var fm Frontmatter
	if err := yaml.Unmarshal(fmData, &fm); err != nil {
		return nil, nil, err
	}

	return &fm, bytes.TrimLeft(remaining, "\n"), nil
}

// ParseFile parses a single task file into a Task
func ParseFile(path string) (*domain.Task, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	fm, body, err := ParseFrontmatter(content)
	if err != nil {
		return nil, fmt.Errorf("parsing frontmatter: %w", err)
	}

	id := fm.ID
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(path), ".md")
	}
	if !idRegex.MatchString(id) {
		return nil, fmt.Errorf("invalid task id %q in %s", id, path)
	}

	created, err := parseCreated(fm.Created)
	if err != nil {
		return nil, fmt.Errorf("parsing created in %s: %w", path, err)
	}

	task := &domain.Task{
		ID:          id,
		Title:       extractTitle(body),
		Description: extractDescription(body),
		Labels:      fm.Labels,
		DependsOn:   fm.DependsOn,
		Status:      ToStatus(fm.Status),
		HasPR:       fm.HasPR,
		SourceRef:   path,
		CreatedAt:   created,
	}
	if task.Title == "" {
		task.Title = id
	}
	return task, nil
}

// ParseDir parses every task file in a directory. Malformed files are
// skipped and reported in the returned slice of errors rather than
// aborting the whole ingest.
func ParseDir(dir string) ([]*domain.Task, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{err}
	}

	var tasks []*domain.Task
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		if strings.EqualFold(entry.Name(), "README.md") {
			continue
		}

		task, err := ParseFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", entry.Name(), err))
			continue
		}
		tasks = append(tasks, task)
	}

	return tasks, errs
}

// ToStatus converts a frontmatter status string to a TaskStatus
func ToStatus(s string) domain.TaskStatus {
	switch strings.ToLower(s) {
	case "done", "complete", "completed":
		return domain.StatusDone
	case "closed":
		return domain.StatusClosed
	case "blocked":
		return domain.StatusBlocked
	default:
		return domain.StatusOpen
	}
}

func parseCreated(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func extractTitle(content []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		if matches := titleRegex.FindStringSubmatch(scanner.Text()); matches != nil {
			return strings.TrimSpace(matches[1])
		}
	}
	return ""
}

func extractDescription(content []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	var lines []string
	foundTitle := false

	for scanner.Scan() {
		line := scanner.Text()
		if !foundTitle {
			if titleRegex.MatchString(line) {
				foundTitle = true
			}
			continue
		}

		if len(lines) == 0 && strings.TrimSpace(line) == "" {
			continue
		}

		lines = append(lines, line)
	}

	// No heading at all: the whole body is the description.
	if !foundTitle {
		return strings.TrimSpace(string(content))
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}
