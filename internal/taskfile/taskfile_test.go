package taskfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/quietloop/backlogpilot/internal/domain"
)

func writeTaskFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseFile(t *testing.T) {
	content := `---
id: auth-142
labels: [bug, high-priority]
depends_on: [auth-101, core-7]
status: open
created: 2025-03-02
---
# Fix token refresh race

Concurrent refresh requests can both rotate the token.

## Notes

See ` + "`internal/auth/refresh.go`" + ` for the retry loop.
`
	dir := t.TempDir()
	path := writeTaskFile(t, dir, "auth-142.md", content)

	task, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if task.ID != "auth-142" {
		t.Errorf("ID = %q, want auth-142", task.ID)
	}
	if task.Title != "Fix token refresh race" {
		t.Errorf("Title = %q, want 'Fix token refresh race'", task.Title)
	}
	if len(task.Labels) != 2 || task.Labels[0] != "bug" {
		t.Errorf("Labels = %v, want [bug high-priority]", task.Labels)
	}
	if len(task.DependsOn) != 2 {
		t.Errorf("DependsOn count = %d, want 2", len(task.DependsOn))
	}
	if task.Status != domain.StatusOpen {
		t.Errorf("Status = %q, want open", task.Status)
	}
	want := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	if !task.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", task.CreatedAt, want)
	}
	if task.SourceRef != path {
		t.Errorf("SourceRef = %q, want %q", task.SourceRef, path)
	}
	// Description keeps the full body, later sections included.
	if !strings.Contains(task.Description, "refresh.go") {
		t.Errorf("Description = %q, want body including later sections", task.Description)
	}
}

func TestParseFile_IDFromFilename(t *testing.T) {
	dir := t.TempDir()
	path := writeTaskFile(t, dir, "core-9.md", "# Small cleanup\n\nRemove dead flag.\n")

	task, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if task.ID != "core-9" {
		t.Errorf("ID = %q, want core-9", task.ID)
	}
	if task.Status != domain.StatusOpen {
		t.Errorf("Status = %q, want open default", task.Status)
	}
	if !task.CreatedAt.IsZero() {
		t.Errorf("CreatedAt = %v, want zero when frontmatter omits created", task.CreatedAt)
	}
}

func TestParseFile_BadID(t *testing.T) {
	dir := t.TempDir()
	path := writeTaskFile(t, dir, "Bad Name.md", "# x\n")

	if _, err := ParseFile(path); err == nil {
		t.Error("ParseFile() error = nil, want invalid id error")
	}
}

func TestParseDir(t *testing.T) {
	dir := t.TempDir()
	writeTaskFile(t, dir, "a-1.md", "---\nstatus: done\n---\n# A\n\nbody\n")
	writeTaskFile(t, dir, "b-2.md", "# B\n\nbody\n")
	writeTaskFile(t, dir, "README.md", "# index\n")
	writeTaskFile(t, dir, "notes.txt", "not a task\n")
	writeTaskFile(t, dir, "broken.md", "---\nlabels: [unclosed\n---\n# broken\n")

	tasks, errs := ParseDir(dir)

	if len(tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(tasks))
	}
	if len(errs) != 1 {
		t.Fatalf("errs = %d, want 1 (broken.md only)", len(errs))
	}
	if tasks[0].ID != "a-1" || tasks[0].Status != domain.StatusDone {
		t.Errorf("first task = %s/%s, want a-1/done", tasks[0].ID, tasks[0].Status)
	}
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		in   string
		want domain.TaskStatus
	}{
		{"done", domain.StatusDone},
		{"Complete", domain.StatusDone},
		{"closed", domain.StatusClosed},
		{"blocked", domain.StatusBlocked},
		{"open", domain.StatusOpen},
		{"", domain.StatusOpen},
		{"anything", domain.StatusOpen},
	}
	for _, tt := range tests {
		if got := ToStatus(tt.in); got != tt.want {
			t.Errorf("ToStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
