package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildTaskPrompt_EmbeddedDefault(t *testing.T) {
	l := NewLoader()

	out, err := l.BuildTaskPrompt(TaskData{
		ID:          "auth-42",
		Title:       "Fix token refresh",
		Description: "Refresh tokens expire too early.",
		Branch:      "backlogpilot/auth-42",
		Labels:      "bug, critical",
	})
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		"Task auth-42: Fix token refresh",
		"Refresh tokens expire too early.",
		"backlogpilot/auth-42",
		"Labels: bug, critical",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildTaskPrompt_OmitsEmptyLabels(t *testing.T) {
	l := NewLoader()

	out, err := l.BuildTaskPrompt(TaskData{ID: "t-1", Title: "x", Branch: "b"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "Labels:") {
		t.Error("prompt should not mention labels when there are none")
	}
}

func TestBuildEstimatePrompt_EmbeddedDefault(t *testing.T) {
	l := NewLoader()

	out, err := l.BuildEstimatePrompt(EstimateData{
		Title:       "Add rate limiting",
		Description: "Throttle the public API.",
	})
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(out, "Add rate limiting") {
		t.Error("prompt missing task title")
	}
	if !strings.Contains(out, `"estimated_hours"`) {
		t.Error("prompt missing the estimated_hours key contract")
	}
}

func TestExecute_OverrideDirWins(t *testing.T) {
	dir := t.TempDir()
	override := "custom prompt for {{.Title}}\n"
	if err := os.WriteFile(filepath.Join(dir, "task.md"), []byte(override), 0644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(dir)
	out, err := l.BuildTaskPrompt(TaskData{Title: "Fix token refresh"})
	if err != nil {
		t.Fatal(err)
	}

	if out != "custom prompt for Fix token refresh\n" {
		t.Errorf("override not applied, got %q", out)
	}
}

func TestExecute_FirstOverrideWins(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	os.WriteFile(filepath.Join(first, "task.md"), []byte("first"), 0644)
	os.WriteFile(filepath.Join(second, "task.md"), []byte("second"), 0644)

	l := NewLoader(first, second)
	out, err := l.Execute("task.md", nil)
	if err != nil {
		t.Fatal(err)
	}
	if out != "first" {
		t.Errorf("got %q, want %q", out, "first")
	}
}

func TestExecute_MissingTemplate(t *testing.T) {
	l := NewLoader()
	if _, err := l.Execute("nope.md", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestExecute_CachesParsedTemplate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "task.md")
	os.WriteFile(path, []byte("v1"), 0644)

	l := NewLoader(dir)
	if out, _ := l.Execute("task.md", nil); out != "v1" {
		t.Fatalf("got %q, want v1", out)
	}

	// Later edits are not picked up within the same process.
	os.WriteFile(path, []byte("v2"), 0644)
	if out, _ := l.Execute("task.md", nil); out != "v1" {
		t.Errorf("got %q, want cached v1", out)
	}
}
