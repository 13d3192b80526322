package prompts

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"text/template"
)

// Loader resolves prompt templates, checking override directories before
// falling back to the embedded defaults.
type Loader struct {
	overrideDirs []string // checked in order; first match wins
	cache        map[string]*template.Template
	mu           sync.RWMutex
}

// NewLoader creates a loader with the given override directories.
func NewLoader(overrideDirs ...string) *Loader {
	return &Loader{
		overrideDirs: overrideDirs,
		cache:        make(map[string]*template.Template),
	}
}

// DefaultLoader creates a loader with the standard override paths:
// the project-local .backlogpilot/prompts directory, then the user's
// ~/.config/backlogpilot/prompts directory.
func DefaultLoader(projectRoot string) *Loader {
	home, _ := os.UserHomeDir()
	var dirs []string

	if projectRoot != "" {
		dirs = append(dirs, filepath.Join(projectRoot, ".backlogpilot", "prompts"))
	}
	dirs = append(dirs, filepath.Join(home, ".config", "backlogpilot", "prompts"))

	return NewLoader(dirs...)
}

// loadContent loads raw template content from override dirs or the embedded FS.
func (l *Loader) loadContent(name string) ([]byte, error) {
	for _, dir := range l.overrideDirs {
		if data, err := os.ReadFile(filepath.Join(dir, name)); err == nil {
			return data, nil
		}
	}
	return fs.ReadFile(embeddedFS, "templates/"+name)
}

// load parses and caches the named template. Overrides are resolved once;
// editing an override mid-process has no effect until restart.
func (l *Loader) load(name string) (*template.Template, error) {
	l.mu.RLock()
	if tmpl, ok := l.cache[name]; ok {
		l.mu.RUnlock()
		return tmpl, nil
	}
	l.mu.RUnlock()

	content, err := l.loadContent(name)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}

	tmpl, err := template.New(name).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("compile template %s: %w", name, err)
	}

	l.mu.Lock()
	l.cache[name] = tmpl
	l.mu.Unlock()

	return tmpl, nil
}

// Execute renders the named template with the given data.
func (l *Loader) Execute(name string, data interface{}) (string, error) {
	tmpl, err := l.load(name)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute %s: %w", name, err)
	}

	return buf.String(), nil
}

// TaskData holds template variables for the task execution prompt.
type TaskData struct {
	ID          string
	Title       string
	Description string
	Branch      string
	Labels      string
}

// EstimateData holds template variables for the effort estimate prompt.
type EstimateData struct {
	Title       string
	Description string
	Labels      string
}

// BuildTaskPrompt renders the prompt handed to the executor for one task.
func (l *Loader) BuildTaskPrompt(data TaskData) (string, error) {
	return l.Execute("task.md", data)
}

// BuildEstimatePrompt renders the prompt used to ask for an effort estimate.
func (l *Loader) BuildEstimatePrompt(data EstimateData) (string, error) {
	return l.Execute("estimate.md", data)
}
