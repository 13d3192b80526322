// Package watch re-syncs the backlog when task files change on disk.
package watch

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Handler is called once per debounced burst of task file changes.
type Handler func(changed []string)

// Watcher monitors a tasks directory for markdown edits. Rapid bursts, such
// as an editor writing several files, collapse into a single handler call.
type Watcher struct {
	watcher  *fsnotify.Watcher
	handler  Handler
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer

	cancel context.CancelFunc
}

// New creates a watcher that invokes handler after changes settle.
func New(handler Handler) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:  watcher,
		handler:  handler,
		debounce: 500 * time.Millisecond,
		pending:  make(map[string]struct{}),
	}, nil
}

// Add starts watching dir and its subdirectories.
func (w *Watcher) Add(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip unreadable entries
		}
		if info.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

// Start begins dispatching file events until ctx is canceled or Stop is
// called.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handleEvent(event)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				log.Printf("warning: watching task files: %v", err)
			}
		}
	}()
}

// Stop ends the event loop and releases the underlying watcher.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.watcher.Close()
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// Directories created after Add need their own watch.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.watcher.Add(event.Name)
			return
		}
	}

	if !strings.HasSuffix(event.Name, ".md") {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[event.Name] = struct{}{}

	// Reset or start the debounce timer
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	if w.handler == nil || len(pending) == 0 {
		return
	}

	files := make([]string, 0, len(pending))
	for f := range pending {
		files = append(files, f)
	}
	w.handler(files)
}

// SetDebounce sets the debounce duration for batching file changes
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}
