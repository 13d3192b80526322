package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

func newTestWatcher(t *testing.T, dir string) (*Watcher, chan []string) {
	t.Helper()

	batches := make(chan []string, 4)
	w, err := New(func(changed []string) {
		batches <- changed
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)

	w.SetDebounce(50 * time.Millisecond)
	if err := w.Add(dir); err != nil {
		t.Fatal(err)
	}
	w.Start(context.Background())

	return w, batches
}

func waitForBatch(t *testing.T, batches chan []string) []string {
	t.Helper()
	select {
	case b := <-batches:
		return b
	case <-time.After(3 * time.Second):
		t.Fatal("no batch arrived")
		return nil
	}
}

func TestWatcher_BatchesRapidChanges(t *testing.T) {
	dir := t.TempDir()
	_, batches := newTestWatcher(t, dir)

	names := []string{"auth.md", "billing.md", "infra.md"}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("# task\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	batch := waitForBatch(t, batches)
	if len(batch) != 3 {
		t.Fatalf("batch = %v, want 3 files", batch)
	}

	sort.Strings(batch)
	for i, name := range names {
		if filepath.Base(batch[i]) != name {
			t.Errorf("batch[%d] = %q, want %q", i, batch[i], name)
		}
	}

	// The burst collapsed into one call.
	select {
	case extra := <-batches:
		t.Errorf("unexpected second batch %v", extra)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_IgnoresNonMarkdown(t *testing.T) {
	dir := t.TempDir()
	_, batches := newTestWatcher(t, dir)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case batch := <-batches:
		t.Fatalf("unexpected batch %v for a txt file", batch)
	case <-time.After(200 * time.Millisecond):
	}

	if err := os.WriteFile(filepath.Join(dir, "task.md"), []byte("# t\n"), 0644); err != nil {
		t.Fatal(err)
	}

	batch := waitForBatch(t, batches)
	if len(batch) != 1 || filepath.Base(batch[0]) != "task.md" {
		t.Errorf("batch = %v, want just task.md", batch)
	}
}

func TestWatcher_RemovalTriggersResync(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "task.md")
	if err := os.WriteFile(path, []byte("# t\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, batches := newTestWatcher(t, dir)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	batch := waitForBatch(t, batches)
	if len(batch) != 1 || filepath.Base(batch[0]) != "task.md" {
		t.Errorf("batch = %v, want the removed file", batch)
	}
}

func TestWatcher_PicksUpNewSubdirectories(t *testing.T) {
	dir := t.TempDir()
	_, batches := newTestWatcher(t, dir)

	sub := filepath.Join(dir, "auth")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(sub, "task.md"), []byte("# t\n"), 0644); err != nil {
		t.Fatal(err)
	}

	batch := waitForBatch(t, batches)
	if len(batch) != 1 || filepath.Base(batch[0]) != "task.md" {
		t.Errorf("batch = %v, want the nested file", batch)
	}
}
