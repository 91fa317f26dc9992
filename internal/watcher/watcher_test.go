package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestWatcher(t *testing.T) (*Watcher, <-chan string) {
	t.Helper()
	changes := make(chan string, 16)
	w := New(func(path string) { changes <- path }, nil)
	w.debounce = 50 * time.Millisecond
	t.Cleanup(w.Shutdown)
	return w, changes
}

func expectChange(t *testing.T, changes <-chan string, want string) {
	t.Helper()
	select {
	case got := <-changes:
		if got != want {
			t.Errorf("expected change for %s, got %s", want, got)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for change to %s", want)
	}
}

func expectQuiet(t *testing.T, changes <-chan string) {
	t.Helper()
	select {
	case got := <-changes:
		t.Errorf("unexpected change for %s", got)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_DetectsWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.json")
	os.WriteFile(path, []byte("[]"), 0644)

	w, changes := newTestWatcher(t)
	if err := w.Watch(path); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	os.WriteFile(path, []byte(`[{"name":"x"}]`), 0644)
	expectChange(t, changes, path)
}

func TestWatcher_DetectsCreateByRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.json")

	w, changes := newTestWatcher(t)
	if err := w.Watch(path); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	tmp := filepath.Join(dir, "profiles.json.tmp")
	os.WriteFile(tmp, []byte("[]"), 0644)
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	expectChange(t, changes, path)
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.json")
	os.WriteFile(path, []byte("[]"), 0644)

	w, changes := newTestWatcher(t)
	w.debounce = 200 * time.Millisecond
	if err := w.Watch(path); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		os.WriteFile(path, []byte("[ ]"), 0644)
	}
	expectChange(t, changes, path)
	expectQuiet(t, changes)
}

func TestWatcher_IgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.json")
	os.WriteFile(path, []byte("[]"), 0644)

	w, changes := newTestWatcher(t)
	if err := w.Watch(path); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0644)
	expectQuiet(t, changes)
}

func TestWatcher_Unwatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.json")
	os.WriteFile(path, []byte("[]"), 0644)

	w, changes := newTestWatcher(t)
	if err := w.Watch(path); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	w.Unwatch(path)

	os.WriteFile(path, []byte("[ ]"), 0644)
	expectQuiet(t, changes)

	// Unwatching an unknown path is a no-op.
	w.Unwatch(filepath.Join(dir, "other.json"))
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w, _ := newTestWatcher(t)
	if err := w.Watch("/nonexistent/dir/profiles.json"); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
