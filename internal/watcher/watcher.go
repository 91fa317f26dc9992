// Package watcher reloads configuration files when they change on disk.
package watcher

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceInterval = 500 * time.Millisecond

// ChangeCallback is called, debounced, after a watched file changes.
type ChangeCallback func(path string)

// Watcher monitors individual files. It watches each file's parent
// directory so editors that replace the file by rename are still seen.
type Watcher struct {
	mu       sync.Mutex
	watchers map[string]*fileWatcher // absolute path → watcher
	callback ChangeCallback
	debounce time.Duration
	log      *slog.Logger
}

type fileWatcher struct {
	path      string
	fsWatcher *fsnotify.Watcher
	cancel    chan struct{}
}

// New creates a file watcher. A nil logger means slog.Default().
func New(callback ChangeCallback, log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		watchers: make(map[string]*fileWatcher),
		callback: callback,
		debounce: debounceInterval,
		log:      log,
	}
}

// Watch starts watching path. The file itself need not exist yet, but its
// directory must.
func (w *Watcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watchers[abs]; ok {
		return nil
	}

	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsW.Add(filepath.Dir(abs)); err != nil {
		fsW.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	fw := &fileWatcher{
		path:      abs,
		fsWatcher: fsW,
		cancel:    make(chan struct{}),
	}
	w.watchers[abs] = fw

	go w.watchLoop(fw)

	w.log.Info("watching file", "path", abs)
	return nil
}

// Unwatch stops watching path.
func (w *Watcher) Unwatch(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}

	w.mu.Lock()
	fw, ok := w.watchers[abs]
	if ok {
		delete(w.watchers, abs)
	}
	w.mu.Unlock()

	if ok {
		close(fw.cancel)
		fw.fsWatcher.Close()
	}
}

// watchLoop processes fsnotify events with debouncing.
func (w *Watcher) watchLoop(fw *fileWatcher) {
	var timer *time.Timer

	for {
		select {
		case <-fw.cancel:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-fw.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != fw.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			// Debounce: reset timer on each event.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case <-fw.cancel:
					return
				default:
				}
				w.log.Debug("file changed", "path", fw.path)
				if w.callback != nil {
					w.callback(fw.path)
				}
			})

		case err, ok := <-fw.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", "path", fw.path, "error", err)
		}
	}
}

// Shutdown stops all watchers.
func (w *Watcher) Shutdown() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.watchers))
	for p := range w.watchers {
		paths = append(paths, p)
	}
	w.mu.Unlock()

	for _, p := range paths {
		w.Unwatch(p)
	}
}
