// Package watch gives the engine a live-rebuild mode: it watches the
// filesystem paths handed to Track (or to TrackDependency, for
// FileStatQuestion children) and calls a trigger whenever one of
// them changes, debouncing
// bursts of filesystem events the way editors and build tools
// (save-then-rewrite, atomic rename) tend to produce them.
package watch

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/askbuild/ask/internal/builtin"
	"github.com/askbuild/ask/internal/qa"
)

// Trigger is called once per debounced batch of filesystem changes.
type Trigger func()

// Watcher wraps an fsnotify.Watcher with debouncing and a
// FileStatQuestion-aware Track helper.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	trigger  Trigger

	mu      sync.Mutex
	tracked map[string]struct{}
	timer   *time.Timer

	done chan struct{}
}

// New creates a Watcher that calls trigger after events settle for
// debounce (e.g. 50ms, matching the pack's log-streaming debounce
// interval).
func New(debounce time.Duration, trigger Trigger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:      fsw,
		debounce: debounce,
		trigger:  trigger,
		tracked:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Track arranges for path's containing directory to be watched, so
// renames and atomic-save rewrites (which touch the directory, not
// just the file) are observed. Safe to call repeatedly for the same
// path.
func (w *Watcher) Track(path string) error {
	dir := filepath.Dir(path)

	w.mu.Lock()
	_, already := w.tracked[dir]
	if !already {
		w.tracked[dir] = struct{}{}
	}
	w.mu.Unlock()

	if already {
		return nil
	}
	return w.fsw.Add(dir)
}

// TrackDependency tracks the child's path if the child fact's vtable
// is builtin.FileStatVTable, and ignores any other child. The Database
// has no dependency-recorded callback, so it is called only by code
// that invokes it directly.
func (w *Watcher) TrackDependency(childUUID qa.UUID, childQuestion qa.Question) {
	if childUUID != (builtin.FileStatVTable{}).UUID() {
		return
	}
	if path, ok := childQuestion.(builtin.FileStatQuestion); ok {
		_ = w.Track(string(path))
	}
}

func (w *Watcher) loop() {
	for {
		select {
		case _, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.scheduleTrigger()
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) scheduleTrigger() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.trigger)
}

// Close stops the watcher and releases its OS resources.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
