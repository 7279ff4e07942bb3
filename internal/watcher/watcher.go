// Package watcher follows an import directory and mirrors its media files
// into the playlist.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/reelplay/reelplay-agent/internal/logging"
)

// DefaultSettle is how long a path must stay quiet before a create or write
// is reported. Copies into the directory arrive as many write events.
const DefaultSettle = 500 * time.Millisecond

type Watcher interface {
	Watch(ctx context.Context, path string) error
	Stop() error
	OnChange(callback func(path string, event EventType))
}

type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
)

func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	}
	return "unknown"
}

// FSWatcher reports file changes in one directory. Creates and writes are
// debounced per path; removals and renames are reported at once.
type FSWatcher struct {
	settle time.Duration
	logger *slog.Logger

	mu       sync.Mutex
	fs       *fsnotify.Watcher
	pending  map[string]*pendingEvent
	callback func(path string, event EventType)
	quit     chan struct{}
	done     chan struct{}
}

type pendingEvent struct {
	timer *time.Timer
	event EventType
}

func NewFSWatcher(settle time.Duration, logger *slog.Logger) *FSWatcher {
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &FSWatcher{
		settle:  settle,
		logger:  logging.WithComponent(logging.OrDiscard(logger), "watcher"),
		pending: make(map[string]*pendingEvent),
	}
}

func (w *FSWatcher) OnChange(callback func(path string, event EventType)) {
	w.mu.Lock()
	w.callback = callback
	w.mu.Unlock()
}

// Watch starts following path. Events stop when ctx is done or Stop is called.
func (w *FSWatcher) Watch(ctx context.Context, path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fs != nil {
		return fmt.Errorf("already watching")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", path, err)
	}

	w.fs = fw
	w.quit = make(chan struct{})
	w.done = make(chan struct{})
	go w.loop(ctx, fw, w.quit, w.done)

	w.logger.Info("watching directory", "path", logging.SanitizePath(path))
	return nil
}

func (w *FSWatcher) Stop() error {
	w.mu.Lock()
	fw, quit, done := w.fs, w.quit, w.done
	w.fs = nil
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	if fw == nil {
		return nil
	}
	close(quit)
	err := fw.Close()
	<-done
	return err
}

func (w *FSWatcher) loop(ctx context.Context, fw *fsnotify.Watcher, quit, done chan struct{}) {
	defer close(done)
	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", "error", err)

		case <-ctx.Done():
			go w.Stop()
			return

		case <-quit:
			return
		}
	}
}

func (w *FSWatcher) handle(event fsnotify.Event) {
	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.mu.Lock()
		if p, ok := w.pending[event.Name]; ok {
			p.timer.Stop()
			delete(w.pending, event.Name)
		}
		w.mu.Unlock()
		w.emit(event.Name, EventDelete)

	case event.Op&fsnotify.Create != 0:
		w.schedule(event.Name, EventCreate)

	case event.Op&fsnotify.Write != 0:
		w.schedule(event.Name, EventModify)
	}
}

// schedule restarts the settle timer for path. A pending create stays a
// create when writes follow it.
func (w *FSWatcher) schedule(path string, ev EventType) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
		if p.event == EventCreate {
			ev = EventCreate
		}
	}
	p := &pendingEvent{event: ev}
	p.timer = time.AfterFunc(w.settle, func() { w.fire(path, p) })
	w.pending[path] = p
}

func (w *FSWatcher) fire(path string, p *pendingEvent) {
	w.mu.Lock()
	if w.pending[path] != p {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	w.mu.Unlock()

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	w.emit(path, p.event)
}

func (w *FSWatcher) emit(path string, ev EventType) {
	w.mu.Lock()
	cb := w.callback
	w.mu.Unlock()

	w.logger.Debug("file event", "path", logging.SanitizePath(path), "event", ev.String())
	if cb != nil {
		cb(path, ev)
	}
}
