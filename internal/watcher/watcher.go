// Package watcher notices when an index directory is republished and calls back after
// the writes settle, so a running server can reload it.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/localsearch/pkg/utils"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher watches an index directory and its parent. Publishing renames a new link
// (or directory) into place, which shows up as an event on the parent; edits inside
// the directory show up on the directory itself.
type Watcher struct {
	dir      string
	parent   string
	onChange func()
	debounce time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	timer    *time.Timer
	started  bool
	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for watch events.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long events must be quiet before onChange runs.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New creates a watcher for dir. onChange runs on its own goroutine, never concurrently
// with itself for a single burst of events.
func New(dir string, onChange func(), opts ...Option) *Watcher {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	dir = filepath.Clean(dir)
	w := &Watcher{
		dir:      dir,
		parent:   filepath.Dir(dir),
		onChange: onChange,
		debounce: defaultDebounce,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = utils.OrNop(w.logger)
	return w
}

// Start begins watching. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(w.parent, 0755); err != nil {
		_ = fsw.Close()
		return err
	}
	if err := fsw.Add(w.parent); err != nil {
		_ = fsw.Close()
		return err
	}
	// The index directory may not exist yet; the parent watch covers its creation.
	_ = fsw.Add(w.dir)

	w.fsw = fsw
	w.started = true
	w.logger.Debug("watching index directory", zap.String("dir", w.dir))
	go w.run(ctx, fsw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Debug("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	switch {
	case path == w.dir:
		if ev.Has(fsnotify.Create) {
			// A new directory was renamed into place; watch its contents too.
			_ = fsw.Add(w.dir)
		}
	case strings.HasPrefix(path, w.dir+string(filepath.Separator)):
	default:
		return
	}
	w.logger.Debug("index directory event", zap.String("op", ev.Op.String()), zap.String("path", path))
	w.schedule()
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	select {
	case <-w.done:
		return
	default:
	}
	if _, err := os.Stat(w.dir); err != nil {
		w.logger.Debug("index directory missing after change", zap.String("dir", w.dir))
		return
	}
	if w.onChange != nil {
		w.onChange()
	}
}

// Stop stops the watcher and releases resources. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	_ = w.fsw.Close()
	w.fsw = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}

// Dir returns the watched index directory.
func (w *Watcher) Dir() string {
	return w.dir
}
