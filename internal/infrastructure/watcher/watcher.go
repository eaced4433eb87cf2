// Package watcher observes the input tree for new documents and pushes
// stable paths onto the work queue.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Enqueuer is the queue surface the watcher needs.
type Enqueuer interface {
	Put(path string)
}

type Options struct {
	InputDir     string
	DocExtension string

	SettleDelay  time.Duration
	PollInterval time.Duration
	MaxAttempts  int

	// Abandoned is called when a debounce episode gives up. Optional.
	Abandoned func()
}

// Watcher wires fsnotify events through the debouncer into the queue.
// fsnotify does not watch recursively, so directories are registered on
// startup and as they appear.
type Watcher struct {
	opts   Options
	queue  Enqueuer
	logger *slog.Logger

	mu        sync.Mutex
	fsw       *fsnotify.Watcher
	cancel    context.CancelFunc
	loopDone  chan struct{}
	debouncer *debouncer
	running   bool
}

func New(opts Options, queue Enqueuer, logger *slog.Logger) *Watcher {
	return &Watcher{
		opts:   opts,
		queue:  queue,
		logger: logger.With("component", "watcher"),
	}
}

// Start begins recursive observation, creating the input dir if absent.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if err := os.MkdirAll(w.opts.InputDir, 0o755); err != nil {
		return fmt.Errorf("create input dir: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}

	if err := addTree(fsw, w.opts.InputDir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch input tree: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.fsw = fsw
	w.cancel = cancel
	w.loopDone = make(chan struct{})
	w.debouncer = newDebouncer(
		w.opts.SettleDelay,
		w.opts.PollInterval,
		w.opts.MaxAttempts,
		w.queue.Put,
		w.opts.Abandoned,
		w.logger,
	)
	w.running = true

	go w.eventLoop(ctx)

	w.logger.Info("watching_started", "input_dir", w.opts.InputDir, "extension", w.opts.DocExtension)
	return nil
}

// Stop halts observation and blocks until the event loop and every running
// debounce episode have finished. Idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	fsw := w.fsw
	cancel := w.cancel
	loopDone := w.loopDone
	deb := w.debouncer
	w.mu.Unlock()

	cancel()
	_ = fsw.Close()
	<-loopDone
	deb.Wait()

	w.logger.Info("watching_stopped", "input_dir", w.opts.InputDir)
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer close(w.loopDone)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op.Has(fsnotify.Create) {
				w.handleCreate(ctx, event.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("fs_watch_error", "error", err)
		}
	}
}

func (w *Watcher) handleCreate(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		if err := addTree(w.fsw, path); err != nil {
			w.logger.Warn("watch_new_dir_failed", "path", path, "error", err)
		}
		return
	}

	if !acceptPath(path, w.opts.DocExtension) {
		w.logger.Debug("file_ignored", "path", path)
		return
	}

	w.logger.Info("file_discovered", "path", path)
	w.debouncer.Observe(ctx, path)
}

// acceptPath filters out directories' temp artifacts and foreign extensions.
func acceptPath(path, ext string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~") {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), ext)
}

func addTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}
