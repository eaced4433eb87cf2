package watcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/kirillkom/docmind/internal/core/domain"
)

// debouncer declares a file stable once two consecutive size readings agree,
// then enqueues it. One stability episode runs per path at a time: create
// events for a path already being watched are coalesced, which bounds
// goroutine growth under burst load.
type debouncer struct {
	settleDelay  time.Duration
	pollInterval time.Duration
	maxAttempts  int

	enqueue   func(string)
	abandoned func()
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	wg      sync.WaitGroup
}

func newDebouncer(settleDelay, pollInterval time.Duration, maxAttempts int, enqueue func(string), abandoned func(), logger *slog.Logger) *debouncer {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	if abandoned == nil {
		abandoned = func() {}
	}
	return &debouncer{
		settleDelay:  settleDelay,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
		enqueue:      enqueue,
		abandoned:    abandoned,
		logger:       logger,
		pending:      make(map[string]struct{}),
	}
}

// Observe starts a stability episode for path unless one is already running.
func (d *debouncer) Observe(ctx context.Context, path string) {
	d.mu.Lock()
	if _, running := d.pending[path]; running {
		d.mu.Unlock()
		return
	}
	d.pending[path] = struct{}{}
	d.mu.Unlock()

	file := domain.WatchedFile{Path: path, DiscoveredAt: time.Now()}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			d.mu.Lock()
			delete(d.pending, path)
			d.mu.Unlock()
		}()
		d.waitForStability(ctx, file)
	}()
}

// Wait blocks until every running episode has finished.
func (d *debouncer) Wait() {
	d.wg.Wait()
}

func (d *debouncer) waitForStability(ctx context.Context, file domain.WatchedFile) {
	if !sleepCtx(ctx, d.settleDelay) {
		return
	}

	lastSize := int64(-1)
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		info, err := os.Stat(file.Path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				d.logger.Debug("file_disappeared_during_debounce", "path", file.Path)
				return
			}
			d.logger.Warn("debounce_stat_failed", "path", file.Path, "attempt", attempt, "error", err)
			if !sleepCtx(ctx, d.pollInterval) {
				return
			}
			continue
		}

		size := info.Size()
		if lastSize >= 0 && size == lastSize {
			d.logger.Info("file_stable",
				"path", file.Path,
				"size", size,
				"settle_duration", time.Since(file.DiscoveredAt).String(),
			)
			d.enqueue(file.Path)
			return
		}
		lastSize = size

		if !sleepCtx(ctx, d.pollInterval) {
			return
		}
	}

	d.logger.Warn("file_never_stabilized", "path", file.Path, "attempts", d.maxAttempts)
	d.abandoned()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
