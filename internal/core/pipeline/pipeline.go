// Package pipeline drives each stable input file through backup,
// verification, splitting, analysis, classification and final filing.
// Exactly one worker drains the queue, so only this goroutine mutates the
// processing, output and error areas.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docmind/internal/core/domain"
	"github.com/kirillkom/docmind/internal/core/ports"
	"github.com/kirillkom/docmind/internal/observability/metrics"
)

type Options struct {
	ProcessingDir string
	OutputDir     string
	ErrorDir      string

	DocExtension string
	PollTimeout  time.Duration

	// HistoryLimit caps the journal decisions fed into the classifier
	// context.
	HistoryLimit int

	ServiceName string
}

type Deps struct {
	Queue      ports.WorkQueue
	Backups    ports.BackupVerifier
	Splitter   ports.Splitter
	Analyzer   ports.Analyzer
	Classifier ports.Classifier
	Contexts   ports.ContextStore

	// Journal is optional; without it no decision history is recorded.
	Journal ports.DecisionJournal
	// Events is optional; nil means no progress notifications.
	Events ports.EventSink

	Logger  *slog.Logger
	Metrics *metrics.PipelineMetrics
}

// Pipeline is the single-worker consumer of the work queue.
type Pipeline struct {
	opts Options
	deps Deps

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func New(deps Deps, opts Options) (*Pipeline, error) {
	switch {
	case deps.Queue == nil:
		return nil, domain.WrapError(domain.ErrConfiguration, "build pipeline", errors.New("work queue is required"))
	case deps.Backups == nil:
		return nil, domain.WrapError(domain.ErrConfiguration, "build pipeline", errors.New("backup verifier is required"))
	case deps.Splitter == nil:
		return nil, domain.WrapError(domain.ErrConfiguration, "build pipeline", errors.New("splitter is required"))
	case deps.Analyzer == nil:
		return nil, domain.WrapError(domain.ErrConfiguration, "build pipeline", errors.New("analyzer is required"))
	case deps.Classifier == nil:
		return nil, domain.WrapError(domain.ErrConfiguration, "build pipeline", errors.New("classifier is required"))
	case deps.Contexts == nil:
		return nil, domain.WrapError(domain.ErrConfiguration, "build pipeline", errors.New("context store is required"))
	}

	if deps.Events == nil {
		deps.Events = ports.NoopSink{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("component", "pipeline")

	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 500 * time.Millisecond
	}
	if opts.DocExtension == "" {
		opts.DocExtension = ".pdf"
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 5
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "docmind"
	}

	return &Pipeline{
		opts:   opts,
		deps:   deps,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Start launches the worker loop. Idempotent; a no-op once Stop has run.
func (p *Pipeline) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	go p.run()
}

// Stop signals the worker and joins it. In-flight filesystem operations are
// never interrupted; the worker reacts within one poll interval once the
// current item finishes. Idempotent, safe without a prior Start, and safe to
// race with Start: whichever takes the lock first wins, and every Stop call
// joins a worker that was running.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	started := p.started
	if !p.stopped {
		p.stopped = true
		close(p.stopCh)
	}
	p.mu.Unlock()

	if started {
		<-p.doneCh
	}
}

func (p *Pipeline) run() {
	defer close(p.doneCh)
	p.deps.Logger.Info("worker_started", "poll_timeout", p.opts.PollTimeout.String())

	for {
		select {
		case <-p.stopCh:
			p.deps.Logger.Info("worker_stopped")
			return
		default:
		}

		path, ok := p.deps.Queue.Get(p.opts.PollTimeout)
		if !ok {
			continue
		}

		p.processFile(path)
		p.deps.Queue.Done()
		p.deps.Metrics.SetQueueDepth(p.deps.Queue.Len())
	}
}

// processFile runs the full per-file state machine and returns the item in
// its final lifecycle state. There are no retries: every failure ends in a
// terminal routing decision. The background context reflects that
// cancellation never interrupts a stage.
func (p *Pipeline) processFile(path string) *domain.ProcessingItem {
	ctx := context.Background()
	start := time.Now()
	name := filepath.Base(path)
	logger := p.deps.Logger.With("file", name)
	item := &domain.ProcessingItem{Path: path, State: domain.StateDiscovered}

	p.emitLog(fmt.Sprintf("processing %s", name))

	if _, err := os.Stat(path); err != nil {
		logger.Warn("file_vanished_before_processing", "path", path, "error", err)
		p.deps.Metrics.ObserveFile(p.opts.ServiceName, "missing")
		return item
	}

	p.transition(item, domain.StateBackingUp, logger)
	backupStart := time.Now()
	rec, err := p.deps.Backups.Backup(ctx, path)
	p.deps.Metrics.ObserveStage(p.opts.ServiceName, "backup", time.Since(backupStart))
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			logger.Warn("file_vanished_during_backup", "error", err)
			p.deps.Metrics.ObserveFile(p.opts.ServiceName, "missing")
			return item
		}
		logger.Error("backup_failed", "error", err)
		p.emitLog(fmt.Sprintf("backup failed for %s: %v", name, err))
		return p.finishFile(item, domain.StateBackupFailed, logger)
	}

	verified, err := p.deps.Backups.Verify(ctx, rec)
	if err != nil || !verified {
		if err == nil {
			err = domain.WrapError(domain.ErrIntegrity, "verify backup", errors.New("digest mismatch"))
		}
		logger.Error("backup_integrity_failed", "backup_path", rec.BackupPath, "error", err)
		p.emitLog(fmt.Sprintf("backup integrity check failed for %s, leaving file untouched", name))
		return p.finishFile(item, domain.StateBackupFailed, logger)
	}
	p.transition(item, domain.StateVerified, logger)
	logger.Info("backup_verified", "backup_path", rec.BackupPath, "digest", rec.SourceHash)

	p.transition(item, domain.StateMoving, logger)
	procPath := filepath.Join(p.opts.ProcessingDir, name)
	if err := moveFile(path, procPath); err != nil {
		logger.Error("move_to_processing_failed", "error", domain.WrapError(domain.ErrIO, "move to processing", err))
		p.routeToError(path, logger)
		return p.finishFile(item, domain.StateErrored, logger)
	}

	p.transition(item, domain.StateSplitting, logger)
	splitStart := time.Now()
	parts, err := p.deps.Splitter.Scan(ctx, procPath)
	p.deps.Metrics.ObserveStage(p.opts.ServiceName, "split", time.Since(splitStart))
	if err != nil {
		logger.Error("split_failed", "error", domain.WrapError(domain.ErrCapability, "scan for splits", err))
		p.routeToError(procPath, logger)
		return p.finishFile(item, domain.StateErrored, logger)
	}

	wholeFile := len(parts) == 0
	if wholeFile {
		parts = []string{procPath}
	} else {
		p.emitLog(fmt.Sprintf("%s split into %d parts", name, len(parts)))
	}

	erroredParts := 0
	for _, part := range parts {
		partItem := &domain.ProcessingItem{Path: part, State: domain.StateAnalyzing}
		p.processPart(ctx, partItem, rec, logger)
		if partItem.State == domain.StateErrored {
			erroredParts++
		}
	}

	// The split original only carried content that now lives in the
	// verified backup and the parts.
	if !wholeFile {
		if err := os.Remove(procPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("remove_split_original_failed", "path", procPath, "error", err)
		}
	}

	final := domain.StateDone
	if erroredParts == len(parts) {
		final = domain.StateErrored
	}
	p.finishFile(item, final, logger)

	elapsed := time.Since(start)
	p.deps.Metrics.ObserveStage(p.opts.ServiceName, "process_file", elapsed)
	p.emitLog(fmt.Sprintf("finished %s in %s", name, elapsed.Round(time.Millisecond)))
	logger.Info("file_done", "parts", len(parts), "errored_parts", erroredParts, "elapsed", elapsed.String())
	return item
}

// transition advances an item's lifecycle state. Terminal states are logged
// at info level, intermediate ones at debug.
func (p *Pipeline) transition(item *domain.ProcessingItem, next domain.ItemState, logger *slog.Logger) {
	item.State = next
	if next.Terminal() {
		logger.Info("item_state", "path", item.Path, "state", string(next))
		return
	}
	logger.Debug("item_state", "path", item.Path, "state", string(next))
}

// finishFile moves the item to its terminal state and records the outcome.
func (p *Pipeline) finishFile(item *domain.ProcessingItem, state domain.ItemState, logger *slog.Logger) *domain.ProcessingItem {
	p.transition(item, state, logger)
	p.deps.Metrics.ObserveFile(p.opts.ServiceName, string(state))
	return item
}

// processPart takes one part through analyze -> classify -> file, advancing
// its lifecycle state as it goes. A failing part is routed to the error area
// on its own; siblings continue.
func (p *Pipeline) processPart(ctx context.Context, item *domain.ProcessingItem, rec domain.BackupRecord, logger *slog.Logger) {
	part := item.Path
	partName := filepath.Base(part)
	p.emitImage(part)

	analyzeStart := time.Now()
	content, err := p.deps.Analyzer.Analyze(ctx, part)
	p.deps.Metrics.ObserveStage(p.opts.ServiceName, "analyze", time.Since(analyzeStart))
	if err != nil {
		logger.Error("analyze_failed", "part", partName, "error", err)
		p.failPart(ctx, item, rec, logger)
		return
	}
	if len(content.Regions) > 0 {
		p.emitOverlay(content.Regions)
	}

	p.transition(item, domain.StateNaming, logger)
	classifyStart := time.Now()
	result, err := p.deps.Classifier.Suggest(ctx, p.combineWithHistory(ctx, content.Text))
	p.deps.Metrics.ObserveStage(p.opts.ServiceName, "classify", time.Since(classifyStart))
	if err != nil {
		logger.Error("classify_failed", "part", partName, "error", err)
		p.failPart(ctx, item, rec, logger)
		return
	}
	suggestion := result.Normalize(p.opts.DocExtension)
	item.Classification = &suggestion

	p.transition(item, domain.StateMovingFinal, logger)
	target := filepath.Join(
		p.opts.OutputDir,
		strconv.Itoa(time.Now().Year()),
		filepath.FromSlash(suggestion.Folder),
		suggestion.Filename,
	)
	target = collisionFree(target)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		logger.Error("create_target_dir_failed", "part", partName, "error", err)
		p.failPart(ctx, item, rec, logger)
		return
	}
	if err := moveFile(part, target); err != nil {
		logger.Error("move_to_output_failed", "part", partName, "target", target, "error", err)
		p.failPart(ctx, item, rec, logger)
		return
	}

	p.transition(item, domain.StateDone, logger)
	logger.Info("part_filed", "part", partName, "target", target, "category", suggestion.Folder)
	p.emitLog(fmt.Sprintf("filed %s as %s", partName, target))
	p.emitFileProcessed(target)
	p.deps.Metrics.ObservePart(p.opts.ServiceName, "filed")

	p.recordDecision(ctx, rec, suggestion, target, domain.DecisionFiled, logger)
	p.learnDecision(ctx, suggestion, logger)
}

// failPart routes a failing part to the error area and journals the outcome.
// Classification carries whatever suggestion was obtained before the failure.
func (p *Pipeline) failPart(ctx context.Context, item *domain.ProcessingItem, rec domain.BackupRecord, logger *slog.Logger) {
	p.transition(item, domain.StateErrored, logger)
	p.routeToError(item.Path, logger)
	p.deps.Metrics.ObservePart(p.opts.ServiceName, "errored")

	suggestion := domain.ClassificationResult{}
	if item.Classification != nil {
		suggestion = *item.Classification
	}
	p.recordDecision(ctx, rec, suggestion, "", domain.DecisionErrored, logger)
}

// combineWithHistory prefixes the analyzed content with prior decisions so
// the classifier can follow established naming patterns.
func (p *Pipeline) combineWithHistory(ctx context.Context, text string) string {
	var history strings.Builder

	if prior, err := p.deps.Contexts.Get(ctx, p.opts.OutputDir); err != nil {
		p.deps.Logger.Debug("context_fetch_failed", "error", err)
	} else if prior != "" {
		history.WriteString(prior)
	}

	if p.deps.Journal != nil {
		decisions, err := p.deps.Journal.Recent(ctx, "", p.opts.HistoryLimit)
		if err != nil {
			p.deps.Logger.Debug("journal_fetch_failed", "error", err)
		}
		for _, d := range decisions {
			fmt.Fprintf(&history, "%s -> %s: %s\n", d.Filename, d.Category, d.Summary)
		}
	}

	if history.Len() == 0 {
		return text
	}
	return text + "\n\nPrevious filing decisions:\n" + history.String()
}

func (p *Pipeline) recordDecision(ctx context.Context, rec domain.BackupRecord, suggestion domain.ClassificationResult, target, status string, logger *slog.Logger) {
	if p.deps.Journal == nil {
		return
	}
	decision := domain.ArchiveDecision{
		ID:         uuid.NewString(),
		SourcePath: rec.SourcePath,
		BackupPath: rec.BackupPath,
		SourceHash: rec.SourceHash,
		Summary:    suggestion.Summary,
		Filename:   suggestion.Filename,
		Category:   suggestion.Folder,
		FinalPath:  target,
		Status:     status,
		CreatedAt:  time.Now().UTC(),
	}
	if err := p.deps.Journal.Record(ctx, decision); err != nil {
		logger.Warn("journal_record_failed", "error", err)
	}
}

func (p *Pipeline) learnDecision(ctx context.Context, suggestion domain.ClassificationResult, logger *slog.Logger) {
	prior, err := p.deps.Contexts.Get(ctx, p.opts.OutputDir)
	if err != nil {
		logger.Warn("context_fetch_failed", "error", err)
		prior = ""
	}
	line := fmt.Sprintf("%s -> %s: %s\n", suggestion.Filename, suggestion.Folder, suggestion.Summary)
	if err := p.deps.Contexts.Update(ctx, p.opts.OutputDir, prior+line); err != nil {
		logger.Warn("context_update_failed", "error", err)
	}
}

// routeToError physically relocates an artifact so no file is ever left
// ambiguous between areas. Collisions get a short unique prefix.
func (p *Pipeline) routeToError(path string, logger *slog.Logger) {
	if err := os.MkdirAll(p.opts.ErrorDir, 0o755); err != nil {
		logger.Error("create_error_dir_failed", "error", err)
		return
	}
	dest := collisionFree(filepath.Join(p.opts.ErrorDir, filepath.Base(path)))
	if err := moveFile(path, dest); err != nil {
		logger.Error("route_to_error_failed", "path", path, "error", err)
		return
	}
	logger.Warn("routed_to_error", "path", path, "dest", dest)
	p.emitLog(fmt.Sprintf("moved %s to error area", filepath.Base(path)))
}

func collisionFree(path string) string {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return path
	}
	return filepath.Join(filepath.Dir(path), uuid.NewString()[:8]+"_"+filepath.Base(path))
}

// moveFile renames, falling back to copy+remove across filesystems.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("copy: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove source after copy: %w", err)
	}
	return nil
}

// Event emission is fire-and-forget: a panicking observer is logged and
// never aborts processing.

func (p *Pipeline) emitLog(message string) {
	p.safeEmit(func(sink ports.EventSink) { sink.OnLog(message) })
}

func (p *Pipeline) emitImage(path string) {
	p.safeEmit(func(sink ports.EventSink) { sink.OnImage(path) })
}

func (p *Pipeline) emitOverlay(regions []domain.Rect) {
	p.safeEmit(func(sink ports.EventSink) { sink.OnOverlay(regions) })
}

func (p *Pipeline) emitFileProcessed(path string) {
	p.safeEmit(func(sink ports.EventSink) { sink.OnFileProcessed(path) })
}

func (p *Pipeline) safeEmit(fn func(ports.EventSink)) {
	defer func() {
		if r := recover(); r != nil {
			p.deps.Logger.Warn("event_sink_panicked", "panic", r)
		}
	}()
	fn(p.deps.Events)
}
