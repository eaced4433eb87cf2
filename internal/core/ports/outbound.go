package ports

import (
	"context"
	"time"

	"github.com/kirillkom/docmind/internal/core/domain"
)

// WorkQueue buffers stable file paths between watcher and pipeline.
// FIFO, unbounded, no deduplication across stability episodes.
type WorkQueue interface {
	// Put enqueues without blocking.
	Put(path string)
	// Get blocks up to timeout for the next path. ok is false on timeout.
	Get(timeout time.Duration) (path string, ok bool)
	// Done acknowledges completion of the most recently gotten item.
	Done()
	Len() int
}

// BackupVerifier creates dated backup copies and checks their integrity.
type BackupVerifier interface {
	Backup(ctx context.Context, path string) (domain.BackupRecord, error)
	Verify(ctx context.Context, rec domain.BackupRecord) (bool, error)
}

// Splitter detects logical document boundaries and materializes the parts.
// An empty result means the whole file is the single part.
type Splitter interface {
	Scan(ctx context.Context, path string) ([]string, error)
}

// Analyzer obtains document content for one part. It must tolerate
// multi-page documents and may retry once internally on a transient
// resource error before propagating failure.
type Analyzer interface {
	Analyze(ctx context.Context, path string) (domain.DocumentContent, error)
}

// Classifier suggests a summary, filename and target folder for content.
// Any field of the result may be absent; callers normalize.
type Classifier interface {
	Suggest(ctx context.Context, content string) (domain.ClassificationResult, error)
}

// ContextStore supplies prior-decision context per destination area.
type ContextStore interface {
	Get(ctx context.Context, area string) (string, error)
	Update(ctx context.Context, area, content string) error
}

// DecisionJournal records where every processed part went.
type DecisionJournal interface {
	Record(ctx context.Context, decision domain.ArchiveDecision) error
	Recent(ctx context.Context, area string, limit int) ([]domain.ArchiveDecision, error)
}

// EventSink receives progress notifications. Implementations must be safe
// to call from the pipeline worker goroutine; the pipeline tolerates
// panicking sinks and never lets an observer abort processing.
type EventSink interface {
	OnLog(message string)
	OnImage(path string)
	OnOverlay(regions []domain.Rect)
	OnFileProcessed(path string)
}

// NoopSink is an EventSink that ignores everything. Embed it to implement
// only the callbacks you care about.
type NoopSink struct{}

func (NoopSink) OnLog(string)            {}
func (NoopSink) OnImage(string)          {}
func (NoopSink) OnOverlay([]domain.Rect) {}
func (NoopSink) OnFileProcessed(string)  {}
