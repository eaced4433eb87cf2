package events

import (
	"log/slog"

	"github.com/kirillkom/docmind/internal/core/domain"
)

// SlogSink forwards pipeline events to structured logs. It is the default
// observer in headless deployments.
type SlogSink struct {
	logger *slog.Logger
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger.With("component", "events")}
}

func (s *SlogSink) OnLog(message string) {
	s.logger.Info("pipeline_event", "message", message)
}

func (s *SlogSink) OnImage(path string) {
	s.logger.Debug("preview_ready", "path", path)
}

func (s *SlogSink) OnOverlay(regions []domain.Rect) {
	s.logger.Debug("overlay_ready", "regions", len(regions))
}

func (s *SlogSink) OnFileProcessed(path string) {
	s.logger.Info("file_processed", "path", path)
}
