// Package events holds EventSink adapters for the pipeline's progress
// surface.
package events

import (
	"github.com/kirillkom/docmind/internal/core/domain"
	"github.com/kirillkom/docmind/internal/core/ports"
)

// MultiSink fans every event out to all wrapped sinks in order.
type MultiSink struct {
	sinks []ports.EventSink
}

func NewMultiSink(sinks ...ports.EventSink) *MultiSink {
	kept := make([]ports.EventSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &MultiSink{sinks: kept}
}

func (m *MultiSink) OnLog(message string) {
	for _, s := range m.sinks {
		s.OnLog(message)
	}
}

func (m *MultiSink) OnImage(path string) {
	for _, s := range m.sinks {
		s.OnImage(path)
	}
}

func (m *MultiSink) OnOverlay(regions []domain.Rect) {
	for _, s := range m.sinks {
		s.OnOverlay(regions)
	}
}

func (m *MultiSink) OnFileProcessed(path string) {
	for _, s := range m.sinks {
		s.OnFileProcessed(path)
	}
}
