package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/kirillkom/docmind/internal/core/domain"
)

// NATSSink publishes pipeline events as JSON to a subject so external
// observers (dashboards, a GUI process) can follow progress. Log events are
// rate-limited to keep bursty processing from flooding the subject;
// file_processed, image and overlay events always go out. Publish failures
// are logged and swallowed: observers never abort processing.
type NATSSink struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
	logRate *rate.Limiter
}

func NewNATSSink(url, subject string, logger *slog.Logger) (*NATSSink, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("docmind-events"),
		nats.Timeout(2*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(60),
		nats.RetryOnFailedConnect(true),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSSink{
		conn:    conn,
		subject: subject,
		logger:  logger,
		logRate: rate.NewLimiter(rate.Limit(20), 40),
	}, nil
}

func (s *NATSSink) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
}

func (s *NATSSink) OnLog(message string) {
	if !s.logRate.Allow() {
		return
	}
	s.publish(domain.EventMessage{Kind: domain.EventLog, Text: message})
}

func (s *NATSSink) OnImage(path string) {
	s.publish(domain.EventMessage{Kind: domain.EventImage, Path: path})
}

func (s *NATSSink) OnOverlay(regions []domain.Rect) {
	s.publish(domain.EventMessage{Kind: domain.EventOverlay, Regions: regions})
}

func (s *NATSSink) OnFileProcessed(path string) {
	s.publish(domain.EventMessage{Kind: domain.EventFileProcessed, Path: path})
}

func (s *NATSSink) publish(msg domain.EventMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn("event_marshal_failed", "kind", msg.Kind, "error", err)
		return
	}
	if err := s.conn.Publish(s.subject, payload); err != nil {
		s.logger.Warn("event_publish_failed", "kind", msg.Kind, "error", err)
	}
}
