// Package bootstrap assembles the application from explicit, constructed
// capabilities. Nothing here is a global; every adapter is built once and
// handed to its consumers.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kirillkom/docmind/internal/config"
	"github.com/kirillkom/docmind/internal/core/pipeline"
	"github.com/kirillkom/docmind/internal/core/ports"
	"github.com/kirillkom/docmind/internal/infrastructure/analyzer/pdftext"
	"github.com/kirillkom/docmind/internal/infrastructure/backup"
	"github.com/kirillkom/docmind/internal/infrastructure/contextstore"
	"github.com/kirillkom/docmind/internal/infrastructure/events"
	"github.com/kirillkom/docmind/internal/infrastructure/journal/postgres"
	"github.com/kirillkom/docmind/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/docmind/internal/infrastructure/queue/memory"
	"github.com/kirillkom/docmind/internal/infrastructure/resilience"
	"github.com/kirillkom/docmind/internal/infrastructure/splitting"
	"github.com/kirillkom/docmind/internal/infrastructure/watcher"
	"github.com/kirillkom/docmind/internal/observability/logging"
	"github.com/kirillkom/docmind/internal/observability/metrics"
)

const serviceName = "docmind"

// App holds the assembled components and their shutdown order.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Metrics  *metrics.PipelineMetrics
	Queue    *memory.Queue
	Watcher  *watcher.Watcher
	Pipeline *pipeline.Pipeline

	closers []func()
}

// New wires every adapter into the pipeline and watcher. The postgres
// journal and the NATS event bridge are attached only when configured.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger := logging.New(serviceName, cfg.LogLevel, os.Stdout)
	pipelineMetrics := metrics.NewPipelineMetrics(serviceName)
	queue := memory.New()

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	backups := backup.New(cfg.BackupDir)
	contexts := contextstore.New(cfg.ContextFilename)
	analyzer := pdftext.New(executor)
	classifier := ollama.NewClassifier(ollama.New(cfg.OllamaURL, cfg.OllamaModel), executor)

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: pipelineMetrics,
		Queue:   queue,
	}

	var journal ports.DecisionJournal
	if cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open decision journal: %w", err)
		}
		j := postgres.NewJournal(db)
		if err := j.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("prepare decision journal schema: %w", err)
		}
		journal = j
		app.closers = append(app.closers, func() { _ = db.Close() })
		logger.Info("decision_journal_enabled")
	}

	sinks := []ports.EventSink{events.NewSlogSink(logger)}
	if cfg.NATSURL != "" {
		bridge, err := events.NewNATSSink(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("connect event bridge: %w", err)
		}
		sinks = append(sinks, bridge)
		app.closers = append(app.closers, bridge.Close)
		logger.Info("event_bridge_enabled", "subject", cfg.NATSSubject)
	}

	pipe, err := pipeline.New(pipeline.Deps{
		Queue:      queue,
		Backups:    backups,
		Splitter:   splitting.NewSingle(),
		Analyzer:   analyzer,
		Classifier: classifier,
		Contexts:   contexts,
		Journal:    journal,
		Events:     events.NewMultiSink(sinks...),
		Logger:     logger,
		Metrics:    pipelineMetrics,
	}, pipeline.Options{
		ProcessingDir: cfg.ProcessingDir,
		OutputDir:     cfg.OutputDir,
		ErrorDir:      cfg.ErrorDir,
		DocExtension:  cfg.DocExtension,
		PollTimeout:   cfg.QueuePollTimeout,
		ServiceName:   serviceName,
	})
	if err != nil {
		app.close()
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	app.Pipeline = pipe

	app.Watcher = watcher.New(watcher.Options{
		InputDir:     cfg.InputDir,
		DocExtension: cfg.DocExtension,
		SettleDelay:  cfg.DebounceSettleDelay,
		PollInterval: cfg.DebouncePollInterval,
		MaxAttempts:  cfg.DebounceMaxAttempts,
		Abandoned:    pipelineMetrics.DebounceAbandoned,
	}, queue, logger)

	return app, nil
}

// Start brings up the watcher, then the worker. Files already sitting in the
// input dir at startup are picked up on their next create event; restarting
// a copy into the input dir re-triggers discovery.
func (a *App) Start() error {
	if err := a.Watcher.Start(); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	a.Pipeline.Start()
	return nil
}

// Stop shuts down in dependency order: no new discoveries, then the worker.
// Unprocessed queue entries are abandoned; their files remain in the input
// dir and are rediscovered on the next run.
func (a *App) Stop() {
	if a.Watcher != nil {
		a.Watcher.Stop()
	}
	if a.Pipeline != nil {
		a.Pipeline.Stop()
	}
	a.close()
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
