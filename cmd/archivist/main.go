// Command archivist watches a folder for scanned documents and files each
// one into a categorized archive: backup, integrity check, text extraction,
// LLM naming, final move.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/docmind/internal/bootstrap"
	"github.com/kirillkom/docmind/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load_config_failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", app.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		app.Logger.Info("metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Error("metrics_server_failed", "error", err)
		}
	}()

	if err := app.Start(); err != nil {
		app.Logger.Error("start_failed", "error", err)
		app.Stop()
		os.Exit(1)
	}
	app.Logger.Info("archivist_started",
		"input_dir", cfg.InputDir,
		"output_dir", cfg.OutputDir,
		"extension", cfg.DocExtension,
	)

	<-ctx.Done()
	app.Logger.Info("shutdown_requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)

	app.Stop()
	app.Logger.Info("archivist_stopped")
}
