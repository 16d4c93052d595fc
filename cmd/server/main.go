// Package main provides the entry point for the Vigil analysis server.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"vigil/internal/analyzer"
	"vigil/internal/anomaly"
	"vigil/internal/config"
	"vigil/internal/correlator"
	"vigil/internal/db"
	"vigil/internal/diagnosis"
	"vigil/internal/incident"
	"vigil/internal/ingest"
	"vigil/internal/metrics"
	"vigil/internal/models"
	"vigil/internal/output"
	"vigil/internal/schema"
	"vigil/internal/server"
	"vigil/internal/store"
	"vigil/pkg/llm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg.App.LogLevel)
	slog.SetDefault(logger)

	m := metrics.New(prometheus.DefaultRegisterer)

	database, err := db.New(cfg.DB.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()
	if err := database.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	spans := store.New(cfg.Store.MaxSpans)

	engine := analyzer.NewEngine(spans, analyzer.BuiltinAnalyzers(analyzer.RuleConfig{
		NPlusOneThreshold:  cfg.Analysis.NPlusOneThreshold,
		SlowQueryMs:        cfg.Analysis.SlowQueryMs,
		SlowExternalCallMs: cfg.Analysis.SlowExternalCallMs,
	}), analyzer.Options{
		QueueSize:          cfg.Analysis.QueueSize,
		ResolveAfterPasses: cfg.Analysis.ResolveAfterPasses,
		Metrics:            m,
		Logger:             logger,
	})
	defer engine.Close()

	tracker := schema.NewTracker(cfg.Analysis.SchemaPromoteMatches, m, logger)

	detector := anomaly.NewDetector(database,
		cfg.Anomaly.GetRecentWindowDuration(),
		cfg.Anomaly.SpikeMultiplier,
		cfg.Anomaly.MinBaseline,
		m, logger)

	related := correlator.New(spans,
		cfg.Correlate.GetWindowPaddingDuration(),
		cfg.Correlate.CandidateTraces,
		cfg.Correlate.MaxSpans,
		logger)

	var diagnoser incident.Diagnoser
	if provider, err := llm.NewProvider(cfg.LLM); err != nil {
		logger.Warn("diagnosis disabled", "error", err)
	} else {
		diagnoser = diagnosis.New(provider)
	}

	var notifier incident.Notifier
	if cfg.Output.Enabled && cfg.Output.WebhookURL != "" {
		notifier = output.NewWebhookSenderFromConfig(cfg.Output)
	}

	incidents := incident.New(database, detector, related, diagnoser, notifier, logger)

	// Events derived on the trace ingest path are handed off through a
	// buffered channel so ingestion never waits on persistence.
	derived := make(chan models.Event, 256)
	go func() {
		for event := range derived {
			e := event
			incidents.HandleEvent(context.Background(), &e)
		}
	}()
	sink := func(event models.Event) {
		select {
		case derived <- event:
		default:
			logger.Warn("derived event dropped, channel full", "type", event.Type)
		}
	}

	normalizer := ingest.NewNormalizer(spans, sink, cfg.Ingest.SlowDBSpanThresholdMs, logger)

	handler := server.NewHandler(cfg, normalizer, spans, engine, tracker, incidents, m, logger)
	srv := server.New(cfg, handler, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("Server error: %v", err)
	case <-stop:
	}

	if err := srv.Shutdown(); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
