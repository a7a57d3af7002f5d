// Package main is the entry point for the triage ingest service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"soc-triage/internal/classify"
	"soc-triage/internal/config"
	"soc-triage/internal/consumer"
	secerrors "soc-triage/internal/errors"
	"soc-triage/internal/ingest"
	"soc-triage/internal/kafka"
	"soc-triage/internal/logging"
	"soc-triage/internal/mitre"
	"soc-triage/internal/osint"
	"soc-triage/internal/pipeline"
	"soc-triage/internal/queue"
	"soc-triage/internal/schema"
	"soc-triage/internal/store"
	"soc-triage/internal/store/s3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.Logging)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	if os.Getenv("SOC_TRIAGE_ENV") == "production" {
		secerrors.SetProductionMode(true)
	}

	slog.Info("configuration loaded",
		"http_port", cfg.Server.HTTPPort,
		"queue_size", cfg.Queue.Size,
		"model_enabled", cfg.Classify.Model.Enabled,
		"storage_enabled", cfg.Storage.ClickHouse.Enabled,
		"kafka_enabled", cfg.Kafka.Enabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Classifier: model-backed when configured, heuristic otherwise.
	var inferencer classify.Inferencer
	if cfg.Classify.Model.Enabled {
		inferencer = classify.NewClient(cfg.Classify.Model)
		slog.Info("model classifier enabled",
			"model", cfg.Classify.Model.Model,
			"api_key", logging.MaskAPIKey(cfg.Classify.Model.APIKey),
		)
	}
	classifier := classify.New(inferencer)

	// Reputation enrichment: provider-backed when configured, stub otherwise.
	var osintBackend osint.Backend
	if cfg.OSINT.Provider.Enabled {
		osintBackend = osint.NewClient(cfg.OSINT.Provider)
	}

	var osintCache osint.Cache
	if cfg.OSINT.Redis.Enabled {
		redisCache, err := osint.NewRedisCache(cfg.OSINT.Redis)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisCache.Close()
		osintCache = redisCache
	}

	enricher := osint.New(osintBackend, osintCache, cfg.OSINT.Enricher)

	// Technique mapping rules: file-based when configured, built-in otherwise.
	var rules []mitre.Rule
	if cfg.Mitre.RulesPath != "" {
		rules, err = mitre.LoadRules(cfg.Mitre.RulesPath)
		if err != nil {
			slog.Error("failed to load technique rules", "error", err, "path", cfg.Mitre.RulesPath)
			os.Exit(1)
		}
		slog.Info("technique rules loaded", "path", cfg.Mitre.RulesPath, "rules", len(rules))
	}
	mapper := mitre.NewMapper(rules)

	// Persistence: ClickHouse batch writer when enabled, log store otherwise.
	var alertStore store.Store
	var chStore *store.ClickHouseStore
	var batchWriter *store.BatchWriter

	if cfg.Storage.ClickHouse.Enabled {
		chStore, err = store.NewClickHouseStore(cfg.Storage.ClickHouse)
		if err != nil {
			slog.Error("failed to connect to ClickHouse", "error", err)
			os.Exit(1)
		}

		if err := chStore.EnsureSchema(ctx); err != nil {
			slog.Error("failed to ensure storage schema", "error", err)
			os.Exit(1)
		}

		batchWriter = store.NewBatchWriter(chStore, cfg.Storage.BatchWriter)
		alertStore = batchWriter

		slog.Info("clickhouse storage initialized",
			"hosts", cfg.Storage.ClickHouse.Hosts,
			"database", cfg.Storage.ClickHouse.Database,
		)
	} else {
		alertStore = store.NewLogStore()
	}

	triagePipeline := pipeline.New(classifier, enricher, mapper, alertStore)

	// Alert fan-out: Kafka and S3 archive, both optional.
	var publishers consumer.MultiPublisher

	var kafkaPublisher *kafka.Publisher
	if cfg.Kafka.Enabled {
		kafkaPublisher, err = kafka.NewPublisher(cfg.Kafka)
		if err != nil {
			slog.Error("failed to create kafka publisher", "error", err)
			os.Exit(1)
		}
		publishers = append(publishers, kafkaPublisher)
	}

	var archiver *s3.Archiver
	if cfg.Storage.Archive.Enabled {
		s3Client, err := s3.NewClient(ctx, cfg.Storage.Archive, slog.Default())
		if err != nil {
			slog.Error("failed to create s3 client", "error", err)
			os.Exit(1)
		}
		archiver = s3.NewArchiver(s3Client, cfg.Storage.Archive, slog.Default())
		publishers = append(publishers, archivePublisher{archiver})
	}

	var publisher consumer.AlertPublisher
	if len(publishers) > 0 {
		publisher = publishers
	}

	eventQueue := queue.NewRingBuffer(cfg.Queue.Size)

	queueConsumer := consumer.New(eventQueue, triagePipeline, publisher, cfg.Consumer)
	queueConsumer.Start(ctx)

	handler := ingest.NewHandler(triagePipeline, eventQueue).
		WithMaxPayload(cfg.Ingest.MaxPayloadSize).
		WithMaxBatch(cfg.Ingest.MaxBatchSize).
		WithConsumer(queueConsumer)

	mux := http.NewServeMux()
	handler.Routes(mux)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      ingest.WithMiddleware(mux, cfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("starting ingest server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop accepting new requests
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// Stop draining the queue
	cancel()
	queueConsumer.Stop()
	eventQueue.Close()

	if batchWriter != nil {
		if err := batchWriter.Close(); err != nil {
			slog.Error("batch writer close error", "error", err)
		}
	}
	if chStore != nil {
		if err := chStore.Close(); err != nil {
			slog.Error("clickhouse close error", "error", err)
		}
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			slog.Error("kafka publisher close error", "error", err)
		}
	}
	if archiver != nil {
		if err := archiver.Close(shutdownCtx); err != nil {
			slog.Error("archiver close error", "error", err)
		}
	}

	queueMetrics := eventQueue.Metrics()
	pipeMetrics := triagePipeline.Metrics()
	slog.Info("shutdown complete",
		"events_pushed", queueMetrics.Pushed,
		"events_popped", queueMetrics.Popped,
		"events_dropped", queueMetrics.Dropped,
		"alerts_processed", pipeMetrics.Processed,
		"alerts_persisted", pipeMetrics.Persisted,
	)
}

// archivePublisher adapts the S3 archiver to the consumer fan-out.
type archivePublisher struct {
	archiver *s3.Archiver
}

func (p archivePublisher) Publish(ctx context.Context, alert *schema.Alert) error {
	return p.archiver.Archive(ctx, alert)
}

// setupLogging configures the default slog logger.
func setupLogging(cfg config.LoggingConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
