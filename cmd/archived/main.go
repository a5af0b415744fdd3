// Command archived is the HTTP front for the document archive: it accepts
// uploads, exposes signed retry/reprocess actions, and serves the review
// queue. It is intentionally thin - every decision is delegated to the
// catalog, ingest, and action-token packages, with work handed off to
// ingestd over Kafka rather than processed inline.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"docarchive/internal/actiontoken"
	"docarchive/internal/catalog"
	"docarchive/internal/config"
	"docarchive/internal/contentstore"
	"docarchive/internal/observability"
	"docarchive/internal/objectstore"
	"docarchive/internal/orchestrator"
	"docarchive/internal/persistence/databases"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("archived")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observability.InitLogger(cfg.Obs.LogPath, cfg.Obs.LogLevel)

	baseCtx := context.Background()

	pool, err := databases.OpenPool(baseCtx, cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("open catalog pool: %w", err)
	}
	defer pool.Close()

	backend, bucket, backendTag, err := objectstore.Build(baseCtx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init object store: %w", err)
	}
	files := catalog.NewFileRepo(pool)
	content := contentstore.New(backend, backendTag, bucket, files)

	if cfg.Obs.OTLP != "" {
		shutdown, err := observability.InitOTel(baseCtx, cfg.Obs)
		if err != nil {
			log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	metrics, err := newHTTPMetrics()
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}

	var producer *kafka.Writer
	var taskPublisher *orchestrator.KafkaTaskPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer = kafka.NewWriter(kafka.WriterConfig{
			Brokers:  cfg.Kafka.Brokers,
			Balancer: &kafka.LeastBytes{},
		})
		defer func() {
			if cerr := producer.Close(); cerr != nil {
				log.Error().Err(cerr).Msg("error closing kafka producer")
			}
		}()
		taskPublisher = &orchestrator.KafkaTaskPublisher{
			Producer:      producer,
			CommandsTopic: cfg.Kafka.CommandsTopic,
			ReplyTopic:    cfg.Kafka.ResponsesTopic,
		}
	}

	issuer := actiontoken.NewIssuer(cfg.ActionToken.Secret, time.Duration(cfg.ActionToken.TTLSeconds)*time.Second)

	srv := &server{
		cfg:        cfg,
		jobs:       catalog.NewIngestJobRepo(pool),
		documents:  catalog.NewDocumentRepo(pool, files),
		categories: catalog.NewCategoryRepo(pool),
		tags:       catalog.NewTagRepo(pool),
		auditLog:   catalog.NewAuditLogRepo(pool),
		content:    content,
		issuer:     issuer,
		metrics:    metrics,
	}
	// Only assign publisher when a Kafka producer was actually configured;
	// a nil *KafkaTaskPublisher stored in the interface field would be a
	// non-nil interface wrapping a nil pointer and panic on first use.
	if taskPublisher != nil {
		srv.publisher = taskPublisher
	}

	mux := http.NewServeMux()
	srv.registerRoutes(mux)

	handler := withMetrics(metrics, withReadOnly(cfg.Runtime.ReadOnlyMode, mux))

	httpSrv := &http.Server{
		Addr:         ":8090",
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpSrv.Addr).Msg("starting archived")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		log.Info().Msg("archived stopped")
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	}
}
