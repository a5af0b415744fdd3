// Command ingestd is the ingest worker process: it consumes ingest task
// messages from Kafka and drives the ingest.Pipeline, the Backfill Engine,
// and best-effort search index sync against the catalog database.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"docarchive/internal/actiontoken"
	"docarchive/internal/backfill"
	"docarchive/internal/catalog"
	"docarchive/internal/config"
	"docarchive/internal/contentstore"
	"docarchive/internal/ingest"
	"docarchive/internal/objectstore"
	"docarchive/internal/observability"
	"docarchive/internal/orchestrator"
	"docarchive/internal/persistence/databases"
	"docarchive/internal/searchsync"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("ingestd")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observability.InitLogger(cfg.Obs.LogPath, cfg.Obs.LogLevel)

	baseCtx := context.Background()

	if len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("no Kafka brokers configured")
	}

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
	documents := catalog.NewDocumentRepo(pool, files)
	categories := catalog.NewCategoryRepo(pool)
	tags := catalog.NewTagRepo(pool)
	ruleVersions := catalog.NewRuleVersionRepo(pool)
	auditLog := catalog.NewAuditLogRepo(pool)
	jobs := catalog.NewIngestJobRepo(pool)
	content := contentstore.New(backend, backendTag, bucket, files)

	rulesetID, err := ruleVersions.EnsureRuleset(baseCtx, cfg.RuleEngine.RulesetName)
	if err != nil {
		return fmt.Errorf("ensure ruleset %q: %w", cfg.RuleEngine.RulesetName, err)
	}

	dedupe, err := orchestrator.NewRedisDedupeStore(cfg.Redis.Addr)
	if err != nil {
		return fmt.Errorf("init redis dedupe store: %w", err)
	}
	defer func() {
		if cerr := dedupe.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("error closing redis client")
		}
	}()

	producer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  cfg.Kafka.Brokers,
		Balancer: &kafka.LeastBytes{},
	})
	defer func() {
		if cerr := producer.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("error closing kafka producer")
		}
	}()

	if cfg.Obs.OTLP != "" {
		shutdown, err := observability.InitOTel(baseCtx, cfg.Obs)
		if err != nil {
			log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	if err := registerBacklogGauges(jobs); err != nil {
		return fmt.Errorf("register backlog gauges: %w", err)
	}

	httpClient := observability.NewHTTPClient(nil)

	taskPublisher := &orchestrator.KafkaTaskPublisher{
		Producer:      producer,
		CommandsTopic: cfg.Kafka.CommandsTopic,
		ReplyTopic:    cfg.Kafka.ResponsesTopic,
	}

	issuer := actiontoken.NewIssuer(cfg.ActionToken.Secret, time.Duration(cfg.ActionToken.TTLSeconds)*time.Second)
	notifier := ingest.NewNotifier(httpClient, cfg.Notifier.CallbackURL, cfg.Notifier.Enabled,
		time.Duration(cfg.Notifier.TimeoutSeconds)*time.Second, cfg.Notifier.DashboardURL,
		cfg.ActionToken.BaseURL, issuer)

	pipeline := &ingest.Pipeline{
		Jobs:            jobs,
		Content:         content,
		Categories:      categories,
		Tags:            tags,
		Documents:       documents,
		RuleVersions:    ruleVersions,
		Audit:           auditLog,
		Notifier:        notifier,
		RulesetID:       rulesetID,
		Retry:           cfg.Retry,
		SearchPublisher: taskPublisher,
		SearchAutoSync:  cfg.SearchSync.AutoSync,
	}

	backfillEngine := &backfill.Engine{
		Documents:  documents,
		Categories: categories,
		Tags:       tags,
		RuleVer:    ruleVersions,
		Audit:      auditLog,
		Publisher:  taskPublisher,
		PageSize:   cfg.BackfillBatchSize,
	}

	var indexer searchsync.Indexer
	if cfg.SearchSync.Backend == "external" && cfg.SearchSync.External.URL != "" {
		indexer = searchsync.NewHTTPIndexer(httpClient, cfg.SearchSync.External.URL,
			cfg.SearchSync.External.IndexName, cfg.SearchSync.External.APIKey)
	}

	proc := &taskProcessor{
		pipeline:   pipeline,
		backfill:   backfillEngine,
		documents:  documents,
		categories: categories,
		indexer:    indexer,
	}

	ctx, cancel := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go runRetryScanner(ctx, jobs, taskPublisher)

	ctxAdmin, cancelAdmin := context.WithTimeout(baseCtx, 5*time.Second)
	defer cancelAdmin()
	if err := orchestrator.CheckBrokers(ctxAdmin, cfg.Kafka.Brokers, 3*time.Second); err != nil {
		return fmt.Errorf("reach kafka brokers: %w", err)
	}

	dlqTopic := cfg.Kafka.ResponsesTopic + ".dlq"
	topics := []kafka.TopicConfig{
		{Topic: cfg.Kafka.CommandsTopic, NumPartitions: 1, ReplicationFactor: 1},
		{Topic: cfg.Kafka.ResponsesTopic, NumPartitions: 1, ReplicationFactor: 1},
		{Topic: dlqTopic, NumPartitions: 1, ReplicationFactor: 1},
	}
	if err := orchestrator.EnsureTopics(ctxAdmin, cfg.Kafka.Brokers, topics); err != nil {
		return fmt.Errorf("ensure kafka topics: %w", err)
	}

	log.Info().
		Strs("brokers", cfg.Kafka.Brokers).
		Str("groupID", cfg.Kafka.GroupID).
		Str("commandsTopic", cfg.Kafka.CommandsTopic).
		Str("responsesTopic", cfg.Kafka.ResponsesTopic).
		Int("workers", cfg.Kafka.WorkerCount).
		Msg("starting ingestd")

	if err := orchestrator.StartKafkaConsumer(
		ctx,
		cfg.Kafka.Brokers,
		cfg.Kafka.GroupID,
		cfg.Kafka.CommandsTopic,
		nil,
		producer,
		proc,
		dedupe,
		cfg.Kafka.WorkerCount,
		cfg.Kafka.ResponsesTopic,
		cfg.Kafka.DedupeTTL,
		cfg.Kafka.WorkflowTimeout,
	); err != nil {
		return fmt.Errorf("kafka consumer terminated: %w", err)
	}

	log.Info().Msg("ingestd stopped")
	return nil
}
