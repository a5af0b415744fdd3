package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"docarchive/internal/catalog"
	"docarchive/internal/orchestrator"
)

// retryScanInterval is how often the scanner polls for RECEIVED jobs whose
// retry_after has elapsed. Task envelopes for a scheduled retry are never
// re-published automatically by Kafka (it has no native delayed delivery),
// so something has to notice retry_after and re-enqueue the task.
const retryScanInterval = 15 * time.Second

const retryScanBatchSize = 50

// runRetryScanner polls catalog.IngestJobRepo.DueForRetry and republishes a
// process_ingest_job task for each job it finds, until ctx is canceled.
func runRetryScanner(ctx context.Context, jobs *catalog.IngestJobRepo, publisher *orchestrator.KafkaTaskPublisher) {
	ticker := time.NewTicker(retryScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			scanOnce(ctx, jobs, publisher)
		}
	}
}

func scanOnce(ctx context.Context, jobs *catalog.IngestJobRepo, publisher *orchestrator.KafkaTaskPublisher) {
	due, err := jobs.DueForRetry(ctx, retryScanBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("retry scan: list due jobs failed")
		return
	}
	for _, job := range due {
		args := map[string]any{"job_id": job.ID.String()}
		if err := publisher.PublishTask(ctx, orchestrator.TaskProcessIngestJob, args); err != nil {
			log.Error().Err(err).Str("job_id", job.ID.String()).Msg("retry scan: publish task failed")
		}
	}
}
