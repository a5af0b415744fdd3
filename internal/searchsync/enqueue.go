package searchsync

import (
	"context"

	"docarchive/internal/observability"

	"github.com/google/uuid"
)

// TaskPublisher is the minimal task-queue contract enqueue_sync and friends
// need. internal/orchestrator satisfies this with its Kafka producer.
type TaskPublisher interface {
	PublishTask(ctx context.Context, taskName string, args map[string]any) error
}

const (
	TaskSyncOne   = "sync_document_index"
	TaskSyncMany  = "sync_document_index_batch"
	TaskSyncDelete = "sync_document_index_delete"
)

// EnqueueSync is best-effort and non-blocking: a failure to enqueue is
// logged but never propagated, since the catalog transaction that produced
// this document has already committed.
func EnqueueSync(ctx context.Context, pub TaskPublisher, documentID uuid.UUID) {
	if err := pub.PublishTask(ctx, TaskSyncOne, map[string]any{"document_id": documentID.String()}); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Str("document_id", documentID.String()).Msg("enqueue search sync failed")
	}
}

// EnqueueSyncMany is the batch variant of EnqueueSync: one
// sync_document_index_batch task for several documents. No code in this
// module calls it; the Backfill Engine enqueues per document via EnqueueSync.
func EnqueueSyncMany(ctx context.Context, pub TaskPublisher, documentIDs []uuid.UUID) {
	if len(documentIDs) == 0 {
		return
	}
	ids := make([]string, len(documentIDs))
	for i, id := range documentIDs {
		ids[i] = id.String()
	}
	if err := pub.PublishTask(ctx, TaskSyncMany, map[string]any{"document_ids": ids}); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Int("count", len(ids)).Msg("enqueue batch search sync failed")
	}
}

// EnqueueDelete notifies the search worker that a document was deleted.
func EnqueueDelete(ctx context.Context, pub TaskPublisher, documentID uuid.UUID) {
	if err := pub.PublishTask(ctx, TaskSyncDelete, map[string]any{"document_id": documentID.String()}); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Str("document_id", documentID.String()).Msg("enqueue search delete failed")
	}
}
