package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docarchive/internal/catalog"
	"docarchive/internal/observability"
	"docarchive/internal/rules"
	"docarchive/internal/searchsync"

	"github.com/google/uuid"
)

// RunStructuredTags recomputes only the structured set:/dockey:/rev:/kind:/
// lang: tags for documents that predate structured-tag inference, leaving
// category and event_date untouched. It shares Run's paging and compare
// machinery but diffs on tags alone.
func (e *Engine) RunStructuredTags(ctx context.Context, filter catalog.DocumentFilter) (Summary, error) {
	var summary Summary
	var afterCreatedAt time.Time
	afterID := uuid.Nil

	for {
		docs, err := e.Documents.ListPage(ctx, filter, afterCreatedAt, afterID, e.pageSize())
		if err != nil {
			return summary, fmt.Errorf("structured backfill: list documents page: %w", err)
		}
		if len(docs) == 0 {
			break
		}

		for _, doc := range docs {
			if err := e.reclassifyStructuredTagsOnly(ctx, doc); err != nil {
				if errors.Is(err, errUnchanged) {
					summary.Skipped++
					continue
				}
				summary.Failed++
				if len(summary.Samples) < maxFailureSamples {
					summary.Samples = append(summary.Samples, FailureSample{DocumentID: doc.ID, Error: err.Error()})
				}
				observability.LoggerWithTrace(ctx).Warn().
					Str("document_id", doc.ID.String()).
					Err(err).
					Msg("structured tag backfill failed")
				continue
			}
			summary.Updated++
		}

		last := docs[len(docs)-1]
		afterCreatedAt, afterID = last.CreatedAt, last.ID

		if len(docs) < e.pageSize() {
			break
		}
	}

	return summary, nil
}

func (e *Engine) reclassifyStructuredTagsOnly(ctx context.Context, doc catalog.Document) error {
	filename, err := e.Documents.PrimaryFilename(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("load primary filename: %w", err)
	}

	inferred := rules.InferStructuredTags(doc.Title, doc.Description, filename, doc.Tags)
	if len(inferred) == 0 {
		return errUnchanged
	}

	mergedNames := append(append([]string{}, doc.Tags...), inferred...)
	tagRows, err := e.Tags.UpsertMany(ctx, mergedNames)
	if err != nil {
		return fmt.Errorf("upsert tags: %w", err)
	}
	tagIDs := make([]uuid.UUID, 0, len(tagRows))
	tagSlugs := make([]string, 0, len(tagRows))
	for _, t := range tagRows {
		tagIDs = append(tagIDs, t.ID)
		tagSlugs = append(tagSlugs, t.Slug)
	}

	if sortedEqual(doc.Tags, tagSlugs) {
		return errUnchanged
	}

	before := map[string]any{"tags": doc.Tags}

	patch := catalog.DocumentPatch{
		Tags:         &tagIDs,
		ChangeReason: "backfill_structured_tags",
	}
	updated, changed, err := e.Documents.UpdateDocument(ctx, doc.ID, patch)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if !changed {
		return errUnchanged
	}

	if err := e.Audit.Record(ctx, "system", "BACKFILL_STRUCTURED_TAGS", "document", &doc.ID, before, map[string]any{"tags": tagSlugs}); err != nil {
		return fmt.Errorf("audit log: %w", err)
	}

	if e.Publisher != nil {
		searchsync.EnqueueSync(ctx, e.Publisher, updated.ID)
	}
	return nil
}
