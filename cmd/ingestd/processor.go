package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"docarchive/internal/backfill"
	"docarchive/internal/catalog"
	"docarchive/internal/orchestrator"
	"docarchive/internal/searchsync"
)

// taskProcessor implements orchestrator.Processor, dispatching each of the
// five task names the orchestrator package knows about to the ingest
// pipeline, the search sync indexer, or the backfill engine.
type taskProcessor struct {
	pipeline   ingestPipeline
	backfill   *backfill.Engine
	documents  *catalog.DocumentRepo
	categories *catalog.CategoryRepo
	indexer    searchsync.Indexer

	indexReady searchsync.ReadyCache
}

// ingestPipeline is the subset of ingest.Pipeline's behavior the processor
// depends on, named locally to avoid importing the package twice under two
// names in this file's import block.
type ingestPipeline interface {
	ProcessJob(ctx context.Context, jobID uuid.UUID) error
}

func (p *taskProcessor) Process(ctx context.Context, taskName string, args map[string]any) (map[string]any, error) {
	switch taskName {
	case orchestrator.TaskProcessIngestJob:
		return nil, p.processIngestJob(ctx, args)
	case orchestrator.TaskSyncDocumentIndex:
		return nil, p.syncOne(ctx, args)
	case orchestrator.TaskSyncDocumentIndexBatch:
		return nil, p.syncMany(ctx, args)
	case orchestrator.TaskSyncDocumentIndexDelete:
		return nil, p.syncDelete(ctx, args)
	case orchestrator.TaskRunBackfill:
		return p.runBackfill(ctx, args)
	default:
		return nil, fmt.Errorf("unsupported task %q", taskName)
	}
}

func (p *taskProcessor) processIngestJob(ctx context.Context, args map[string]any) error {
	jobID, err := argUUID(args, "job_id")
	if err != nil {
		return err
	}
	if err := p.pipeline.ProcessJob(ctx, jobID); err != nil {
		return orchestrator.Transient(err)
	}
	return nil
}

func (p *taskProcessor) syncOne(ctx context.Context, args map[string]any) error {
	if p.indexer == nil {
		return nil
	}
	docID, err := argUUID(args, "document_id")
	if err != nil {
		return err
	}
	view, ok, err := p.loadDocumentView(ctx, docID)
	if err != nil {
		return orchestrator.Transient(err)
	}
	if !ok {
		return nil
	}
	if err := p.ensureIndex(ctx); err != nil {
		return orchestrator.Transient(err)
	}
	if err := p.indexer.UpsertMany(ctx, []searchsync.DocumentView{view}); err != nil {
		return orchestrator.Transient(err)
	}
	return nil
}

func (p *taskProcessor) syncMany(ctx context.Context, args map[string]any) error {
	if p.indexer == nil {
		return nil
	}
	raw, ok := args["document_ids"].([]any)
	if !ok {
		return fmt.Errorf("missing or malformed document_ids")
	}
	views := make([]searchsync.DocumentView, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("document_ids element is not a string")
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return fmt.Errorf("parse document id %q: %w", s, err)
		}
		view, ok, err := p.loadDocumentView(ctx, id)
		if err != nil {
			return orchestrator.Transient(err)
		}
		if ok {
			views = append(views, view)
		}
	}
	if len(views) == 0 {
		return nil
	}
	if err := p.ensureIndex(ctx); err != nil {
		return orchestrator.Transient(err)
	}
	if err := p.indexer.UpsertMany(ctx, views); err != nil {
		return orchestrator.Transient(err)
	}
	return nil
}

func (p *taskProcessor) syncDelete(ctx context.Context, args map[string]any) error {
	if p.indexer == nil {
		return nil
	}
	docID, err := argUUID(args, "document_id")
	if err != nil {
		return err
	}
	if err := p.indexer.DeleteOne(ctx, docID); err != nil {
		return orchestrator.Transient(err)
	}
	return nil
}

func (p *taskProcessor) ensureIndex(ctx context.Context) error {
	return p.indexReady.Ensure(ctx, p.indexer.EnsureIndex)
}

func (p *taskProcessor) loadDocumentView(ctx context.Context, id uuid.UUID) (searchsync.DocumentView, bool, error) {
	doc, err := p.documents.GetByID(ctx, id)
	if err == catalog.ErrNotFound {
		return searchsync.DocumentView{}, false, nil
	}
	if err != nil {
		return searchsync.DocumentView{}, false, fmt.Errorf("load document %s: %w", id, err)
	}
	categorySlug := ""
	if doc.CategoryID != nil {
		cat, err := p.categories.GetByID(ctx, *doc.CategoryID)
		if err != nil && err != catalog.ErrNotFound {
			return searchsync.DocumentView{}, false, fmt.Errorf("load category %s: %w", *doc.CategoryID, err)
		}
		categorySlug = cat.Slug
	}
	eventDate := ""
	if doc.EventDate != nil {
		eventDate = doc.EventDate.Format("2006-01-02")
	}
	return searchsync.DocumentView{
		ID:           doc.ID,
		Title:        doc.Title,
		Description:  doc.Description,
		Summary:      doc.Summary,
		CaptionRaw:   doc.CaptionRaw,
		Category:     categorySlug,
		Tags:         doc.Tags,
		EventDate:    eventDate,
		ReviewStatus: string(doc.ReviewStatus),
	}, true, nil
}

func (p *taskProcessor) runBackfill(ctx context.Context, args map[string]any) (map[string]any, error) {
	rulesetID, err := argUUID(args, "ruleset_id")
	if err != nil {
		return nil, err
	}
	versionNo, err := argInt(args, "version_no")
	if err != nil {
		return nil, err
	}
	filter := catalog.DocumentFilter{}
	if v, ok := args["category_id"].(string); ok && v != "" {
		catID, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("parse category_id: %w", err)
		}
		filter.CategoryID = &catID
	}
	if v, ok := args["needs_review_only"].(bool); ok {
		filter.NeedsReviewOnly = v
	}

	mode, _ := args["mode"].(string)
	var summary backfill.Summary
	if mode == "structured_tags" {
		summary, err = p.backfill.RunStructuredTags(ctx, filter)
	} else {
		summary, err = p.backfill.Run(ctx, rulesetID, versionNo, filter)
	}
	if err != nil {
		return nil, orchestrator.Transient(err)
	}

	result := map[string]any{
		"updated": summary.Updated,
		"skipped": summary.Skipped,
		"failed":  summary.Failed,
	}
	if len(summary.Samples) > 0 {
		samples := make([]map[string]any, 0, len(summary.Samples))
		for _, s := range summary.Samples {
			samples = append(samples, map[string]any{"document_id": s.DocumentID.String(), "error": s.Error})
		}
		result["failure_samples"] = samples
	}
	return result, nil
}

func argUUID(args map[string]any, key string) (uuid.UUID, error) {
	s, ok := args[key].(string)
	if !ok || s == "" {
		return uuid.Nil, fmt.Errorf("missing or malformed %s", key)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse %s: %w", key, err)
	}
	return id, nil
}

func argInt(args map[string]any, key string) (int, error) {
	switch v := args[key].(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("missing or malformed %s", key)
	}
}
