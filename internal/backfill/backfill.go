// Package backfill re-runs the Rule Engine over already-ingested documents
// against a chosen RuleVersion, writing a new DocumentVersion only for the
// documents whose classification actually changes.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"docarchive/internal/catalog"
	"docarchive/internal/observability"
	"docarchive/internal/rules"
	"docarchive/internal/searchsync"

	"github.com/google/uuid"
)

// Engine wires the Catalog repositories and Rule Engine the backfill job
// needs; it holds no mutable state of its own between runs.
type Engine struct {
	Documents  *catalog.DocumentRepo
	Categories *catalog.CategoryRepo
	Tags       *catalog.TagRepo
	RuleVer    *catalog.RuleVersionRepo
	Audit      *catalog.AuditLogRepo
	Publisher  searchsync.TaskPublisher

	PageSize int
}

// FailureSample is one capped failure record in a Summary.
type FailureSample struct {
	DocumentID uuid.UUID
	Error      string
}

// Summary reports the outcome of one backfill run.
type Summary struct {
	Updated  int
	Skipped  int
	Failed   int
	Samples  []FailureSample
}

const maxFailureSamples = 20

// errUnchanged is returned by the per-document reclassifiers when the
// document already matches the recomputed output and nothing was written.
var errUnchanged = errors.New("backfill: document unchanged")

// Run re-classifies documents matching filter against rulesetID/versionNo,
// paging through them in PageSize batches ordered by insertion. It never
// aborts the whole run on a single document's failure; the failure is
// counted and, up to maxFailureSamples, recorded in the returned Summary.
func (e *Engine) Run(ctx context.Context, rulesetID uuid.UUID, versionNo int, filter catalog.DocumentFilter) (Summary, error) {
	rv, err := e.RuleVer.GetVersion(ctx, rulesetID, versionNo)
	if err != nil {
		return Summary{}, fmt.Errorf("backfill: load rule version %d: %w", versionNo, err)
	}
	parsed := rules.ParseRules(rv.RulesJSON)

	var summary Summary
	var afterCreatedAt time.Time
	afterID := uuid.Nil

	for {
		docs, err := e.Documents.ListPage(ctx, filter, afterCreatedAt, afterID, e.pageSize())
		if err != nil {
			return summary, fmt.Errorf("backfill: list documents page: %w", err)
		}
		if len(docs) == 0 {
			break
		}

		for _, doc := range docs {
			if err := e.reclassifyOne(ctx, doc, parsed, rv.VersionNo); err != nil {
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
					Msg("backfill reclassify failed")
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

func (e *Engine) pageSize() int {
	if e.PageSize <= 0 {
		return 500
	}
	return e.PageSize
}

// reclassifyOne recomputes classification for a single document and, if it
// differs from the current state, writes the update. Returns errUnchanged
// on a genuine no-op skip, nil after a successful update, and any other
// error on a hard failure (repo error).
func (e *Engine) reclassifyOne(ctx context.Context, doc catalog.Document, parsed rules.Rules, versionNo int) error {
	filename, err := e.Documents.PrimaryFilename(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("load primary filename: %w", err)
	}

	output := rules.ApplyRules(rules.RuleInput{
		Title:       doc.Title,
		Description: doc.Description,
		Filename:    filename,
		CaptionRaw:  doc.CaptionRaw,
		IngestedAt:  doc.IngestedAt,
		Rules:       parsed,
	})

	cat, err := e.Categories.UpsertBySlug(ctx, catalog.Slugify(output.Category), output.Category)
	if err != nil {
		return fmt.Errorf("upsert category: %w", err)
	}

	tagRows, err := e.Tags.UpsertMany(ctx, output.Tags)
	if err != nil {
		return fmt.Errorf("upsert tags: %w", err)
	}
	tagIDs := make([]uuid.UUID, 0, len(tagRows))
	tagSlugs := make([]string, 0, len(tagRows))
	for _, t := range tagRows {
		tagIDs = append(tagIDs, t.ID)
		tagSlugs = append(tagSlugs, t.Slug)
	}

	reviewStatus := catalog.ReviewStatusNone
	if len(output.ReviewReasons) > 0 {
		reviewStatus = catalog.ReviewStatusNeedsReview
	}

	if !classificationChanged(doc, cat, output, tagSlugs, reviewStatus) {
		return errUnchanged
	}

	before := map[string]any{
		"category_id":    doc.CategoryID,
		"tags":           doc.Tags,
		"event_date":     doc.EventDate,
		"review_reasons": doc.ReviewReasons,
	}

	eventDate := output.EventDate
	patch := catalog.DocumentPatch{
		CategoryID:    &cat.ID,
		EventDate:     &eventDate,
		Tags:          &tagIDs,
		ReviewStatus:  &reviewStatus,
		ReviewReasons: &output.ReviewReasons,
		ChangeReason:  fmt.Sprintf("backfill_rule_v%d", versionNo),
	}

	updated, changed, err := e.Documents.UpdateDocument(ctx, doc.ID, patch)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if !changed {
		return errUnchanged
	}

	after := map[string]any{
		"category":       cat.Slug,
		"tags":           tagSlugs,
		"event_date":     eventDate,
		"review_reasons": output.ReviewReasons,
	}
	if err := e.Audit.Record(ctx, "system", "BACKFILL_RECLASSIFY", "document", &doc.ID, before, after); err != nil {
		return fmt.Errorf("audit log: %w", err)
	}

	if e.Publisher != nil {
		searchsync.EnqueueSync(ctx, e.Publisher, updated.ID)
	}
	return nil
}

func classificationChanged(doc catalog.Document, cat catalog.Category, output rules.RuleOutput, tagSlugs []string, reviewStatus catalog.ReviewStatus) bool {
	if doc.CategoryID == nil || *doc.CategoryID != cat.ID {
		return true
	}
	if doc.EventDate == nil || !doc.EventDate.Equal(output.EventDate) {
		return true
	}
	if reviewStatus != doc.ReviewStatus {
		return true
	}
	if !sortedEqual(doc.ReviewReasons, output.ReviewReasons) {
		return true
	}
	return !sortedEqual(doc.Tags, tagSlugs)
}

func sortedEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string{}, a...)
	sb := append([]string{}, b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}
