// Package ingest drives the per-job state machine from spec.md §4.4:
// content store, caption/rule classification, catalog creation, search
// sync, and the producer notify hook, wired together with retry and
// dead-letter policy.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"docarchive/internal/catalog"
	"docarchive/internal/config"
	"docarchive/internal/contentstore"
	"docarchive/internal/ingest/ingesterr"
	"docarchive/internal/observability"
	"docarchive/internal/rules"
	"docarchive/internal/searchsync"

	"github.com/google/uuid"
)

// JobPayload is the free-form producer metadata stashed on IngestJob at
// enqueue time: the original filename plus whatever source-specific fields
// accompanied the upload (message_id, chat_id, sent_at, or a manual
// title/description pair).
type JobPayload struct {
	Filename    string `json:"filename"`
	MimeType    string `json:"mime_type,omitempty"`
	MessageID   string `json:"message_id,omitempty"`
	ChatID      string `json:"chat_id,omitempty"`
	SentAt      string `json:"sent_at,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

func (p JobPayload) metadataText() string {
	return strings.TrimSpace(strings.Join([]string{p.SentAt, p.Title, p.Description}, " "))
}

// Pipeline wires the Content Store, Rule Engine, Catalog, Search Index
// Sync, and Notifier into the ingest job state machine.
type Pipeline struct {
	Jobs         *catalog.IngestJobRepo
	Content      *contentstore.Store
	Categories   *catalog.CategoryRepo
	Tags         *catalog.TagRepo
	Documents    *catalog.DocumentRepo
	RuleVersions *catalog.RuleVersionRepo
	Audit        *catalog.AuditLogRepo
	Notifier     *Notifier

	RulesetID uuid.UUID
	Retry     config.RetryConfig

	// SearchPublisher is nil when no task queue is wired; EnqueueSync then
	// silently no-ops, same as search_auto_sync=false.
	SearchPublisher searchsync.TaskPublisher
	SearchAutoSync  bool
}

// ProcessJob advances a job through every stage it has not yet passed,
// returning a non-nil error only for failures the caller (the task worker)
// should itself retry at the transport level - e.g. the catalog database is
// unreachable. Ordinary pipeline-stage failures are handled internally:
// logged, classified, and turned into a scheduled retry or a dead letter.
func (p *Pipeline) ProcessJob(ctx context.Context, jobID uuid.UUID) error {
	log := observability.LoggerWithTrace(ctx)

	job, err := p.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load ingest job %s: %w", jobID, err)
	}
	if catalog.TerminalStates[job.State] {
		log.Debug().Str("job_id", jobID.String()).Str("state", string(job.State)).Msg("job already terminal, skipping")
		return nil
	}

	var payload JobPayload
	if len(job.PayloadJSON) > 0 {
		_ = json.Unmarshal(job.PayloadJSON, &payload)
	}

	doc, stageErr := p.runStages(ctx, &job, payload)
	if stageErr != nil {
		return p.handleFailure(ctx, job, stageErr)
	}

	if err := p.Notifier.Notify(ctx, job, doc); err != nil {
		log.Warn().Err(err).Str("job_id", jobID.String()).Msg("result callback failed")
	}
	return nil
}

// runStages executes STORED -> EXTRACTED -> CLASSIFIED -> INDEXED ->
// (PUBLISHED | NEEDS_REVIEW) in order, mutating job's in-memory state as it
// advances so callers can build an accurate notification even mid-failure.
func (p *Pipeline) runStages(ctx context.Context, job *catalog.IngestJob, payload JobPayload) (*catalog.Document, *ingesterr.StageError) {
	file, duplicateSuspect, se := p.stageStore(ctx, job, payload)
	if se != nil {
		return nil, se
	}

	parsedCaption, summaryWarning, se := p.stageExtract(ctx, job, payload)
	if se != nil {
		return nil, se
	}

	output, cat, se := p.stageClassify(ctx, job, payload, parsedCaption, duplicateSuspect)
	if se != nil {
		return nil, se
	}

	doc, se := p.stageIndex(ctx, job, payload, parsedCaption, output, file, cat)
	if se != nil {
		return nil, se
	}

	se = p.stageFinalize(ctx, job, doc, output)
	if se != nil {
		return nil, se
	}

	if summaryWarning {
		observability.LoggerWithTrace(ctx).Warn().Str("job_id", job.ID.String()).Msg("summary extraction produced no text, proceeding with empty summary")
	}

	if p.SearchAutoSync && p.SearchPublisher != nil {
		searchsync.EnqueueSync(ctx, p.SearchPublisher, doc.ID)
	}

	return doc, nil
}

func (p *Pipeline) stageStore(ctx context.Context, job *catalog.IngestJob, payload JobPayload) (catalog.File, bool, *ingesterr.StageError) {
	metadata, _ := json.Marshal(map[string]string{
		"message_id": payload.MessageID,
		"chat_id":    payload.ChatID,
		"sent_at":    payload.SentAt,
	})

	result, err := p.Content.PutLocalFile(ctx, job.FilePathTemp, payload.Filename, job.Source, job.SourceRef, metadata)
	if err != nil {
		return catalog.File{}, false, ingesterr.Wrap(string(catalog.StateStored), classifyStorageErr(err), err)
	}

	if err := p.Jobs.Transition(ctx, job.ID, catalog.StateReceived, catalog.StateStored, "STORED",
		fmt.Sprintf("stored as %s", result.File.StorageKey), nil, nil); err != nil {
		return catalog.File{}, false, ingesterr.Wrap(string(catalog.StateStored), ingesterr.CodeDBWriteFail, err)
	}
	job.State = catalog.StateStored
	return result.File, result.AlreadyLinked, nil
}

func (p *Pipeline) stageExtract(ctx context.Context, job *catalog.IngestJob, payload JobPayload) (rules.CaptionParseResult, bool, *ingesterr.StageError) {
	parsed := rules.ParseCaption(job.Caption, payload.Filename)
	if strings.TrimSpace(parsed.Title) == "" {
		return parsed, false, ingesterr.Wrap(string(catalog.StateExtracted), ingesterr.CodeCaptionParseFail, errors.New("caption produced no usable title"))
	}

	_, summaryErr := BuildSummary(parsed.Title, parsed.Description)
	warned := summaryErr != nil

	var eventPayload json.RawMessage
	if warned {
		eventPayload, _ = json.Marshal(map[string]string{"warning": string(ingesterr.CodeSummaryExtractFail)})
	}

	if err := p.Jobs.Transition(ctx, job.ID, catalog.StateStored, catalog.StateExtracted, "EXTRACTED",
		"caption parsed", eventPayload, nil); err != nil {
		return parsed, warned, ingesterr.Wrap(string(catalog.StateExtracted), ingesterr.CodeDBWriteFail, err)
	}
	job.State = catalog.StateExtracted
	return parsed, warned, nil
}

func (p *Pipeline) stageClassify(ctx context.Context, job *catalog.IngestJob, payload JobPayload, parsed rules.CaptionParseResult, duplicateSuspect bool) (rules.RuleOutput, catalog.Category, *ingesterr.StageError) {
	rv, err := p.RuleVersions.ActiveVersion(ctx, p.RulesetID)
	if err != nil {
		return rules.RuleOutput{}, catalog.Category{}, ingesterr.Wrap(string(catalog.StateClassified), ingesterr.CodeRuleClassifyFail, fmt.Errorf("no active rule version: %w", err))
	}
	ruleset := rules.ParseRules(rv.RulesJSON)

	output := rules.ApplyRules(rules.RuleInput{
		ExplicitCategory: parsed.ExplicitCategory,
		ExplicitDate:     parsed.ExplicitDate,
		ExplicitTags:     parsed.ExplicitTags,
		Title:            parsed.Title,
		Description:      parsed.Description,
		Filename:         payload.Filename,
		Body:             "",
		CaptionRaw:       parsed.CaptionRaw,
		MetadataText:     payload.metadataText(),
		IngestedAt:       job.ReceivedAt,
		Rules:            ruleset,
	})

	if duplicateSuspect {
		output.ReviewReasons = appendReasonOnce(output.ReviewReasons, "DUPLICATE_SUSPECT")
	}

	cat, err := p.Categories.UpsertBySlug(ctx, catalog.Slugify(output.Category), output.Category)
	if err != nil {
		return rules.RuleOutput{}, catalog.Category{}, ingesterr.Wrap(string(catalog.StateClassified), ingesterr.CodeDBWriteFail, err)
	}

	eventPayload, _ := json.Marshal(map[string]any{"category": output.Category, "review_reasons": output.ReviewReasons})
	if err := p.Jobs.Transition(ctx, job.ID, catalog.StateExtracted, catalog.StateClassified, "CLASSIFIED",
		"rule engine applied", eventPayload, nil); err != nil {
		return rules.RuleOutput{}, catalog.Category{}, ingesterr.Wrap(string(catalog.StateClassified), ingesterr.CodeDBWriteFail, err)
	}
	job.State = catalog.StateClassified
	return output, cat, nil
}

func (p *Pipeline) stageIndex(ctx context.Context, job *catalog.IngestJob, payload JobPayload, parsed rules.CaptionParseResult, output rules.RuleOutput, file catalog.File, cat catalog.Category) (*catalog.Document, *ingesterr.StageError) {
	tagRows, err := p.Tags.UpsertMany(ctx, output.Tags)
	if err != nil {
		return nil, ingesterr.Wrap(string(catalog.StateIndexed), ingesterr.CodeDBWriteFail, err)
	}
	tagIDs := make([]uuid.UUID, len(tagRows))
	for i, t := range tagRows {
		tagIDs[i] = t.ID
	}

	summary, _ := BuildSummary(parsed.Title, parsed.Description)

	reviewStatus := catalog.ReviewStatusNone
	if len(output.ReviewReasons) > 0 {
		reviewStatus = catalog.ReviewStatusNeedsReview
	}

	var eventDate *time.Time
	if !output.EventDate.IsZero() {
		t := output.EventDate
		eventDate = &t
	}

	doc, err := p.Documents.CreateFromPipeline(ctx, catalog.NewDocumentInput{
		Source:        job.Source,
		SourceRef:     job.SourceRef,
		Title:         parsed.Title,
		Description:   parsed.Description,
		CaptionRaw:    parsed.CaptionRaw,
		Summary:       summary,
		CategoryID:    &cat.ID,
		EventDate:     eventDate,
		IngestedAt:    job.ReceivedAt,
		ReviewStatus:  reviewStatus,
		ReviewReasons: output.ReviewReasons,
		TagIDs:        tagIDs,
		FileID:        file.ID,
		Filename:      payload.Filename,
	})
	if err != nil {
		return nil, ingesterr.Wrap(string(catalog.StateIndexed), ingesterr.CodeDBWriteFail, err)
	}
	doc.Category = cat.Name
	doc.Tags = output.Tags

	if err := p.Jobs.Transition(ctx, job.ID, catalog.StateClassified, catalog.StateIndexed, "INDEXED",
		"document created", nil, &doc.ID); err != nil {
		return nil, ingesterr.Wrap(string(catalog.StateIndexed), ingesterr.CodeDBWriteFail, err)
	}
	job.State = catalog.StateIndexed
	job.DocumentID = &doc.ID
	return &doc, nil
}

func (p *Pipeline) stageFinalize(ctx context.Context, job *catalog.IngestJob, doc *catalog.Document, output rules.RuleOutput) *ingesterr.StageError {
	toState := catalog.StatePublished
	eventType := "PUBLISHED"
	if len(output.ReviewReasons) > 0 {
		toState = catalog.StateNeedsReview
		eventType = "NEEDS_REVIEW"
	}
	if err := p.Jobs.Transition(ctx, job.ID, catalog.StateIndexed, toState, eventType, "ingest complete", nil, &doc.ID); err != nil {
		return ingesterr.Wrap(string(toState), ingesterr.CodeDBWriteFail, err)
	}
	job.State = toState
	return nil
}

// handleFailure classifies a stage failure, emits the ERROR event via
// RecordAttemptFailure, and either schedules a retry or dead-letters the
// job, matching the retry policy from spec.md §4.4. It returns an error to
// the caller only when recording the failure itself could not be done
// (e.g. the catalog database is unreachable) - that case should be retried
// at the task-queue transport level rather than silently dropped.
func (p *Pipeline) handleFailure(ctx context.Context, job catalog.IngestJob, se *ingesterr.StageError) error {
	log := observability.LoggerWithTrace(ctx)
	nextAttempt := job.AttemptCount + 1
	deadLetter := nextAttempt >= job.MaxAttempts

	if deadLetter {
		msg := fmt.Sprintf("dead-letter after %d attempts, underlying code %s: %v", nextAttempt, se.Code, se.Err)
		updated, err := p.Jobs.RecordAttemptFailure(ctx, job.ID, job.State, string(ingesterr.CodeDLQMaxAttempts), msg, 0, true)
		if err != nil {
			return fmt.Errorf("record dead letter for job %s: %w", job.ID, err)
		}
		if err := p.Audit.Record(ctx, "system", "INGEST_JOB_DEAD_LETTER", "ingest_job", &job.ID,
			nil, map[string]any{"error_code": se.Code, "attempt_count": nextAttempt}); err != nil {
			log.Warn().Err(err).Str("job_id", job.ID.String()).Msg("failed to write dead-letter audit log")
		}
		if err := p.Notifier.Notify(ctx, updated, nil); err != nil {
			log.Warn().Err(err).Str("job_id", job.ID.String()).Msg("result callback failed after dead letter")
		}
		return nil
	}

	delay := Backoff(nextAttempt, p.Retry.BaseBackoffSeconds, p.Retry.MaxBackoffSeconds)
	if _, err := p.Jobs.RecordAttemptFailure(ctx, job.ID, job.State, string(se.Code), se.Error(), int(delay), false); err != nil {
		return fmt.Errorf("schedule retry for job %s: %w", job.ID, err)
	}
	log.Info().Str("job_id", job.ID.String()).Str("code", string(se.Code)).Int64("delay_seconds", delay).
		Int("attempt_count", nextAttempt).Msg("ingest attempt failed, retry scheduled")
	return nil
}

func classifyStorageErr(err error) ingesterr.Code {
	switch {
	case errors.Is(err, contentstore.ErrTempFileMissing):
		return ingesterr.CodeStorageTempFileMissing
	case errors.Is(err, contentstore.ErrReadFail):
		return ingesterr.CodeStorageReadFail
	case errors.Is(err, contentstore.ErrWriteFail):
		return ingesterr.CodeStorageWriteFail
	default:
		return ingesterr.CodePipelineUnexpected
	}
}

func appendReasonOnce(reasons []string, reason string) []string {
	for _, r := range reasons {
		if r == reason {
			return reasons
		}
	}
	return append(reasons, reason)
}
