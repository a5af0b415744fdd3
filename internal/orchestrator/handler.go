// Package orchestrator drives the ingest task queue: it decodes task
// envelopes off Kafka, dedupes by correlation id, dispatches to a Processor,
// and routes failures to a dead-letter topic or an in-process delayed retry.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"docarchive/internal/observability"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Task names the orchestrator dispatches. These are the only task names a
// Processor needs to understand; anything else is a permanent error.
const (
	TaskProcessIngestJob        = "process_ingest_job"
	TaskSyncDocumentIndex       = "sync_document_index"
	TaskSyncDocumentIndexBatch  = "sync_document_index_batch"
	TaskSyncDocumentIndexDelete = "sync_document_index_delete"
	TaskRunBackfill             = "run_backfill"
)

// Processor executes one task by name. args is the decoded TaskEnvelope.Args
// map; result, when non-nil, is marshaled into the success response. A
// TransientError return causes the caller to retry; any other error is
// permanent and routes the task to the dead-letter topic.
type Processor interface {
	Process(ctx context.Context, taskName string, args map[string]any) (map[string]any, error)
}

// Producer abstracts the kafka writer behavior needed by the handler.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// TaskEnvelope is the expected input message structure.
type TaskEnvelope struct {
	CorrelationID string         `json:"correlation_id"`
	TaskName      string         `json:"task_name,omitempty"`
	ReplyTopic    string         `json:"reply_topic,omitempty"`
	Args          map[string]any `json:"args,omitempty"`
}

// ResponseEnvelope is the output message structure (for both success and DLQ).
type ResponseEnvelope struct {
	CorrelationID string         `json:"correlation_id"`
	Status        string         `json:"status"`
	Result        map[string]any `json:"result,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// TransientError wraps a Processor failure that should be retried rather
// than dead-lettered: broker hiccups, a pool exhausted momentarily, a
// downstream HTTP timeout. Processor implementations opt into retry by
// returning one.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError, or returns nil if err is nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// HandleTaskMessage processes a single Kafka message containing a task
// envelope. It publishes either a success response or a DLQ message.
// Transient errors are returned so the caller may retry; permanent errors
// are handled internally and nil is returned to allow committing the offset.
func HandleTaskMessage(
	ctx context.Context,
	proc Processor,
	dedupe DedupeStore,
	producer Producer,
	msg kafka.Message,
	defaultReplyTopic string,
	dedupeTTL time.Duration,
	taskTimeout time.Duration,
) error {
	logger := observability.LoggerWithTrace(ctx)
	corrIDForLog := string(msg.Key)

	var task TaskEnvelope
	if err := json.Unmarshal(msg.Value, &task); err != nil {
		publishDLQ(ctx, producer, defaultReplyTopic, corrIDForLog, fmt.Sprintf("malformed task JSON: %v", err), logger)
		return nil
	}

	corrID := task.CorrelationID
	if corrID == "" {
		publishDLQ(ctx, producer, pickReplyTopic(task.ReplyTopic, defaultReplyTopic), corrIDForLog, "missing correlation_id", logger)
		return nil
	}
	corrIDForLog = corrID

	if prev, err := dedupe.Get(ctx, corrID); err != nil {
		return fmt.Errorf("dedupe get failed: %w", err)
	} else if prev != "" {
		logger.Debug().Str("correlation_id", corrID).Msg("dedupe hit, skipping task")
		return nil
	}

	taskName := strings.TrimSpace(task.TaskName)
	if !validTaskName(taskName) {
		publishDLQ(ctx, producer, pickReplyTopic(task.ReplyTopic, defaultReplyTopic), corrID, fmt.Sprintf("unknown task_name %q", taskName), logger)
		return nil
	}

	replyTopic := pickReplyTopic(task.ReplyTopic, defaultReplyTopic)

	runCtx := ctx
	var cancel context.CancelFunc = func() {}
	if taskTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, taskTimeout)
	}
	defer cancel()

	result, err := proc.Process(runCtx, taskName, task.Args)
	if err != nil {
		var te *TransientError
		if errors.As(err, &te) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("transient task error (corr_id=%s, task=%s): %w", corrID, taskName, err)
		}
		publishDLQ(ctx, producer, replyTopic, corrID, err.Error(), logger)
		return nil
	}

	resp := ResponseEnvelope{CorrelationID: corrID, Status: "success", Result: result}
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("response marshal failed (corr_id=%s): %w", corrID, err)
	}
	if werr := producer.WriteMessages(ctx, kafka.Message{Topic: replyTopic, Key: []byte(corrID), Value: payload}); werr != nil {
		return fmt.Errorf("producer write failed (corr_id=%s): %w", corrID, werr)
	}

	if err := dedupe.Set(ctx, corrID, string(payload), dedupeTTL); err != nil {
		return fmt.Errorf("dedupe set failed (corr_id=%s): %w", corrID, err)
	}

	logger.Info().Str("correlation_id", corrID).Str("task_name", taskName).Msg("processed task successfully")
	return nil
}

func validTaskName(name string) bool {
	switch name {
	case TaskProcessIngestJob, TaskSyncDocumentIndex, TaskSyncDocumentIndexBatch, TaskSyncDocumentIndexDelete, TaskRunBackfill:
		return true
	default:
		return false
	}
}

func publishDLQ(ctx context.Context, producer Producer, replyTopic, corrID, errMsg string, logger *zerolog.Logger) {
	env := ResponseEnvelope{CorrelationID: corrID, Status: "error", Error: errMsg}
	payload, _ := json.Marshal(env)
	dlqTopic := dlqTopicFor(replyTopic)
	if werr := producer.WriteMessages(ctx, kafka.Message{Topic: dlqTopic, Key: []byte(corrID), Value: payload}); werr != nil {
		logger.Warn().Str("correlation_id", corrID).Err(werr).Msg("failed to publish DLQ message")
	} else {
		logger.Warn().Str("correlation_id", corrID).Str("dlq_topic", dlqTopic).Str("reason", errMsg).Msg("published task to dead letter")
	}
}

func pickReplyTopic(taskTopic, defaultTopic string) string {
	if t := strings.TrimSpace(taskTopic); t != "" {
		return t
	}
	return defaultTopic
}

// dlqTopicFor returns a DLQ topic name for a given reply topic. If the
// provided topic already ends with ".dlq", it is returned unchanged, to
// avoid names like "responses.dlq.dlq".
func dlqTopicFor(replyTopic string) string {
	rt := strings.TrimSpace(replyTopic)
	if rt == "" {
		return ""
	}
	if strings.HasSuffix(rt, ".dlq") {
		return rt
	}
	return rt + ".dlq"
}
