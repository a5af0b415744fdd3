//go:build enterprise
// +build enterprise

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"docarchive/internal/observability"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// StartKafkaConsumer starts a consumer that reads task messages from the
// given topic and processes them using a worker pool. Messages are
// committed only after successful handling (or DLQ publication after
// retries on transient errors).
func StartKafkaConsumer(
	ctx context.Context,
	brokers []string,
	groupID string,
	commandsTopic string,
	readerConfig *kafka.ReaderConfig, // optional override; if nil, a default config is used
	producer *kafka.Writer,
	proc Processor,
	dedupe DedupeStore,
	workerCount int,
	defaultReplyTopic string,
	dedupeTTL time.Duration,
	taskTimeout time.Duration,
) error {
	logger := observability.LoggerWithTrace(ctx)

	rc := kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    commandsTopic,
		MinBytes: 1,
		MaxBytes: 10e6, // ~10MB
	}
	if readerConfig != nil {
		rc = *readerConfig
		rc.Brokers = brokers
		rc.GroupID = groupID
		rc.Topic = commandsTopic
		if rc.MinBytes == 0 {
			rc.MinBytes = 1
		}
		if rc.MaxBytes == 0 {
			rc.MaxBytes = 10e6
		}
	}

	reader := kafka.NewReader(rc)
	defer func() {
		if err := reader.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing kafka reader")
		}
	}()

	jobs := make(chan kafka.Message, max(64, workerCount*4))

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func(workerID int) {
			defer wg.Done()
			for msg := range jobs {
				// A transient failure gets a few immediate in-process retries with
				// exponential backoff before falling back to the dead letter; this
				// is a deliberate simplification over re-delivering through Kafka,
				// which has no native delayed-delivery primitive.
				maxAttempts := 3
				attempt := 0
				var lastErr error
				for {
					attempt++
					err := HandleTaskMessage(ctx, proc, dedupe, producer, msg, defaultReplyTopic, dedupeTTL, taskTimeout)
					if err == nil {
						lastErr = nil
						break
					}
					lastErr = err
					if attempt < maxAttempts && ctx.Err() == nil {
						backoff := time.Duration(200*(1<<uint(attempt-1))) * time.Millisecond
						logger.Warn().Int("worker", workerID).Int("attempt", attempt).Dur("backoff", backoff).Err(err).Msg("transient task error, retrying")
						sleepCtx, cancel := context.WithTimeout(ctx, backoff)
						<-sleepCtx.Done()
						cancel()
						continue
					}
					publishDLQAfterRetries(ctx, producer, msg, defaultReplyTopic, attempt, lastErr, logger)
					break
				}

				if err := reader.CommitMessages(ctx, msg); err != nil {
					logger.Warn().Str("topic", msg.Topic).Int("partition", msg.Partition).Int64("offset", msg.Offset).Err(err).Msg("commit failed")
				}
			}
		}(i)
	}

	go func() {
		defer close(jobs)
		for {
			if ctx.Err() != nil {
				return
			}
			m, err := reader.FetchMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				logger.Warn().Err(err).Msg("fetch error")
				t := time.NewTimer(500 * time.Millisecond)
				select {
				case <-t.C:
				case <-ctx.Done():
					if !t.Stop() {
						<-t.C
					}
					return
				}
				continue
			}

			select {
			case jobs <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	return ctx.Err()
}

// ScheduleDelayedRetry re-publishes task after delay, holding the republish
// in memory because Kafka has no native delayed delivery. A process restart
// loses any pending delayed retry. The ingest state machine's retry_after is
// not honored through this function: cmd/ingestd's retry scanner republishes
// jobs whose retry_after has elapsed straight from Postgres.
func ScheduleDelayedRetry(ctx context.Context, producer Producer, topic string, task TaskEnvelope, delay time.Duration) {
	payload, err := json.Marshal(task)
	if err != nil {
		return
	}
	time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			return
		}
		if err := producer.WriteMessages(ctx, kafka.Message{Topic: topic, Key: []byte(task.CorrelationID), Value: payload}); err != nil {
			observability.LoggerWithTrace(ctx).Warn().Str("correlation_id", task.CorrelationID).Err(err).Msg("delayed retry republish failed")
		}
	})
}

func publishDLQAfterRetries(ctx context.Context, producer *kafka.Writer, msg kafka.Message, defaultReplyTopic string, attempts int, lastErr error, logger *zerolog.Logger) {
	replyTopic := defaultReplyTopic
	corrID := string(msg.Key)
	var task TaskEnvelope
	if err := json.Unmarshal(msg.Value, &task); err == nil {
		if task.ReplyTopic != "" {
			replyTopic = task.ReplyTopic
		}
		if task.CorrelationID != "" {
			corrID = task.CorrelationID
		}
	}

	dlq := ResponseEnvelope{
		CorrelationID: corrID,
		Status:        "error",
		Error:         fmt.Sprintf("transient failure after %d attempts: %v", attempts, lastErr),
	}
	payload, _ := json.Marshal(dlq)
	dlqTopic := dlqTopicFor(replyTopic)
	if err := producer.WriteMessages(ctx, kafka.Message{Topic: dlqTopic, Key: []byte(corrID), Value: payload}); err != nil {
		logger.Warn().Str("correlation_id", corrID).Err(err).Msg("failed to publish DLQ after retries")
	} else {
		logger.Warn().Str("correlation_id", corrID).Str("dlq_topic", dlqTopic).Msg("published DLQ after retries")
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
