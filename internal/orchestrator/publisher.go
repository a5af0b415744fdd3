package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// KafkaTaskPublisher implements searchsync.TaskPublisher and ingest.Pipeline's
// SearchPublisher by writing a TaskEnvelope to the commands topic, using a
// freshly generated correlation id per task so re-enqueued sync tasks never
// collide with the dedupe store.
type KafkaTaskPublisher struct {
	Producer      Producer
	CommandsTopic string
	ReplyTopic    string
}

// PublishTask satisfies searchsync.TaskPublisher.
func (p *KafkaTaskPublisher) PublishTask(ctx context.Context, taskName string, args map[string]any) error {
	task := TaskEnvelope{
		CorrelationID: uuid.NewString(),
		TaskName:      taskName,
		ReplyTopic:    p.ReplyTopic,
		Args:          args,
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task envelope: %w", err)
	}
	if err := p.Producer.WriteMessages(ctx, kafka.Message{
		Topic: p.CommandsTopic,
		Key:   []byte(task.CorrelationID),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("publish task %s: %w", taskName, err)
	}
	return nil
}
