package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestDlqTopicFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, "ingest.jobs.responses.dlq", dlqTopicFor("ingest.jobs.responses"))
	require.Equal(t, "ingest.jobs.responses.dlq", dlqTopicFor("ingest.jobs.responses.dlq"))
	require.Equal(t, "", dlqTopicFor("  "))
}

func TestPickReplyTopic(t *testing.T) {
	t.Parallel()

	require.Equal(t, "custom", pickReplyTopic("custom", "default"))
	require.Equal(t, "default", pickReplyTopic("  ", "default"))
}

func TestValidTaskName(t *testing.T) {
	t.Parallel()

	require.True(t, validTaskName(TaskProcessIngestJob))
	require.True(t, validTaskName(TaskSyncDocumentIndex))
	require.True(t, validTaskName(TaskSyncDocumentIndexBatch))
	require.True(t, validTaskName(TaskRunBackfill))
	require.True(t, validTaskName(TaskSyncDocumentIndexDelete))
	require.False(t, validTaskName("delete_everything"))
	require.False(t, validTaskName(""))
}

func TestTransient_WrapsAndUnwraps(t *testing.T) {
	t.Parallel()

	require.Nil(t, Transient(nil))

	base := errors.New("pool exhausted")
	wrapped := Transient(base)
	require.Error(t, wrapped)
	require.ErrorIs(t, wrapped, base)
}

type fakeDedupe struct {
	store map[string]string
}

func (f *fakeDedupe) Get(ctx context.Context, key string) (string, error) {
	return f.store[key], nil
}

func (f *fakeDedupe) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if f.store == nil {
		f.store = map[string]string{}
	}
	f.store[key] = value
	return nil
}

type fakeProducer struct {
	messages []kafka.Message
}

func (f *fakeProducer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.messages = append(f.messages, msgs...)
	return nil
}

type fakeProcessor struct {
	result map[string]any
	err    error
}

func (f *fakeProcessor) Process(ctx context.Context, taskName string, args map[string]any) (map[string]any, error) {
	return f.result, f.err
}

func TestHandleTaskMessage_MalformedJSONGoesToDLQ(t *testing.T) {
	t.Parallel()

	producer := &fakeProducer{}
	err := HandleTaskMessage(context.Background(), &fakeProcessor{}, &fakeDedupe{}, producer, kafka.Message{Key: []byte("corr-1"), Value: []byte("not json")}, "ingest.jobs.responses", time.Minute, time.Second)
	require.NoError(t, err)
	require.Len(t, producer.messages, 1)
	require.Equal(t, "ingest.jobs.responses.dlq", producer.messages[0].Topic)
}

func TestHandleTaskMessage_UnknownTaskNameGoesToDLQ(t *testing.T) {
	t.Parallel()

	producer := &fakeProducer{}
	task := TaskEnvelope{CorrelationID: "corr-2", TaskName: "not_a_real_task"}
	value, _ := json.Marshal(task)
	err := HandleTaskMessage(context.Background(), &fakeProcessor{}, &fakeDedupe{}, producer, kafka.Message{Value: value}, "ingest.jobs.responses", time.Minute, time.Second)
	require.NoError(t, err)
	require.Len(t, producer.messages, 1)
	require.Equal(t, "ingest.jobs.responses.dlq", producer.messages[0].Topic)
}

func TestHandleTaskMessage_SuccessPublishesAndDedupes(t *testing.T) {
	t.Parallel()

	producer := &fakeProducer{}
	dedupe := &fakeDedupe{}
	proc := &fakeProcessor{result: map[string]any{"ok": true}}
	task := TaskEnvelope{CorrelationID: "corr-3", TaskName: TaskProcessIngestJob}
	value, _ := json.Marshal(task)

	err := HandleTaskMessage(context.Background(), proc, dedupe, producer, kafka.Message{Value: value}, "ingest.jobs.responses", time.Minute, time.Second)
	require.NoError(t, err)
	require.Len(t, producer.messages, 1)
	require.Equal(t, "ingest.jobs.responses", producer.messages[0].Topic)
	require.NotEmpty(t, dedupe.store["corr-3"])
}

func TestHandleTaskMessage_TransientErrorPropagates(t *testing.T) {
	t.Parallel()

	producer := &fakeProducer{}
	proc := &fakeProcessor{err: Transient(errors.New("broker unreachable"))}
	task := TaskEnvelope{CorrelationID: "corr-4", TaskName: TaskProcessIngestJob}
	value, _ := json.Marshal(task)

	err := HandleTaskMessage(context.Background(), proc, &fakeDedupe{}, producer, kafka.Message{Value: value}, "ingest.jobs.responses", time.Minute, time.Second)
	require.Error(t, err)
	require.Empty(t, producer.messages)
}

func TestHandleTaskMessage_PermanentErrorGoesToDLQ(t *testing.T) {
	t.Parallel()

	producer := &fakeProducer{}
	proc := &fakeProcessor{err: errors.New("invalid ruleset id")}
	task := TaskEnvelope{CorrelationID: "corr-5", TaskName: TaskRunBackfill}
	value, _ := json.Marshal(task)

	err := HandleTaskMessage(context.Background(), proc, &fakeDedupe{}, producer, kafka.Message{Value: value}, "ingest.jobs.responses", time.Minute, time.Second)
	require.NoError(t, err)
	require.Len(t, producer.messages, 1)
	require.Equal(t, "ingest.jobs.responses.dlq", producer.messages[0].Topic)
}
