package searchsync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	calls int32
	err   error
}

func (f *fakePublisher) PublishTask(ctx context.Context, taskName string, args map[string]any) error {
	atomic.AddInt32(&f.calls, 1)
	return f.err
}

func TestEnqueueSync_NeverPropagatesError(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{err: errors.New("broker unavailable")}
	require.NotPanics(t, func() {
		EnqueueSync(context.Background(), pub, uuid.New())
	})
	require.Equal(t, int32(1), pub.calls)
}

func TestEnqueueSyncMany_EmptyIsNoop(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	EnqueueSyncMany(context.Background(), pub, nil)
	require.Equal(t, int32(0), pub.calls)
}

func TestEnqueueDelete_CallsPublisher(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	EnqueueDelete(context.Background(), pub, uuid.New())
	require.Equal(t, int32(1), pub.calls)
}

func TestReadyCache_EnsureOnlyRunsOnceOnSuccess(t *testing.T) {
	t.Parallel()

	var cache ReadyCache
	var calls int32
	ensure := func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}
	require.NoError(t, cache.Ensure(context.Background(), ensure))
	require.NoError(t, cache.Ensure(context.Background(), ensure))
	require.Equal(t, int32(1), calls)
}

func TestReadyCache_RetriesAfterFailure(t *testing.T) {
	t.Parallel()

	var cache ReadyCache
	var calls int32
	failOnce := func(context.Context) error {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return errors.New("not ready")
		}
		return nil
	}
	require.Error(t, cache.Ensure(context.Background(), failOnce))
	require.NoError(t, cache.Ensure(context.Background(), failOnce))
	require.Equal(t, int32(2), calls)
}
