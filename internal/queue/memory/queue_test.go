package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentdir/iconfetch/internal/assets"
)

func TestQueue_EnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(4)
	ctx := context.Background()

	item := assets.QueueItem{JobID: "job-1", Job: assets.FetchJob{EntityID: "42", WebsiteURL: "example.com"}}
	require.NoError(t, q.Enqueue(ctx, item))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, item, got)
}

func TestQueue_DequeueRespectsContext(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	require.Error(t, err)
}

func TestQueue_EnqueueBlocksWhenFull(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, assets.QueueItem{JobID: "a"}))

	blockedCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := q.Enqueue(blockedCtx, assets.QueueItem{JobID: "b"})
	require.Error(t, err)
}

func TestQueue_EnqueueAfterCloseReturnsError(t *testing.T) {
	t.Parallel()

	q := NewQueue(4)
	q.Close()

	err := q.Enqueue(context.Background(), assets.QueueItem{JobID: "late"})
	require.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueue_CloseWaitsForInFlightEnqueue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	ctx := context.Background()

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func(n int) {
			sendCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
			defer cancel()
			done <- q.Enqueue(sendCtx, assets.QueueItem{JobID: "race"})
		}(i)
	}

	time.Sleep(10 * time.Millisecond)
	// Must not panic on a send racing the close.
	q.Close()

	for i := 0; i < 8; i++ {
		<-done
	}
}

func TestQueue_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	q.Close()
	q.Close()

	_, err := q.Dequeue(context.Background())
	require.ErrorIs(t, err, ErrQueueClosed)
}
