// Package memory provides a queue implementation for in-process dispatch.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/agentdir/iconfetch/internal/assets"
)

// ErrQueueClosed is returned by Dequeue once the queue is drained and closed.
var ErrQueueClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan assets.QueueItem
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 64
	}
	return &Queue{
		ch: make(chan assets.QueueItem, capacity),
	}
}

// Enqueue pushes a job into the queue or returns if the context ends.
// The read lock is held across the send so Close cannot close the channel
// under an in-flight Enqueue.
func (q *Queue) Enqueue(ctx context.Context, item assets.QueueItem) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next job, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (assets.QueueItem, error) {
	select {
	case <-ctx.Done():
		return assets.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return assets.QueueItem{}, ErrQueueClosed
		}
		return item, nil
	}
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
