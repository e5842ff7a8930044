// Package memory provides a queue implementation for local development.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ron9295/guardz-fetch-service/internal/scan"
)

// Queue is a bounded in-memory chunk queue with context-aware operations.
// Rejected messages land in a dead-letter slice instead of a dead-letter
// topic, which is enough to exercise the pipeline locally.
type Queue struct {
	ch      chan scan.ChunkMessage
	closeMu sync.Mutex
	closed  bool

	dlqMu sync.Mutex
	dlq   []scan.ChunkMessage
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan scan.ChunkMessage, capacity),
	}
}

// PublishChunk pushes a message into the queue or returns if the context ends.
func (q *Queue) PublishChunk(ctx context.Context, msg scan.ChunkMessage) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("publish canceled: %w", ctx.Err())
	case q.ch <- msg:
		return nil
	}
}

// Dequeue pops the next message, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (scan.ChunkMessage, error) {
	select {
	case <-ctx.Done():
		return scan.ChunkMessage{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case msg, ok := <-q.ch:
		if !ok {
			return scan.ChunkMessage{}, errors.New("queue closed")
		}
		return msg, nil
	}
}

// Reject records a message on the dead-letter slice.
func (q *Queue) Reject(msg scan.ChunkMessage) {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	q.dlq = append(q.dlq, msg)
}

// DeadLettered returns a copy of the rejected messages.
func (q *Queue) DeadLettered() []scan.ChunkMessage {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return append([]scan.ChunkMessage(nil), q.dlq...)
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
