// Package queue provides the bounded per-channel FIFO buffer a Virtual
// Channel drains from. Capability set and semantics per spec §4.1: a
// non-blocking, capacity-checked put and a blocking, context-aware take.
package queue

import (
	"context"

	"github.com/msgproxy/vchannel/internal/apperrors"
	"github.com/msgproxy/vchannel/internal/message"
)

// Queue is the capability set any queue implementation must provide. A
// custom queue is resolved by class name through a Registry, mirroring the
// teacher's name-keyed construction elsewhere (worker classes, broker
// options).
type Queue interface {
	// AddTask enqueues message, failing with a TemporaryUnavailable
	// *apperrors.Error if the queue is at capacity. Non-blocking.
	AddTask(m message.Message) error

	// GetTask blocks until an item is available or ctx is cancelled.
	GetTask(ctx context.Context) (message.Message, error)

	// CurrentItemsCount is observational; it may be racy by a single slot
	// under concurrent access, which callers must tolerate (spec §4.1).
	CurrentItemsCount() int
}

// BoundedQueue is the default Queue: a buffered channel of capacity size,
// giving non-blocking put (via select/default) and capacity-bounded FIFO
// ordering for free.
type BoundedQueue struct {
	items chan message.Message
	size  int
}

// NewBoundedQueue constructs a BoundedQueue of the given capacity. size
// must be positive; callers (Collection.BuildFromConfig) are expected to
// validate this at config-load time.
func NewBoundedQueue(size int) *BoundedQueue {
	if size <= 0 {
		size = 1
	}
	return &BoundedQueue{items: make(chan message.Message, size), size: size}
}

// AddTask implements Queue.
func (q *BoundedQueue) AddTask(m message.Message) error {
	select {
	case q.items <- m:
		return nil
	default:
		return apperrors.TemporaryUnavailable("Queue of this channel is full. Try again later")
	}
}

// GetTask implements Queue.
func (q *BoundedQueue) GetTask(ctx context.Context) (message.Message, error) {
	select {
	case m := <-q.items:
		return m, nil
	case <-ctx.Done():
		return message.Message{}, ctx.Err()
	}
}

// CurrentItemsCount implements Queue.
func (q *BoundedQueue) CurrentItemsCount() int {
	return len(q.items)
}

// Capacity returns the queue's configured size.
func (q *BoundedQueue) Capacity() int {
	return q.size
}

var _ Queue = (*BoundedQueue)(nil)
