package event

import (
	"context"
	"sync"
)

// DefaultQueueCapacity bounds the queue between the background worker and
// the consumer. When full, producers block; events are never dropped.
const DefaultQueueCapacity = 1024

// Queue is the caller-owned pipe between the driver's background worker and
// the single consumer. The consumer creates the queue, hands it to the
// worker, and ranges over Events() until the queue is closed — channel close
// is the sentinel.
//
// Multiple producers may publish (the engine plus any forwarded sub-agent
// queues); only one consumer may drain.
type Queue struct {
	ch        chan Event
	closeOnce sync.Once
}

// NewQueue creates a queue with the given capacity (DefaultQueueCapacity
// when <= 0).
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{ch: make(chan Event, capacity)}
}

// Publish enqueues the event, blocking when the consumer lags. It returns
// the context error when the producer is cancelled while blocked.
func (q *Queue) Publish(ctx context.Context, e Event) error {
	select {
	case q.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish enqueues without blocking and reports whether the event was
// accepted. Used for terminal events once the consumer may already be gone.
func (q *Queue) TryPublish(e Event) bool {
	select {
	case q.ch <- e:
		return true
	default:
		return false
	}
}

// Close emits the sentinel by closing the channel. Safe to call more than
// once; only the producing side may call it, after its final event.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.ch) })
}

// Events returns the receive side for the single consumer.
func (q *Queue) Events() <-chan Event {
	return q.ch
}
