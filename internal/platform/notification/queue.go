package notification

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Publish and Consume after Close.
var ErrQueueClosed = errors.New("notification queue closed")

// Delivery is a message handed to a consumer. Ack it once it has been
// handled, successfully or not.
type Delivery struct {
	ID      string
	Message *Message
}

// Queue is the outbox between bill creation and email delivery.
type Queue interface {
	Publish(ctx context.Context, msg *Message) error
	// Consume blocks until a message is available or ctx is done.
	Consume(ctx context.Context) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	Close() error
}

// MemoryQueue is an in-process Queue for development and tests. Messages
// do not survive a restart.
type MemoryQueue struct {
	ch     chan *Message
	once   sync.Once
	closed chan struct{}
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 256
	}
	return &MemoryQueue{ch: make(chan *Message, size), closed: make(chan struct{})}
}

func (q *MemoryQueue) Publish(ctx context.Context, msg *Message) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- msg:
		return nil
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Consume(ctx context.Context) (*Delivery, error) {
	select {
	case msg := <-q.ch:
		return &Delivery{ID: msg.ID, Message: msg}, nil
	case <-q.closed:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Ack(context.Context, *Delivery) error { return nil }

// Len reports the number of queued messages.
func (q *MemoryQueue) Len() int { return len(q.ch) }

func (q *MemoryQueue) Close() error {
	q.once.Do(func() { close(q.closed) })
	return nil
}
