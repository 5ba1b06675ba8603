// Package memory provides an in-process work queue with at-least-once
// semantics, used by tests and single-process runs.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/JakeFAU/cc-text-pipeline/internal/pipeline"
	"github.com/JakeFAU/cc-text-pipeline/internal/queue"
)

// ErrSettled is returned when a delivery is acked or nacked twice.
var ErrSettled = errors.New("delivery already settled")

// Stats counts settled deliveries.
type Stats struct {
	Published int
	Acked     int
	Requeued  int
	Rejected  int
}

// Queue is an unbounded FIFO of message bodies. It implements both
// pipeline.Publisher and pipeline.Consumer.
type Queue struct {
	mu       sync.Mutex
	items    []message
	wake     chan struct{}
	closed   bool
	nextID   uint64
	stats    Stats
	rejected [][]byte
}

type message struct {
	id   string
	body []byte
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{})}
}

// Publish appends a copy of body.
func (q *Queue) Publish(ctx context.Context, body []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("publish canceled: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return queue.ErrClosed
	}
	q.nextID++
	q.items = append(q.items, message{id: strconv.FormatUint(q.nextID, 10), body: append([]byte(nil), body...)})
	q.stats.Published++
	q.signalLocked()
	return nil
}

// Receive blocks until a message is available, ctx ends, or the queue closes.
func (q *Queue) Receive(ctx context.Context) (pipeline.Delivery, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return &delivery{q: q, msg: msg}, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, queue.ErrClosed
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("receive canceled: %w", ctx.Err())
		case <-wake:
		}
	}
}

// Close rejects further publishes and requeues. Messages already queued can
// still be received; after that Receive returns queue.ErrClosed.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	q.signalLocked()
	return nil
}

// Len returns the number of queued, undelivered messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Stats returns a snapshot of the counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// Rejected returns bodies nacked without requeue.
func (q *Queue) Rejected() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([][]byte(nil), q.rejected...)
}

func (q *Queue) signalLocked() {
	close(q.wake)
	q.wake = make(chan struct{})
}

type delivery struct {
	q       *Queue
	msg     message
	mu      sync.Mutex
	settled bool
}

func (d *delivery) ID() string   { return d.msg.id }
func (d *delivery) Body() []byte { return d.msg.body }

func (d *delivery) settle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.settled {
		return ErrSettled
	}
	d.settled = true
	return nil
}

func (d *delivery) Ack(context.Context) error {
	if err := d.settle(); err != nil {
		return err
	}
	d.q.mu.Lock()
	d.q.stats.Acked++
	d.q.mu.Unlock()
	return nil
}

func (d *delivery) Nack(_ context.Context, requeue bool) error {
	if err := d.settle(); err != nil {
		return err
	}
	q := d.q
	q.mu.Lock()
	defer q.mu.Unlock()
	if !requeue {
		q.stats.Rejected++
		q.rejected = append(q.rejected, d.msg.body)
		return nil
	}
	q.stats.Requeued++
	if !q.closed {
		q.items = append(q.items, d.msg)
		q.signalLocked()
	}
	return nil
}
