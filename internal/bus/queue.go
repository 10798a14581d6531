package bus

import (
	"context"
	"sync/atomic"

	"tradecore/pkg/exception"
)

// Envelope is one message marshalled onto the engine goroutine. Exactly one of Topic
// and Endpoint is set.
type Envelope struct {
	Topic    string
	Endpoint string
	Msg      any
}

// Queue is a bounded, non-blocking inbound queue. Adapter goroutines publish into it
// and the engine goroutine drains it.
type Queue struct {
	ch     chan Envelope
	closed atomic.Bool
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan Envelope, capacity)}
}

// TryPublish enqueues an envelope without blocking.
func (q *Queue) TryPublish(e Envelope) (err error) {
	defer recoverClosed(&err)
	if q.closed.Load() {
		return exception.ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		return exception.ErrQueueFull
	}
}

// Publish blocks until the envelope is queued or ctx is done.
func (q *Queue) Publish(ctx context.Context, e Envelope) (err error) {
	defer recoverClosed(&err)
	if q.closed.Load() {
		return exception.ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// recoverClosed turns a send racing with Close into ErrQueueClosed.
func recoverClosed(err *error) {
	if recover() != nil {
		*err = exception.ErrQueueClosed
	}
}

func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops the queue from accepting new envelopes. Queued envelopes are still drained.
func (q *Queue) Close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.ch)
	}
}

// Run consumes envelopes until the context is done or the queue is closed and drained.
func (q *Queue) Run(ctx context.Context, handler func(Envelope)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-q.ch:
			if !ok {
				return
			}
			handler(e)
		}
	}
}

// Dispatch delivers e to b.
func Dispatch(b *MessageBus, e Envelope) {
	if e.Endpoint != "" {
		_ = b.Send(e.Endpoint, e.Msg)
		return
	}
	b.Publish(e.Topic, e.Msg)
}
