// Package queue holds accepted audit records between intake and storage.
//
// The in-memory queue is a bounded channel: writers never block, and a full
// queue refuses the record so the caller can report back-pressure.
package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/uruk/internal/domain/model"
	"github.com/okian/uruk/pkg/logger"
	"github.com/okian/uruk/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 100000
)

// Record is the payload type flowing through the queue.
type Record = model.AuditRecord

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// TryWrite adds a record to the queue.
	// Returns false if the queue is full or closed and the record was not enqueued.
	TryWrite(ctx context.Context, r Record) bool

	// Dequeue returns a channel that will receive records as they become available.
	// The channel will be closed when the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Record

	// Len returns the current number of queued records.
	Len(ctx context.Context) int

	// Cap returns the maximum number of queued records.
	Cap() int

	// Close stops intake. Records already queued remain available to Dequeue.
	// Closing twice returns ErrClosed.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	records  chan Record
	capacity int
	mu       sync.RWMutex
	closed   bool

	logger        logger.Logger
	highWatermark float64
	aboveMark     atomic.Bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.records = make(chan Record, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)

	return q
}

// TryWrite adds a record to the queue without blocking.
func (q *InMemoryQueue) TryWrite(ctx context.Context, r Record) bool { //nolint:gocritic // hugeParam: Record must be passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueRejected("closed")
		return false
	}
	if ctx.Err() != nil {
		metrics.RecordQueueRejected("context_cancelled")
		return false
	}

	select {
	case q.records <- r:
		metrics.RecordQueueEnqueue()
		q.observe()
		return true
	default:
		metrics.RecordQueueRejected("full")
		return false
	}
}

// Dequeue returns a channel that will receive records as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Record {
	out := make(chan Record)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-q.records:
				if !ok {
					return
				}
				select {
				case out <- r:
					metrics.RecordQueueDequeue()
					q.observe()
				case <-ctx.Done():
					metrics.RecordQueueRejected("abandoned")
					if q.logger != nil {
						q.logger.Warn(ctx, "record abandoned on dequeue",
							logger.String("record_id", r.ID.String()),
							logger.String("client_id", r.ClientID))
					}
					return
				}
			}
		}
	}()
	return out
}

// Len returns the current number of queued records.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	q.observe()
	return len(q.records)
}

// Cap returns the configured capacity.
func (q *InMemoryQueue) Cap() int {
	return q.capacity
}

func (q *InMemoryQueue) observe() {
	size := len(q.records)
	utilization := float64(size) / float64(q.capacity)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(utilization)

	if q.highWatermark == 0 || q.logger == nil {
		return
	}
	switch {
	case utilization >= q.highWatermark && q.aboveMark.CompareAndSwap(false, true):
		q.logger.Warn(context.Background(), "queue above high watermark",
			logger.Int("size", size), logger.Int("capacity", q.capacity))
	case utilization < q.highWatermark/2 && q.aboveMark.CompareAndSwap(true, false):
		q.logger.Info(context.Background(), "queue drained below high watermark",
			logger.Int("size", size), logger.Int("capacity", q.capacity))
	}
}

// AboveHighWatermark reports whether the last observation crossed the high watermark.
func (q *InMemoryQueue) AboveHighWatermark() bool {
	return q.aboveMark.Load()
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	// Close the channel so consumers drain what is left and stop.
	close(q.records)
	q.closed = true

	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
