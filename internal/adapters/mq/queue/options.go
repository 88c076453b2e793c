package queue

import "github.com/okian/uruk/pkg/logger"

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the maximum capacity of the queue.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithLogger sets the logger used for back-pressure warnings.
func WithLogger(l logger.Logger) Option {
	return func(q *InMemoryQueue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithHighWatermark warns once utilization reaches ratio and again after the
// queue drains below half of it. Ratios outside (0, 1] disable the warning.
func WithHighWatermark(ratio float64) Option {
	return func(q *InMemoryQueue) {
		if ratio > 0 && ratio <= 1 {
			q.highWatermark = ratio
		}
	}
}
