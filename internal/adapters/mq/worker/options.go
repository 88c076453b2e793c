package worker

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/okian/uruk/pkg/logger"
)

// Option applies a configuration option to the StoreWorker.
type Option func(*StoreWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *StoreWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *StoreWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithAttempts sets how many times a record is offered to the store before
// it is dropped.
func WithAttempts(n int) Option {
	return func(w *StoreWorker) {
		if n > 0 {
			w.attempts = n
		}
	}
}

// WithBackoff sets the base delay between attempts. The n-th retry waits n times the base.
func WithBackoff(d time.Duration) Option {
	return func(w *StoreWorker) {
		if d >= 0 {
			w.backoff = d
		}
	}
}

// WithTracerProvider sets the provider the worker takes its tracer from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(w *StoreWorker) {
		if tp != nil {
			w.tracer = tp.Tracer(tracerName)
		}
	}
}
