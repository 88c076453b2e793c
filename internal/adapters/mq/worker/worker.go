// Package worker drains the intake queue into downstream stores.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/uruk/internal/adapters/mq/queue"
	"github.com/okian/uruk/internal/adapters/repository"
	"github.com/okian/uruk/pkg/logger"
	"github.com/okian/uruk/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	defaultAttempts         = 3
	defaultBackoff          = 100 * time.Millisecond
	poolShutdownTimeout     = 30 * time.Second
	stopGrace               = 2 * time.Second

	tracerName = "github.com/okian/uruk/internal/adapters/mq/worker"
)

// Record abstracts what workers read off the queue.
type Record = queue.Record

// Queue defines how workers receive records.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Record
}

// Worker moves records from the queue to a store.
type Worker interface {
	// Run starts the worker loop until ctx is canceled, Shutdown is called
	// or the queue is closed and drained.
	Run(ctx context.Context)

	// Shutdown stops the worker after the record in hand.
	Shutdown(ctx context.Context) error
}

// StoreWorker implements Worker on top of a repository.Store.
type StoreWorker struct {
	queue    Queue
	store    repository.Store
	name     string
	attempts int
	backoff  time.Duration
	tracer   trace.Tracer

	stored  atomic.Int64
	dropped atomic.Int64

	// Shutdown control
	shutdown chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// Logging
	logger logger.Logger
}

// NewStoreWorker creates a new worker with configuration options.
func NewStoreWorker(q Queue, store repository.Store, opts ...Option) *StoreWorker {
	w := &StoreWorker{
		queue:    q,
		store:    store,
		name:     "worker",
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
		tracer:   otel.Tracer(tracerName),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop. Shutdown cancels the context handed to the
// store, so an append in flight is abandoned rather than waited on.
func (w *StoreWorker) Run(ctx context.Context) {
	defer close(w.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()

	records := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case rec, ok := <-records:
			if !ok {
				return
			}
			if err := w.process(ctx, rec); err != nil {
				w.logger.Error(ctx, "dropping audit record", logger.Error(err))
			}
		}
	}
}

// stop signals the worker to return. Safe to call more than once.
func (w *StoreWorker) stop() {
	w.stopOnce.Do(func() { close(w.shutdown) })
}

// Shutdown gracefully stops the worker.
func (w *StoreWorker) Shutdown(ctx context.Context) error {
	w.stop()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Stored returns how many records this worker appended.
func (w *StoreWorker) Stored() int64 { return w.stored.Load() }

// Dropped returns how many records this worker gave up on.
func (w *StoreWorker) Dropped() int64 { return w.dropped.Load() }

// process appends one record, retrying with linear backoff.
func (w *StoreWorker) process(ctx context.Context, rec Record) error { //nolint:gocritic // hugeParam: Record must be passed by value for channel semantics
	storeName := repository.NameOf(w.store)
	ctx, span := w.tracer.Start(ctx, "worker.store", trace.WithAttributes(
		attribute.String("uruk.record_id", rec.ID.String()),
		attribute.String("uruk.client_id", rec.ClientID),
		attribute.String("uruk.store", storeName),
	))
	defer span.End()

	var (
		err   error
		tries int
	)
	for attempt := 1; attempt <= w.attempts; attempt++ {
		if attempt > 1 {
			metrics.RecordStoreRetry()
			if werr := w.wait(ctx, time.Duration(attempt-1)*w.backoff); werr != nil {
				err = werr
				break
			}
		}

		tries++
		start := time.Now()
		err = w.store.Append(ctx, rec)
		metrics.RecordStoreLatency(float64(time.Since(start).Microseconds()) / 1000)
		if err == nil {
			metrics.RecordStoreAppend(storeName, "ok")
			w.stored.Add(1)
			span.SetAttributes(attribute.Int("uruk.attempts", tries))
			return nil
		}
		metrics.RecordStoreAppend(storeName, "error")
		w.logger.Warn(ctx, "store append failed",
			logger.String("record_id", rec.ID.String()),
			logger.Int("attempt", attempt),
			logger.Error(err),
		)
	}

	metrics.RecordStoreDropped()
	w.dropped.Add(1)
	span.SetAttributes(attribute.Int("uruk.attempts", tries))
	span.RecordError(err)
	span.SetStatus(codes.Error, "store append failed")
	return fmt.Errorf("record %s (issuer %q, jti %q): %w", rec.ID, rec.Token.Issuer, rec.Token.JTI, err)
}

func (w *StoreWorker) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pool manages multiple workers.
type Pool struct {
	workers []*StoreWorker
	queue   Queue
	store   repository.Store

	// Logging
	logger logger.Logger
}

// NewPool creates a new worker pool. A non-positive count selects a default
// derived from the number of CPUs. opts apply to every worker.
func NewPool(workerCount int, q Queue, store repository.Store, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers: make([]*StoreWorker, workerCount),
		queue:   q,
		store:   store,
		logger:  logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		workerOpts := append(append([]Option{}, opts...), WithName("worker-"+strconv.Itoa(i)))
		pool.workers[i] = NewStoreWorker(q, store, workerOpts...)
	}

	metrics.UpdateWorkerCount(workerCount)

	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Stored returns the number of records appended by all workers.
func (p *Pool) Stored() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Stored()
	}
	return n
}

// Dropped returns the number of records all workers gave up on.
func (p *Pool) Dropped() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Dropped()
	}
	return n
}

// Shutdown closes the queue and lets the workers drain it. Workers still busy
// when ctx (or the pool timeout) expires are stopped and given a short grace
// period to return. The store is closed only once every worker has returned;
// a drain that missed the deadline is reported as an error wrapping ctx.Err().
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var errs []error
	for i, worker := range p.workers {
		select {
		case <-worker.done:
			continue
		case <-shutdownCtx.Done():
		}

		p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
		worker.stop()
		errs = append(errs, fmt.Errorf("%s: drain timed out: %w", worker.name, shutdownCtx.Err()))

		grace := time.NewTimer(stopGrace)
		select {
		case <-worker.done:
		case <-grace.C:
			errs = append(errs, fmt.Errorf("%s: %w", worker.name, ErrStillRunning))
		}
		grace.Stop()
	}

	metrics.UpdateWorkerCount(0)
	if errors.Is(errors.Join(errs...), ErrStillRunning) {
		// A worker may still be inside Append; leave the store open.
		return errors.Join(errs...)
	}
	if err := p.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}
