package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	queue "github.com/okian/uruk/internal/adapters/mq/queue"
	worker "github.com/okian/uruk/internal/adapters/mq/worker"
	"github.com/okian/uruk/internal/adapters/repository"
	"github.com/okian/uruk/internal/domain/model"
	"github.com/okian/uruk/internal/domain/token"
	logging "github.com/okian/uruk/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logging.InitWith(logging.FormatText, io.Discard); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// Mock implementations for testing.
type mockQueue struct {
	records chan queue.Record
	once    sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{records: make(chan queue.Record, 128)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan queue.Record { return mq.records }

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.records) })
	return nil
}

func (mq *mockQueue) add(rec queue.Record) { //nolint:gocritic // hugeParam: Record must be passed by value for channel semantics
	mq.records <- rec
}

// flakyStore fails the first failures appends of every record.
type flakyStore struct {
	mu       sync.Mutex
	failures int
	calls    map[string]int
	stored   map[string]model.AuditRecord
	closed   bool
}

func newFlakyStore(failures int) *flakyStore {
	return &flakyStore{
		failures: failures,
		calls:    make(map[string]int),
		stored:   make(map[string]model.AuditRecord),
	}
}

func (s *flakyStore) Name() string { return "flaky" }

func (s *flakyStore) Append(_ context.Context, rec model.AuditRecord) error { //nolint:gocritic // hugeParam: records are values end to end
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[rec.Token.JTI]++
	if s.calls[rec.Token.JTI] <= s.failures {
		return errors.New("store unavailable")
	}
	s.stored[rec.Token.JTI] = rec
	return nil
}

func (s *flakyStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *flakyStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stored)
}

func (s *flakyStore) callsFor(jti string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[jti]
}

func (s *flakyStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// hangingStore blocks in Append until released or, when it honors the
// context, until the caller gives up.
type hangingStore struct {
	honorCtx bool
	entered  chan struct{}
	release  chan struct{}

	mu                 sync.Mutex
	inAppend           bool
	closed             bool
	closedDuringAppend bool
}

func newHangingStore(honorCtx bool) *hangingStore {
	return &hangingStore{
		honorCtx: honorCtx,
		entered:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
}

func (s *hangingStore) Name() string { return "hanging" }

func (s *hangingStore) Append(ctx context.Context, _ model.AuditRecord) error { //nolint:gocritic // hugeParam: records are values end to end
	s.mu.Lock()
	s.inAppend = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inAppend = false
		s.mu.Unlock()
	}()

	select {
	case s.entered <- struct{}{}:
	default:
	}

	done := ctx.Done()
	if !s.honorCtx {
		done = nil
	}
	select {
	case <-s.release:
		return nil
	case <-done:
		return ctx.Err()
	}
}

func (s *hangingStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.inAppend {
		s.closedDuringAppend = true
	}
	return nil
}

func (s *hangingStore) state() (closed, closedDuringAppend bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, s.closedDuringAppend
}

func newRecord(jti string) queue.Record {
	return model.NewAuditRecord([]byte("a.b.c"), token.Decoded{
		Issuer:   "issuer.example",
		Audience: []string{"uruk"},
		JTI:      jti,
		IssuedAt: time.Now(),
		Events:   map[string]json.RawMessage{"test": json.RawMessage(`{}`)},
	}, "Bob", time.Now())
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestStoreWorker(t *testing.T) {
	convey.Convey("Given a running StoreWorker", t, func() {
		q := newMockQueue()
		store := newFlakyStore(0)
		w := worker.NewStoreWorker(q, store, worker.WithName("test-worker"), worker.WithBackoff(time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a record is queued", func() {
			q.add(newRecord("abc123"))

			convey.Convey("Then it reaches the store", func() {
				convey.So(eventually(func() bool { return store.count() == 1 }), convey.ShouldBeTrue)
				convey.So(w.Stored(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer shutdownCancel()

			convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)

			convey.Convey("Then a second shutdown is harmless", func() {
				convey.So(func() { _ = w.Shutdown(shutdownCtx) }, convey.ShouldNotPanic)
			})
		})
	})

	convey.Convey("Given a store that fails twice per record", t, func() {
		q := newMockQueue()
		store := newFlakyStore(2)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		convey.Convey("Three attempts are enough", func() {
			w := worker.NewStoreWorker(q, store, worker.WithAttempts(3), worker.WithBackoff(time.Millisecond))
			go w.Run(ctx)
			q.add(newRecord("retry"))

			convey.So(eventually(func() bool { return store.count() == 1 }), convey.ShouldBeTrue)
			convey.So(store.callsFor("retry"), convey.ShouldEqual, 3)
			convey.So(w.Dropped(), convey.ShouldEqual, 0)
		})

		convey.Convey("Two attempts drop the record", func() {
			w := worker.NewStoreWorker(q, store, worker.WithAttempts(2), worker.WithBackoff(time.Millisecond))
			go w.Run(ctx)
			q.add(newRecord("dropped"))

			convey.So(eventually(func() bool { return w.Dropped() == 1 }), convey.ShouldBeTrue)
			convey.So(store.callsFor("dropped"), convey.ShouldEqual, 2)
			convey.So(store.count(), convey.ShouldEqual, 0)
		})
	})

	convey.Convey("A closed and drained queue stops the worker", t, func() {
		q := newMockQueue()
		store := newFlakyStore(0)
		w := worker.NewStoreWorker(q, store)
		q.add(newRecord("last"))
		_ = q.Close()

		done := make(chan struct{})
		go func() {
			w.Run(context.Background())
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
		}
		convey.So(store.count(), convey.ShouldEqual, 1)
	})
}

func TestStoreWorkerTracing(t *testing.T) {
	convey.Convey("Given a worker with a recording tracer", t, func() {
		recorder := tracetest.NewSpanRecorder()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
		q := newMockQueue()
		store := newFlakyStore(1)
		w := worker.NewStoreWorker(q, store,
			worker.WithTracerProvider(tp),
			worker.WithAttempts(1),
		)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		q.add(newRecord("traced"))
		convey.So(eventually(func() bool { return len(recorder.Ended()) == 1 }), convey.ShouldBeTrue)

		span := recorder.Ended()[0]
		convey.So(span.Name(), convey.ShouldEqual, "worker.store")
		convey.So(span.Status().Code, convey.ShouldEqual, codes.Error)
		convey.So(span.Attributes(), convey.ShouldContain, attribute.String("uruk.store", "flaky"))
		convey.So(span.Attributes(), convey.ShouldContain, attribute.Int("uruk.attempts", 1))
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a new worker pool", t, func() {
		q := newMockQueue()
		store := newFlakyStore(0)

		convey.Convey("When creating a pool with default count", func() {
			pool := worker.NewPool(0, q, store)
			convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
		})

		convey.Convey("When many records arrive concurrently", func() {
			pool := worker.NewPool(4, q, store)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			const recordCount = 100
			var wg sync.WaitGroup
			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func(producer int) {
					defer wg.Done()
					for j := 0; j < recordCount/5; j++ {
						q.add(newRecord(fmt.Sprintf("jti-%d-%d", producer, j)))
					}
				}(i)
			}
			wg.Wait()

			convey.Convey("Then every record is stored once", func() {
				convey.So(eventually(func() bool { return store.count() == recordCount }), convey.ShouldBeTrue)
				convey.So(pool.Stored(), convey.ShouldEqual, recordCount)
				convey.So(pool.Dropped(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When shutting down with records still queued", func() {
			pool := worker.NewPool(2, q, store)
			for i := 0; i < 10; i++ {
				q.add(newRecord(fmt.Sprintf("pending-%d", i)))
			}
			pool.Start(context.Background())

			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			err := pool.Shutdown(shutdownCtx)

			convey.Convey("Then the queue is drained and the store closed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(store.count(), convey.ShouldEqual, 10)
				convey.So(store.isClosed(), convey.ShouldBeTrue)
			})
		})
	})
}

func TestWorkerWithMemoryStore(t *testing.T) {
	convey.Convey("Given a pool draining an in-memory queue into a memory store", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		store := repository.NewMemoryStore()
		pool := worker.NewPool(2, q, store)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		rec := newRecord("abc123")
		convey.So(q.TryWrite(ctx, rec), convey.ShouldBeTrue)
		convey.So(q.TryWrite(ctx, rec), convey.ShouldBeTrue)

		convey.So(eventually(func() bool { return pool.Stored() == 2 }), convey.ShouldBeTrue)
		convey.So(store.Count(ctx), convey.ShouldEqual, 1)

		got, err := store.Get(ctx, rec.ID)
		convey.So(err, convey.ShouldBeNil)
		convey.So(got.ClientID, convey.ShouldEqual, "Bob")
	})
}

func TestPoolShutdownTimeout(t *testing.T) {
	convey.Convey("Given a single worker stuck in Append", t, func() {
		q := newMockQueue()

		convey.Convey("When the store gives up on cancellation", func() {
			store := newHangingStore(true)
			pool := worker.NewPool(1, q, store, worker.WithAttempts(1))
			pool.Start(context.Background())
			q.add(newRecord("stuck"))
			<-store.entered

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			err := pool.Shutdown(shutdownCtx)

			convey.Convey("Then the missed deadline is reported", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
				convey.So(errors.Is(err, worker.ErrStillRunning), convey.ShouldBeFalse)
			})

			convey.Convey("Then the store is closed only after the append returned", func() {
				closed, duringAppend := store.state()
				convey.So(closed, convey.ShouldBeTrue)
				convey.So(duringAppend, convey.ShouldBeFalse)
				convey.So(pool.Dropped(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When the store ignores cancellation", func() {
			store := newHangingStore(false)
			defer close(store.release)
			pool := worker.NewPool(1, q, store, worker.WithAttempts(1))
			pool.Start(context.Background())
			q.add(newRecord("stuck"))
			<-store.entered

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			err := pool.Shutdown(shutdownCtx)

			convey.Convey("Then the store is left open and the error says why", func() {
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
				convey.So(errors.Is(err, worker.ErrStillRunning), convey.ShouldBeTrue)
				closed, duringAppend := store.state()
				convey.So(closed, convey.ShouldBeFalse)
				convey.So(duringAppend, convey.ShouldBeFalse)
			})
		})
	})
}
