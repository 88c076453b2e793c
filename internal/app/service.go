// Package service wires the receiver: registrations, the intake pipeline,
// the outbound queue and the workers that feed downstream stores.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	redisdedupe "github.com/okian/uruk/internal/adapters/dedupe/redis"
	eventqueue "github.com/okian/uruk/internal/adapters/mq/queue"
	workerpool "github.com/okian/uruk/internal/adapters/mq/worker"
	"github.com/okian/uruk/internal/adapters/repository"
	"github.com/okian/uruk/internal/config"
	"github.com/okian/uruk/internal/domain/dedupe"
	"github.com/okian/uruk/internal/domain/intake"
	"github.com/okian/uruk/internal/domain/registration"
	"github.com/okian/uruk/internal/domain/token"
	"github.com/okian/uruk/pkg/logger"
	"github.com/okian/uruk/pkg/metrics"
)

const (
	backoffBase = 100 * time.Millisecond
	pingTimeout = 2 * time.Second

	queueHighWatermark = 0.8
)

// ErrNotStarted is returned by operations that need a started service.
var ErrNotStarted = errors.New("service not started")

// Service owns the receiver components and exposes what the HTTP API needs.
type Service struct {
	mu sync.RWMutex

	cfg    *config.Config
	holder *registration.Holder

	// Core components
	detector dedupe.Detector
	queue    *eventqueue.InMemoryQueue
	store    repository.Store
	memory   *repository.MemoryStore
	pool     *workerpool.Pool
	pipeline *intake.Pipeline

	// Injected or built on Start
	tracerProvider trace.TracerProvider
	redisClient    goredis.UniversalClient
	stores         []repository.Store

	// State
	started bool

	// Logging
	logger logger.Logger
}

// New constructs a Service for cfg. Nothing is connected until Start.
func New(cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		cfg:            cfg,
		holder:         registration.NewHolder(nil),
		tracerProvider: otel.GetTracerProvider(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start builds the registry, connects the backends and starts the workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting receiver service...")

	reg, err := s.cfg.BuildRegistry(ctx)
	if err != nil {
		return err
	}
	s.holder.Swap(reg)
	metrics.UpdateRegistrations(reg.Len())

	if s.detector, err = s.buildDetector(ctx); err != nil {
		return err
	}

	stores := s.stores
	if len(stores) == 0 {
		if stores, err = s.buildStores(ctx); err != nil {
			s.closeDetector()
			return err
		}
	}
	for _, st := range stores {
		if m, ok := st.(*repository.MemoryStore); ok {
			s.memory = m
		}
	}
	s.store = repository.NewFanout(stores...)

	s.queue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.cfg.QueueSize),
		eventqueue.WithLogger(s.logger.Named("queue")),
		eventqueue.WithHighWatermark(queueHighWatermark),
	)
	s.pool = workerpool.NewPool(s.cfg.WorkerCount, s.queue, s.store,
		workerpool.WithAttempts(s.cfg.StoreRetries),
		workerpool.WithBackoff(backoffBase),
		workerpool.WithTracerProvider(s.tracerProvider),
	)

	s.pipeline, err = intake.New(token.NewValidator(), s.queue,
		intake.WithDetector(s.detector),
		intake.WithTracerProvider(s.tracerProvider),
	)
	if err != nil {
		s.closeDetector()
		return err
	}

	// Workers outlive the start context; Stop ends them.
	s.pool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "receiver service started",
		logger.Int("registrations", reg.Len()),
		logger.Int("workers", s.pool.Size()),
		logger.Int("queue_size", s.cfg.QueueSize),
		logger.Bool("duplicate_detection", s.cfg.Duplicate.Enabled),
		logger.String("store", repository.NameOf(s.store)),
	)
	return nil
}

func (s *Service) buildDetector(ctx context.Context) (dedupe.Detector, error) {
	d := s.cfg.Duplicate
	if !d.Enabled {
		return dedupe.Disabled(), nil
	}
	switch d.Backend {
	case config.BackendRedis:
		if s.redisClient == nil {
			s.redisClient = goredis.NewClient(&goredis.Options{
				Addr:     d.RedisAddr,
				Password: d.RedisPassword,
				DB:       d.RedisDB,
			})
		}
		det := redisdedupe.NewDetector(s.redisClient,
			redisdedupe.WithRetention(d.Retention),
			redisdedupe.WithKeyPrefix(d.KeyPrefix),
		)
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := det.Ping(pctx); err != nil {
			// Requests fail closed until Redis answers.
			s.logger.Warn(ctx, "duplicate store unreachable", logger.Error(err))
		}
		return det, nil
	default:
		return dedupe.NewInMemory(
			dedupe.WithRetention(d.Retention),
			dedupe.WithMaxEntries(d.MaxEntries),
		), nil
	}
}

func (s *Service) buildStores(ctx context.Context) ([]repository.Store, error) {
	stores := make([]repository.Store, 0, len(s.cfg.Store.Backends))
	closeAll := func() {
		for _, st := range stores {
			_ = st.Close()
		}
	}
	for _, name := range s.cfg.Store.Backends {
		switch name {
		case config.BackendMemory:
			stores = append(stores, repository.NewMemoryStore())
		case config.BackendPostgres:
			pg, err := repository.NewPostgresStore(ctx, s.cfg.Store.PostgresDSN)
			if err != nil {
				closeAll()
				return nil, err
			}
			if err := pg.EnsureSchema(ctx); err != nil {
				_ = pg.Close()
				closeAll()
				return nil, err
			}
			stores = append(stores, pg)
		case config.BackendKafka:
			stores = append(stores, repository.NewKafkaStore(s.cfg.Store.KafkaBrokers, s.cfg.Store.KafkaTopic))
		default:
			closeAll()
			return nil, fmt.Errorf("%w: %q", repository.ErrUnsupported, name)
		}
	}
	return stores, nil
}

func (s *Service) closeDetector() {
	if c, ok := s.detector.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}

// Stop drains the queue into the stores and releases every backend.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info(ctx, "stopping receiver service...")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if c, ok := s.detector.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close duplicate store: %w", err))
		}
	}

	s.started = false
	s.logger.Info(ctx, "receiver service stopped",
		logger.Int("stored", int(s.pool.Stored())),
		logger.Int("dropped", int(s.pool.Dropped())),
	)
	return errors.Join(errs...)
}

// Registrations returns the holder serving the current registry.
func (s *Service) Registrations() *registration.Holder {
	return s.holder
}

// Lookup resolves a client's registration.
func (s *Service) Lookup(clientID string) (*registration.Policy, bool) {
	return s.holder.Lookup(clientID)
}

// Process runs a pushed token through the intake pipeline.
func (s *Service) Process(ctx context.Context, raw []byte, policy *registration.Policy) intake.Result {
	s.mu.RLock()
	p := s.pipeline
	started := s.started
	s.mu.RUnlock()

	if !started {
		return intake.QueueUnavailable()
	}
	return p.Process(ctx, raw, policy)
}

// MemoryStore returns the in-memory store when one is configured.
func (s *Service) MemoryStore() (*repository.MemoryStore, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.memory, s.memory != nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":       s.started,
		"registrations": s.holder.Load().Len(),
		"queueCapacity": s.cfg.QueueSize,
	}

	if s.started {
		stats["queueLength"] = s.queue.Len(ctx)
		stats["workerCount"] = s.pool.Size()
		stats["stored"] = s.pool.Stored()
		stats["dropped"] = s.pool.Dropped()
		stats["store"] = repository.NameOf(s.store)
		if m, ok := s.detector.(*dedupe.InMemory); ok {
			stats["duplicateEntries"] = m.Size()
		}
		if s.memory != nil {
			stats["storedRecords"] = s.memory.Count(ctx)
		}
	}

	return stats
}
