package service

import (
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/uruk/internal/adapters/repository"
	"github.com/okian/uruk/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracerProvider sets the tracer provider used by the pipeline and workers.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		if tp != nil {
			s.tracerProvider = tp
		}
	}
}

// WithRedisClient supplies the client for the redis duplicate backend instead
// of dialing duplicate.redis_addr. The service closes it on Stop.
func WithRedisClient(client goredis.UniversalClient) Option {
	return func(s *Service) {
		if client != nil {
			s.redisClient = client
		}
	}
}

// WithStores replaces the configured store backends.
func WithStores(stores ...repository.Store) Option {
	return func(s *Service) {
		if len(stores) > 0 {
			s.stores = stores
		}
	}
}
