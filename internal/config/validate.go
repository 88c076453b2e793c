package config

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Validate checks the configuration for values the service cannot start with.
// All problems are reported together, each wrapped in ErrInvalidConfig.
func (c *Config) Validate(ctx context.Context) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Addr == "" {
		fail("addr must not be empty")
	}
	if !strings.HasPrefix(c.EventsPath, "/") {
		fail("events_path must start with /: %q", c.EventsPath)
	}
	if c.MaxBodyBytes <= 0 {
		fail("max_body_bytes must be positive")
	}
	if c.QueueSize <= 0 {
		fail("queue_size must be positive")
	}
	if c.WorkerCount < 0 {
		fail("worker_count must not be negative")
	}
	if c.StoreRetries < 1 {
		fail("store_retries must be at least 1")
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		fail("unknown log_level %q", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		fail("unknown log_format %q", c.LogFormat)
	}
	if c.Auth.Secret == "" {
		fail("auth.secret must be set")
	}

	if c.Duplicate.Enabled {
		switch c.Duplicate.Backend {
		case BackendMemory:
		case BackendRedis:
			if c.Duplicate.RedisAddr == "" {
				fail("duplicate.redis_addr is required for the redis backend")
			}
		default:
			fail("unknown duplicate.backend %q", c.Duplicate.Backend)
		}
		if c.Duplicate.Retention <= 0 {
			fail("duplicate.retention must be positive")
		}
		if c.Duplicate.MaxEntries < 0 {
			fail("duplicate.max_entries must not be negative")
		}
	}

	if len(c.Store.Backends) == 0 {
		fail("store.backends must name at least one backend")
	}
	for _, b := range c.Store.Backends {
		switch b {
		case BackendMemory:
		case BackendPostgres:
			if c.Store.PostgresDSN == "" {
				fail("store.postgres_dsn is required for the postgres backend")
			}
		case BackendKafka:
			if len(c.Store.KafkaBrokers) == 0 || c.Store.KafkaTopic == "" {
				fail("store.kafka_brokers and store.kafka_topic are required for the kafka backend")
			}
		default:
			fail("unknown store backend %q", b)
		}
	}

	if _, err := c.BuildRegistry(ctx); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// HasStore reports whether backend is one of the configured stores.
func (c *Config) HasStore(backend string) bool {
	return slices.Contains(c.Store.Backends, backend)
}
