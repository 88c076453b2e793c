// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - All functions accept context.Context as the first parameter.
// - Errors are wrapped with this package's sentinel errors.
package config

import (
	"context"
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// EventsPath is the push endpoint path.
	EventsPath string `koanf:"events_path"`

	// MaxBodyBytes caps the size of a pushed token.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`

	// QueueSize bounds the in-memory outbound queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of workers draining the queue into stores.
	WorkerCount int `koanf:"worker_count"`

	// StoreRetries is the number of append attempts per record.
	StoreRetries int `koanf:"store_retries"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// Audience is the receiver's own audience value, used by registrations
	// that do not set one.
	Audience string `koanf:"audience"`

	Auth          Auth           `koanf:"auth"`
	Duplicate     Duplicate      `koanf:"duplicate"`
	Store         Store          `koanf:"store"`
	Registrations []Registration `koanf:"registrations"`
}

// Auth configures the bearer token that identifies a transmitter.
type Auth struct {
	Issuer   string `koanf:"issuer"`
	Audience string `koanf:"audience"`
	Secret   string `koanf:"secret"`
}

// Duplicate configures replay detection.
type Duplicate struct {
	Enabled       bool          `koanf:"enabled"`
	Backend       string        `koanf:"backend"` // memory or redis
	Retention     time.Duration `koanf:"retention"`
	MaxEntries    int           `koanf:"max_entries"`
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	KeyPrefix     string        `koanf:"key_prefix"`
}

// Store configures the downstream stores fed by the workers.
type Store struct {
	Backends     []string `koanf:"backends"` // memory, postgres, kafka
	PostgresDSN  string   `koanf:"postgres_dsn"`
	KafkaBrokers []string `koanf:"kafka_brokers"`
	KafkaTopic   string   `koanf:"kafka_topic"`
}

// Registration describes one transmitter.
//
// Key holds the verification key: the HMAC secret for HS* algorithms (raw
// text, or base64 when KeyEncoding is "base64"), a PEM public key otherwise.
// DecryptionKey is base64 for symmetric key management or a PEM private key.
type Registration struct {
	ClientID           string        `koanf:"client_id"`
	Algorithm          string        `koanf:"algorithm"`
	Key                string        `koanf:"key"`
	KeyEncoding        string        `koanf:"key_encoding"`
	Audience           string        `koanf:"audience"`
	Issuer             string        `koanf:"issuer"`
	MaxTokenAge        time.Duration `koanf:"max_token_age"`
	ClockSkew          time.Duration `koanf:"clock_skew"`
	CriticalHeaders    []string      `koanf:"critical_headers"`
	DecryptionKey      string        `koanf:"decryption_key"`
	KeyAlgorithms      []string      `koanf:"key_algorithms"`
	ContentEncryptions []string      `koanf:"content_encryptions"`
}

// Store backend names.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendKafka    = "kafka"
)

// New creates a Config holding the defaults.
func New(_ context.Context) *Config {
	c := &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		Addr:            ":9080",
		EventsPath:      "/events",
		MaxBodyBytes:    1 << 20,
		QueueSize:       100_000,
		WorkerCount:     runtime.NumCPU() * 2,
		StoreRetries:    3,
		ShutdownTimeout: 15 * time.Second,
		Audience:        "uruk",
		Duplicate: Duplicate{
			Enabled:   true,
			Backend:   BackendMemory,
			Retention: 24 * time.Hour,
			RedisAddr: "localhost:6379",
			KeyPrefix: "uruk:jti:",
		},
		Store: Store{
			Backends:   []string{BackendMemory},
			KafkaTopic: "uruk.security-events",
		},
	}
	return c
}
