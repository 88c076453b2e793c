package repository

import "time"

// PostgresOption applies a configuration option to the PostgresStore.
type PostgresOption func(*PostgresStore)

// WithTable sets the table records are written to.
func WithTable(name string) PostgresOption {
	return func(s *PostgresStore) {
		if name != "" {
			s.table = name
		}
	}
}

// KafkaOption applies a configuration option to the KafkaStore.
type KafkaOption func(*KafkaStore)

// WithMessageWriter replaces the Kafka writer, mainly for tests.
func WithMessageWriter(w MessageWriter) KafkaOption {
	return func(s *KafkaStore) {
		if w != nil {
			s.writer = w
		}
	}
}

// WithBatchTimeout bounds how long the default writer waits to fill a batch.
func WithBatchTimeout(d time.Duration) KafkaOption {
	return func(s *KafkaStore) {
		if d > 0 {
			s.batchTimeout = d
		}
	}
}
