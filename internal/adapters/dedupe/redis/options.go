package redis

import "time"

// Option applies a configuration option to the Detector.
type Option func(*Detector)

// WithRetention sets the key lifetime in Redis.
func WithRetention(d time.Duration) Option {
	return func(r *Detector) {
		if d > 0 {
			r.retention = d
		}
	}
}

// WithKeyPrefix namespaces detector keys in a shared Redis.
func WithKeyPrefix(prefix string) Option {
	return func(r *Detector) {
		r.prefix = prefix
	}
}
