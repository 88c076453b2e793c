package dedupe

import "time"

// Option applies a configuration option to the InMemory detector.
type Option func(*InMemory)

// WithRetention sets how long an admitted key blocks replays.
func WithRetention(d time.Duration) Option {
	return func(m *InMemory) {
		if d > 0 {
			m.retention = d
		}
	}
}

// WithMaxEntries bounds the number of live keys. Zero or negative means unbounded.
// A full detector refuses new keys with ErrCapacity instead of evicting live ones.
func WithMaxEntries(n int) Option {
	return func(m *InMemory) {
		m.maxEntries = n
	}
}

// WithCleanupInterval sets how often expired keys are purged.
func WithCleanupInterval(d time.Duration) Option {
	return func(m *InMemory) {
		if d > 0 {
			m.cleanupInterval = d
		}
	}
}
