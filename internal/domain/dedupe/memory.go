package dedupe

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Default in-memory detector configuration.
const (
	defaultRetention       = 24 * time.Hour
	defaultCleanupInterval = 10 * time.Minute
)

// InMemory is a process-local Detector backed by an expiring cache.
type InMemory struct {
	cache           *gocache.Cache
	retention       time.Duration
	cleanupInterval time.Duration
	maxEntries      int
	mu              sync.Mutex // serializes the capacity check with the insert
}

// NewInMemory creates an in-memory detector with configuration options.
func NewInMemory(opts ...Option) *InMemory {
	m := &InMemory{
		retention:       defaultRetention,
		cleanupInterval: defaultCleanupInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.cache = gocache.New(m.retention, m.cleanupInterval)
	return m
}

// TryAdmit implements Detector.
func (m *InMemory) TryAdmit(ctx context.Context, k Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	id := k.String()

	if m.maxEntries <= 0 {
		// Add fails when a live entry exists, which makes check-and-record atomic.
		return m.cache.Add(id, struct{}{}, gocache.DefaultExpiration) == nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, found := m.cache.Get(id); found {
		return false, nil
	}
	if m.cache.ItemCount() >= m.maxEntries {
		m.cache.DeleteExpired()
		if m.cache.ItemCount() >= m.maxEntries {
			return false, fmt.Errorf("%w: %d keys", ErrCapacity, m.maxEntries)
		}
	}
	return m.cache.Add(id, struct{}{}, gocache.DefaultExpiration) == nil, nil
}

// Size returns the number of keys held, including expired ones not yet purged.
func (m *InMemory) Size() int {
	return m.cache.ItemCount()
}

// Retention returns the replay window.
func (m *InMemory) Retention() time.Duration {
	return m.retention
}
