// Package redis implements a duplicate detector shared across receiver processes.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/okian/uruk/internal/domain/dedupe"
)

// Default detector configuration.
const (
	defaultRetention = 24 * time.Hour
	defaultPrefix    = "uruk:jti:"
)

// Detector admits keys with SET NX PX, so admission is atomic across processes.
type Detector struct {
	client    goredis.UniversalClient
	retention time.Duration
	prefix    string
}

// NewDetector creates a Redis backed detector with configuration options.
func NewDetector(client goredis.UniversalClient, opts ...Option) *Detector {
	d := &Detector{
		client:    client,
		retention: defaultRetention,
		prefix:    defaultPrefix,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// TryAdmit implements dedupe.Detector. Redis failures are reported as dedupe.ErrUnavailable.
func (d *Detector) TryAdmit(ctx context.Context, k dedupe.Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := d.client.SetNX(ctx, d.prefix+k.String(), 1, d.retention).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %w", dedupe.ErrUnavailable, err)
	}
	return ok, nil
}

// Ping checks connectivity.
func (d *Detector) Ping(ctx context.Context) error {
	if err := d.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", dedupe.ErrUnavailable, err)
	}
	return nil
}

// Close releases the underlying client.
func (d *Detector) Close() error {
	return d.client.Close()
}
