package repository

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/okian/uruk/internal/domain/model"
)

// Fanout appends every record to several stores concurrently.
type Fanout struct {
	stores []Store
}

// NewFanout combines stores. A single store is returned unwrapped.
func NewFanout(stores ...Store) Store {
	if len(stores) == 1 {
		return stores[0]
	}
	return &Fanout{stores: stores}
}

// Name implements Named.
func (f *Fanout) Name() string { return "fanout" }

// Append writes rec to all stores and returns the first failure.
func (f *Fanout) Append(ctx context.Context, rec model.AuditRecord) error { //nolint:gocritic // hugeParam: records are values end to end
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range f.stores {
		g.Go(func() error {
			if err := s.Append(gctx, rec); err != nil {
				return fmt.Errorf("%s: %w", NameOf(s), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close closes every store.
func (f *Fanout) Close() error {
	errs := make([]error, 0, len(f.stores))
	for _, s := range f.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", NameOf(s), err))
		}
	}
	return errors.Join(errs...)
}
