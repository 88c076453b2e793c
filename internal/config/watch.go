package config

import (
	"context"
	"fmt"

	"github.com/knadh/koanf/providers/file"

	"github.com/okian/uruk/internal/domain/registration"
	"github.com/okian/uruk/pkg/logger"
	"github.com/okian/uruk/pkg/metrics"
)

// Watch reloads registrations from path whenever the file changes and swaps
// the result into holder. A file that fails to load or validate leaves the
// current registry in place. Watching stops when ctx is done.
func Watch(ctx context.Context, path string, holder *registration.Holder) error {
	if path == "" {
		return fmt.Errorf("%w: no config file to watch", ErrWatchConfig)
	}
	log := logger.Get().Named("config")
	f := file.Provider(path)

	err := f.Watch(func(_ interface{}, err error) {
		if err != nil {
			metrics.RecordRegistryReload("error")
			log.Error(ctx, "config watch failed", logger.Error(err))
			return
		}
		if err := Reload(ctx, path, holder); err != nil {
			log.Warn(ctx, "registrations not reloaded", logger.Error(err))
			return
		}
		log.Info(ctx, "registrations reloaded", logger.Int("registrations", holder.Load().Len()))
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWatchConfig, path, err)
	}

	go func() {
		<-ctx.Done()
		_ = f.Unwatch()
	}()
	return nil
}

// Reload reads path once and installs its registrations in holder.
func Reload(ctx context.Context, path string, holder *registration.Holder) error {
	cfg, err := loadFrom(ctx, path)
	if err != nil {
		metrics.RecordRegistryReload("error")
		return err
	}
	reg, err := cfg.BuildRegistry(ctx)
	if err != nil {
		metrics.RecordRegistryReload("error")
		return err
	}
	holder.Swap(reg)
	metrics.UpdateRegistrations(reg.Len())
	metrics.RecordRegistryReload("ok")
	return nil
}
