package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/petergault/supersky/internal/models"
	"github.com/petergault/supersky/internal/observability"
)

// TripleFetcher is implemented by the service layer. Declared here so the
// warmer does not depend on the service package.
type TripleFetcher interface {
	GetTripleWeather(ctx context.Context, zip string, forceRefresh bool) ([]models.WeatherData, error)
}

// Warmer prefetches triple-check results for a list of tracked ZIP codes so
// the first dashboard load after startup hits a warm cache.
type Warmer struct {
	fetcher TripleFetcher
	logger  *zap.Logger
}

// NewWarmer creates a Warmer that uses the given fetcher and logger.
func NewWarmer(fetcher TripleFetcher, logger *zap.Logger) *Warmer {
	return &Warmer{fetcher: fetcher, logger: logger}
}

// Warm fetches the triple-check result for each ZIP concurrently, populating
// the cache via the fetcher. Returns an aggregated error if any ZIP failed.
func (w *Warmer) Warm(ctx context.Context, zips []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming cache", zap.Int("zips", len(zips)))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(zips))
	for _, zip := range zips {
		wg.Add(1)
		go func(zip string) {
			defer wg.Done()
			if _, err := w.fetcher.GetTripleWeather(ctx, zip, false); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", zip, err)
			}
		}(zip)
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("zips", len(zips)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %v", errs)
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval
// until ctx is done.
func (w *Warmer) WarmPeriodic(ctx context.Context, zips []string, interval time.Duration) error {
	if err := w.Warm(ctx, zips); err != nil && w.logger != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, zips); err != nil && w.logger != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
