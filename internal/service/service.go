// Package service orchestrates weather retrieval: cache-aside reads over the
// provider adapters, the triple-check fan-out, and protection against
// concurrent duplicate fetches.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/petergault/supersky/internal/cache"
	"github.com/petergault/supersky/internal/geo"
	"github.com/petergault/supersky/internal/health"
	"github.com/petergault/supersky/internal/models"
	"github.com/petergault/supersky/internal/observability"
	"github.com/petergault/supersky/internal/provider"
)

// ErrUnsupportedSource is returned when a request names a source with no
// registered provider.
var ErrUnsupportedSource = errors.New("unsupported weather source")

// WeatherService coordinates the provider adapters behind a shared cache.
// Single-source lookups are cache-aside with request coalescing; the
// triple-check fan-out tolerates per-provider failure by materializing
// placeholders.
type WeatherService struct {
	providers map[models.Source]provider.Provider
	geocoder  geo.Geocoder
	cache     cache.Cache
	ttl       time.Duration
	googleTTL time.Duration
	health    *health.Tracker
	logger    *zap.Logger

	single   *coalescer[models.WeatherData]
	triple   *coalescer[[]models.WeatherData]
	stampede *stampedeTracker
}

// Config bundles WeatherService construction parameters.
type Config struct {
	Cache          cache.Cache
	Geocoder       geo.Geocoder
	CacheTTL       time.Duration
	GoogleCacheTTL time.Duration // longer TTL for the pagination-heavy source
	// DisableCoalescing turns off request coalescing entirely: concurrent
	// misses for the same key each reach the provider.
	DisableCoalescing bool
	CoalesceTimeout   time.Duration
	Health            *health.Tracker // optional; feeds the health endpoint
	Logger            *zap.Logger
}

// NewWeatherService creates a WeatherService over the given providers.
func NewWeatherService(providers []provider.Provider, cfg Config) *WeatherService {
	bySource := make(map[models.Source]provider.Provider, len(providers))
	for _, p := range providers {
		bySource[p.Source()] = p
	}
	if cfg.CoalesceTimeout <= 0 {
		cfg.CoalesceTimeout = 30 * time.Second
	}
	if cfg.GoogleCacheTTL <= 0 {
		cfg.GoogleCacheTTL = cfg.CacheTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	var (
		single *coalescer[models.WeatherData]
		triple *coalescer[[]models.WeatherData]
	)
	if !cfg.DisableCoalescing {
		single = newCoalescer[models.WeatherData](cfg.CoalesceTimeout)
		triple = newCoalescer[[]models.WeatherData](cfg.CoalesceTimeout)
	}
	return &WeatherService{
		providers: bySource,
		geocoder:  cfg.Geocoder,
		cache:     cfg.Cache,
		ttl:       cfg.CacheTTL,
		googleTTL: cfg.GoogleCacheTTL,
		health:    cfg.Health,
		logger:    cfg.Logger,
		single:    single,
		triple:    triple,
		stampede:  newStampedeTracker(),
	}
}

// ttlFor returns the cache TTL for one source. Google results are kept longer
// because re-assembly is a full pagination loop.
func (s *WeatherService) ttlFor(src models.Source) time.Duration {
	if src == models.SourceGoogleWeather {
		return s.googleTTL
	}
	return s.ttl
}

// GetWeather returns weather for a ZIP code from a single source, cache-aside.
// forceRefresh bypasses the cache read but still repopulates on success.
func (s *WeatherService) GetWeather(ctx context.Context, zip string, src models.Source, forceRefresh bool) (models.WeatherData, error) {
	key := cache.WeatherKey(zip, src)
	if !forceRefresh {
		if data, ok := s.cachedWeather(ctx, key, "weather"); ok {
			return data, nil
		}
	}

	misses := s.stampede.RecordMiss(key)
	defer s.stampede.RecordResolved(key)
	if misses > 1 {
		s.logger.Debug("concurrent cache misses", zap.String("key", key), zap.Int("count", misses))
	}

	loc, err := s.geocoder.Resolve(ctx, zip)
	if err != nil {
		return models.WeatherData{}, fmt.Errorf("resolve zip %s: %w", zip, err)
	}

	data, coalesced, err := s.single.Do(ctx, key, func() (models.WeatherData, error) {
		return s.fetchAndStore(ctx, key, src, loc)
	})
	if coalesced {
		s.logger.Debug("coalesced onto in-flight fetch", zap.String("key", key))
	}
	return data, err
}

// GetWeatherByLocation returns weather for explicit coordinates from a single
// source. No geocoding happens; the location carries only coordinates.
func (s *WeatherService) GetWeatherByLocation(ctx context.Context, coords models.Coordinates, src models.Source, forceRefresh bool) (models.WeatherData, error) {
	key := cache.LocationKey(coords, src)
	if !forceRefresh {
		if data, ok := s.cachedWeather(ctx, key, "weather_location"); ok {
			return data, nil
		}
	}

	loc := models.Location{Coordinates: coords}
	data, _, err := s.single.Do(ctx, key, func() (models.WeatherData, error) {
		return s.fetchAndStore(ctx, key, src, loc)
	})
	return data, err
}

// GetTripleWeather fans out to every provider concurrently and returns one
// result per source in the fixed TripleOrder. Provider failures become error
// placeholders in their slot; the call as a whole only fails when the ZIP
// cannot be resolved.
func (s *WeatherService) GetTripleWeather(ctx context.Context, zip string, forceRefresh bool) ([]models.WeatherData, error) {
	key := cache.TripleKey(zip)
	if !forceRefresh {
		if raw, ok, err := s.cache.Get(ctx, key); err != nil {
			observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		} else if ok {
			var results []models.WeatherData
			if err := json.Unmarshal(raw, &results); err == nil {
				observability.CacheHitsTotal.WithLabelValues("triple").Inc()
				return results, nil
			}
		}
	}

	loc, err := s.geocoder.Resolve(ctx, zip)
	if err != nil {
		return nil, fmt.Errorf("resolve zip %s: %w", zip, err)
	}

	results, _, err := s.triple.Do(ctx, key, func() ([]models.WeatherData, error) {
		return s.fanOut(ctx, key, loc), nil
	})
	return results, err
}

// fanOut runs every provider in TripleOrder concurrently and assembles the
// slice in that order regardless of completion order.
func (s *WeatherService) fanOut(ctx context.Context, key string, loc models.Location) []models.WeatherData {
	observability.TripleChecksTotal.Inc()
	start := time.Now()

	results := make([]ProviderResult, len(models.TripleOrder))
	var wg sync.WaitGroup
	for i, src := range models.TripleOrder {
		wg.Add(1)
		go func(i int, src models.Source) {
			defer wg.Done()
			p, ok := s.providers[src]
			if !ok {
				results[i] = ProviderResult{Source: src, Err: ErrUnsupportedSource}
				return
			}
			data, err := p.Fetch(ctx, loc)
			s.recordOutcome(src, err)
			results[i] = ProviderResult{Source: src, Data: data, Err: err}
		}(i, src)
	}
	wg.Wait()

	out := make([]models.WeatherData, len(results))
	anySuccess := false
	for i, r := range results {
		if r.Err != nil {
			observability.TripleCheckErrorsTotal.WithLabelValues(string(r.Source)).Inc()
			s.logger.Warn("triple-check provider failed",
				zap.String("provider", string(r.Source)),
				zap.Error(r.Err))
		} else {
			anySuccess = true
		}
		out[i] = r.Materialize(loc)
	}

	// All-failure responses are not worth caching; the next request should
	// retry the providers.
	if anySuccess {
		s.store(ctx, key, out, s.ttl)
	}

	s.logger.Info("triple check complete",
		zap.String("zip", loc.ZipCode),
		zap.Bool("anySuccess", anySuccess),
		zap.Duration("duration", time.Since(start)))
	return out
}

// fetchAndStore fetches from one provider and caches the success.
func (s *WeatherService) fetchAndStore(ctx context.Context, key string, src models.Source, loc models.Location) (models.WeatherData, error) {
	p, ok := s.providers[src]
	if !ok {
		return models.WeatherData{}, fmt.Errorf("%w: %s", ErrUnsupportedSource, src)
	}

	data, err := p.Fetch(ctx, loc)
	s.recordOutcome(src, err)
	if err != nil {
		return models.WeatherData{}, fmt.Errorf("fetch %s: %w", src, err)
	}

	s.store(ctx, key, data, s.ttlFor(src))
	return data, nil
}

func (s *WeatherService) recordOutcome(src models.Source, err error) {
	if s.health == nil {
		return
	}
	if err != nil {
		s.health.RecordError(string(src))
	} else {
		s.health.RecordSuccess(string(src))
	}
}

// cachedWeather reads and decodes a single WeatherData entry. Decode failures
// count as misses; the entry is rewritten on the subsequent fetch.
func (s *WeatherService) cachedWeather(ctx context.Context, key, endpoint string) (models.WeatherData, bool) {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		return models.WeatherData{}, false
	}
	if !ok {
		return models.WeatherData{}, false
	}
	var data models.WeatherData
	if err := json.Unmarshal(raw, &data); err != nil {
		return models.WeatherData{}, false
	}
	observability.CacheHitsTotal.WithLabelValues(endpoint).Inc()
	return data, true
}

func (s *WeatherService) store(ctx context.Context, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, ttl); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}
