package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/petergault/supersky/internal/cache"
	"github.com/petergault/supersky/internal/circuitbreaker"
	"github.com/petergault/supersky/internal/config"
	"github.com/petergault/supersky/internal/geo"
	"github.com/petergault/supersky/internal/health"
	httphandler "github.com/petergault/supersky/internal/http"
	"github.com/petergault/supersky/internal/lifecycle"
	"github.com/petergault/supersky/internal/observability"
	"github.com/petergault/supersky/internal/provider"
	"github.com/petergault/supersky/internal/service"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	var cacheSvc cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		cacheSvc = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		cacheSvc = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}

	geocoder := geo.NewAzureGeocoder(cfg.AzureMapsAPIKey, cfg.AzureMapsBaseURL, cfg.ProviderTimeout, cacheSvc, cfg.GeocodeTTL, logger)
	ipLocator := geo.NewIPLocator(cfg.IPLocationURL, cfg.IPLocationTimeout, cacheSvc, cfg.IPLocationTTL, logger)

	providers := buildProviders(cfg, cacheSvc, logger)
	healthTracker := health.NewTracker()

	weatherService := service.NewWeatherService(providers, service.Config{
		Cache:             cacheSvc,
		Geocoder:          geocoder,
		CacheTTL:          cfg.CacheTTL,
		GoogleCacheTTL:    cfg.GoogleCacheTTL,
		DisableCoalescing: !cfg.CoalesceEnabled,
		CoalesceTimeout:   cfg.CoalesceTimeout,
		Health:            healthTracker,
		Logger:            logger,
	})

	healthConfig := &httphandler.HealthConfig{
		Providers:      healthTracker,
		ProviderWindow: time.Minute,
		StartTime:      time.Now(),
		Version:        "dev",
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(weatherService, ipLocator, healthConfig, logger, cfg.IsProduction())

	if len(cfg.WarmZips) > 0 {
		warmer := cache.NewWarmer(weatherService, logger)
		warmCtx, warmCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := warmer.Warm(warmCtx, cfg.WarmZips); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
		if cfg.WarmInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(context.Background(), cfg.WarmZips, cfg.WarmInterval); err != nil && err != context.Canceled {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		}
	}

	inflight := httphandler.NewInFlightTracker()
	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware(inflight))
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	weatherRouter := router.PathPrefix("/api/weather").Subrouter()
	weatherRouter.Use(httphandler.RateLimitMiddleware(limiter))
	weatherRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	weatherRouter.HandleFunc("/ip-location", handler.GetIPLocation).Methods("GET")
	weatherRouter.HandleFunc("/location", handler.GetWeatherByLocation).Methods("GET")
	weatherRouter.HandleFunc("/{zipCode}/triple", handler.GetTripleWeather).Methods("GET")
	weatherRouter.HandleFunc("/{zipCode}", handler.GetWeather).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort), zap.String("env", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", inflight.Active()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := inflight.Drain(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inflight.Active()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

// buildProviders constructs all four adapters, each behind its own circuit
// breaker when breakers are enabled. Adapters with missing keys are still
// registered; they report their configuration error per request, which the
// triple check surfaces as a placeholder.
func buildProviders(cfg *config.Config, cacheSvc cache.Cache, logger *zap.Logger) []provider.Provider {
	providers := []provider.Provider{
		provider.NewGoogleWeatherProvider(provider.GoogleWeatherConfig{
			APIKey:     cfg.GoogleWeatherAPIKey,
			BaseURL:    cfg.GoogleWeatherBaseURL,
			TotalHours: cfg.GoogleTotalHours,
			PageDelay:  cfg.GooglePageDelay,
			Timeout:    cfg.GoogleTimeout,
			Cache:      cacheSvc,
			CacheTTL:   cfg.GoogleCacheTTL,
			Logger:     logger,
		}),
		provider.NewAzureMapsProvider(cfg.AzureMapsAPIKey, cfg.AzureMapsBaseURL, cfg.ProviderTimeout),
		provider.NewForecaProvider(cfg.RapidAPIKey, cfg.RapidAPIHost, cfg.ProviderTimeout),
		provider.NewOpenMeteoProvider(cfg.OpenMeteoBaseURL, cfg.ProviderTimeout),
	}

	if !cfg.CircuitBreakerEnabled {
		return providers
	}

	wrapped := make([]provider.Provider, 0, len(providers))
	for _, p := range providers {
		name := string(p.Source())
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Provider:         name,
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition(name, from.String(), to.String(), float64(to))
			},
		})
		observability.CircuitBreakerState.WithLabelValues(name).Set(float64(circuitbreaker.StateClosed))
		wrapped = append(wrapped, provider.WithBreaker(p, cb))
	}
	logger.Info("circuit breakers enabled",
		zap.Int("providers", len(wrapped)),
		zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
		zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	return wrapped
}
