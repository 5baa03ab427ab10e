// Package http carries the HTTP surface: route handlers, middleware, and the
// in-flight tracker used for graceful shutdown.
package http

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/petergault/supersky/internal/geo"
	"github.com/petergault/supersky/internal/health"
	"github.com/petergault/supersky/internal/lifecycle"
	"github.com/petergault/supersky/internal/models"
	"github.com/petergault/supersky/internal/provider"
	"github.com/petergault/supersky/internal/service"
	"github.com/petergault/supersky/internal/validation"
)

// Client coordinate headers for the location endpoint.
const (
	headerClientLat = "X-Client-Lat"
	headerClientLon = "X-Client-Lon"
)

// fallbackCoordinates is lower Manhattan, served for header-less location
// requests outside production.
var fallbackCoordinates = models.Coordinates{Latitude: 40.7128, Longitude: -74.006}

// defaultSource is used when a single-source request omits ?source=.
const defaultSource = models.SourceOpenMeteo

// HealthConfig holds dependencies for the health handler.
type HealthConfig struct {
	// CachePing, when set, checks cache reachability. Set when the backend is memcached.
	CachePing func() error
	// Providers, when set, reports per-provider fetch outcomes over ProviderWindow.
	Providers      *health.Tracker
	ProviderWindow time.Duration
	StartTime      time.Time
	Version        string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather      *service.WeatherService
	ipLocator    *geo.IPLocator
	healthConfig *HealthConfig
	logger       *zap.Logger
	production   bool
}

// NewHandler returns a new Handler.
func NewHandler(weather *service.WeatherService, ipLocator *geo.IPLocator, healthConfig *HealthConfig, logger *zap.Logger, production bool) *Handler {
	return &Handler{
		weather:      weather,
		ipLocator:    ipLocator,
		healthConfig: healthConfig,
		logger:       logger,
		production:   production,
	}
}

// GetWeather handles GET /api/weather/{zipCode}.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	zip, err := validation.ValidateZipCode(mux.Vars(r)["zipCode"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_ZIP", err.Error())
		return
	}
	src, ok := parseSourceParam(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "UNSUPPORTED_SOURCE", "unsupported source: "+r.URL.Query().Get("source"))
		return
	}

	result, err := h.weather.GetWeather(r.Context(), zip, src, refreshRequested(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetTripleWeather handles GET /api/weather/{zipCode}/triple. The response is
// always a four-element array in fixed source order; individual provider
// failures appear as error placeholders, not HTTP errors.
func (h *Handler) GetTripleWeather(w http.ResponseWriter, r *http.Request) {
	zip, err := validation.ValidateZipCode(mux.Vars(r)["zipCode"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_ZIP", err.Error())
		return
	}

	results, err := h.weather.GetTripleWeather(r.Context(), zip, refreshRequested(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// GetWeatherByLocation handles GET /api/weather/location. Coordinates arrive
// in the X-Client-Lat / X-Client-Lon headers. Outside production a header-less
// request falls back to fixed coordinates instead of failing.
func (h *Handler) GetWeatherByLocation(w http.ResponseWriter, r *http.Request) {
	coords, ok, err := h.clientCoordinates(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "MISSING_COORDINATES", err.Error())
		return
	}
	if !ok {
		writeError(w, r, http.StatusBadRequest, "MISSING_COORDINATES", "X-Client-Lat and X-Client-Lon headers are required")
		return
	}

	src, srcOK := parseSourceParam(r)
	if !srcOK {
		writeError(w, r, http.StatusBadRequest, "UNSUPPORTED_SOURCE", "unsupported source: "+r.URL.Query().Get("source"))
		return
	}

	result, err := h.weather.GetWeatherByLocation(r.Context(), coords, src, refreshRequested(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetIPLocation handles GET /api/weather/ip-location. Never returns an error
// response: lookup failures degrade to the fixed fallback location.
func (h *Handler) GetIPLocation(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	loc := h.ipLocator.Locate(r.Context(), ip)
	writeJSON(w, http.StatusOK, loc)
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	statusCode := http.StatusOK
	if lifecycle.IsShuttingDown() {
		status = "shutting-down"
		statusCode = http.StatusServiceUnavailable
	}

	checks := make(map[string]string)
	providerChecks := map[string]string{}
	if h.healthConfig != nil && h.healthConfig.Providers != nil {
		window := h.healthConfig.ProviderWindow
		if window <= 0 {
			window = time.Minute
		}
		providerChecks = h.healthConfig.Providers.Statuses(window)
		if status == "healthy" && h.healthConfig.Providers.AllUnhealthy(window) {
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
			if status == "healthy" {
				status = "degraded"
				statusCode = http.StatusServiceUnavailable
			}
		}
	}

	resp := map[string]interface{}{
		"status":    status,
		"service":   "supersky",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if len(providerChecks) > 0 {
		resp["providers"] = providerChecks
	}
	if h.healthConfig != nil {
		if h.healthConfig.Version != "" {
			resp["version"] = h.healthConfig.Version
		}
		if !h.healthConfig.StartTime.IsZero() {
			resp["uptime"] = time.Since(h.healthConfig.StartTime).Round(time.Second).String()
		}
	}
	writeJSON(w, statusCode, resp)
}

// clientCoordinates parses the coordinate headers. The bool reports whether
// coordinates were available (directly or via the non-production fallback).
func (h *Handler) clientCoordinates(r *http.Request) (models.Coordinates, bool, error) {
	latHeader := strings.TrimSpace(r.Header.Get(headerClientLat))
	lonHeader := strings.TrimSpace(r.Header.Get(headerClientLon))
	if latHeader == "" || lonHeader == "" {
		if h.production {
			return models.Coordinates{}, false, nil
		}
		return fallbackCoordinates, true, nil
	}

	lat, err := strconv.ParseFloat(latHeader, 64)
	if err != nil {
		return models.Coordinates{}, false, errors.New("invalid X-Client-Lat header")
	}
	lon, err := strconv.ParseFloat(lonHeader, 64)
	if err != nil {
		return models.Coordinates{}, false, errors.New("invalid X-Client-Lon header")
	}
	if err := validation.ValidateCoordinates(lat, lon); err != nil {
		return models.Coordinates{}, false, err
	}
	return models.Coordinates{Latitude: lat, Longitude: lon}, true, nil
}

func parseSourceParam(r *http.Request) (models.Source, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("source"))
	if raw == "" {
		return defaultSource, true
	}
	return models.ParseSource(strings.ToLower(raw))
}

func refreshRequested(r *http.Request) bool {
	v := strings.ToLower(r.URL.Query().Get("forceRefresh"))
	return v == "true" || v == "1"
}

// clientIP extracts the caller's IP: first X-Forwarded-For hop when present,
// otherwise the connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code,
// message, and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeServiceError maps service-layer failures onto HTTP error responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Debug("service error", zap.Error(err))
	}
	switch {
	case errors.Is(err, geo.ErrZipNotFound):
		writeError(w, r, http.StatusNotFound, "ZIP_NOT_FOUND", "No location found for that ZIP code")
	case errors.Is(err, service.ErrUnsupportedSource):
		writeError(w, r, http.StatusBadRequest, "UNSUPPORTED_SOURCE", "unsupported weather source")
	case errors.Is(err, provider.ErrRateLimited):
		writeError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "Weather provider rate limit exceeded")
	default:
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data")
	}
}
