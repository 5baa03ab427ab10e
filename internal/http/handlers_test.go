package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/petergault/supersky/internal/cache"
	"github.com/petergault/supersky/internal/geo"
	"github.com/petergault/supersky/internal/models"
	"github.com/petergault/supersky/internal/provider"
	"github.com/petergault/supersky/internal/service"
)

type stubProvider struct {
	source models.Source
	err    error
	calls  atomic.Int32
}

func (s *stubProvider) Source() models.Source { return s.source }

func (s *stubProvider) Fetch(ctx context.Context, loc models.Location) (models.WeatherData, error) {
	s.calls.Add(1)
	if s.err != nil {
		return models.WeatherData{}, s.err
	}
	return models.WeatherData{
		Location:    loc,
		Current:     models.CurrentConditions{Temperature: 20},
		Hourly:      []models.HourlyForecast{},
		Daily:       []models.DailyForecast{},
		Source:      s.source,
		LastUpdated: time.Now().UnixMilli(),
	}, nil
}

type stubGeocoder struct {
	err error
}

func (s *stubGeocoder) Resolve(ctx context.Context, zip string) (models.Location, error) {
	if s.err != nil {
		return models.Location{}, s.err
	}
	return models.Location{
		ZipCode:     zip,
		City:        "New York",
		Coordinates: models.Coordinates{Latitude: 40.75, Longitude: -73.99},
	}, nil
}

type handlerOptions struct {
	providers  []provider.Provider
	geocodeErr error
	production bool
}

func newTestRouter(t *testing.T, opts handlerOptions) *mux.Router {
	t.Helper()
	if opts.providers == nil {
		var ps []provider.Provider
		for _, src := range models.TripleOrder {
			ps = append(ps, &stubProvider{source: src})
		}
		opts.providers = ps
	}

	svc := service.NewWeatherService(opts.providers, service.Config{
		Cache:          cache.NewInMemoryCache(),
		Geocoder:       &stubGeocoder{err: opts.geocodeErr},
		CacheTTL:       time.Minute,
		GoogleCacheTTL: time.Minute,
	})

	// Locator pointed at a dead URL: every lookup degrades to the fallback.
	locator := geo.NewIPLocator("http://127.0.0.1:0", 50*time.Millisecond, cache.NewInMemoryCache(), time.Minute, zap.NewNop())

	h := NewHandler(svc, locator, &HealthConfig{StartTime: time.Now()}, zap.NewNop(), opts.production)

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	api := router.PathPrefix("/api/weather").Subrouter()
	api.HandleFunc("/ip-location", h.GetIPLocation).Methods("GET")
	api.HandleFunc("/location", h.GetWeatherByLocation).Methods("GET")
	api.HandleFunc("/{zipCode}/triple", h.GetTripleWeather).Methods("GET")
	api.HandleFunc("/{zipCode}", h.GetWeather).Methods("GET")
	return router
}

func doRequest(router *mux.Router, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code      string `json:"code"`
			Message   string `json:"message"`
			RequestID string `json:"requestId"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestGetWeatherOK(t *testing.T) {
	router := newTestRouter(t, handlerOptions{})
	rec := doRequest(router, "GET", "/api/weather/10001?source=openmeteo", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var data models.WeatherData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.Equal(t, models.SourceOpenMeteo, data.Source)
	assert.Equal(t, "10001", data.Location.ZipCode)
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

func TestGetWeatherForceRefreshBypassesCache(t *testing.T) {
	p := &stubProvider{source: models.SourceOpenMeteo}
	router := newTestRouter(t, handlerOptions{providers: []provider.Provider{p}})

	for _, target := range []string{
		"/api/weather/10001",
		"/api/weather/10001", // cache hit
		"/api/weather/10001?forceRefresh=true",
	} {
		rec := doRequest(router, "GET", target, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestGetWeatherInvalidZip(t *testing.T) {
	router := newTestRouter(t, handlerOptions{})
	for _, zip := range []string{"1234", "abcde", "12345-6789"} {
		rec := doRequest(router, "GET", "/api/weather/"+zip, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "zip %q", zip)
		assert.Equal(t, "INVALID_ZIP", errorCode(t, rec))
	}
}

func TestGetWeatherUnsupportedSource(t *testing.T) {
	router := newTestRouter(t, handlerOptions{})
	rec := doRequest(router, "GET", "/api/weather/10001?source=weathercorp", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "UNSUPPORTED_SOURCE", errorCode(t, rec))
}

func TestGetWeatherZipNotFound(t *testing.T) {
	router := newTestRouter(t, handlerOptions{geocodeErr: geo.ErrZipNotFound})
	rec := doRequest(router, "GET", "/api/weather/99999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ZIP_NOT_FOUND", errorCode(t, rec))
}

func TestGetWeatherUpstreamFailure(t *testing.T) {
	router := newTestRouter(t, handlerOptions{
		providers: []provider.Provider{&stubProvider{source: models.SourceOpenMeteo, err: provider.ErrUpstreamFailure}},
	})
	rec := doRequest(router, "GET", "/api/weather/10001", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "UPSTREAM_UNAVAILABLE", errorCode(t, rec))
}

func TestGetWeatherProviderRateLimited(t *testing.T) {
	router := newTestRouter(t, handlerOptions{
		providers: []provider.Provider{&stubProvider{source: models.SourceForeca, err: provider.ErrRateLimited}},
	})
	rec := doRequest(router, "GET", "/api/weather/10001?source=foreca", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", errorCode(t, rec))
}

func TestGetTripleWeatherAlwaysFourEntries(t *testing.T) {
	providers := []provider.Provider{
		&stubProvider{source: models.SourceGoogleWeather},
		&stubProvider{source: models.SourceAzureMaps, err: provider.ErrUpstreamFailure},
		&stubProvider{source: models.SourceForeca, err: provider.ErrRateLimited},
		&stubProvider{source: models.SourceOpenMeteo},
	}
	router := newTestRouter(t, handlerOptions{providers: providers})
	rec := doRequest(router, "GET", "/api/weather/10001/triple", nil)

	require.Equal(t, http.StatusOK, rec.Code, "provider failures never fail the triple endpoint")
	var results []models.WeatherData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 4)
	assert.Equal(t, models.SourceGoogleWeather, results[0].Source)
	assert.True(t, results[1].IsError)
	assert.True(t, results[2].RateLimited)
	assert.False(t, results[3].IsError)
}

func TestGetWeatherByLocationWithHeaders(t *testing.T) {
	router := newTestRouter(t, handlerOptions{})
	rec := doRequest(router, "GET", "/api/weather/location?source=openmeteo", map[string]string{
		"X-Client-Lat": "34.0901",
		"X-Client-Lon": "-118.4065",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var data models.WeatherData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.InDelta(t, 34.0901, data.Location.Coordinates.Latitude, 1e-9)
}

func TestGetWeatherByLocationFallbackOutsideProduction(t *testing.T) {
	router := newTestRouter(t, handlerOptions{production: false})
	rec := doRequest(router, "GET", "/api/weather/location", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var data models.WeatherData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.InDelta(t, fallbackCoordinates.Latitude, data.Location.Coordinates.Latitude, 1e-9)
}

func TestGetWeatherByLocationMissingHeadersInProduction(t *testing.T) {
	router := newTestRouter(t, handlerOptions{production: true})
	rec := doRequest(router, "GET", "/api/weather/location", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_COORDINATES", errorCode(t, rec))
}

func TestGetWeatherByLocationBadHeaders(t *testing.T) {
	router := newTestRouter(t, handlerOptions{})
	rec := doRequest(router, "GET", "/api/weather/location", map[string]string{
		"X-Client-Lat": "not-a-number",
		"X-Client-Lon": "-118.4",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_COORDINATES", errorCode(t, rec))

	rec = doRequest(router, "GET", "/api/weather/location", map[string]string{
		"X-Client-Lat": "95",
		"X-Client-Lon": "0",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetIPLocationFallsBack(t *testing.T) {
	router := newTestRouter(t, handlerOptions{})
	rec := doRequest(router, "GET", "/api/weather/ip-location", map[string]string{
		"X-Forwarded-For": "203.0.113.7, 10.0.0.1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var loc models.IPLocation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loc))
	assert.True(t, loc.IsFallback, "unreachable geolocation API degrades to the fallback")
	assert.Equal(t, "90210", loc.Location.ZipCode)
	assert.Equal(t, "203.0.113.7", loc.IP)
}

func TestGetHealth(t *testing.T) {
	router := newTestRouter(t, handlerOptions{})
	rec := doRequest(router, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "supersky", body["service"])
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.5:1234"
	assert.Equal(t, "192.0.2.5", clientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", clientIP(r))
}
