// Package client is a Go consumer of the supersky HTTP API. It mirrors what
// the dashboard front end does: retried single-source fetches, a local TTL
// cache on the server's key scheme, triple-check retrieval with
// last-fetch-wins cancellation, and a persisted recent-ZIP list.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/petergault/supersky/internal/cache"
	"github.com/petergault/supersky/internal/models"
)

var (
	// ErrInvalidZip is returned for a malformed ZIP code (HTTP 400 INVALID_ZIP).
	ErrInvalidZip = errors.New("invalid zip code")
	// ErrZipNotFound is returned when the ZIP resolves to no location (HTTP 404).
	ErrZipNotFound = errors.New("zip code not found")
	// ErrRateLimited is returned on HTTP 429 from the service or a provider.
	ErrRateLimited = errors.New("rate limited")
	// ErrUpstreamFailure is returned for 5xx responses and transport failures.
	ErrUpstreamFailure = errors.New("upstream failure")
)

// Client talks to a supersky service instance.
type Client struct {
	baseURL        string
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	cache          *memoCache

	// latest implements last-fetch-wins for triple checks: starting a new
	// fetch cancels the previous in-flight one.
	latestMu     sync.Mutex
	latestCancel context.CancelFunc
}

// New creates a Client with default retry behavior: three attempts with
// exponential backoff starting at one second.
func New(baseURL string, timeout time.Duration) *Client {
	return NewWithRetry(baseURL, timeout, 3, time.Second, 8*time.Second)
}

// NewWithRetry creates a Client with explicit retry parameters.
func NewWithRetry(baseURL string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) *Client {
	if retryAttempts < 1 {
		retryAttempts = 1
	}
	return &Client{
		baseURL:        baseURL,
		client:         &http.Client{Timeout: timeout},
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		cache:          newMemoCache(defaultCacheTTL),
	}
}

// GetWeather fetches a single-source forecast for a ZIP code, retrying
// retryable failures with exponential backoff. The local cache is consulted
// first unless forceRefresh, which also instructs the server to bypass its
// own cache.
func (c *Client) GetWeather(ctx context.Context, zip string, source models.Source, forceRefresh bool) (models.WeatherData, error) {
	key := cache.WeatherKey(zip, source)
	if !forceRefresh {
		if v, ok := c.cache.get(key); ok {
			return v.(models.WeatherData), nil
		}
	}

	u := c.baseURL + "/api/weather/" + url.PathEscape(zip)
	if q := weatherQuery(source, forceRefresh); q != "" {
		u += "?" + q
	}
	var data models.WeatherData
	if err := c.getWithRetry(ctx, u, nil, &data); err != nil {
		return models.WeatherData{}, err
	}
	c.cache.set(key, data)
	return data, nil
}

// GetWeatherOrPlaceholder is GetWeather degraded: failures come back as an
// error placeholder instead of an error, so a caller rendering panels never
// has to special-case the fetch path.
func (c *Client) GetWeatherOrPlaceholder(ctx context.Context, zip string, source models.Source, forceRefresh bool) models.WeatherData {
	data, err := c.GetWeather(ctx, zip, source, forceRefresh)
	if err != nil {
		return models.ErrorPlaceholder(models.Location{ZipCode: zip}, source, err.Error(), errors.Is(err, ErrRateLimited))
	}
	return data
}

// GetTripleWeather fetches the multi-provider comparison for a ZIP code.
// Starting a new triple fetch cancels any previous in-flight one; the
// cancelled call returns context.Canceled. No retry: the service already
// degrades per-provider failures to placeholders.
func (c *Client) GetTripleWeather(ctx context.Context, zip string, forceRefresh bool) ([]models.WeatherData, error) {
	key := cache.TripleKey(zip)
	if !forceRefresh {
		if v, ok := c.cache.get(key); ok {
			return v.([]models.WeatherData), nil
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	c.latestMu.Lock()
	if c.latestCancel != nil {
		c.latestCancel()
	}
	c.latestCancel = cancel
	c.latestMu.Unlock()
	defer cancel()

	u := c.baseURL + "/api/weather/" + url.PathEscape(zip) + "/triple"
	if forceRefresh {
		u += "?forceRefresh=true"
	}
	var results []models.WeatherData
	if err := c.get(ctx, u, nil, &results); err != nil {
		return nil, err
	}
	c.cache.set(key, results)
	return results, nil
}

// GetWeatherByLocation fetches a single-source forecast for explicit
// coordinates, sent in the client coordinate headers.
func (c *Client) GetWeatherByLocation(ctx context.Context, coords models.Coordinates, source models.Source, forceRefresh bool) (models.WeatherData, error) {
	key := cache.LocationKey(coords, source)
	if !forceRefresh {
		if v, ok := c.cache.get(key); ok {
			return v.(models.WeatherData), nil
		}
	}

	u := c.baseURL + "/api/weather/location"
	if q := weatherQuery(source, forceRefresh); q != "" {
		u += "?" + q
	}
	headers := map[string]string{
		"X-Client-Lat": strconv.FormatFloat(coords.Latitude, 'f', -1, 64),
		"X-Client-Lon": strconv.FormatFloat(coords.Longitude, 'f', -1, 64),
	}
	var data models.WeatherData
	if err := c.getWithRetry(ctx, u, headers, &data); err != nil {
		return models.WeatherData{}, err
	}
	c.cache.set(key, data)
	return data, nil
}

func weatherQuery(source models.Source, forceRefresh bool) string {
	params := url.Values{}
	if source != "" {
		params.Set("source", string(source))
	}
	if forceRefresh {
		params.Set("forceRefresh", "true")
	}
	return params.Encode()
}

// GetIPLocation asks the service where the caller appears to be.
func (c *Client) GetIPLocation(ctx context.Context) (models.IPLocation, error) {
	var loc models.IPLocation
	err := c.get(ctx, c.baseURL+"/api/weather/ip-location", nil, &loc)
	return loc, err
}

// getWithRetry wraps get with the retry loop. Only retryable failures (rate
// limits, 5xx, timeouts) are re-attempted.
func (c *Client) getWithRetry(ctx context.Context, u string, headers map[string]string, out any) error {
	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff(attempt)):
			}
		}

		err := c.get(ctx, u, headers, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *Client) get(ctx context.Context, u string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return mapErrorResponse(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// backoff is base * 2^(attempt-1), capped, with a little jitter so retries
// from many clients do not align.
func (c *Client) backoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}
	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func isRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrUpstreamFailure):
		return true
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}
	return false
}

// apiError is the service's standard error envelope.
type apiError struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

func mapErrorResponse(statusCode int, body []byte) error {
	var e apiError
	_ = json.Unmarshal(body, &e)
	msg := e.Error.Message
	if msg == "" {
		msg = http.StatusText(statusCode)
	}

	switch e.Error.Code {
	case "INVALID_ZIP":
		return fmt.Errorf("%w: %s", ErrInvalidZip, msg)
	case "ZIP_NOT_FOUND":
		return fmt.Errorf("%w: %s", ErrZipNotFound, msg)
	case "RATE_LIMITED":
		return fmt.Errorf("%w: %s", ErrRateLimited, msg)
	}
	if statusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", ErrRateLimited, msg)
	}
	return fmt.Errorf("%w: HTTP %d: %s", ErrUpstreamFailure, statusCode, msg)
}
