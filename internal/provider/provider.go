// Package provider contains one adapter per upstream weather API plus the
// transformers that normalize each provider's payload into the shared
// models.WeatherData shape. Transformers always emit precipitation in
// millimeters and substitute empty slices for missing upstream pieces.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/petergault/supersky/internal/models"
	"github.com/petergault/supersky/internal/observability"
)

var (
	// ErrMissingAPIKey is returned when an adapter requires a key that is not configured.
	ErrMissingAPIKey = errors.New("provider API key not configured")
	// ErrRateLimited is returned on upstream HTTP 429. Reported to clients as
	// rateLimited:true, distinct from generic failures.
	ErrRateLimited = errors.New("provider rate limited")
	// ErrUpstreamFailure is returned on upstream 5xx or transport failures.
	ErrUpstreamFailure = errors.New("provider upstream failure")
)

// mmPerInch converts inch-based precipitation amounts to millimeters.
const mmPerInch = 25.4

// Provider is one upstream weather source. Fetch returns a fully normalized
// WeatherData for the given location or an error; partial-failure tolerance
// across providers lives in the service layer, not here.
type Provider interface {
	Source() models.Source
	Fetch(ctx context.Context, loc models.Location) (models.WeatherData, error)
}

// getJSON issues a GET request, records provider call metrics, and maps
// upstream status codes onto the sentinel errors. The response body is
// returned raw for the caller's unmarshal.
func getJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string) ([]byte, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", provider, err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		observability.RecordProviderCall(provider, "error", time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%s: request timeout: %w", provider, err)
		}
		return nil, fmt.Errorf("%s: %w: %v", provider, ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	observability.RecordProviderCall(provider, statusLabel(resp.StatusCode), time.Since(start).Seconds())

	if err := checkStatus(provider, resp.StatusCode); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response body: %w", provider, err)
	}
	return body, nil
}

func checkStatus(provider string, code int) error {
	switch {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", provider, ErrRateLimited)
	case code >= 500:
		return fmt.Errorf("%s: %w: HTTP %d", provider, ErrUpstreamFailure, code)
	case code < 200 || code >= 300:
		return fmt.Errorf("%s: %w: HTTP %d", provider, ErrUpstreamFailure, code)
	}
	return nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// decode unmarshals a provider payload, wrapping parse failures with the
// provider name so errors stay attributable in triple-check logs.
func decode(provider string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%s: parse response: %w", provider, err)
	}
	return nil
}
