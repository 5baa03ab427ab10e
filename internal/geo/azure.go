package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/petergault/supersky/internal/cache"
	"github.com/petergault/supersky/internal/models"
	"github.com/petergault/supersky/internal/observability"
)

// ErrMissingAPIKey is returned when the Azure Maps key is not configured.
var ErrMissingAPIKey = errors.New("azure maps API key not configured")

// ErrZipNotFound is returned when the ZIP code resolves to no coordinates.
// The router maps this to HTTP 404; it is the one shared failure that aborts
// a whole request since every provider needs coordinates.
var ErrZipNotFound = errors.New("zip code not found")

// Geocoder resolves a US ZIP code to a Location with coordinates.
type Geocoder interface {
	Resolve(ctx context.Context, zip string) (models.Location, error)
}

// AzureGeocoder resolves ZIP codes through the Azure Maps search address API.
// Resolved locations are cached; ZIP to coordinate mappings are effectively
// static so the TTL is long.
type AzureGeocoder struct {
	apiKey  string
	baseURL string
	client  *http.Client
	cache   cache.Cache
	ttl     time.Duration
	logger  *zap.Logger
}

// NewAzureGeocoder creates an AzureGeocoder. The cache may be nil to disable
// caching (used by tests).
func NewAzureGeocoder(apiKey, baseURL string, timeout time.Duration, c cache.Cache, ttl time.Duration, logger *zap.Logger) *AzureGeocoder {
	return &AzureGeocoder{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		cache:   c,
		ttl:     ttl,
		logger:  logger,
	}
}

type azureSearchResponse struct {
	Results []struct {
		Position struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"position"`
		Address struct {
			Municipality       string `json:"municipality"`
			CountrySubdivision string `json:"countrySubdivision"`
			CountryCode        string `json:"countryCode"`
		} `json:"address"`
	} `json:"results"`
}

// Resolve looks up the coordinates and place names for a five-digit ZIP.
// Returns ErrZipNotFound when Azure Maps has no match.
func (g *AzureGeocoder) Resolve(ctx context.Context, zip string) (models.Location, error) {
	if g.apiKey == "" {
		return models.Location{}, ErrMissingAPIKey
	}

	key := cache.ZipCoordsKey(zip)
	if g.cache != nil {
		if raw, ok, err := g.cache.Get(ctx, key); err == nil && ok {
			var loc models.Location
			if err := json.Unmarshal(raw, &loc); err == nil {
				observability.CacheHitsTotal.WithLabelValues("geocode").Inc()
				return loc, nil
			}
		}
	}

	u, err := url.Parse(g.baseURL + "/search/address/json")
	if err != nil {
		return models.Location{}, fmt.Errorf("geocode: invalid base URL: %w", err)
	}
	params := url.Values{}
	params.Set("api-version", "1.0")
	params.Set("subscription-key", g.apiKey)
	params.Set("query", zip)
	params.Set("countrySet", "US")
	params.Set("limit", "1")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return models.Location{}, fmt.Errorf("geocode: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		observability.GeocodeLookupsTotal.WithLabelValues("error").Inc()
		return models.Location{}, fmt.Errorf("geocode %s: %w", zip, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		observability.GeocodeLookupsTotal.WithLabelValues("error").Inc()
		return models.Location{}, fmt.Errorf("geocode %s: HTTP %d", zip, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Location{}, fmt.Errorf("geocode %s: read body: %w", zip, err)
	}

	var search azureSearchResponse
	if err := json.Unmarshal(body, &search); err != nil {
		return models.Location{}, fmt.Errorf("geocode %s: parse response: %w", zip, err)
	}
	if len(search.Results) == 0 {
		observability.GeocodeLookupsTotal.WithLabelValues("not_found").Inc()
		return models.Location{}, fmt.Errorf("geocode %s: %w", zip, ErrZipNotFound)
	}

	r := search.Results[0]
	loc := models.Location{
		ZipCode: zip,
		City:    r.Address.Municipality,
		State:   r.Address.CountrySubdivision,
		Country: r.Address.CountryCode,
		Coordinates: models.Coordinates{
			Latitude:  r.Position.Lat,
			Longitude: r.Position.Lon,
		},
	}
	observability.GeocodeLookupsTotal.WithLabelValues("success").Inc()

	if g.cache != nil {
		if raw, err := json.Marshal(loc); err == nil {
			if err := g.cache.Set(ctx, key, raw, g.ttl); err != nil {
				observability.CacheErrorsTotal.WithLabelValues("set").Inc()
				if g.logger != nil {
					g.logger.Warn("geocode cache set failed", zap.String("zip", zip), zap.Error(err))
				}
			}
		}
	}
	return loc, nil
}
