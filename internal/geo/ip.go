package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/petergault/supersky/internal/cache"
	"github.com/petergault/supersky/internal/models"
	"github.com/petergault/supersky/internal/observability"
)

// IPLocator resolves a caller IP to an approximate location. Lookups that fail
// fall back to a fixed Beverly Hills location so the dashboard always has
// something to render on first load.
type IPLocator struct {
	baseURL string
	client  *http.Client
	cache   cache.Cache
	ttl     time.Duration
	logger  *zap.Logger
}

// NewIPLocator creates an IPLocator. timeout should be short (the original
// used 5s); this lookup sits on the first-paint path.
func NewIPLocator(baseURL string, timeout time.Duration, c cache.Cache, ttl time.Duration, logger *zap.Logger) *IPLocator {
	return &IPLocator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		cache:   c,
		ttl:     ttl,
		logger:  logger,
	}
}

type ipAPIResponse struct {
	Status      string  `json:"status"`
	Query       string  `json:"query"`
	City        string  `json:"city"`
	Region      string  `json:"region"`
	RegionName  string  `json:"regionName"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	Zip         string  `json:"zip"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Timezone    string  `json:"timezone"`
}

// Locate resolves ip to a place. On any failure it returns the fallback
// location with IsFallback set rather than an error; callers always get a
// usable result.
func (l *IPLocator) Locate(ctx context.Context, ip string) models.IPLocation {
	key := cache.IPKey(ip)
	if l.cache != nil {
		if raw, ok, err := l.cache.Get(ctx, key); err == nil && ok {
			var loc models.IPLocation
			if err := json.Unmarshal(raw, &loc); err == nil {
				observability.CacheHitsTotal.WithLabelValues("ip_location").Inc()
				return loc
			}
		}
	}

	loc, err := l.lookup(ctx, ip)
	if err != nil {
		if l.logger != nil {
			l.logger.Warn("ip geolocation failed, using fallback", zap.String("ip", ip), zap.Error(err))
		}
		return FallbackIPLocation(ip)
	}

	if l.cache != nil {
		if raw, err := json.Marshal(loc); err == nil {
			if err := l.cache.Set(ctx, key, raw, l.ttl); err != nil {
				observability.CacheErrorsTotal.WithLabelValues("set").Inc()
			}
		}
	}
	return loc
}

func (l *IPLocator) lookup(ctx context.Context, ip string) (models.IPLocation, error) {
	u := l.baseURL + "/" + ip
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return models.IPLocation{}, fmt.Errorf("ip lookup: create request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return models.IPLocation{}, fmt.Errorf("ip lookup %s: %w", ip, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.IPLocation{}, fmt.Errorf("ip lookup %s: HTTP %d", ip, resp.StatusCode)
	}

	var api ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return models.IPLocation{}, fmt.Errorf("ip lookup %s: parse response: %w", ip, err)
	}
	if api.Status != "success" {
		return models.IPLocation{}, fmt.Errorf("ip lookup %s: status %q", ip, api.Status)
	}

	return models.IPLocation{
		IP: api.Query,
		Location: models.IPLocationPlace{
			ZipCode:     api.Zip,
			City:        api.City,
			State:       api.RegionName,
			Region:      api.Region,
			Country:     api.Country,
			CountryCode: api.CountryCode,
			Coordinates: models.Coordinates{Latitude: api.Lat, Longitude: api.Lon},
			Timezone:    api.Timezone,
		},
		LastUpdated: time.Now().UnixMilli(),
		Source:      "ip-api",
	}, nil
}

// FallbackIPLocation is the hardcoded Beverly Hills default served when IP
// geolocation is unavailable.
func FallbackIPLocation(ip string) models.IPLocation {
	return models.IPLocation{
		IP: ip,
		Location: models.IPLocationPlace{
			ZipCode:     "90210",
			City:        "Beverly Hills",
			State:       "California",
			Region:      "CA",
			Country:     "United States",
			CountryCode: "US",
			Coordinates: models.Coordinates{Latitude: 34.0901, Longitude: -118.4065},
			Timezone:    "America/Los_Angeles",
		},
		LastUpdated: time.Now().UnixMilli(),
		Source:      "fallback",
		IsFallback:  true,
	}
}
