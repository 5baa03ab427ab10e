package geo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/petergault/supersky/internal/cache"
)

const searchResponse = `{
	"results": [
		{
			"position": {"lat": 40.7506, "lon": -73.9971},
			"address": {
				"municipality": "New York",
				"countrySubdivision": "NY",
				"countryCode": "US"
			}
		}
	]
}`

func TestAzureGeocoder_Resolve_Success(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/search/address/json") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchResponse))
	}))
	defer server.Close()

	g := NewAzureGeocoder("test-key", server.URL, 2*time.Second, nil, time.Hour, zap.NewNop())

	loc, err := g.Resolve(context.Background(), "10001")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if loc.ZipCode != "10001" {
		t.Errorf("ZipCode = %q, want 10001", loc.ZipCode)
	}
	if loc.City != "New York" || loc.State != "NY" {
		t.Errorf("place = %q, %q, want New York, NY", loc.City, loc.State)
	}
	if loc.Coordinates.Latitude != 40.7506 || loc.Coordinates.Longitude != -73.9971 {
		t.Errorf("coordinates = %+v", loc.Coordinates)
	}
	for _, want := range []string{"query=10001", "subscription-key=test-key", "countrySet=US"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestAzureGeocoder_Resolve_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results": []}`))
	}))
	defer server.Close()

	g := NewAzureGeocoder("test-key", server.URL, 2*time.Second, nil, time.Hour, zap.NewNop())

	_, err := g.Resolve(context.Background(), "00000")
	if !errors.Is(err, ErrZipNotFound) {
		t.Fatalf("Resolve() error = %v, want ErrZipNotFound", err)
	}
}

func TestAzureGeocoder_Resolve_MissingKey(t *testing.T) {
	g := NewAzureGeocoder("", "https://atlas.microsoft.com", 2*time.Second, nil, time.Hour, zap.NewNop())

	_, err := g.Resolve(context.Background(), "10001")
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("Resolve() error = %v, want ErrMissingAPIKey", err)
	}
}

// A second Resolve for the same ZIP must come from cache, not a second
// upstream call.
func TestAzureGeocoder_Resolve_Cached(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(searchResponse))
	}))
	defer server.Close()

	g := NewAzureGeocoder("test-key", server.URL, 2*time.Second, cache.NewInMemoryCache(), time.Hour, zap.NewNop())

	ctx := context.Background()
	if _, err := g.Resolve(ctx, "10001"); err != nil {
		t.Fatalf("first Resolve() error = %v", err)
	}
	loc, err := g.Resolve(ctx, "10001")
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("upstream calls = %d, want 1", calls)
	}
	if loc.City != "New York" {
		t.Errorf("cached City = %q, want New York", loc.City)
	}
}

func TestAzureGeocoder_Resolve_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	g := NewAzureGeocoder("test-key", server.URL, 2*time.Second, nil, time.Hour, zap.NewNop())

	if _, err := g.Resolve(context.Background(), "10001"); err == nil {
		t.Fatal("Resolve() expected error for HTTP 500")
	}
}
