package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/petergault/supersky/internal/cache"
)

const ipAPISuccess = `{
	"status": "success",
	"query": "203.0.113.7",
	"city": "New York",
	"region": "NY",
	"regionName": "New York",
	"country": "United States",
	"countryCode": "US",
	"zip": "10001",
	"lat": 40.7128,
	"lon": -74.006,
	"timezone": "America/New_York"
}`

func TestIPLocator_Locate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/203.0.113.7" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(ipAPISuccess))
	}))
	defer server.Close()

	l := NewIPLocator(server.URL, 2*time.Second, nil, time.Hour, zap.NewNop())

	loc := l.Locate(context.Background(), "203.0.113.7")
	if loc.IsFallback {
		t.Fatal("Locate() returned fallback for successful lookup")
	}
	if loc.Location.ZipCode != "10001" {
		t.Errorf("ZipCode = %q, want 10001", loc.Location.ZipCode)
	}
	if loc.Location.Timezone != "America/New_York" {
		t.Errorf("Timezone = %q", loc.Location.Timezone)
	}
	if loc.Source != "ip-api" {
		t.Errorf("Source = %q, want ip-api", loc.Source)
	}
}

// Any lookup failure produces the Beverly Hills fallback instead of an error.
func TestIPLocator_Locate_FallbackOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	l := NewIPLocator(server.URL, 2*time.Second, nil, time.Hour, zap.NewNop())

	loc := l.Locate(context.Background(), "203.0.113.7")
	if !loc.IsFallback {
		t.Fatal("Locate() IsFallback = false, want true")
	}
	if loc.Location.ZipCode != "90210" || loc.Location.City != "Beverly Hills" {
		t.Errorf("fallback place = %q %q, want Beverly Hills 90210", loc.Location.City, loc.Location.ZipCode)
	}
	if loc.IP != "203.0.113.7" {
		t.Errorf("fallback IP = %q, must echo the caller IP", loc.IP)
	}
}

func TestIPLocator_Locate_FallbackOnFailureStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "fail", "message": "private range"}`))
	}))
	defer server.Close()

	l := NewIPLocator(server.URL, 2*time.Second, nil, time.Hour, zap.NewNop())

	loc := l.Locate(context.Background(), "192.168.0.1")
	if !loc.IsFallback {
		t.Fatal("Locate() IsFallback = false, want true for status=fail")
	}
}

func TestIPLocator_Locate_Cached(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(ipAPISuccess))
	}))
	defer server.Close()

	l := NewIPLocator(server.URL, 2*time.Second, cache.NewInMemoryCache(), time.Hour, zap.NewNop())

	ctx := context.Background()
	_ = l.Locate(ctx, "203.0.113.7")
	loc := l.Locate(ctx, "203.0.113.7")
	if calls != 1 {
		t.Errorf("upstream calls = %d, want 1", calls)
	}
	if loc.Location.City != "New York" {
		t.Errorf("cached City = %q", loc.Location.City)
	}
}
