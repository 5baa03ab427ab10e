package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInFlightTrackerCounts(t *testing.T) {
	tr := NewInFlightTracker()
	assert.Equal(t, int64(0), tr.Active())
	tr.Begin()
	tr.Begin()
	assert.Equal(t, int64(2), tr.Active())
	tr.End()
	assert.Equal(t, int64(1), tr.Active())
}

func TestDrainReturnsWhenIdle(t *testing.T) {
	tr := NewInFlightTracker()
	tr.Begin()

	go func() {
		time.Sleep(30 * time.Millisecond)
		tr.End()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tr.Drain(ctx, 5*time.Millisecond))
}

func TestDrainHonorsContext(t *testing.T) {
	tr := NewInFlightTracker()
	tr.Begin()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := tr.Drain(ctx, 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMetricsMiddlewareFeedsTracker(t *testing.T) {
	tr := NewInFlightTracker()
	router := mux.NewRouter()
	router.Use(MetricsMiddleware(tr))

	var during int64
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		during = tr.Active()
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/x", nil))

	assert.Equal(t, int64(1), during, "request counted while being served")
	assert.Equal(t, int64(0), tr.Active(), "count returns to zero after completion")
}

func TestMetricsMiddlewareNilTracker(t *testing.T) {
	router := mux.NewRouter()
	router.Use(MetricsMiddleware(nil))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
