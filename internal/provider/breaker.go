package provider

import (
	"context"
	"fmt"

	"github.com/petergault/supersky/internal/circuitbreaker"
	"github.com/petergault/supersky/internal/models"
)

// BreakerProvider wraps a Provider with a circuit breaker so a failing
// upstream stops consuming its timeout on every triple-check.
type BreakerProvider struct {
	inner Provider
	cb    *circuitbreaker.CircuitBreaker
}

// WithBreaker decorates p with cb.
func WithBreaker(p Provider, cb *circuitbreaker.CircuitBreaker) *BreakerProvider {
	return &BreakerProvider{inner: p, cb: cb}
}

func (b *BreakerProvider) Source() models.Source {
	return b.inner.Source()
}

func (b *BreakerProvider) Fetch(ctx context.Context, loc models.Location) (models.WeatherData, error) {
	var data models.WeatherData
	err := b.cb.Call(func() error {
		var ferr error
		data, ferr = b.inner.Fetch(ctx, loc)
		return ferr
	})
	if err != nil {
		if err == circuitbreaker.ErrOpen {
			return models.WeatherData{}, fmt.Errorf("%s: %w", b.inner.Source(), err)
		}
		return models.WeatherData{}, err
	}
	return data, nil
}
