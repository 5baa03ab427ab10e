package service

import (
	"errors"

	"github.com/petergault/supersky/internal/models"
	"github.com/petergault/supersky/internal/provider"
)

// ProviderResult is the outcome of one provider fetch: either Data or Err is
// meaningful, never both. Internal orchestration passes these around; the
// isError wire shape only materializes at the response boundary.
type ProviderResult struct {
	Source models.Source
	Data   models.WeatherData
	Err    error
}

// Materialize converts the result into the shared wire shape. Failures become
// error placeholders carrying the provider name, the failure message, and a
// rateLimited marker when the provider hit a 429.
func (r ProviderResult) Materialize(loc models.Location) models.WeatherData {
	if r.Err == nil {
		return r.Data
	}
	return models.ErrorPlaceholder(loc, r.Source, r.Err.Error(), errors.Is(r.Err, provider.ErrRateLimited))
}
