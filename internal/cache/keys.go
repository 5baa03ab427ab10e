package cache

import (
	"strconv"

	"github.com/petergault/supersky/internal/models"
)

// Key construction must stay consistent between read and write sites; there is
// no collision handling beyond these formats.

// WeatherKey is the cache key for a single-source ZIP lookup. When source is
// empty the suffix is omitted.
func WeatherKey(zip string, src models.Source) string {
	if src == "" {
		return "weather_" + zip
	}
	return "weather_" + zip + "_" + string(src)
}

// TripleKey is the cache key for the assembled triple-check response.
func TripleKey(zip string) string {
	return "weather_" + zip + "_triple"
}

// LocationKey is the cache key for a coordinate-based lookup.
func LocationKey(coords models.Coordinates, src models.Source) string {
	return "weather_location_" + formatCoord(coords.Latitude) + "_" + formatCoord(coords.Longitude) + "_" + string(src)
}

// IPKey is the cache key for an IP geolocation lookup.
func IPKey(ip string) string {
	return "ip_location_" + ip
}

// GoogleWeatherKey is the cache key for an assembled Google Weather pagination
// result. Keyed on requested hours so different page depths do not collide.
func GoogleWeatherKey(coords models.Coordinates, hours int) string {
	return "google_weather_" + formatCoord(coords.Latitude) + "_" + formatCoord(coords.Longitude) + "_" + strconv.Itoa(hours)
}

// ZipCoordsKey is the cache key for a resolved ZIP to coordinates mapping.
func ZipCoordsKey(zip string) string {
	return "zip_coords_" + zip
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
