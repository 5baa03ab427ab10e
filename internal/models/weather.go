package models

import "time"

// Source identifies a weather provider.
type Source string

const (
	SourceGoogleWeather Source = "googleweather"
	SourceAzureMaps     Source = "azuremaps"
	SourceForeca        Source = "foreca"
	SourceOpenMeteo     Source = "openmeteo"
)

// TripleOrder is the fixed response order for the triple-check endpoint.
// Results are assembled in this order regardless of which provider finishes first.
var TripleOrder = [4]Source{SourceGoogleWeather, SourceAzureMaps, SourceForeca, SourceOpenMeteo}

// ParseSource maps a query-string source value to a Source. Returns false for
// unsupported values.
func ParseSource(s string) (Source, bool) {
	switch Source(s) {
	case SourceGoogleWeather, SourceAzureMaps, SourceForeca, SourceOpenMeteo:
		return Source(s), true
	}
	return "", false
}

// Coordinates is a latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Location describes where a forecast applies. Set once per request and not
// mutated afterwards.
type Location struct {
	ZipCode     string      `json:"zipCode,omitempty"`
	City        string      `json:"city"`
	State       string      `json:"state"`
	Country     string      `json:"country"`
	Coordinates Coordinates `json:"coordinates"`
}

// Precipitation carries amount (always millimeters after transformation),
// probability in percent, and an optional type (rain, snow, ice).
type Precipitation struct {
	Probability int     `json:"probability"`
	Amount      float64 `json:"amount"`
	Unit        string  `json:"unit"`
	Type        string  `json:"type,omitempty"`
}

// CurrentConditions is a single observation snapshot.
type CurrentConditions struct {
	Temperature   float64       `json:"temperature"`
	FeelsLike     float64       `json:"feelsLike"`
	Humidity      int           `json:"humidity"`
	WindSpeed     float64       `json:"windSpeed"`
	WindDirection int           `json:"windDirection"`
	Description   string        `json:"description"`
	Icon          string        `json:"icon,omitempty"`
	Precipitation Precipitation `json:"precipitation"`
}

// HourlyForecast is one hour of forecast data. Providers return between 12 and
// 240 hours.
type HourlyForecast struct {
	Time             time.Time     `json:"time"`
	Temperature      float64       `json:"temperature"`
	FeelsLike        float64       `json:"feelsLike"`
	Humidity         int           `json:"humidity"`
	WindSpeed        float64       `json:"windSpeed"`
	WindDirection    int           `json:"windDirection"`
	Precipitation    Precipitation `json:"precipitation"`
	WeatherCondition string        `json:"weatherCondition"`
}

// DailyForecast is one day of forecast data. Providers return between 5 and
// 10 days.
type DailyForecast struct {
	Date           time.Time     `json:"date"`
	TemperatureMin float64       `json:"temperatureMin"`
	TemperatureMax float64       `json:"temperatureMax"`
	Precipitation  Precipitation `json:"precipitation"`
	Sunrise        time.Time     `json:"sunrise,omitzero"`
	Sunset         time.Time     `json:"sunset,omitzero"`
}

// WeatherData is the normalized per-source forecast shape shared by every
// provider. Precipitation amounts are millimeters regardless of the provider's
// native unit.
type WeatherData struct {
	Location    Location          `json:"location"`
	Current     CurrentConditions `json:"current"`
	Hourly      []HourlyForecast  `json:"hourly"`
	Daily       []DailyForecast   `json:"daily"`
	Source      Source            `json:"source"`
	LastUpdated int64             `json:"lastUpdated"` // ms since epoch

	// Error carrier fields for the wire format. When IsError is true the rest
	// of the object is non-authoritative placeholder data.
	IsError      bool   `json:"isError,omitempty"`
	RateLimited  bool   `json:"rateLimited,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// ErrorPlaceholder builds the WeatherData-shaped error carrier the triple-check
// wire format requires: same location, empty forecasts, IsError set.
func ErrorPlaceholder(loc Location, src Source, message string, rateLimited bool) WeatherData {
	return WeatherData{
		Location:     loc,
		Hourly:       []HourlyForecast{},
		Daily:        []DailyForecast{},
		Source:       src,
		LastUpdated:  time.Now().UnixMilli(),
		IsError:      true,
		RateLimited:  rateLimited,
		ErrorMessage: message,
	}
}

// IPLocation is the response of the IP geolocation endpoint.
type IPLocation struct {
	IP          string          `json:"ip"`
	Location    IPLocationPlace `json:"location"`
	LastUpdated int64           `json:"lastUpdated"`
	Source      string          `json:"source"`
	IsFallback  bool            `json:"isFallback,omitempty"`
}

// IPLocationPlace is the place detail inside an IPLocation.
type IPLocationPlace struct {
	ZipCode     string      `json:"zipCode"`
	City        string      `json:"city"`
	State       string      `json:"state"`
	Region      string      `json:"region"`
	Country     string      `json:"country"`
	CountryCode string      `json:"countryCode"`
	Coordinates Coordinates `json:"coordinates"`
	Timezone    string      `json:"timezone"`
}
