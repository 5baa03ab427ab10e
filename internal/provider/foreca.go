package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/petergault/supersky/internal/models"
)

// forecaHourlyCap is the longest hourly forecast the Foreca plan allows.
const forecaHourlyCap = 168

// ForecaProvider adapts the Foreca API behind RapidAPI. Three calls per fetch:
// location search (ZIP to Foreca location id), current conditions, and the
// hourly forecast. Foreca is the provider that rate-limits aggressively, so
// 429 handling matters here: it surfaces as ErrRateLimited, which the service
// reports as rateLimited:true rather than a generic failure.
type ForecaProvider struct {
	apiKey  string
	host    string
	baseURL string
	client  *http.Client
}

// NewForecaProvider creates a ForecaProvider. host is the RapidAPI host name
// (also used for the X-RapidAPI-Host header).
func NewForecaProvider(apiKey, host string, timeout time.Duration) *ForecaProvider {
	return &ForecaProvider{
		apiKey:  apiKey,
		host:    host,
		baseURL: "https://" + host,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *ForecaProvider) Source() models.Source {
	return models.SourceForeca
}

func (p *ForecaProvider) headers() map[string]string {
	return map[string]string{
		"X-RapidAPI-Key":  p.apiKey,
		"X-RapidAPI-Host": p.host,
	}
}

type forecaLocationResponse struct {
	Locations []struct {
		ID      int64  `json:"id"`
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"locations"`
}

type forecaCurrentResponse struct {
	Current struct {
		Temperature   float64 `json:"temperature"`
		FeelsLikeTemp float64 `json:"feelsLikeTemp"`
		RelHumidity   int     `json:"relHumidity"`
		WindSpeed     float64 `json:"windSpeed"`
		WindDir       int     `json:"windDir"`
		SymbolPhrase  string  `json:"symbolPhrase"`
		Symbol        string  `json:"symbol"`
		PrecipProb    int     `json:"precipProb"`
		PrecipRate    float64 `json:"precipRate"`
	} `json:"current"`
}

type forecaForecastResponse struct {
	Forecast []struct {
		Time          string  `json:"time"`
		Temperature   float64 `json:"temperature"`
		FeelsLikeTemp float64 `json:"feelsLikeTemp"`
		RelHumidity   int     `json:"relHumidity"`
		WindSpeed     float64 `json:"windSpeed"`
		WindDir       int     `json:"windDir"`
		PrecipProb    int     `json:"precipProb"`
		PrecipAccum   float64 `json:"precipAccum"`
		SymbolPhrase  string  `json:"symbolPhrase"`
	} `json:"forecast"`
}

// Fetch resolves the ZIP to a Foreca location id, then retrieves current
// conditions and the hourly forecast. Location search and the two data calls
// are sequential; the id is a hard dependency of both.
func (p *ForecaProvider) Fetch(ctx context.Context, loc models.Location) (models.WeatherData, error) {
	if p.apiKey == "" {
		return models.WeatherData{}, fmt.Errorf("foreca: %w", ErrMissingAPIKey)
	}
	if loc.ZipCode == "" {
		return models.WeatherData{}, fmt.Errorf("foreca: location lookup requires a ZIP code")
	}

	locationID, err := p.searchLocation(ctx, loc.ZipCode)
	if err != nil {
		return models.WeatherData{}, err
	}

	var (
		current     forecaCurrentResponse
		forecast    forecaForecastResponse
		currentErr  error
		forecastErr error
	)

	done := make(chan struct{}, 2)
	go func() {
		defer func() { done <- struct{}{} }()
		body, err := getJSON(ctx, p.client, "foreca", p.apiURL("/current/"+strconv.FormatInt(locationID, 10), nil), p.headers())
		if err != nil {
			currentErr = err
			return
		}
		currentErr = decode("foreca", body, &current)
	}()
	go func() {
		defer func() { done <- struct{}{} }()
		params := url.Values{}
		params.Set("periods", strconv.Itoa(forecaHourlyCap))
		body, err := getJSON(ctx, p.client, "foreca", p.apiURL("/forecast/hourly/"+strconv.FormatInt(locationID, 10), params), p.headers())
		if err != nil {
			forecastErr = err
			return
		}
		forecastErr = decode("foreca", body, &forecast)
	}()
	<-done
	<-done

	if currentErr != nil {
		return models.WeatherData{}, currentErr
	}
	if forecastErr != nil {
		return models.WeatherData{}, forecastErr
	}

	return combineForecaData(loc, current, forecast), nil
}

func (p *ForecaProvider) searchLocation(ctx context.Context, zip string) (int64, error) {
	params := url.Values{}
	params.Set("country", "us")
	body, err := getJSON(ctx, p.client, "foreca", p.apiURL("/location/search/"+url.PathEscape(zip), params), p.headers())
	if err != nil {
		return 0, err
	}
	var search forecaLocationResponse
	if err := decode("foreca", body, &search); err != nil {
		return 0, err
	}
	if len(search.Locations) == 0 {
		return 0, fmt.Errorf("foreca: no location for zip %s", zip)
	}
	return search.Locations[0].ID, nil
}

func (p *ForecaProvider) apiURL(path string, params url.Values) string {
	u := p.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// forecaTime parses Foreca timestamps, which omit seconds ("2006-01-02T15:04-07:00").
func forecaTime(s string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02T15:04-07:00", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func transformForecaHourly(raw forecaForecastResponse) []models.HourlyForecast {
	hours := make([]models.HourlyForecast, 0, len(raw.Forecast))
	for _, f := range raw.Forecast {
		t, ok := forecaTime(f.Time)
		if !ok {
			continue
		}
		hours = append(hours, models.HourlyForecast{
			Time:          t,
			Temperature:   f.Temperature,
			FeelsLike:     f.FeelsLikeTemp,
			Humidity:      f.RelHumidity,
			WindSpeed:     f.WindSpeed,
			WindDirection: f.WindDir,
			Precipitation: models.Precipitation{
				Probability: f.PrecipProb,
				Amount:      f.PrecipAccum, // Foreca accumulations are millimeters
				Unit:        "mm",
			},
			WeatherCondition: f.SymbolPhrase,
		})
	}
	return hours
}

// combineForecaData assembles the shared shape. Foreca's hourly plan carries
// no daily endpoint, so the daily slice stays empty rather than nil.
func combineForecaData(loc models.Location, current forecaCurrentResponse, forecast forecaForecastResponse) models.WeatherData {
	c := current.Current
	return models.WeatherData{
		Location: loc,
		Current: models.CurrentConditions{
			Temperature:   c.Temperature,
			FeelsLike:     c.FeelsLikeTemp,
			Humidity:      c.RelHumidity,
			WindSpeed:     c.WindSpeed,
			WindDirection: c.WindDir,
			Description:   c.SymbolPhrase,
			Icon:          c.Symbol,
			Precipitation: models.Precipitation{
				Probability: c.PrecipProb,
				Amount:      c.PrecipRate,
				Unit:        "mm",
			},
		},
		Hourly:      transformForecaHourly(forecast),
		Daily:       []models.DailyForecast{},
		Source:      models.SourceForeca,
		LastUpdated: time.Now().UnixMilli(),
	}
}
