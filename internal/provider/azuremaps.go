package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/petergault/supersky/internal/models"
)

// AzureMapsProvider adapts the Azure Maps weather API. Daily and hourly
// forecasts live on separate endpoints and are fetched concurrently; either
// call failing fails the whole fetch.
//
// Azure Maps reports precipitation in inches, the one inch-native provider.
// The transformer converts to millimeters.
type AzureMapsProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewAzureMapsProvider creates an AzureMapsProvider.
func NewAzureMapsProvider(apiKey, baseURL string, timeout time.Duration) *AzureMapsProvider {
	return &AzureMapsProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *AzureMapsProvider) Source() models.Source {
	return models.SourceAzureMaps
}

type azureValueUnit struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

type azureHourlyResponse struct {
	Forecasts []struct {
		Date                string         `json:"date"`
		IconPhrase          string         `json:"iconPhrase"`
		Temperature         azureValueUnit `json:"temperature"`
		RealFeelTemperature azureValueUnit `json:"realFeelTemperature"`
		RelativeHumidity    int            `json:"relativeHumidity"`
		Wind                struct {
			Direction struct {
				Degrees float64 `json:"degrees"`
			} `json:"direction"`
			Speed azureValueUnit `json:"speed"`
		} `json:"wind"`
		PrecipitationProbability int            `json:"precipitationProbability"`
		TotalLiquid              azureValueUnit `json:"totalLiquid"`
		HasPrecipitation         bool           `json:"hasPrecipitation"`
		PrecipitationType        string         `json:"precipitationType"`
	} `json:"forecasts"`
}

type azureDailyResponse struct {
	Forecasts []struct {
		Date        string `json:"date"`
		Temperature struct {
			Minimum azureValueUnit `json:"minimum"`
			Maximum azureValueUnit `json:"maximum"`
		} `json:"temperature"`
		Day struct {
			IconPhrase               string         `json:"iconPhrase"`
			PrecipitationProbability int            `json:"precipitationProbability"`
			TotalLiquid              azureValueUnit `json:"totalLiquid"`
		} `json:"day"`
		Sun struct {
			Rise string `json:"rise"`
			Set  string `json:"set"`
		} `json:"sun"`
	} `json:"forecasts"`
}

// Fetch retrieves hourly and daily forecasts concurrently and combines them.
func (p *AzureMapsProvider) Fetch(ctx context.Context, loc models.Location) (models.WeatherData, error) {
	if p.apiKey == "" {
		return models.WeatherData{}, fmt.Errorf("azuremaps: %w", ErrMissingAPIKey)
	}

	var (
		hourly    azureHourlyResponse
		daily     azureDailyResponse
		hourlyErr error
		dailyErr  error
	)

	done := make(chan struct{}, 2)
	go func() {
		defer func() { done <- struct{}{} }()
		body, err := getJSON(ctx, p.client, "azuremaps", p.forecastURL("hourly", loc.Coordinates, 240), nil)
		if err != nil {
			hourlyErr = err
			return
		}
		hourlyErr = decode("azuremaps", body, &hourly)
	}()
	go func() {
		defer func() { done <- struct{}{} }()
		body, err := getJSON(ctx, p.client, "azuremaps", p.forecastURL("daily", loc.Coordinates, 10), nil)
		if err != nil {
			dailyErr = err
			return
		}
		dailyErr = decode("azuremaps", body, &daily)
	}()
	<-done
	<-done

	if hourlyErr != nil {
		return models.WeatherData{}, hourlyErr
	}
	if dailyErr != nil {
		return models.WeatherData{}, dailyErr
	}

	return combineAzureData(loc, hourly, daily), nil
}

func (p *AzureMapsProvider) forecastURL(kind string, coords models.Coordinates, duration int) string {
	u, _ := url.Parse(p.baseURL + "/weather/forecast/" + kind + "/json")
	params := url.Values{}
	params.Set("api-version", "1.1")
	params.Set("subscription-key", p.apiKey)
	params.Set("query", fmt.Sprintf("%f,%f", coords.Latitude, coords.Longitude))
	params.Set("duration", fmt.Sprintf("%d", duration))
	u.RawQuery = params.Encode()
	return u.String()
}

// azureAmountMM normalizes an Azure liquid amount to millimeters. Azure
// returns inches when unit is "in"; metric responses already carry "mm".
func azureAmountMM(v azureValueUnit) float64 {
	if v.Unit == "in" {
		return v.Value * mmPerInch
	}
	return v.Value
}

func transformAzureHourly(raw azureHourlyResponse) []models.HourlyForecast {
	hours := make([]models.HourlyForecast, 0, len(raw.Forecasts))
	for _, f := range raw.Forecasts {
		t, err := time.Parse(time.RFC3339, f.Date)
		if err != nil {
			continue
		}
		precipType := ""
		if f.HasPrecipitation {
			precipType = f.PrecipitationType
		}
		hours = append(hours, models.HourlyForecast{
			Time:          t,
			Temperature:   f.Temperature.Value,
			FeelsLike:     f.RealFeelTemperature.Value,
			Humidity:      f.RelativeHumidity,
			WindSpeed:     f.Wind.Speed.Value,
			WindDirection: int(f.Wind.Direction.Degrees),
			Precipitation: models.Precipitation{
				Probability: f.PrecipitationProbability,
				Amount:      azureAmountMM(f.TotalLiquid),
				Unit:        "mm",
				Type:        precipType,
			},
			WeatherCondition: f.IconPhrase,
		})
	}
	return hours
}

func transformAzureDaily(raw azureDailyResponse) []models.DailyForecast {
	days := make([]models.DailyForecast, 0, len(raw.Forecasts))
	for _, f := range raw.Forecasts {
		date, err := time.Parse(time.RFC3339, f.Date)
		if err != nil {
			continue
		}
		day := models.DailyForecast{
			Date:           date,
			TemperatureMin: f.Temperature.Minimum.Value,
			TemperatureMax: f.Temperature.Maximum.Value,
			Precipitation: models.Precipitation{
				Probability: f.Day.PrecipitationProbability,
				Amount:      azureAmountMM(f.Day.TotalLiquid),
				Unit:        "mm",
			},
		}
		if rise, err := time.Parse(time.RFC3339, f.Sun.Rise); err == nil {
			day.Sunrise = rise
		}
		if set, err := time.Parse(time.RFC3339, f.Sun.Set); err == nil {
			day.Sunset = set
		}
		days = append(days, day)
	}
	return days
}

// combineAzureData stitches the two transformed responses into the shared
// shape. Current conditions come from the first hourly record.
func combineAzureData(loc models.Location, hourlyRaw azureHourlyResponse, dailyRaw azureDailyResponse) models.WeatherData {
	hourly := transformAzureHourly(hourlyRaw)
	daily := transformAzureDaily(dailyRaw)

	var current models.CurrentConditions
	if len(hourly) > 0 {
		h := hourly[0]
		current = models.CurrentConditions{
			Temperature:   h.Temperature,
			FeelsLike:     h.FeelsLike,
			Humidity:      h.Humidity,
			WindSpeed:     h.WindSpeed,
			WindDirection: h.WindDirection,
			Description:   h.WeatherCondition,
			Precipitation: h.Precipitation,
		}
	}

	return models.WeatherData{
		Location:    loc,
		Current:     current,
		Hourly:      hourly,
		Daily:       daily,
		Source:      models.SourceAzureMaps,
		LastUpdated: time.Now().UnixMilli(),
	}
}
