package provider

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/petergault/supersky/internal/models"
)

// OpenMeteoProvider adapts the Open-Meteo forecast API. One unauthenticated
// call carries current, hourly, and daily data. Precipitation is already
// millimeters.
type OpenMeteoProvider struct {
	baseURL string
	client  *http.Client
}

// NewOpenMeteoProvider creates an OpenMeteoProvider.
func NewOpenMeteoProvider(baseURL string, timeout time.Duration) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *OpenMeteoProvider) Source() models.Source {
	return models.SourceOpenMeteo
}

type openMeteoResponse struct {
	Current struct {
		Time              string  `json:"time"`
		Temperature2m     float64 `json:"temperature_2m"`
		ApparentTemp      float64 `json:"apparent_temperature"`
		RelativeHumidity  int     `json:"relative_humidity_2m"`
		Precipitation     float64 `json:"precipitation"`
		WindSpeed10m      float64 `json:"wind_speed_10m"`
		WindDirection10m  float64 `json:"wind_direction_10m"`
		WeatherCode       int     `json:"weather_code"`
	} `json:"current"`
	Hourly struct {
		Time                     []string  `json:"time"`
		Temperature2m            []float64 `json:"temperature_2m"`
		ApparentTemp             []float64 `json:"apparent_temperature"`
		RelativeHumidity         []int     `json:"relative_humidity_2m"`
		Precipitation            []float64 `json:"precipitation"`
		PrecipitationProbability []int     `json:"precipitation_probability"`
		WindSpeed10m             []float64 `json:"wind_speed_10m"`
		WindDirection10m         []float64 `json:"wind_direction_10m"`
		WeatherCode              []int     `json:"weather_code"`
	} `json:"hourly"`
	Daily struct {
		Time                        []string  `json:"time"`
		Temperature2mMax            []float64 `json:"temperature_2m_max"`
		Temperature2mMin            []float64 `json:"temperature_2m_min"`
		PrecipitationSum            []float64 `json:"precipitation_sum"`
		PrecipitationProbabilityMax []int     `json:"precipitation_probability_max"`
		Sunrise                     []string  `json:"sunrise"`
		Sunset                      []string  `json:"sunset"`
	} `json:"daily"`
}

// Fetch retrieves the full forecast in a single call.
func (p *OpenMeteoProvider) Fetch(ctx context.Context, loc models.Location) (models.WeatherData, error) {
	u, err := url.Parse(p.baseURL + "/v1/forecast")
	if err != nil {
		return models.WeatherData{}, err
	}
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(loc.Coordinates.Latitude, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(loc.Coordinates.Longitude, 'f', -1, 64))
	params.Set("current", "temperature_2m,apparent_temperature,relative_humidity_2m,precipitation,wind_speed_10m,wind_direction_10m,weather_code")
	params.Set("hourly", "temperature_2m,apparent_temperature,relative_humidity_2m,precipitation,precipitation_probability,wind_speed_10m,wind_direction_10m,weather_code")
	params.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_sum,precipitation_probability_max,sunrise,sunset")
	params.Set("forecast_days", "10")
	params.Set("timezone", "auto")
	u.RawQuery = params.Encode()

	body, err := getJSON(ctx, p.client, "openmeteo", u.String(), nil)
	if err != nil {
		return models.WeatherData{}, err
	}

	var raw openMeteoResponse
	if err := decode("openmeteo", body, &raw); err != nil {
		return models.WeatherData{}, err
	}

	return combineOpenMeteoData(loc, raw), nil
}

// openMeteoTime parses Open-Meteo's local ISO timestamps ("2006-01-02T15:04").
func openMeteoTime(s string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02T15:04", "2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func transformOpenMeteoHourly(raw openMeteoResponse) []models.HourlyForecast {
	h := raw.Hourly
	hours := make([]models.HourlyForecast, 0, len(h.Time))
	for i, ts := range h.Time {
		t, ok := openMeteoTime(ts)
		if !ok {
			continue
		}
		hf := models.HourlyForecast{Time: t, Precipitation: models.Precipitation{Unit: "mm"}}
		if i < len(h.Temperature2m) {
			hf.Temperature = h.Temperature2m[i]
		}
		if i < len(h.ApparentTemp) {
			hf.FeelsLike = h.ApparentTemp[i]
		}
		if i < len(h.RelativeHumidity) {
			hf.Humidity = h.RelativeHumidity[i]
		}
		if i < len(h.WindSpeed10m) {
			hf.WindSpeed = h.WindSpeed10m[i]
		}
		if i < len(h.WindDirection10m) {
			hf.WindDirection = int(h.WindDirection10m[i])
		}
		if i < len(h.Precipitation) {
			hf.Precipitation.Amount = h.Precipitation[i]
		}
		if i < len(h.PrecipitationProbability) {
			hf.Precipitation.Probability = h.PrecipitationProbability[i]
		}
		if i < len(h.WeatherCode) {
			hf.WeatherCondition = openMeteoDescription(h.WeatherCode[i])
		}
		hours = append(hours, hf)
	}
	return hours
}

func transformOpenMeteoDaily(raw openMeteoResponse) []models.DailyForecast {
	d := raw.Daily
	days := make([]models.DailyForecast, 0, len(d.Time))
	for i, ts := range d.Time {
		t, ok := openMeteoTime(ts)
		if !ok {
			continue
		}
		df := models.DailyForecast{Date: t, Precipitation: models.Precipitation{Unit: "mm"}}
		if i < len(d.Temperature2mMin) {
			df.TemperatureMin = d.Temperature2mMin[i]
		}
		if i < len(d.Temperature2mMax) {
			df.TemperatureMax = d.Temperature2mMax[i]
		}
		if i < len(d.PrecipitationSum) {
			df.Precipitation.Amount = d.PrecipitationSum[i]
		}
		if i < len(d.PrecipitationProbabilityMax) {
			df.Precipitation.Probability = d.PrecipitationProbabilityMax[i]
		}
		if i < len(d.Sunrise) {
			if rise, ok := openMeteoTime(d.Sunrise[i]); ok {
				df.Sunrise = rise
			}
		}
		if i < len(d.Sunset) {
			if set, ok := openMeteoTime(d.Sunset[i]); ok {
				df.Sunset = set
			}
		}
		days = append(days, df)
	}
	return days
}

func combineOpenMeteoData(loc models.Location, raw openMeteoResponse) models.WeatherData {
	c := raw.Current
	current := models.CurrentConditions{
		Temperature:   c.Temperature2m,
		FeelsLike:     c.ApparentTemp,
		Humidity:      c.RelativeHumidity,
		WindSpeed:     c.WindSpeed10m,
		WindDirection: int(c.WindDirection10m),
		Description:   openMeteoDescription(c.WeatherCode),
		Precipitation: models.Precipitation{
			Amount: c.Precipitation,
			Unit:   "mm",
		},
	}

	return models.WeatherData{
		Location:    loc,
		Current:     current,
		Hourly:      transformOpenMeteoHourly(raw),
		Daily:       transformOpenMeteoDaily(raw),
		Source:      models.SourceOpenMeteo,
		LastUpdated: time.Now().UnixMilli(),
	}
}

// openMeteoDescription maps WMO weather interpretation codes to display text.
func openMeteoDescription(code int) string {
	switch {
	case code == 0:
		return "Clear sky"
	case code >= 1 && code <= 3:
		return "Partly cloudy"
	case code == 45 || code == 48:
		return "Fog"
	case code >= 51 && code <= 57:
		return "Drizzle"
	case code >= 61 && code <= 67:
		return "Rain"
	case code >= 71 && code <= 77:
		return "Snow"
	case code >= 80 && code <= 82:
		return "Rain showers"
	case code == 85 || code == 86:
		return "Snow showers"
	case code >= 95:
		return "Thunderstorm"
	default:
		return "Unknown"
	}
}
