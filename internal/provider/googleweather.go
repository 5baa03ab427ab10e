package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/petergault/supersky/internal/cache"
	"github.com/petergault/supersky/internal/models"
	"github.com/petergault/supersky/internal/observability"
)

// hoursPerPage is how many forecast hours the Google Weather API returns per
// page in practice, regardless of the requested pageSize.
const hoursPerPage = 24

// GoogleWeatherProvider adapts the Google Weather hourly forecast API. The API
// pages its hourly data behind opaque nextPageToken cursors, so one logical
// fetch is a loop of up to ceil(totalHours/24) requests with a small delay
// between pages.
//
// Assembled results are cached under their own key with a longer TTL than
// ordinary weather lookups because re-assembly costs up to ten upstream calls.
type GoogleWeatherProvider struct {
	apiKey     string
	baseURL    string
	client     *http.Client
	totalHours int
	pageDelay  time.Duration
	timeout    time.Duration
	cache      cache.Cache
	cacheTTL   time.Duration
	logger     *zap.Logger
}

// GoogleWeatherConfig bundles constructor parameters.
type GoogleWeatherConfig struct {
	APIKey     string
	BaseURL    string
	TotalHours int           // hours to assemble, default 240
	PageDelay  time.Duration // inter-page throttle, default 100ms
	Timeout    time.Duration // whole-loop deadline, default 15s
	Cache      cache.Cache   // optional; caches assembled hours
	CacheTTL   time.Duration
	Logger     *zap.Logger
}

// NewGoogleWeatherProvider creates a GoogleWeatherProvider.
func NewGoogleWeatherProvider(cfg GoogleWeatherConfig) *GoogleWeatherProvider {
	if cfg.TotalHours <= 0 {
		cfg.TotalHours = 240
	}
	if cfg.PageDelay < 0 {
		cfg.PageDelay = 100 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Minute
	}
	return &GoogleWeatherProvider{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		client:     &http.Client{Timeout: cfg.Timeout},
		totalHours: cfg.TotalHours,
		pageDelay:  cfg.PageDelay,
		timeout:    cfg.Timeout,
		cache:      cfg.Cache,
		cacheTTL:   cfg.CacheTTL,
		logger:     cfg.Logger,
	}
}

func (p *GoogleWeatherProvider) Source() models.Source {
	return models.SourceGoogleWeather
}

type googleForecastHour struct {
	Interval struct {
		StartTime string `json:"startTime"`
	} `json:"interval"`
	WeatherCondition struct {
		Description struct {
			Text string `json:"text"`
		} `json:"description"`
		Type string `json:"type"`
	} `json:"weatherCondition"`
	Temperature struct {
		Degrees float64 `json:"degrees"`
	} `json:"temperature"`
	FeelsLikeTemperature struct {
		Degrees float64 `json:"degrees"`
	} `json:"feelsLikeTemperature"`
	RelativeHumidity int `json:"relativeHumidity"`
	Wind             struct {
		Direction struct {
			Degrees float64 `json:"degrees"`
		} `json:"direction"`
		Speed struct {
			Value float64 `json:"value"`
		} `json:"speed"`
	} `json:"wind"`
	Precipitation struct {
		Probability struct {
			Percent int    `json:"percent"`
			Type    string `json:"type"`
		} `json:"probability"`
		QPF struct {
			Quantity float64 `json:"quantity"`
			Unit     string  `json:"unit"`
		} `json:"qpf"`
	} `json:"precipitation"`
}

type googleForecastPage struct {
	ForecastHours []googleForecastHour `json:"forecastHours"`
	NextPageToken string               `json:"nextPageToken"`
}

// Fetch assembles up to totalHours of hourly forecast through the pagination
// loop, then derives current conditions and daily aggregates from the hours.
func (p *GoogleWeatherProvider) Fetch(ctx context.Context, loc models.Location) (models.WeatherData, error) {
	if p.apiKey == "" {
		return models.WeatherData{}, fmt.Errorf("googleweather: %w", ErrMissingAPIKey)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	hours, err := p.assembleHours(ctx, loc.Coordinates)
	if err != nil {
		return models.WeatherData{}, err
	}
	return combineGoogleData(loc, hours), nil
}

// assembleHours returns the transformed hourly sequence, from cache when the
// assembled result is fresh enough.
func (p *GoogleWeatherProvider) assembleHours(ctx context.Context, coords models.Coordinates) ([]models.HourlyForecast, error) {
	key := cache.GoogleWeatherKey(coords, p.totalHours)
	if p.cache != nil {
		if raw, ok, err := p.cache.Get(ctx, key); err == nil && ok {
			var hours []models.HourlyForecast
			if err := json.Unmarshal(raw, &hours); err == nil {
				observability.CacheHitsTotal.WithLabelValues("google_pagination").Inc()
				return hours, nil
			}
		}
	}

	collected, err := p.paginate(ctx, coords)
	if err != nil {
		return nil, err
	}

	hours := transformGoogleHourly(collected)
	if p.cache != nil {
		if raw, err := json.Marshal(hours); err == nil {
			if err := p.cache.Set(ctx, key, raw, p.cacheTTL); err != nil {
				observability.CacheErrorsTotal.WithLabelValues("set").Inc()
			}
		}
	}
	return hours, nil
}

// paginate runs the page-token loop. Termination conditions, all checked each
// iteration: hours collected >= requested, no nextPageToken, or request count
// >= ceil(totalHours/hoursPerPage). A first-request failure propagates as a
// hard error; a later-request failure keeps the hours already collected.
func (p *GoogleWeatherProvider) paginate(ctx context.Context, coords models.Coordinates) ([]googleForecastHour, error) {
	maxRequests := (p.totalHours + hoursPerPage - 1) / hoursPerPage

	var collected []googleForecastHour
	pageToken := ""
	requests := 0

	for {
		if requests > 0 && p.pageDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.pageDelay):
			}
		}

		page, err := p.fetchPage(ctx, coords, pageToken)
		requests++
		if err != nil {
			if requests == 1 {
				return nil, err
			}
			// Mid-pagination failure: a partial forecast beats none.
			observability.PaginationPartialTotal.Inc()
			if p.logger != nil {
				p.logger.Warn("google pagination aborted, keeping partial hours",
					zap.Int("request", requests),
					zap.Int("hours_collected", len(collected)),
					zap.Error(err))
			}
			break
		}
		observability.PaginationPagesTotal.Inc()

		collected = append(collected, page.ForecastHours...)
		pageToken = page.NextPageToken

		if len(collected) >= p.totalHours || pageToken == "" || requests >= maxRequests {
			break
		}
	}

	if len(collected) > p.totalHours {
		collected = collected[:p.totalHours]
	}
	return collected, nil
}

func (p *GoogleWeatherProvider) fetchPage(ctx context.Context, coords models.Coordinates, pageToken string) (googleForecastPage, error) {
	u, err := url.Parse(p.baseURL + "/v1/forecast/hours:lookup")
	if err != nil {
		return googleForecastPage{}, fmt.Errorf("googleweather: invalid base URL: %w", err)
	}
	params := url.Values{}
	params.Set("key", p.apiKey)
	params.Set("location.latitude", strconv.FormatFloat(coords.Latitude, 'f', -1, 64))
	params.Set("location.longitude", strconv.FormatFloat(coords.Longitude, 'f', -1, 64))
	params.Set("hours", strconv.Itoa(p.totalHours))
	params.Set("pageSize", strconv.Itoa(p.totalHours))
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}
	u.RawQuery = params.Encode()

	body, err := getJSON(ctx, p.client, "googleweather", u.String(), nil)
	if err != nil {
		return googleForecastPage{}, err
	}
	var page googleForecastPage
	if err := decode("googleweather", body, &page); err != nil {
		return googleForecastPage{}, err
	}
	return page, nil
}

// googleQPFMM normalizes a quantitative precipitation forecast to millimeters.
func googleQPFMM(quantity float64, unit string) float64 {
	if unit == "INCHES" {
		return quantity * mmPerInch
	}
	return quantity
}

func transformGoogleHourly(raw []googleForecastHour) []models.HourlyForecast {
	hours := make([]models.HourlyForecast, 0, len(raw))
	for _, h := range raw {
		t, err := time.Parse(time.RFC3339, h.Interval.StartTime)
		if err != nil {
			continue
		}
		hours = append(hours, models.HourlyForecast{
			Time:          t,
			Temperature:   h.Temperature.Degrees,
			FeelsLike:     h.FeelsLikeTemperature.Degrees,
			Humidity:      h.RelativeHumidity,
			WindSpeed:     h.Wind.Speed.Value,
			WindDirection: int(h.Wind.Direction.Degrees),
			Precipitation: models.Precipitation{
				Probability: h.Precipitation.Probability.Percent,
				Amount:      googleQPFMM(h.Precipitation.QPF.Quantity, h.Precipitation.QPF.Unit),
				Unit:        "mm",
				Type:        h.Precipitation.Probability.Type,
			},
			WeatherCondition: h.WeatherCondition.Description.Text,
		})
	}
	return hours
}

// transformGoogleDaily derives daily aggregates from the hourly sequence:
// min/max temperature, summed precipitation, max probability per UTC date.
func transformGoogleDaily(hours []models.HourlyForecast) []models.DailyForecast {
	byDate := make(map[string]*models.DailyForecast)
	for _, h := range hours {
		day := h.Time.UTC().Format("2006-01-02")
		d, ok := byDate[day]
		if !ok {
			date, _ := time.Parse("2006-01-02", day)
			d = &models.DailyForecast{
				Date:           date,
				TemperatureMin: h.Temperature,
				TemperatureMax: h.Temperature,
				Precipitation:  models.Precipitation{Unit: "mm"},
			}
			byDate[day] = d
		}
		if h.Temperature < d.TemperatureMin {
			d.TemperatureMin = h.Temperature
		}
		if h.Temperature > d.TemperatureMax {
			d.TemperatureMax = h.Temperature
		}
		d.Precipitation.Amount += h.Precipitation.Amount
		if h.Precipitation.Probability > d.Precipitation.Probability {
			d.Precipitation.Probability = h.Precipitation.Probability
		}
	}

	days := make([]models.DailyForecast, 0, len(byDate))
	for _, d := range byDate {
		days = append(days, *d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })
	return days
}

func combineGoogleData(loc models.Location, hours []models.HourlyForecast) models.WeatherData {
	var current models.CurrentConditions
	if len(hours) > 0 {
		h := hours[0]
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
	if hours == nil {
		hours = []models.HourlyForecast{}
	}

	return models.WeatherData{
		Location:    loc,
		Current:     current,
		Hourly:      hours,
		Daily:       transformGoogleDaily(hours),
		Source:      models.SourceGoogleWeather,
		LastUpdated: time.Now().UnixMilli(),
	}
}
