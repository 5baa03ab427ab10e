package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	Environment string // ENV_NAME; "prod" disables the development coordinate fallback
	ServerPort  string

	// Azure Maps serves both the weather adapter and ZIP geocoding.
	AzureMapsAPIKey  string
	AzureMapsBaseURL string

	OpenMeteoBaseURL string

	RapidAPIKey  string
	RapidAPIHost string

	GoogleWeatherAPIKey  string
	GoogleWeatherBaseURL string
	GoogleTotalHours     int
	GooglePageDelay      time.Duration
	GoogleTimeout        time.Duration

	IPLocationURL     string
	IPLocationTimeout time.Duration

	ProviderTimeout time.Duration
	RequestTimeout  time.Duration

	CacheBackend   string // "in_memory" or "memcached"
	CacheTTL       time.Duration
	GoogleCacheTTL time.Duration // longer than CacheTTL because pagination is costly
	GeocodeTTL     time.Duration
	IPLocationTTL  time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RateLimitRPS   int
	RateLimitBurst int

	CoalesceEnabled bool
	CoalesceTimeout time.Duration

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	WarmZips     []string
	WarmInterval time.Duration

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Providers struct {
		Timeout   string `yaml:"timeout"`
		AzureMaps struct {
			BaseURL string `yaml:"base_url"`
		} `yaml:"azuremaps"`
		OpenMeteo struct {
			BaseURL string `yaml:"base_url"`
		} `yaml:"openmeteo"`
		Foreca struct {
			Host string `yaml:"host"`
		} `yaml:"foreca"`
		GoogleWeather struct {
			BaseURL    string `yaml:"base_url"`
			TotalHours int    `yaml:"total_hours"`
			PageDelay  string `yaml:"page_delay"`
			Timeout    string `yaml:"timeout"`
		} `yaml:"googleweather"`
		IPLocation struct {
			URL     string `yaml:"url"`
			Timeout string `yaml:"timeout"`
		} `yaml:"ip_location"`
	} `yaml:"providers"`

	Cache struct {
		Backend    string `yaml:"backend"`
		TTL        string `yaml:"ttl"`
		GoogleTTL  string `yaml:"google_ttl"`
		GeocodeTTL string `yaml:"geocode_ttl"`
		IPTTL      string `yaml:"ip_ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RateLimitRPS    int    `yaml:"rate_limit_rps"`
		RateLimitBurst  int    `yaml:"rate_limit_burst"`
		CoalesceEnabled *bool  `yaml:"coalesce_enabled"`
		CoalesceTimeout string `yaml:"coalesce_timeout"`
		CircuitBreaker  struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Warming struct {
		Zips     []string `yaml:"zips"`
		Interval string   `yaml:"interval"`
	} `yaml:"warming"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev), then
// applies env overrides. A .env file in the working directory is loaded first
// so local API keys do not have to live in the shell profile. Call from
// project root.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{Environment: env}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "3001"
	}

	cfg.AzureMapsAPIKey = os.Getenv("AZURE_MAPS_API_KEY")
	cfg.AzureMapsBaseURL = firstNonEmpty(os.Getenv("AZURE_MAPS_BASE_URL"), fc.Providers.AzureMaps.BaseURL, "https://atlas.microsoft.com")
	cfg.OpenMeteoBaseURL = firstNonEmpty(os.Getenv("OPEN_METEO_BASE_URL"), fc.Providers.OpenMeteo.BaseURL, "https://api.open-meteo.com")
	cfg.RapidAPIKey = os.Getenv("RAPIDAPI_KEY")
	cfg.RapidAPIHost = firstNonEmpty(os.Getenv("RAPIDAPI_HOST"), fc.Providers.Foreca.Host, "foreca-weather.p.rapidapi.com")
	cfg.GoogleWeatherAPIKey = os.Getenv("GOOGLE_WEATHER_API_KEY")
	cfg.GoogleWeatherBaseURL = firstNonEmpty(os.Getenv("GOOGLE_WEATHER_BASE_URL"), fc.Providers.GoogleWeather.BaseURL, "https://weather.googleapis.com")

	cfg.GoogleTotalHours = fc.Providers.GoogleWeather.TotalHours
	if cfg.GoogleTotalHours <= 0 {
		cfg.GoogleTotalHours = 240
	}
	cfg.GooglePageDelay = parseDuration(fc.Providers.GoogleWeather.PageDelay, 100*time.Millisecond)
	cfg.GoogleTimeout = parseDuration(fc.Providers.GoogleWeather.Timeout, 15*time.Second)

	cfg.IPLocationURL = firstNonEmpty(fc.Providers.IPLocation.URL, "http://ip-api.com/json")
	cfg.IPLocationTimeout = parseDuration(fc.Providers.IPLocation.Timeout, 5*time.Second)

	cfg.ProviderTimeout = parseDuration(fc.Providers.Timeout, 10*time.Second)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 20*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 15*time.Minute)
	cfg.GoogleCacheTTL = parseDuration(fc.Cache.GoogleTTL, 30*time.Minute)
	cfg.GeocodeTTL = parseDuration(fc.Cache.GeocodeTTL, 24*time.Hour)
	cfg.IPLocationTTL = parseDuration(fc.Cache.IPTTL, time.Hour)

	cfg.MemcachedAddrs = firstNonEmpty(strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS")), strings.TrimSpace(fc.Cache.Memcached.Addrs), "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS < 0 {
		cfg.RateLimitRPS = 0
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 2 * cfg.RateLimitRPS
	}

	cfg.CoalesceEnabled = true
	if fc.Reliability.CoalesceEnabled != nil {
		cfg.CoalesceEnabled = *fc.Reliability.CoalesceEnabled
	}
	cfg.CoalesceTimeout = parseDuration(fc.Reliability.CoalesceTimeout, 20*time.Second)

	cfg.CircuitBreakerEnabled = true
	if fc.Reliability.CircuitBreaker.Enabled != nil {
		cfg.CircuitBreakerEnabled = *fc.Reliability.CircuitBreaker.Enabled
	}
	cfg.CircuitBreakerFailureThreshold = fc.Reliability.CircuitBreaker.FailureThreshold
	cfg.CircuitBreakerSuccessThreshold = fc.Reliability.CircuitBreaker.SuccessThreshold
	cfg.CircuitBreakerTimeout = parseDuration(fc.Reliability.CircuitBreaker.Timeout, 30*time.Second)

	cfg.WarmZips = fc.Warming.Zips
	cfg.WarmInterval = parseDurationOrZero(fc.Warming.Interval, 0)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether the development-only coordinate fallback should
// be disabled.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "prod") || strings.EqualFold(c.Environment, "production")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty
// string or parse error. Zero and negative values pass through as-is.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. The per-request timeout must leave
// room for the slowest provider path (Google Weather pagination), and tracked
// warm ZIPs must be well-formed.
func validate(cfg *Config) error {
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if cfg.RequestTimeout <= cfg.GoogleTimeout {
		cfg.RequestTimeout = cfg.GoogleTimeout + 5*time.Second
	}
	if cfg.GoogleCacheTTL < cfg.CacheTTL {
		return fmt.Errorf("cache.google_ttl (%s) must not be shorter than cache.ttl (%s)", cfg.GoogleCacheTTL, cfg.CacheTTL)
	}
	for _, zip := range cfg.WarmZips {
		if len(zip) != 5 {
			return fmt.Errorf("warming.zips entry %q is not a five-digit ZIP", zip)
		}
	}
	return nil
}
