package properties

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	CacheBackendFile  = "file"
	CacheBackendRedis = "redis"
	CacheBackendNone  = "none"
)

type Config struct {
	RootPath string

	StacAPIURL     string
	StacAssetToken string
	GbifAPIURL     string
	OpenMeteoURL   string

	HTTPTimeout    time.Duration
	HTTPRetries    int
	HTTPRetryDelay time.Duration
	Workers        int

	CacheBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	DatabaseURL string

	LogLevel  string
	LogFormat string

	MetricsFile string

	DiscordErrorNotificationURL   string
	DiscordSuccessNotificationURL string
}

var defaults = map[string]interface{}{
	"ROOT_PATH":        ".",
	"STAC_API_URL":     "https://planetarycomputer.microsoft.com/api/stac/v1",
	"GBIF_API_URL":     "https://api.gbif.org/v1",
	"OPEN_METEO_URL":   "https://archive-api.open-meteo.com/v1/archive",
	"HTTP_TIMEOUT":     "60s",
	"HTTP_RETRIES":     5,
	"HTTP_RETRY_DELAY": "5s",
	"WORKERS":          8,
	"CACHE_BACKEND":    CacheBackendFile,
	"REDIS_DB":         0,
	"CACHE_TTL":        "168h",
	"LOG_LEVEL":        "info",
	"LOG_FORMAT":       "text",
}

// Load reads the given .env files (missing ones are skipped) and then the
// process environment. Environment variables win over .env values.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		// godotenv.Load never overrides variables that are already set.
		_ = godotenv.Load(f)
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	keys := []string{
		"ROOT_PATH", "STAC_API_URL", "STAC_ASSET_TOKEN", "GBIF_API_URL", "OPEN_METEO_URL",
		"HTTP_TIMEOUT", "HTTP_RETRIES", "HTTP_RETRY_DELAY", "WORKERS",
		"CACHE_BACKEND", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "CACHE_TTL",
		"DATABASE_URL", "LOG_LEVEL", "LOG_FORMAT", "METRICS_FILE",
		"DISCORD_ERROR_NOTIFICATION_URL", "DISCORD_SUCCESS_NOTIFICATION_URL",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	httpTimeout, err := parseDuration(v, "HTTP_TIMEOUT")
	if err != nil {
		return nil, err
	}
	retryDelay, err := parseDuration(v, "HTTP_RETRY_DELAY")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parseDuration(v, "CACHE_TTL")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		RootPath:                      v.GetString("ROOT_PATH"),
		StacAPIURL:                    strings.TrimSuffix(v.GetString("STAC_API_URL"), "/"),
		StacAssetToken:                v.GetString("STAC_ASSET_TOKEN"),
		GbifAPIURL:                    strings.TrimSuffix(v.GetString("GBIF_API_URL"), "/"),
		OpenMeteoURL:                  v.GetString("OPEN_METEO_URL"),
		HTTPTimeout:                   httpTimeout,
		HTTPRetries:                   v.GetInt("HTTP_RETRIES"),
		HTTPRetryDelay:                retryDelay,
		Workers:                       v.GetInt("WORKERS"),
		CacheBackend:                  strings.ToLower(v.GetString("CACHE_BACKEND")),
		RedisAddr:                     v.GetString("REDIS_ADDR"),
		RedisPassword:                 v.GetString("REDIS_PASSWORD"),
		RedisDB:                       v.GetInt("REDIS_DB"),
		CacheTTL:                      cacheTTL,
		DatabaseURL:                   v.GetString("DATABASE_URL"),
		LogLevel:                      v.GetString("LOG_LEVEL"),
		LogFormat:                     v.GetString("LOG_FORMAT"),
		MetricsFile:                   v.GetString("METRICS_FILE"),
		DiscordErrorNotificationURL:   v.GetString("DISCORD_ERROR_NOTIFICATION_URL"),
		DiscordSuccessNotificationURL: v.GetString("DISCORD_SUCCESS_NOTIFICATION_URL"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func (c *Config) validate() error {
	if c.Workers <= 0 {
		return errors.New("WORKERS must be positive")
	}
	if c.HTTPRetries <= 0 {
		return errors.New("HTTP_RETRIES must be positive")
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("HTTP_TIMEOUT must be positive")
	}
	switch c.CacheBackend {
	case CacheBackendFile, CacheBackendNone:
	case CacheBackendRedis:
		if c.RedisAddr == "" {
			return errors.New("CACHE_BACKEND is redis but REDIS_ADDR is not set")
		}
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.CacheBackend)
	}
	if c.StacAPIURL == "" || c.GbifAPIURL == "" {
		return errors.New("STAC_API_URL and GBIF_API_URL are required")
	}
	return nil
}

// DataPath joins elem under ROOT_PATH/data.
func (c *Config) DataPath(elem ...string) string {
	return filepath.Join(append([]string{c.RootPath, "data"}, elem...)...)
}

func (c *Config) OccurrencesPath(name string) string { return c.DataPath("occurrences", name) }
func (c *Config) PredictorsPath(name string) string  { return c.DataPath("predictors", name) }
func (c *Config) DatasetsPath(name string) string    { return c.DataPath("datasets", name) }
func (c *Config) ModelsPath(name string) string      { return c.DataPath("models", name) }
func (c *Config) ResultPath(name string) string      { return c.DataPath("result", name) }
func (c *Config) CachePath(name string) string       { return c.DataPath("cache", name) }
