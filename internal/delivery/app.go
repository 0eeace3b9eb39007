package delivery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/alecsharpie/ey-frog-challenge/internal/cache"
	"github.com/alecsharpie/ey-frog-challenge/internal/catalog"
	"github.com/alecsharpie/ey-frog-challenge/internal/metrics"
	"github.com/alecsharpie/ey-frog-challenge/internal/notification"
	"github.com/alecsharpie/ey-frog-challenge/internal/occurrence"
	"github.com/alecsharpie/ey-frog-challenge/internal/predictor"
	"github.com/alecsharpie/ey-frog-challenge/internal/properties"
	"github.com/alecsharpie/ey-frog-challenge/internal/weather"
)

// App carries the shared dependencies of every use case.
type App struct {
	Config   *properties.Config
	Log      *logrus.Logger
	Metrics  *metrics.Metrics
	Notifier *notification.Discord
	HTTP     *http.Client
	Clock    clockwork.Clock
	// Progress receives the predictor progress bars; nil disables them.
	Progress io.Writer

	redis *redis.Client
}

// NewApp wires the HTTP client, cache backend, metrics and notifier from
// cfg. A redis backend that does not answer a ping falls back to the file
// cache.
func NewApp(ctx context.Context, cfg *properties.Config, log *logrus.Logger) *App {
	a := &App{
		Config:   cfg,
		Log:      log,
		Metrics:  metrics.New(),
		HTTP:     &http.Client{Timeout: cfg.HTTPTimeout},
		Clock:    clockwork.NewRealClock(),
		Progress: os.Stderr,
	}
	a.Notifier = notification.NewDiscord(cfg.DiscordErrorNotificationURL, cfg.DiscordSuccessNotificationURL, a.HTTP)

	if cfg.CacheBackend == properties.CacheBackendRedis {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := cache.Ping(ctx, client); err != nil {
			log.WithError(err).Warn("redis unavailable, falling back to the file cache")
			client.Close()
			cfg.CacheBackend = properties.CacheBackendFile
		} else {
			a.redis = client
		}
	}
	return a
}

// Close flushes the metrics textfile and releases the redis connection.
func (a *App) Close() error {
	err := a.Metrics.WriteTextfile(a.Config.MetricsFile)
	if a.redis != nil {
		if cerr := a.redis.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func newCache[T any](a *App, namespace string) cache.Service[T] {
	return cache.New[T](a.Config.CacheBackend, a.Config.CachePath(""), a.redis, namespace, a.Config.CacheTTL)
}

func (a *App) Catalog() *catalog.Client {
	return catalog.NewClient(a.Config.StacAPIURL, a.HTTP,
		catalog.WithSigner(catalog.TokenSigner(a.Config.StacAssetToken)),
		catalog.WithRetry(a.Config.HTTPRetries, a.Config.HTTPRetryDelay),
		catalog.WithCache(newCache[[]catalog.Item](a, "stac")),
		catalog.WithLogger(a.Log),
		catalog.WithObserver(a.Metrics.HTTPObserver("stac")),
	)
}

func (a *App) Occurrences() *occurrence.Client {
	return occurrence.NewClient(a.Config.GbifAPIURL, a.HTTP,
		occurrence.WithRetry(a.Config.HTTPRetries, a.Config.HTTPRetryDelay),
		occurrence.WithWorkers(a.Config.Workers),
		occurrence.WithCache(newCache[occurrence.Page](a, "gbif")),
		occurrence.WithLogger(a.Log),
		occurrence.WithObserver(a.Metrics.HTTPObserver("gbif")),
	)
}

func (a *App) Weather() *weather.Client {
	return weather.NewClient(a.Config.OpenMeteoURL, a.HTTP,
		weather.WithRetry(a.Config.HTTPRetries, a.Config.HTTPRetryDelay),
		weather.WithCache(newCache[weather.HistoricalWeather](a, "open_meteo")),
		weather.WithLogger(a.Log),
		weather.WithObserver(a.Metrics.HTTPObserver("open_meteo")),
	)
}

func (a *App) Predictors(c predictor.Catalog) *predictor.Builder {
	opts := []predictor.Option{
		predictor.WithWorkers(a.Config.Workers),
		predictor.WithRetry(a.Config.HTTPRetries, a.Config.HTTPRetryDelay),
		predictor.WithLogger(a.Log),
		predictor.WithMetrics(a.Metrics),
		predictor.WithClock(a.Clock),
	}
	if a.Progress != nil {
		opts = append(opts, predictor.WithProgress(a.Progress))
	}
	return predictor.NewBuilder(c, opts...)
}

// fail logs err, reports it to the error webhook and returns it wrapped
// with the use case name.
func (a *App) fail(ctx context.Context, useCase string, err error) error {
	err = fmt.Errorf("%s: %w", useCase, err)
	a.Log.WithError(err).Error("use case failed")
	if nerr := a.Notifier.Error(ctx, err.Error()); nerr != nil {
		a.Log.WithError(nerr).Warn("failed to send error notification")
	}
	return err
}

func (a *App) succeed(ctx context.Context, message string) {
	a.Log.Info(message)
	if err := a.Notifier.Success(ctx, message); err != nil {
		a.Log.WithError(err).Warn("failed to send success notification")
	}
}
