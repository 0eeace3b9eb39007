package weather

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/alecsharpie/ey-frog-challenge/internal/cache"
	"github.com/alecsharpie/ey-frog-challenge/internal/logger"
	"github.com/alecsharpie/ey-frog-challenge/internal/utils"
)

const dateLayout = "2006-01-02"

type HourlyData struct {
	Time             []string  `json:"time"`
	RelativeHumidity []*float64 `json:"relative_humidity_2m"`
}

type DailyData struct {
	Time          []string   `json:"time"`
	Temperature   []*float64 `json:"temperature_2m_mean"`
	Precipitation []*float64 `json:"precipitation_sum"`
}

type WeatherResponse struct {
	Hourly HourlyData `json:"hourly"`
	Daily  DailyData  `json:"daily"`
}

type Weather struct {
	Precipitation float64 `json:"precipitation"`
	Temperature   float64 `json:"temperature"`
	Humidity      float64 `json:"humidity"`
}

type HistoricalWeather map[time.Time]Weather

// Fetcher is what the dataset enrichment needs from a weather source.
type Fetcher interface {
	FetchWeather(ctx context.Context, latitude, longitude float64, startDate, endDate time.Time) (HistoricalWeather, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      utils.RetryConfig
	cache      cache.Service[HistoricalWeather]
	log        logrus.FieldLogger
	observe    utils.Observer
}

type Option func(*Client)

func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		c.retry.Attempts = attempts
		c.retry.Delay = delay
	}
}

func WithCache(s cache.Service[HistoricalWeather]) Option { return func(c *Client) { c.cache = s } }

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) {
		c.log = l
		c.retry.Log = l
	}
}

func WithObserver(o utils.Observer) Option { return func(c *Client) { c.observe = o } }

func NewClient(baseURL string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	log := logger.Discard()
	c := &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		retry:      utils.RetryConfig{Attempts: 3, Delay: 10 * time.Second, Log: log},
		cache:      cache.Noop[HistoricalWeather]{},
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// calculateMeanHumidity averages the hourly readings of each day. Null
// readings are skipped.
func calculateMeanHumidity(hourlyData HourlyData) map[string]float64 {
	dailyHumidity := make(map[string][]float64)
	meanHumidity := make(map[string]float64)

	for i, t := range hourlyData.Time {
		if i >= len(hourlyData.RelativeHumidity) || len(t) < len(dateLayout) {
			break
		}
		if hourlyData.RelativeHumidity[i] == nil {
			continue
		}
		date := t[:len(dateLayout)]
		dailyHumidity[date] = append(dailyHumidity[date], *hourlyData.RelativeHumidity[i])
	}

	for date, humidities := range dailyHumidity {
		meanHumidity[date] = stat.Mean(humidities, nil)
	}

	return meanHumidity
}

// FetchWeather returns daily mean temperature, precipitation sum and mean
// relative humidity for every day in [startDate, endDate]. Days the archive
// has no value for are skipped.
func (c *Client) FetchWeather(ctx context.Context, latitude, longitude float64, startDate, endDate time.Time) (HistoricalWeather, error) {
	if endDate.Before(startDate) {
		return nil, fmt.Errorf("end date %s before start date %s", endDate.Format(dateLayout), startDate.Format(dateLayout))
	}

	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(latitude, 'f', 4, 64))
	params.Set("longitude", strconv.FormatFloat(longitude, 'f', 4, 64))
	params.Set("start_date", startDate.Format(dateLayout))
	params.Set("end_date", endDate.Format(dateLayout))
	params.Set("daily", "temperature_2m_mean,precipitation_sum")
	params.Set("hourly", "relative_humidity_2m")
	params.Set("timezone", "UTC")
	href := c.baseURL + "?" + params.Encode()

	cacheKey := cache.GenerateKey("weather", href)
	if cached, ok := c.cache.Get(ctx, cacheKey); ok {
		return cached, nil
	}

	var weatherData WeatherResponse
	err := utils.FetchJSON(ctx, c.httpClient, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	}, &weatherData, c.retry, c.observe)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve weather for %f,%f: %w", latitude, longitude, err)
	}

	dataParsed, err := parseResponse(weatherData)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, cacheKey, dataParsed); err != nil {
		c.log.WithError(err).Warn("failed to cache weather")
	}
	return dataParsed, nil
}

func parseResponse(weatherData WeatherResponse) (HistoricalWeather, error) {
	daily := weatherData.Daily
	if len(daily.Temperature) != len(daily.Time) || len(daily.Precipitation) != len(daily.Time) {
		return nil, fmt.Errorf("malformed daily weather: %d dates, %d temperatures, %d precipitation values",
			len(daily.Time), len(daily.Temperature), len(daily.Precipitation))
	}

	humidity := calculateMeanHumidity(weatherData.Hourly)
	dataParsed := HistoricalWeather{}
	for i, date := range daily.Time {
		parsedDate, err := time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("failed to parse date: %w", err)
		}
		if daily.Temperature[i] == nil || daily.Precipitation[i] == nil {
			continue
		}
		dataParsed[parsedDate] = Weather{
			Temperature:   *daily.Temperature[i],
			Precipitation: *daily.Precipitation[i],
			Humidity:      humidity[date],
		}
	}
	return dataParsed, nil
}
