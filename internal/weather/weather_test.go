package weather

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alecsharpie/ey-frog-challenge/internal/cache"
)

const archiveBody = `{
  "daily": {
    "time": ["2023-01-01", "2023-01-02", "2023-01-03"],
    "temperature_2m_mean": [20.5, 22.0, null],
    "precipitation_sum": [0.0, 3.2, 1.0]
  },
  "hourly": {
    "time": ["2023-01-01T00:00", "2023-01-01T12:00", "2023-01-02T00:00", "2023-01-02T12:00"],
    "relative_humidity_2m": [60, 80, 90, 70]
  }
}`

func day(d int) time.Time { return time.Date(2023, 1, d, 0, 0, 0, 0, time.UTC) }

func TestFetchWeather(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		q := r.URL.Query()
		assert.Equal(t, "-33.8688", q.Get("latitude"))
		assert.Equal(t, "2023-01-01", q.Get("start_date"))
		assert.Equal(t, "2023-01-03", q.Get("end_date"))
		assert.Equal(t, "relative_humidity_2m", q.Get("hourly"))
		w.Write([]byte(archiveBody))
	}))
	defer srv.Close()

	store := cache.NewFileCache[HistoricalWeather](t.TempDir(), 0)
	c := NewClient(srv.URL, srv.Client(), WithCache(store), WithRetry(1, 0))

	got, err := c.FetchWeather(context.Background(), -33.8688, 151.2093, day(1), day(3))
	require.NoError(t, err)
	require.Len(t, got, 2, "day with missing temperature is skipped")
	assert.Equal(t, Weather{Temperature: 20.5, Precipitation: 0, Humidity: 70}, got[day(1)])
	assert.Equal(t, Weather{Temperature: 22, Precipitation: 3.2, Humidity: 80}, got[day(2)])

	again, err := c.FetchWeather(context.Background(), -33.8688, 151.2093, day(1), day(3))
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestCalculateMeanHumidity_SkipsNulls(t *testing.T) {
	var resp WeatherResponse
	require.NoError(t, json.Unmarshal([]byte(`{
  "hourly": {
    "time": ["2023-01-01T00:00", "2023-01-01T06:00", "2023-01-01T12:00", "2023-01-02T00:00"],
    "relative_humidity_2m": [60, null, 80, null]
  }
}`), &resp))

	got := calculateMeanHumidity(resp.Hourly)
	assert.Equal(t, map[string]float64{"2023-01-01": 70}, got)
}

func TestFetchWeather_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"daily": {"time": ["2023-01-01"], "temperature_2m_mean": [], "precipitation_sum": [1]}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), WithRetry(1, 0))
	_, err := c.FetchWeather(context.Background(), 0, 0, day(1), day(1))
	assert.Error(t, err)

	_, err = c.FetchWeather(context.Background(), 0, 0, day(3), day(1))
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	h := HistoricalWeather{
		day(1): {Temperature: 10, Humidity: 50, Precipitation: 0},
		day(2): {Temperature: 20, Humidity: 70, Precipitation: 0},
		day(3): {Temperature: 30, Humidity: 60, Precipitation: 5},
		day(4): {Temperature: 20, Humidity: 60, Precipitation: 0},
		day(5): {Temperature: 99, Humidity: 99, Precipitation: 99},
	}

	m := Summarize(h, day(1), day(5))
	assert.InDelta(t, 20, m.AvgTemperature, 1e-12)
	assert.InDelta(t, 7.0710678118654755, m.TempStdDev, 1e-9)
	assert.InDelta(t, 60, m.AvgHumidity, 1e-12)
	assert.InDelta(t, 5, m.TotalPrecipitation, 1e-12)
	assert.Equal(t, 2, m.DryDaysConsecutive)
	assert.Len(t, m.Values(), len(MetricNames))

	before := SummarizeBefore(h, day(5), 2)
	assert.InDelta(t, 25, before.AvgTemperature, 1e-12)

	assert.Equal(t, WeatherMetrics{}, Summarize(h, day(10), day(12)))
}
