package dataset

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alecsharpie/ey-frog-challenge/internal/weather"
)

const WeatherPrefix = "weather_"

var eventDateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02", "2006-01", "2006"}

// ParseEventDate reads the start of a GBIF eventDate, which may be a
// timestamp, a partial date or an interval "a/b".
func ParseEventDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "/"); i >= 0 {
		s = s[:i]
	}
	for _, layout := range eventDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(24 * time.Hour), true
		}
	}
	return time.Time{}, false
}

type weatherKey struct {
	lat, lon float64
	end      time.Time
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// Enrich appends weather metric columns summarising the days before each
// row's event date. Rows without a usable date use the latest event date in
// the table. Points sharing a 0.01° cell and date share one request.
func Enrich(ctx context.Context, t *Table, fetcher weather.Fetcher, days, workers int) error {
	if days <= 0 {
		return fmt.Errorf("weather window must be positive, got %d days", days)
	}
	if workers < 1 {
		workers = 1
	}

	dates := make([]time.Time, len(t.Rows))
	var latest time.Time
	for i, r := range t.Rows {
		if d, ok := ParseEventDate(r.EventDate); ok {
			dates[i] = d
			if d.After(latest) {
				latest = d
			}
		}
	}
	if latest.IsZero() {
		return fmt.Errorf("no row has an event date to anchor the weather window")
	}

	keys := make([]weatherKey, len(t.Rows))
	unique := map[weatherKey]weather.WeatherMetrics{}
	for i, r := range t.Rows {
		end := dates[i]
		if end.IsZero() {
			end = latest
		}
		keys[i] = weatherKey{lat: round2(r.Latitude), lon: round2(r.Longitude), end: end}
		unique[keys[i]] = weather.WeatherMetrics{}
	}

	pending := make([]weatherKey, 0, len(unique))
	for key := range unique {
		pending = append(pending, key)
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, key := range pending {
		key := key
		g.Go(func() error {
			start := key.end.AddDate(0, 0, -days)
			h, err := fetcher.FetchWeather(ctx, key.lat, key.lon, start, key.end.AddDate(0, 0, -1))
			if err != nil {
				return fmt.Errorf("weather for (%.2f, %.2f) before %s: %w", key.lat, key.lon, key.end.Format("2006-01-02"), err)
			}
			m := weather.Summarize(h, start, key.end)
			mu.Lock()
			unique[key] = m
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, name := range weather.MetricNames {
		t.Features = append(t.Features, WeatherPrefix+name)
	}
	for i := range t.Rows {
		t.Rows[i].Features = append(t.Rows[i].Features, unique[keys[i]].Values()...)
	}
	return nil
}
