package dataset

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alecsharpie/ey-frog-challenge/internal/metrics"
	"github.com/alecsharpie/ey-frog-challenge/internal/occurrence"
	"github.com/alecsharpie/ey-frog-challenge/internal/raster"
	"github.com/alecsharpie/ey-frog-challenge/internal/spatial"
	"github.com/alecsharpie/ey-frog-challenge/internal/weather"
)

// 2x2 grid over lon 150..152, lat -35..-33; pixel (1,1) has nodata elevation.
func testStack(t *testing.T) *raster.Raster {
	t.Helper()
	g, err := raster.NewGrid(orb.Bound{Min: orb.Point{150, -35}, Max: orb.Point{152, -33}}, 1)
	require.NoError(t, err)
	stack, err := raster.New(g,
		raster.Band{Name: "ndvi", Data: []float64{0.1, 0.2, 0.3, 0.4}, NoData: math.NaN()},
		raster.Band{Name: "elevation", Data: []float64{10, 20, 30, -9999}, NoData: -9999},
		raster.Band{Name: "land_cover", Data: []float64{10, 40, 10, 80}, NoData: math.NaN(), Categorical: true},
	)
	require.NoError(t, err)
	return stack
}

func TestJoin(t *testing.T) {
	stack := testStack(t)
	m := metrics.New()
	samples := []Sample{
		{ID: "a", Species: "frog", Latitude: -33.5, Longitude: 150.5, Label: 1}, // (0,0)
		{ID: "b", Species: "toad", Latitude: -33.2, Longitude: 151.9, Label: 0}, // (1,0)
		{ID: "c", Species: "frog", Latitude: -34.5, Longitude: 151.5, Label: 1}, // (1,1) nodata
		{ID: "d", Species: "frog", Latitude: -36, Longitude: 150.5, Label: 1},   // outside
		{ID: "e", Species: "frog", Latitude: -35, Longitude: 152, Label: 1},     // south-east corner snaps to (1,1)
		{ID: "f", Species: "frog", Latitude: -34.9, Longitude: 150.1, Label: 1}, // (0,1)
	}

	table, err := Join(samples, stack, JoinOptions{Metrics: m})
	require.NoError(t, err)
	assert.Equal(t, []string{"ndvi", "elevation", "land_cover"}, table.Features)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, "a", table.Rows[0].ID)
	assert.Equal(t, []float64{0.1, 10, 10}, table.Rows[0].Features)
	assert.Equal(t, 1, table.Rows[1].Col)
	assert.Equal(t, 0, table.Rows[1].Row)
	assert.Equal(t, "f", table.Rows[2].ID)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.RowsJoined))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RowsDropped.WithLabelValues("nodata")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RowsDropped.WithLabelValues("out_of_bounds")))
}

func TestJoin_OnePerPixelPresenceWins(t *testing.T) {
	stack := testStack(t)
	samples := []Sample{
		{ID: "abs", Latitude: -33.5, Longitude: 150.5, Label: 0},
		{ID: "pres", Latitude: -33.4, Longitude: 150.6, Label: 1},
		{ID: "pres2", Latitude: -33.3, Longitude: 150.7, Label: 1},
		{ID: "other", Latitude: -33.5, Longitude: 151.5, Label: 0},
	}
	table, err := Join(samples, stack, JoinOptions{OnePerPixel: true})
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "pres", table.Rows[0].ID)
	assert.Equal(t, "other", table.Rows[1].ID)
}

func TestJoin_Empty(t *testing.T) {
	_, err := Join([]Sample{{ID: "x", Latitude: 0, Longitude: 0}}, testStack(t), JoinOptions{})
	assert.True(t, errors.Is(err, ErrEmptyDataset))
}

func TestTargetVersusOthers(t *testing.T) {
	records := []occurrence.Record{
		{Key: 1, Species: "Litoria aurea"},
		{Key: 2, Species: "Crinia signifera"},
		{Key: 3, Species: "Litoria aurea"},
	}
	samples, err := TargetVersusOthers(records, "Litoria aurea")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 1}, []int{samples[0].Label, samples[1].Label, samples[2].Label})
	assert.Equal(t, "2", samples[1].ID)

	_, err = TargetVersusOthers(records, "Rana")
	assert.Error(t, err)

	for _, s := range Presences(records) {
		assert.Equal(t, 1, s.Label)
	}
}

func TestBackground(t *testing.T) {
	bound := orb.Bound{Min: orb.Point{150, -35}, Max: orb.Point{152, -33}}
	presences := []Sample{{ID: "p", Latitude: -34, Longitude: 151, Label: 1}}
	idx := PresenceIndex(presences)

	a, err := Background(bound, 50, 7, idx, 50_000)
	require.NoError(t, err)
	b, err := Background(bound, 50, 7, idx, 50_000)
	require.NoError(t, err)
	assert.Equal(t, a, b, "same seed, same points")
	require.Len(t, a, 50)

	for _, s := range a {
		assert.True(t, bound.Contains(orb.Point{s.Longitude, s.Latitude}))
		near, err := idx.AnyWithin(s.Latitude, s.Longitude, 50_000)
		require.NoError(t, err)
		assert.False(t, near, "point %s too close to a presence", s.ID)
		assert.Equal(t, 0, s.Label)
		assert.Equal(t, BackgroundSpecies, s.Species)
	}

	// an exclusion radius covering the whole bound cannot be satisfied
	_, err = Background(bound, 5, 1, idx, 1_000_000)
	assert.Error(t, err)

	none, err := Background(bound, 0, 1, spatial.NewIndex(), 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOneHot(t *testing.T) {
	table := &Table{
		Features: []string{"ndvi", "land_cover", "elevation"},
		Rows: []Row{
			{ID: "a", Features: []float64{0.1, 40, 5}},
			{ID: "b", Features: []float64{0.2, 10, 6}},
		},
	}
	enc, err := OneHot(table, "land_cover", nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 40}, enc.Classes)
	assert.Equal(t, []string{"ndvi", "land_cover_10", "land_cover_40", "elevation"}, table.Features)
	assert.Equal(t, []float64{0.1, 0, 1, 5}, table.Rows[0].Features)
	assert.Equal(t, []float64{0.2, 1, 0, 6}, table.Rows[1].Features)

	// a class unseen during training expands to zeros
	names, values, err := ExpandAll([]Encoding{enc}, []string{"ndvi", "land_cover", "elevation"}, []float64{0.3, 95, 7})
	require.NoError(t, err)
	assert.Equal(t, table.Features, names)
	assert.Equal(t, []float64{0.3, 0, 0, 7}, values)

	_, err = OneHot(table, "missing", nil)
	assert.Error(t, err)
}

func TestTableCSVRoundTrip(t *testing.T) {
	table := &Table{
		Features: []string{"ndvi", "elevation"},
		Rows: []Row{
			{ID: "1", Species: "Litoria aurea", Latitude: -33.5, Longitude: 150.5, EventDate: "2020-01-02", Label: 1, Col: 0, Row: 0, Features: []float64{0.25, 12.5}},
			{ID: "bg-0", Species: "background", Latitude: -34.25, Longitude: 151.75, Label: 0, Col: 1, Row: 1, Features: []float64{-0.1, 3}},
		},
	}
	path := filepath.Join(t.TempDir(), "datasets", "frogs.csv")
	require.NoError(t, table.WriteCSV(path))

	got, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, table, got)

	s := got.Summary()
	assert.Equal(t, 1, s.Positives)
	assert.Equal(t, 1, s.Negatives)
	assert.Equal(t, 2, s.Features)
	assert.Contains(t, s.String(), "Litoria aurea")

	x, y := got.Matrix()
	assert.Equal(t, []float64{1, 0}, y)
	assert.Equal(t, []float64{0.25, 12.5}, x[0])
}

func TestParseEventDate(t *testing.T) {
	want := time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"2021-03-04", "2021-03-04T18:30:00", "2021-03-04T18:30:00Z", "2021-03-04/2021-03-09"} {
		got, ok := ParseEventDate(s)
		require.True(t, ok, s)
		assert.True(t, want.Equal(got), "%s -> %s", s, got)
	}
	_, ok := ParseEventDate("")
	assert.False(t, ok)
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeFetcher) FetchWeather(_ context.Context, lat, lon float64, start, end time.Time) (weather.HistoricalWeather, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	h := weather.HistoricalWeather{}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		h[d] = weather.Weather{Temperature: 20, Humidity: 50, Precipitation: 1}
	}
	return h, nil
}

func TestEnrich(t *testing.T) {
	table := &Table{
		Features: []string{"ndvi"},
		Rows: []Row{
			{ID: "a", Latitude: -33.501, Longitude: 150.501, EventDate: "2020-02-10", Features: []float64{0.1}},
			{ID: "b", Latitude: -33.502, Longitude: 150.502, EventDate: "2020-02-10", Features: []float64{0.2}},
			{ID: "bg", Latitude: -34, Longitude: 151, Features: []float64{0.3}},
		},
	}
	f := &fakeFetcher{}
	require.NoError(t, Enrich(context.Background(), table, f, 7, 2))

	assert.Equal(t, 2, f.calls, "nearby points on the same date share a request")
	assert.Len(t, table.Features, 1+len(weather.MetricNames))
	assert.Equal(t, WeatherPrefix+"avg_temperature", table.Features[1])
	for _, r := range table.Rows {
		require.Len(t, r.Features, len(table.Features))
		assert.Equal(t, 20.0, r.Features[1])
		assert.Equal(t, 7.0, r.Features[5], "total precipitation over 7 days")
	}

	failing := &Table{Features: []string{"ndvi"}, Rows: []Row{{ID: "a", EventDate: "2020-02-10", Features: []float64{1}}}}
	err := Enrich(context.Background(), failing, &fakeFetcher{err: errors.New("boom")}, 7, 1)
	assert.Error(t, err)
	assert.Len(t, failing.Features, 1)

	undated := &Table{Features: []string{"ndvi"}, Rows: []Row{{ID: "a", Features: []float64{1}}}}
	assert.Error(t, Enrich(context.Background(), undated, &fakeFetcher{}, 7, 1))
}
