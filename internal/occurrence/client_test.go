package occurrence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alecsharpie/ey-frog-challenge/internal/cache"
)

func fakeResults(offset, n int) []Result {
	results := make([]Result, n)
	for i := range results {
		lat, lon := -33.0-float64(offset+i)*0.001, 151.0
		results[i] = Result{
			Key:              int64(offset + i),
			Species:          "Litoria fallax",
			DecimalLatitude:  &lat,
			DecimalLongitude: &lon,
			CountryCode:      "AU",
			OccurrenceStatus: "PRESENT",
		}
	}
	return results
}

// gbifServer serves count records in pages and records every query it saw.
func gbifServer(t *testing.T, count int) (*httptest.Server, *[]map[string][]string) {
	var mu sync.Mutex
	var seen []map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/occurrence/search", r.URL.Path)
		q := r.URL.Query()
		mu.Lock()
		seen = append(seen, q)
		mu.Unlock()

		offset, _ := strconv.Atoi(q.Get("offset"))
		limit, _ := strconv.Atoi(q.Get("limit"))
		n := count - offset
		if n > limit {
			n = limit
		}
		if n < 0 {
			n = 0
		}
		page := Page{Offset: offset, Limit: limit, Count: count, EndOfRecords: offset+n >= count, Results: fakeResults(offset, n)}
		require.NoError(t, json.NewEncoder(w).Encode(page))
	}))
	return srv, &seen
}

func TestSearch_PagesInOffsetOrder(t *testing.T) {
	srv, seen := gbifServer(t, 25)
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), WithWorkers(3), WithRetry(1, 0))
	records, err := c.Search(context.Background(), Query{
		TaxonKeys: []int{2427603},
		Country:   "AU",
		Bound:     orb.Bound{Min: orb.Point{150, -35}, Max: orb.Point{152, -33}},
		Start:     time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		PageSize:  10,
	})
	require.NoError(t, err)
	require.Len(t, records, 25)
	for i, r := range records {
		assert.EqualValues(t, i, r.Key)
	}
	assert.Len(t, *seen, 3)

	first := (*seen)[0]
	assert.Equal(t, "2427603", first["taxonKey"][0])
	assert.Equal(t, "AU", first["country"][0])
	assert.Equal(t, "2015-01-01,2020-01-01", first["eventDate"][0])
	assert.Equal(t, "POLYGON((150 -35,152 -35,152 -33,150 -33,150 -35))", first["geometry"][0])
	assert.Equal(t, "false", first["hasGeospatialIssue"][0])
	assert.Equal(t, "PRESENT", first["occurrenceStatus"][0])
}

func TestSearch_MaxRecords(t *testing.T) {
	srv, seen := gbifServer(t, 1000)
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), WithRetry(1, 0))
	records, err := c.Search(context.Background(), Query{ScientificNames: []string{"Crinia signifera"}, PageSize: 300, MaxRecords: 350})
	require.NoError(t, err)
	assert.Len(t, records, 350)
	assert.Len(t, *seen, 2)
}

func TestSearch_PageSizeClamped(t *testing.T) {
	srv, seen := gbifServer(t, 5)
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), WithRetry(1, 0))
	_, err := c.Search(context.Background(), Query{PageSize: 5000})
	require.NoError(t, err)
	assert.Equal(t, "300", (*seen)[0]["limit"][0])
}

func TestSearch_DropsRecordsWithoutCoordinates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		results := fakeResults(0, 2)
		results[1].DecimalLatitude = nil
		results = append(results, Result{Key: 9, ScientificName: "Litoria aurea Lesson, 1829", DecimalLatitude: new(float64), DecimalLongitude: new(float64)})
		json.NewEncoder(w).Encode(Page{Count: 3, EndOfRecords: true, Results: results})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), WithRetry(1, 0))
	records, err := c.Search(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Litoria fallax", records[0].Species)
	assert.Equal(t, "Litoria aurea Lesson, 1829", records[1].Species)
}

func TestSearch_UsesPageCache(t *testing.T) {
	srv, seen := gbifServer(t, 4)
	defer srv.Close()

	store := cache.NewFileCache[Page](t.TempDir(), time.Hour)
	c := NewClient(srv.URL, srv.Client(), WithCache(store), WithRetry(1, 0))

	_, err := c.Search(context.Background(), Query{Country: "AU"})
	require.NoError(t, err)
	records, err := c.Search(context.Background(), Query{Country: "AU"})
	require.NoError(t, err)

	assert.Len(t, records, 4)
	assert.Len(t, *seen, 1)
}

func TestSearch_ErrorStopsGroup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") != "0" {
			http.Error(w, "nope", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(Page{Count: 30, Limit: 10, Results: fakeResults(0, 10)})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), WithRetry(1, 0))
	_, err := c.Search(context.Background(), Query{PageSize: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "occurrence page at offset")
}

func TestSearch_StopsAtOffsetCeiling(t *testing.T) {
	var mu sync.Mutex
	deepest := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		offset, _ := strconv.Atoi(q.Get("offset"))
		limit, _ := strconv.Atoi(q.Get("limit"))
		if offset+limit > OffsetCeiling {
			http.Error(w, "offset + limit exceeds 100000", http.StatusBadRequest)
			return
		}
		mu.Lock()
		deepest = max(deepest, offset+limit)
		mu.Unlock()
		var results []Result
		if offset == 0 || offset+limit == OffsetCeiling {
			results = fakeResults(offset, 1)
		}
		json.NewEncoder(w).Encode(Page{Offset: offset, Limit: limit, Count: 250_000, Results: results})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), WithWorkers(8), WithRetry(1, 0))
	records, err := c.Search(context.Background(), Query{PageSize: 300})
	require.NoError(t, err)
	assert.Equal(t, OffsetCeiling, deepest)
	require.Len(t, records, 2)
	assert.EqualValues(t, 99_900, records[1].Key)
}

func TestSearch_LastPageTrimmedToMaxRecords(t *testing.T) {
	srv, seen := gbifServer(t, 1000)
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), WithWorkers(1), WithRetry(1, 0))
	records, err := c.Search(context.Background(), Query{PageSize: 300, MaxRecords: 350})
	require.NoError(t, err)
	assert.Len(t, records, 350)
	require.Len(t, *seen, 2)
	assert.Equal(t, "50", (*seen)[1]["limit"][0])
}
