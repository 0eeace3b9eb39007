package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alecsharpie/ey-frog-challenge/internal/cache"
)

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/geo+json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func testItem(id string) Item {
	return Item{
		ID:         id,
		Collection: "sentinel-2-l2a",
		Properties: map[string]interface{}{"datetime": "2023-01-05T10:00:00Z", "eo:cloud_cover": 4.5},
		Assets:     map[string]Asset{"B04": {Href: "https://blob.example/" + id + "/B04.tif"}},
	}
}

func TestSearch_FollowsPostNextLinks(t *testing.T) {
	var bodies []map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)

		if _, ok := body["token"]; !ok {
			writeJSON(t, w, itemCollection{
				Features: []Item{testItem("a"), testItem("b")},
				Links:    []Link{{Rel: "next", Href: "http://" + r.Host + "/search", Method: "POST", Body: map[string]interface{}{"token": "page2"}, Merge: true}},
			})
			return
		}
		writeJSON(t, w, itemCollection{Features: []Item{testItem("c")}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), WithRetry(1, 0))
	items, err := c.Search(context.Background(), SearchRequest{
		Collections: []string{"sentinel-2-l2a"},
		Bound:       orb.Bound{Min: orb.Point{150.1, -34.0}, Max: orb.Point{151.0, -33.5}},
		Start:       time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC),
		Query:       map[string]map[string]interface{}{"eo:cloud_cover": {"lt": 20}},
	})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{items[0].ID, items[1].ID, items[2].ID})

	require.Len(t, bodies, 2)
	assert.Equal(t, "2023-01-01T00:00:00Z/2023-03-01T00:00:00Z", bodies[0]["datetime"])
	assert.Equal(t, []interface{}{150.1, -34.0, 151.0, -33.5}, bodies[0]["bbox"])
	assert.EqualValues(t, defaultPageLimit, bodies[0]["limit"])
	assert.NotNil(t, bodies[0]["query"])
	// merged body keeps the original filters
	assert.Equal(t, "page2", bodies[1]["token"])
	assert.Equal(t, bodies[0]["datetime"], bodies[1]["datetime"])
}

func TestSearch_GetNextLinkAndMaxItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		var next []Link
		if page == "" {
			page = "0"
		}
		n := 0
		fmt.Sscanf(page, "%d", &n)
		next = []Link{{Rel: "next", Href: fmt.Sprintf("http://%s/search?page=%d", r.Host, n+1)}}
		writeJSON(t, w, itemCollection{
			Features: []Item{testItem(fmt.Sprintf("p%d-0", n)), testItem(fmt.Sprintf("p%d-1", n))},
			Links:    next,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), WithRetry(1, 0))
	items, err := c.Search(context.Background(), SearchRequest{Collections: []string{"x"}, MaxItems: 5})
	require.NoError(t, err)
	require.Len(t, items, 5)
	assert.Equal(t, "p2-0", items[4].ID)
}

func TestSearch_StopsOnRepeatedNextLink(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		writeJSON(t, w, itemCollection{
			Features: []Item{testItem(fmt.Sprintf("i%d", n))},
			Links:    []Link{{Rel: "next", Href: "http://" + r.Host + "/search?page=2"}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), WithRetry(1, 0))
	items, err := c.Search(context.Background(), SearchRequest{Collections: []string{"x"}})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestSearch_NoItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, itemCollection{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), WithRetry(1, 0))
	_, err := c.Search(context.Background(), SearchRequest{Collections: []string{"cop-dem-glo-30"}})
	assert.True(t, errors.Is(err, ErrNoItems))
}

func TestSearch_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(t, w, itemCollection{Features: []Item{testItem("a")}})
	}))
	defer srv.Close()

	var outcomes []string
	c := NewClient(srv.URL, srv.Client(), WithRetry(3, time.Millisecond), WithObserver(func(outcome string, _ time.Duration) {
		outcomes = append(outcomes, outcome)
	}))
	items, err := c.Search(context.Background(), SearchRequest{Collections: []string{"x"}})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, []string{"retry", "retry", "success"}, outcomes)
}

func TestSearch_DoesNotRetryBadRequest(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad bbox", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), WithRetry(5, time.Millisecond))
	_, err := c.Search(context.Background(), SearchRequest{Collections: []string{"x"}})
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Contains(t, err.Error(), "bad bbox")
}

func TestSearch_CachesUnsignedItems(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(t, w, itemCollection{Features: []Item{testItem("a")}})
	}))
	defer srv.Close()

	store := cache.NewFileCache[[]Item](t.TempDir(), time.Hour)
	c := NewClient(srv.URL, srv.Client(), WithCache(store), WithSigner(TokenSigner("sig=abc")))
	req := SearchRequest{Collections: []string{"x"}}

	first, err := c.Search(context.Background(), req)
	require.NoError(t, err)
	second, err := c.Search(context.Background(), req)
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Equal(t, "https://blob.example/a/B04.tif?sig=abc", first[0].Assets["B04"].Href)
	assert.Equal(t, first, second)

	cached, ok := store.Get(context.Background(), cache.GenerateKey("stac-search", srv.URL, mustJSON(req.body()), 0))
	require.True(t, ok)
	assert.Equal(t, "https://blob.example/a/B04.tif", cached[0].Assets["B04"].Href)
}

func TestGetItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections/sentinel-2-l2a/items/S2A_1", r.URL.Path)
		writeJSON(t, w, testItem("S2A_1"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), WithSigner(TokenSigner("?st=1&sig=x")))
	item, err := c.GetItem(context.Background(), "sentinel-2-l2a", "S2A_1")
	require.NoError(t, err)
	assert.Equal(t, "https://blob.example/S2A_1/B04.tif?st=1&sig=x", item.Assets["B04"].Href)
}

func TestDatetimeInterval(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "", datetimeInterval(time.Time{}, time.Time{}))
	assert.Equal(t, "2020-01-01T00:00:00Z/..", datetimeInterval(start, time.Time{}))
	assert.Equal(t, "../2020-01-01T00:00:00Z", datetimeInterval(time.Time{}, start))
}
