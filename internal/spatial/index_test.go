package spatial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedIndex() *Index {
	idx := NewIndex()
	idx.Insert(Point{ID: "sydney", Lat: -33.8688, Lon: 151.2093})
	idx.Insert(Point{ID: "parramatta", Lat: -33.8150, Lon: 151.0011})
	idx.Insert(Point{ID: "wollongong", Lat: -34.4278, Lon: 150.8931})
	idx.Insert(Point{ID: "melbourne", Lat: -37.8136, Lon: 144.9631})
	return idx
}

func TestIndex_Nearest(t *testing.T) {
	idx := seedIndex()
	assert.Equal(t, 4, idx.Size())

	got := idx.Nearest(-33.86, 151.20, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "sydney", got[0].ID)
	assert.Equal(t, "parramatta", got[1].ID)

	assert.Empty(t, NewIndex().Nearest(0, 0, 3))
}

func TestIndex_WithinRadius(t *testing.T) {
	idx := seedIndex()

	// Sydney CBD to Parramatta is roughly 20 km.
	got, err := idx.WithinRadius(-33.8688, 151.2093, 25_000)
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, p := range got {
		ids[p.ID] = true
	}
	assert.Equal(t, map[string]bool{"sydney": true, "parramatta": true}, ids)

	got, err = idx.WithinRadius(-33.8688, 151.2093, 1_000)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "sydney", got[0].ID)

	_, err = idx.WithinRadius(0, 0, -1)
	assert.Error(t, err)
}

func TestIndex_AnyWithin(t *testing.T) {
	idx := seedIndex()

	ok, err := idx.AnyWithin(-37.80, 144.96, 5_000)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = idx.AnyWithin(-31.95, 115.86, 50_000)
	require.NoError(t, err)
	assert.False(t, ok)
}
