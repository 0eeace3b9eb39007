package catalog

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItem_Datetime(t *testing.T) {
	item := Item{ID: "a", Properties: map[string]interface{}{"datetime": "2022-06-01T12:30:00Z"}}
	dt, err := item.Datetime()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2022, 6, 1, 12, 30, 0, 0, time.UTC), dt)

	ranged := Item{ID: "b", Properties: map[string]interface{}{"datetime": nil, "start_datetime": "2000-01-01T00:00:00Z"}}
	dt, err = ranged.Datetime()
	require.NoError(t, err)
	assert.Equal(t, 2000, dt.Year())

	_, err = Item{ID: "c", Properties: map[string]interface{}{}}.Datetime()
	assert.Error(t, err)
}

func TestItem_AssetHref(t *testing.T) {
	item := Item{ID: "a", Collection: "esa-worldcover", Assets: map[string]Asset{"map": {Href: "https://x/map.tif"}}}

	href, err := item.AssetHref("map")
	require.NoError(t, err)
	assert.Equal(t, "https://x/map.tif", href)

	_, err = item.AssetHref("input_quality")
	assert.True(t, errors.Is(err, ErrAssetNotFound))
}

func TestItem_CloudCover(t *testing.T) {
	cc, ok := Item{Properties: map[string]interface{}{"eo:cloud_cover": 12.5}}.CloudCover()
	assert.True(t, ok)
	assert.Equal(t, 12.5, cc)

	_, ok = Item{Properties: map[string]interface{}{}}.CloudCover()
	assert.False(t, ok)
}

func TestTokenSigner(t *testing.T) {
	sign := TokenSigner("se=2024&sig=abc")
	assert.Equal(t, "https://a.blob/x.tif?se=2024&sig=abc", sign("https://a.blob/x.tif"))
	assert.Equal(t, "https://a.blob/x.tif?v=1&se=2024&sig=abc", sign("https://a.blob/x.tif?v=1"))
	assert.Equal(t, "s3://bucket/x.tif", sign("s3://bucket/x.tif"))

	noop := TokenSigner("")
	assert.Equal(t, "https://a.blob/x.tif", noop("https://a.blob/x.tif"))
}

func TestGDALPath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"https://a.blob/x.tif", "/vsicurl/https://a.blob/x.tif"},
		{"s3://bucket/key.tif", "/vsis3/bucket/key.tif"},
		{"gs://bucket/key.tif", "/vsigs/bucket/key.tif"},
		{"/data/local.tif", "/data/local.tif"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GDALPath(tt.in))
	}
}
