package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

var (
	ErrNoItems       = errors.New("catalog search returned no items")
	ErrAssetNotFound = errors.New("asset not found on item")
)

type Asset struct {
	Href  string   `json:"href"`
	Type  string   `json:"type,omitempty"`
	Title string   `json:"title,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

type Link struct {
	Rel    string                 `json:"rel"`
	Href   string                 `json:"href"`
	Method string                 `json:"method,omitempty"`
	Body   map[string]interface{} `json:"body,omitempty"`
	Merge  bool                   `json:"merge,omitempty"`
}

type Item struct {
	ID         string                 `json:"id"`
	Collection string                 `json:"collection"`
	BBox       []float64              `json:"bbox"`
	Properties map[string]interface{} `json:"properties"`
	Assets     map[string]Asset       `json:"assets"`
	Links      []Link                 `json:"links,omitempty"`
}

// Datetime parses the item's "datetime" property, falling back to
// "start_datetime" for items that only carry a range.
func (i Item) Datetime() (time.Time, error) {
	for _, key := range []string{"datetime", "start_datetime"} {
		if raw, ok := i.Properties[key].(string); ok && raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return time.Time{}, fmt.Errorf("item %s: invalid %s: %w", i.ID, key, err)
			}
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("item %s has no datetime", i.ID)
}

// CloudCover returns eo:cloud_cover when present.
func (i Item) CloudCover() (float64, bool) {
	v, ok := i.Properties["eo:cloud_cover"].(float64)
	return v, ok
}

func (i Item) AssetHref(key string) (string, error) {
	asset, ok := i.Assets[key]
	if !ok || asset.Href == "" {
		return "", fmt.Errorf("%w: %s on %s/%s", ErrAssetNotFound, key, i.Collection, i.ID)
	}
	return asset.Href, nil
}

// Signer rewrites asset hrefs before they are handed out.
type Signer func(href string) string

func NoopSigner(href string) string { return href }

// TokenSigner appends a static, pre-issued query token (for example a
// storage SAS token) to every http(s) href.
func TokenSigner(token string) Signer {
	token = strings.TrimPrefix(token, "?")
	if token == "" {
		return NoopSigner
	}
	return func(href string) string {
		u, err := url.Parse(href)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return href
		}
		if u.RawQuery == "" {
			u.RawQuery = token
		} else {
			u.RawQuery += "&" + token
		}
		return u.String()
	}
}

// GDALPath turns an asset href into something GDAL can open.
func GDALPath(href string) string {
	switch {
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return "/vsicurl/" + href
	case strings.HasPrefix(href, "s3://"):
		return "/vsis3/" + strings.TrimPrefix(href, "s3://")
	case strings.HasPrefix(href, "gs://"):
		return "/vsigs/" + strings.TrimPrefix(href, "gs://")
	default:
		return href
	}
}

func signItem(item Item, sign Signer) Item {
	if sign == nil {
		return item
	}
	assets := make(map[string]Asset, len(item.Assets))
	for key, asset := range item.Assets {
		asset.Href = sign(asset.Href)
		assets[key] = asset
	}
	item.Assets = assets
	return item
}
