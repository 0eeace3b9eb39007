package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"github.com/alecsharpie/ey-frog-challenge/internal/cache"
	"github.com/alecsharpie/ey-frog-challenge/internal/logger"
	"github.com/alecsharpie/ey-frog-challenge/internal/utils"
)

const defaultPageLimit = 100

type SortField struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

type SearchRequest struct {
	Collections []string
	Bound       orb.Bound
	Start       time.Time
	End         time.Time
	// Query uses the STAC query extension, e.g.
	// {"eo:cloud_cover": {"lt": 20}}.
	Query  map[string]map[string]interface{}
	SortBy []SortField
	// Limit is the page size, MaxItems caps the total (0 means no cap).
	Limit    int
	MaxItems int
}

func (r SearchRequest) body() map[string]interface{} {
	limit := r.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	body := map[string]interface{}{
		"collections": r.Collections,
		"bbox":        []float64{r.Bound.Min.Lon(), r.Bound.Min.Lat(), r.Bound.Max.Lon(), r.Bound.Max.Lat()},
		"limit":       limit,
	}
	if dt := datetimeInterval(r.Start, r.End); dt != "" {
		body["datetime"] = dt
	}
	if len(r.Query) > 0 {
		body["query"] = r.Query
	}
	if len(r.SortBy) > 0 {
		body["sortby"] = r.SortBy
	}
	return body
}

func datetimeInterval(start, end time.Time) string {
	if start.IsZero() && end.IsZero() {
		return ""
	}
	format := func(t time.Time) string {
		if t.IsZero() {
			return ".."
		}
		return t.UTC().Format(time.RFC3339)
	}
	return format(start) + "/" + format(end)
}

type itemCollection struct {
	Features []Item `json:"features"`
	Links    []Link `json:"links"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      utils.RetryConfig
	sign       Signer
	cache      cache.Service[[]Item]
	log        logrus.FieldLogger
	observe    utils.Observer
}

type Option func(*Client)

func WithSigner(s Signer) Option { return func(c *Client) { c.sign = s } }

func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		c.retry.Attempts = attempts
		c.retry.Delay = delay
	}
}

func WithCache(s cache.Service[[]Item]) Option { return func(c *Client) { c.cache = s } }

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) {
		c.log = l
		c.retry.Log = l
	}
}

// WithObserver reports every HTTP attempt, used for metrics.
func WithObserver(o utils.Observer) Option { return func(c *Client) { c.observe = o } }

func NewClient(baseURL string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	log := logger.Discard()
	c := &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		retry:      utils.RetryConfig{Attempts: 3, Delay: 5 * time.Second, Log: log},
		sign:       NoopSigner,
		cache:      cache.Noop[[]Item]{},
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxSearchPages bounds how many pages one search follows.
const MaxSearchPages = 1000

// Search runs an item search and follows "next" links until the result set
// is exhausted or MaxItems is reached. Asset hrefs of the returned items are
// signed; cached items are stored unsigned.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]Item, error) {
	body := req.body()
	key := cache.GenerateKey("stac-search", c.baseURL, mustJSON(body), req.MaxItems)

	items, ok := c.cache.Get(ctx, key)
	if !ok {
		var err error
		items, err = c.searchAll(ctx, body, req.MaxItems)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(ctx, key, items); err != nil {
			c.log.WithError(err).Warn("failed to cache stac search")
		}
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("%w: collections %v", ErrNoItems, req.Collections)
	}

	signed := make([]Item, len(items))
	for i, item := range items {
		signed[i] = signItem(item, c.sign)
	}
	return signed, nil
}

func (c *Client) searchAll(ctx context.Context, body map[string]interface{}, maxItems int) ([]Item, error) {
	var items []Item
	method, href := http.MethodPost, c.baseURL+"/search"
	page := 0
	seen := map[string]bool{}

	for {
		requestKey := method + " " + href + " " + mustJSON(body)
		if seen[requestKey] {
			c.log.WithFields(logrus.Fields{"page": page, "href": href}).Warn("stac next link repeats an earlier page, stopping")
			return items, nil
		}
		seen[requestKey] = true
		if page >= MaxSearchPages {
			c.log.WithField("pages", page).Warn("stac search reached the page limit, stopping")
			return items, nil
		}

		var fc itemCollection
		currentMethod, currentHref, currentBody := method, href, body
		err := utils.FetchJSON(ctx, c.httpClient, func(ctx context.Context) (*http.Request, error) {
			return newRequest(ctx, currentMethod, currentHref, currentBody)
		}, &fc, c.retry, c.observe)
		if err != nil {
			return nil, fmt.Errorf("stac search page %d: %w", page, err)
		}

		items = append(items, fc.Features...)
		c.log.WithFields(logrus.Fields{"page": page, "items": len(fc.Features)}).Debug("stac search page")

		if maxItems > 0 && len(items) >= maxItems {
			return items[:maxItems], nil
		}

		next, ok := nextLink(fc.Links)
		if !ok || len(fc.Features) == 0 {
			return items, nil
		}

		method = next.Method
		if method == "" {
			method = http.MethodGet
		}
		href = next.Href
		if method == http.MethodPost {
			if next.Merge {
				merged := make(map[string]interface{}, len(body)+len(next.Body))
				for k, v := range body {
					merged[k] = v
				}
				for k, v := range next.Body {
					merged[k] = v
				}
				body = merged
			} else if next.Body != nil {
				body = next.Body
			}
		}
		page++
	}
}

// GetItem fetches a single item again, typically to obtain fresh asset hrefs.
func (c *Client) GetItem(ctx context.Context, collection, id string) (Item, error) {
	href := fmt.Sprintf("%s/collections/%s/items/%s", c.baseURL, url.PathEscape(collection), url.PathEscape(id))
	var item Item
	err := utils.FetchJSON(ctx, c.httpClient, func(ctx context.Context) (*http.Request, error) {
		return newRequest(ctx, http.MethodGet, href, nil)
	}, &item, c.retry, c.observe)
	if err != nil {
		return Item{}, fmt.Errorf("get item %s/%s: %w", collection, id, err)
	}
	return signItem(item, c.sign), nil
}

func nextLink(links []Link) (Link, bool) {
	for _, l := range links {
		if l.Rel == "next" && l.Href != "" {
			return l, true
		}
	}
	return Link{}, false
}

func newRequest(ctx context.Context, method, href string, body map[string]interface{}) (*http.Request, error) {
	if method != http.MethodPost {
		req, err := http.NewRequestWithContext(ctx, method, href, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/geo+json")
		return req, nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, href, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/geo+json")
	return req, nil
}

func mustJSON(v interface{}) string {
	b, _ := json.Marshal(v)
	return string(b)
}
