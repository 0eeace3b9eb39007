package occurrence

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/alecsharpie/ey-frog-challenge/internal/cache"
	"github.com/alecsharpie/ey-frog-challenge/internal/logger"
	"github.com/alecsharpie/ey-frog-challenge/internal/utils"
)

const (
	MaxPageSize = 300
	// OffsetCeiling is the deepest offset the search endpoint serves.
	OffsetCeiling = 100_000
)

type Query struct {
	TaxonKeys       []int
	ScientificNames []string
	Country         string
	// Bound is sent as a WKT polygon when non-empty.
	Bound      orb.Bound
	Start      time.Time
	End        time.Time
	PageSize   int
	MaxRecords int
}

func (q Query) values(offset, limit int) url.Values {
	v := url.Values{}
	for _, key := range q.TaxonKeys {
		v.Add("taxonKey", strconv.Itoa(key))
	}
	for _, name := range q.ScientificNames {
		v.Add("scientificName", name)
	}
	if q.Country != "" {
		v.Set("country", q.Country)
	}
	if !q.Bound.IsZero() {
		v.Set("geometry", wkt.MarshalString(q.Bound.ToPolygon()))
	}
	if !q.Start.IsZero() || !q.End.IsZero() {
		format := func(t time.Time) string {
			if t.IsZero() {
				return "*"
			}
			return t.Format("2006-01-02")
		}
		v.Set("eventDate", format(q.Start)+","+format(q.End))
	}
	v.Set("hasCoordinate", "true")
	v.Set("hasGeospatialIssue", "false")
	v.Set("occurrenceStatus", "PRESENT")
	v.Set("offset", strconv.Itoa(offset))
	v.Set("limit", strconv.Itoa(limit))
	return v
}

func (q Query) pageSize() int {
	if q.PageSize <= 0 || q.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return q.PageSize
}

type Result struct {
	Key              int64    `json:"key"`
	Species          string   `json:"species"`
	ScientificName   string   `json:"scientificName"`
	DecimalLatitude  *float64 `json:"decimalLatitude"`
	DecimalLongitude *float64 `json:"decimalLongitude"`
	EventDate        string   `json:"eventDate"`
	CountryCode      string   `json:"countryCode"`
	BasisOfRecord    string   `json:"basisOfRecord"`
	OccurrenceStatus string   `json:"occurrenceStatus"`
}

type Page struct {
	Offset       int      `json:"offset"`
	Limit        int      `json:"limit"`
	EndOfRecords bool     `json:"endOfRecords"`
	Count        int      `json:"count"`
	Results      []Result `json:"results"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      utils.RetryConfig
	workers    int
	cache      cache.Service[Page]
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

func WithWorkers(n int) Option { return func(c *Client) { c.workers = n } }

func WithCache(s cache.Service[Page]) Option { return func(c *Client) { c.cache = s } }

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
		retry:      utils.RetryConfig{Attempts: 3, Delay: 5 * time.Second, Log: log},
		workers:    4,
		cache:      cache.Noop[Page]{},
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.workers < 1 {
		c.workers = 1
	}
	return c
}

// Search pages through /occurrence/search. The first page reports the total
// count; the remaining pages are fetched concurrently and reassembled in
// offset order. Records without coordinates are dropped.
func (c *Client) Search(ctx context.Context, q Query) ([]Record, error) {
	limit := q.pageSize()

	first, err := c.page(ctx, q, 0, limit)
	if err != nil {
		return nil, err
	}

	total := first.Count
	if total > OffsetCeiling {
		c.log.WithField("count", total).Warnf("result set exceeds offset ceiling, truncating to %d", OffsetCeiling)
		total = OffsetCeiling
	}
	if q.MaxRecords > 0 && total > q.MaxRecords {
		total = q.MaxRecords
	}

	nPages := 1
	if !first.EndOfRecords && total > limit {
		nPages = (total + limit - 1) / limit
	}
	pages := make([]Page, nPages)
	pages[0] = first

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i := 1; i < nPages; i++ {
		i := i
		offset := i * limit
		g.Go(func() error {
			p, err := c.page(gctx, q, offset, min(limit, total-offset))
			if err != nil {
				return err
			}
			pages[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var records []Record
	for _, p := range pages {
		for _, r := range p.Results {
			if r.DecimalLatitude == nil || r.DecimalLongitude == nil {
				continue
			}
			records = append(records, toRecord(r))
		}
	}
	if q.MaxRecords > 0 && len(records) > q.MaxRecords {
		records = records[:q.MaxRecords]
	}

	c.log.WithFields(logrus.Fields{"count": first.Count, "pages": nPages, "records": len(records)}).Info("occurrence search finished")
	return records, nil
}

func (c *Client) page(ctx context.Context, q Query, offset, limit int) (Page, error) {
	params := q.values(offset, limit)
	href := c.baseURL + "/occurrence/search?" + params.Encode()
	key := cache.GenerateKey("occurrence-page", href)

	if p, ok := c.cache.Get(ctx, key); ok {
		return p, nil
	}

	var p Page
	err := utils.FetchJSON(ctx, c.httpClient, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	}, &p, c.retry, c.observe)
	if err != nil {
		return Page{}, fmt.Errorf("occurrence page at offset %d: %w", offset, err)
	}

	if err := c.cache.Set(ctx, key, p); err != nil {
		c.log.WithError(err).Warn("failed to cache occurrence page")
	}
	return p, nil
}

func toRecord(r Result) Record {
	species := r.Species
	if species == "" {
		species = r.ScientificName
	}
	return Record{
		Key:              r.Key,
		Species:          species,
		Latitude:         *r.DecimalLatitude,
		Longitude:        *r.DecimalLongitude,
		EventDate:        r.EventDate,
		CountryCode:      r.CountryCode,
		BasisOfRecord:    r.BasisOfRecord,
		OccurrenceStatus: r.OccurrenceStatus,
	}
}
