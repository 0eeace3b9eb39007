package predictor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"github.com/alecsharpie/ey-frog-challenge/internal/catalog"
	"github.com/alecsharpie/ey-frog-challenge/internal/logger"
	"github.com/alecsharpie/ey-frog-challenge/internal/metrics"
	"github.com/alecsharpie/ey-frog-challenge/internal/raster"
	"github.com/alecsharpie/ey-frog-challenge/internal/sentinel"
	"github.com/alecsharpie/ey-frog-challenge/internal/terrain"
	"github.com/alecsharpie/ey-frog-challenge/internal/utils"
)

// Catalog is the part of the STAC client the builder needs.
type Catalog interface {
	Search(ctx context.Context, req catalog.SearchRequest) ([]catalog.Item, error)
	GetItem(ctx context.Context, collection, id string) (catalog.Item, error)
}

// Warper reads a GDAL path onto grid and returns its bands.
type Warper func(ctx context.Context, path string, grid raster.Grid, r raster.Resampling) ([][]float64, error)

type Request struct {
	Bound      orb.Bound
	Resolution float64
	Start      time.Time
	End        time.Time
	Specs      []Spec
}

type Builder struct {
	catalog    Catalog
	warp       Warper
	workers    int
	retries    int
	retryDelay time.Duration
	log        logrus.FieldLogger
	metrics    *metrics.Metrics
	progress   io.Writer
	clock      clockwork.Clock
}

type Option func(*Builder)

func WithWorkers(n int) Option { return func(b *Builder) { b.workers = n } }

func WithRetry(attempts int, delay time.Duration) Option {
	return func(b *Builder) {
		b.retries = attempts
		b.retryDelay = delay
	}
}

func WithLogger(l logrus.FieldLogger) Option { return func(b *Builder) { b.log = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(b *Builder) { b.metrics = m } }
func WithWarper(w Warper) Option { return func(b *Builder) { b.warp = w } }
func WithProgress(w io.Writer) Option { return func(b *Builder) { b.progress = w } }
func WithClock(c clockwork.Clock) Option { return func(b *Builder) { b.clock = c } }

func NewBuilder(c Catalog, opts ...Option) *Builder {
	b := &Builder{
		catalog:    c,
		workers:    4,
		retries:    3,
		retryDelay: 5 * time.Second,
		log:        logger.Discard(),
		metrics:    metrics.New(),
		progress:   io.Discard,
		clock:      clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.warp == nil {
		log := b.log
		b.warp = func(ctx context.Context, path string, grid raster.Grid, r raster.Resampling) ([][]float64, error) {
			return raster.OpenWarped(ctx, path, grid, r, log)
		}
	}
	if b.workers < 1 {
		b.workers = 1
	}
	return b
}

// Build produces one band per spec, in spec order, on the grid covering
// req.Bound at req.Resolution.
func (b *Builder) Build(ctx context.Context, req Request) (*raster.Raster, error) {
	if err := Validate(req.Specs); err != nil {
		return nil, err
	}
	grid, err := raster.NewGrid(req.Bound, req.Resolution)
	if err != nil {
		return nil, err
	}
	b.log.WithFields(logrus.Fields{"width": grid.Width, "height": grid.Height, "predictors": len(req.Specs)}).Info("building predictor stack")

	stack := &raster.Raster{Grid: grid}
	for _, spec := range req.Specs {
		data, err := b.buildOne(ctx, req, grid, spec, stack)
		if err != nil {
			return nil, fmt.Errorf("predictor %s: %w", spec.Name, err)
		}
		band := raster.Band{Name: spec.Name, Data: data, NoData: nan(), Categorical: spec.Categorical}
		if err := stack.AddBand(band); err != nil {
			return nil, err
		}
		b.log.WithField("predictor", spec.Name).Info("predictor ready")
	}
	return stack, nil
}

func (b *Builder) buildOne(ctx context.Context, req Request, grid raster.Grid, spec Spec, built *raster.Raster) ([]float64, error) {
	switch spec.Kind {
	case KindNDVI:
		return b.buildNDVI(ctx, req, grid, spec)
	case KindAsset:
		return b.buildAsset(ctx, req, grid, spec)
	case KindSlope:
		elevation, err := built.Band(spec.Source)
		if err != nil {
			return nil, err
		}
		return terrain.Slope(elevation.Data, grid, nan())
	case KindClimate:
		return b.buildClimate(ctx, req, grid, spec)
	default:
		return nil, fmt.Errorf("unknown kind %q", spec.Kind)
	}
}

func (b *Builder) search(ctx context.Context, req Request, spec Spec, dated bool) ([]catalog.Item, error) {
	sr := catalog.SearchRequest{
		Collections: []string{spec.Collection},
		Bound:       req.Bound,
		Query:       spec.Query,
		MaxItems:    spec.MaxItems,
	}
	if dated {
		sr.Start, sr.End = req.Start, req.End
	}
	items, err := b.catalog.Search(ctx, sr)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(items)
	return items, nil
}

func nan() float64 { return math.NaN() }

func sortNewestFirst(items []catalog.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, _ := items[i].Datetime()
		tj, _ := items[j].Datetime()
		return ti.After(tj)
	})
}

type ndviScene struct {
	ndvi  []float64
	valid []bool
}

func (b *Builder) buildNDVI(ctx context.Context, req Request, grid raster.Grid, spec Spec) ([]float64, error) {
	items, err := b.search(ctx, req, spec, true)
	if err != nil {
		return nil, err
	}

	scenes, err := b.forEachItem(ctx, spec, items, func(ctx context.Context, item catalog.Item) (interface{}, error) {
		nir, err := b.warpAsset(ctx, spec, item, spec.Assets[0], grid, spec.resampling())
		if err != nil {
			return nil, err
		}
		red, err := b.warpAsset(ctx, spec, item, spec.Assets[1], grid, spec.resampling())
		if err != nil {
			return nil, err
		}
		var scl []float64
		if len(spec.Assets) > 2 {
			if scl, err = b.warpAsset(ctx, spec, item, spec.Assets[2], grid, raster.Nearest); err != nil {
				return nil, err
			}
		}
		ndvi, err := sentinel.NDVI(nir, red)
		if err != nil {
			return nil, err
		}
		valid, err := sentinel.ValidMask(scl, nir, red)
		if err != nil {
			return nil, err
		}
		b.log.WithFields(logrus.Fields{"item": item.ID, "valid": sentinel.ValidFraction(valid)}).Debug("scene masked")
		return ndviScene{ndvi: ndvi, valid: valid}, nil
	})
	if err != nil {
		return nil, err
	}
	if len(scenes) == 0 {
		return nil, fmt.Errorf("no usable scenes among %d items", len(items))
	}

	values := make([][]float64, len(scenes))
	masks := make([][]bool, len(scenes))
	for i, s := range scenes {
		scene := s.(ndviScene)
		values[i] = scene.ndvi
		masks[i] = scene.valid
	}
	return sentinel.MedianMosaic(values, masks)
}

func (b *Builder) buildAsset(ctx context.Context, req Request, grid raster.Grid, spec Spec) ([]float64, error) {
	items, err := b.search(ctx, req, spec, false)
	if err != nil {
		return nil, err
	}

	results, err := b.forEachItem(ctx, spec, items, func(ctx context.Context, item catalog.Item) (interface{}, error) {
		return b.warpAsset(ctx, spec, item, spec.Assets[0], grid, spec.resampling())
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no readable %s assets among %d items", spec.Assets[0], len(items))
	}

	scenes := make([][]float64, len(results))
	for i, r := range results {
		scenes[i] = r.([]float64)
	}
	return sentinel.FirstValidMosaic(scenes)
}

func (b *Builder) buildClimate(ctx context.Context, req Request, grid raster.Grid, spec Spec) ([]float64, error) {
	reducer, err := raster.ParseReducer(string(spec.Reduce))
	if err != nil {
		return nil, err
	}

	var bands [][]float64
	if spec.Source != "" {
		bands, err = b.warp(ctx, spec.Source, grid, spec.resampling())
		if err != nil {
			return nil, err
		}
		b.metrics.AssetsWarped.WithLabelValues(spec.Name).Inc()
	} else {
		items, err := b.search(ctx, req, spec, true)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, catalog.ErrNoItems
		}
		bands, err = b.warpAllBands(ctx, spec, items[0], spec.Assets[0], grid, spec.resampling())
		if err != nil {
			return nil, err
		}
	}

	first, last := spec.BandFirst, spec.BandLast
	if first == 0 {
		first = 1
	}
	if last == 0 || last > len(bands) {
		last = len(bands)
	}
	if first > last {
		return nil, fmt.Errorf("band range %d-%d outside %d bands", first, last, len(bands))
	}
	return raster.ReduceBands(bands[first-1:last], nan(), reducer)
}

// forEachItem runs fn for every item on the worker pool and returns the
// successful results in item order. Failed items are logged and skipped
// unless ctx was cancelled, in which case ctx.Err() is returned.
func (b *Builder) forEachItem(ctx context.Context, spec Spec, items []catalog.Item, fn func(context.Context, catalog.Item) (interface{}, error)) ([]interface{}, error) {
	results := make([]interface{}, len(items))
	bar := progressbar.NewOptions(len(items),
		progressbar.OptionSetWriter(b.progress),
		progressbar.OptionSetDescription(spec.Name),
		progressbar.OptionShowCount(),
	)

	var mu sync.Mutex
	wp := workerpool.New(b.workers)
	for i, item := range items {
		i, item := i, item
		wp.Submit(func() {
			res, err := fn(ctx, item)
			mu.Lock()
			defer mu.Unlock()
			bar.Add(1)
			if err != nil {
				b.log.WithError(err).WithFields(logrus.Fields{"predictor": spec.Name, "item": item.ID}).Warn("skipping item")
				return
			}
			results[i] = res
		})
	}
	wp.StopWait()
	bar.Finish()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kept := results[:0]
	for _, r := range results {
		if r != nil {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

func (b *Builder) warpAsset(ctx context.Context, spec Spec, item catalog.Item, key string, grid raster.Grid, r raster.Resampling) ([]float64, error) {
	bands, err := b.warpAllBands(ctx, spec, item, key, grid, r)
	if err != nil {
		return nil, err
	}
	return bands[0], nil
}

// warpAllBands reads one asset of item. A failed read is retried after
// fetching the item again, which renews expired signed hrefs.
func (b *Builder) warpAllBands(ctx context.Context, spec Spec, item catalog.Item, key string, grid raster.Grid, r raster.Resampling) ([][]float64, error) {
	current := item
	var bands [][]float64
	cfg := utils.RetryConfig{
		Attempts: b.retries,
		Delay:    b.retryDelay,
		Log:      b.log,
		OnRetry: func(attempt int, err error) {
			fresh, ferr := b.catalog.GetItem(ctx, item.Collection, item.ID)
			if ferr != nil {
				b.log.WithError(ferr).WithField("item", item.ID).Warn("failed to refresh item")
				return
			}
			current = fresh
		},
	}
	err := utils.Retry(ctx, cfg, func(int) error {
		href, err := current.AssetHref(key)
		if err != nil {
			return utils.Permanent(err)
		}
		out, err := b.warp(ctx, catalog.GDALPath(href), grid, r)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return utils.Permanent(err)
			}
			return err
		}
		if len(out) == 0 {
			return utils.Permanent(fmt.Errorf("asset %s of %s has no bands", key, item.ID))
		}
		bands = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.metrics.AssetsWarped.WithLabelValues(spec.Name).Inc()
	return bands, nil
}
