package dataset

import (
	"errors"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/alecsharpie/ey-frog-challenge/internal/logger"
	"github.com/alecsharpie/ey-frog-challenge/internal/metrics"
	"github.com/alecsharpie/ey-frog-challenge/internal/raster"
)

type JoinOptions struct {
	// OnePerPixel keeps a single row per pixel. A presence replaces an
	// absence already holding the pixel.
	OnePerPixel bool
	Log         logrus.FieldLogger
	Metrics     *metrics.Metrics
}

// Join attaches the predictor values of the nearest pixel to every sample.
// Samples outside the grid or on a pixel where any band is nodata are
// dropped. Rows keep the sample order.
func Join(samples []Sample, stack *raster.Raster, opts JoinOptions) (*Table, error) {
	log := opts.Log
	if log == nil {
		log = logger.Discard()
	}
	drop := func(reason string) {
		if opts.Metrics != nil {
			opts.Metrics.RowsDropped.WithLabelValues(reason).Inc()
		}
	}

	table := &Table{Features: stack.Names()}
	byPixel := map[int]int{}
	dropped := map[string]int{}
	for _, s := range samples {
		col, row, err := stack.Grid.Index(s.Latitude, s.Longitude)
		if errors.Is(err, raster.ErrOutOfBounds) {
			dropped["out_of_bounds"]++
			drop("out_of_bounds")
			continue
		}
		if err != nil {
			return nil, err
		}

		values := stack.At(col, row)
		if hasNaN(values) {
			dropped["nodata"]++
			drop("nodata")
			continue
		}

		r := Row{
			ID:        s.ID,
			Species:   s.Species,
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
			EventDate: s.EventDate,
			Label:     s.Label,
			Col:       col,
			Row:       row,
			Features:  values,
		}

		if opts.OnePerPixel {
			offset := stack.Grid.Offset(col, row)
			if i, ok := byPixel[offset]; ok {
				if r.Label == 1 && table.Rows[i].Label == 0 {
					table.Rows[i] = r
				}
				dropped["duplicate"]++
				drop("duplicate")
				continue
			}
			byPixel[offset] = len(table.Rows)
		}
		table.Rows = append(table.Rows, r)
	}

	if opts.Metrics != nil {
		opts.Metrics.RowsJoined.Add(float64(len(table.Rows)))
	}
	log.WithFields(logrus.Fields{
		"joined":        len(table.Rows),
		"out_of_bounds": dropped["out_of_bounds"],
		"nodata":        dropped["nodata"],
		"duplicate":     dropped["duplicate"],
	}).Info("samples joined to predictors")

	if len(table.Rows) == 0 {
		return nil, ErrEmptyDataset
	}
	return table, nil
}

func hasNaN(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
