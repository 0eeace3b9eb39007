package raster

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/sirupsen/logrus"

	"github.com/alecsharpie/ey-frog-challenge/internal/utils"
)

type Resampling string

const (
	Nearest  Resampling = "near"
	Bilinear Resampling = "bilinear"
	Cubic    Resampling = "cubic"
	Average  Resampling = "average"
	Mode     Resampling = "mode"
)

func ParseResampling(s string) (Resampling, error) {
	switch r := Resampling(s); r {
	case Nearest, Bilinear, Cubic, Average, Mode:
		return r, nil
	case "", "nearest":
		return Nearest, nil
	default:
		return "", fmt.Errorf("unknown resampling %q", s)
	}
}

var registerOnce sync.Once

func register() {
	registerOnce.Do(godal.RegisterAll)
}

func quietErrors(log logrus.FieldLogger) godal.ErrorHandler {
	return func(ec godal.ErrorCategory, code int, msg string) error {
		if ec == godal.CE_Warning {
			if log != nil {
				log.WithField("gdal_code", code).Debug(msg)
			}
			return nil
		}
		return fmt.Errorf("GDAL error %d: %s", code, msg)
	}
}

func warpSwitches(grid Grid, r Resampling) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return []string{
		"-of", "MEM",
		"-t_srs", "EPSG:4326",
		"-te", f(grid.West), f(grid.South()), f(grid.East()), f(grid.North),
		"-ts", strconv.Itoa(grid.Width), strconv.Itoa(grid.Height),
		"-r", string(r),
		"-ot", "Float64",
		"-dstnodata", "nan",
	}
}

// OpenWarped reprojects and resamples any GDAL-readable source onto grid and
// returns every band. Source nodata becomes NaN.
func OpenWarped(ctx context.Context, path string, grid Grid, r Resampling, log logrus.FieldLogger) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	register()

	var bands [][]float64
	var opErr error
	utils.ExecuteWithMutex(func() {
		src, err := godal.Open(path, godal.RasterOnly(), godal.ErrLogger(quietErrors(log)))
		if err != nil {
			opErr = fmt.Errorf("failed to open %s: %w", path, err)
			return
		}
		defer src.Close()

		dst, err := src.Warp("", warpSwitches(grid, r), godal.ErrLogger(quietErrors(log)))
		if err != nil {
			opErr = fmt.Errorf("failed to warp %s: %w", path, err)
			return
		}
		defer dst.Close()

		bands, opErr = readBands(dst, grid)
	})
	if opErr != nil {
		return nil, opErr
	}
	return bands, nil
}

func readBands(ds *godal.Dataset, grid Grid) ([][]float64, error) {
	var out [][]float64
	for i, band := range ds.Bands() {
		data := make([]float64, grid.Len())
		if err := band.Read(0, 0, data, grid.Width, grid.Height); err != nil {
			return nil, fmt.Errorf("failed to read band %d: %w", i+1, err)
		}
		if nd, ok := band.NoData(); ok && !math.IsNaN(nd) {
			for j, v := range data {
				if v == nd {
					data[j] = math.NaN()
				}
			}
		}
		out = append(out, data)
	}
	return out, nil
}

// WriteGeoTIFF writes r as a deflate-compressed float32 GeoTIFF with one
// described band per raster band and NaN nodata.
func WriteGeoTIFF(path string, r *Raster) error {
	if len(r.Bands) == 0 {
		return fmt.Errorf("raster has no bands")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	register()

	var opErr error
	utils.ExecuteWithMutex(func() {
		ds, err := godal.Create(godal.GTiff, path, len(r.Bands), godal.Float32, r.Grid.Width, r.Grid.Height,
			godal.CreationOption("COMPRESS=DEFLATE", "TILED=YES"))
		if err != nil {
			opErr = fmt.Errorf("failed to create %s: %w", path, err)
			return
		}

		opErr = writeDataset(ds, r)
		if err := ds.Close(); err != nil && opErr == nil {
			opErr = fmt.Errorf("failed to close %s: %w", path, err)
		}
	})
	return opErr
}

func writeDataset(ds *godal.Dataset, r *Raster) error {
	if err := ds.SetGeoTransform(r.Grid.GeoTransform()); err != nil {
		return fmt.Errorf("failed to set geotransform: %w", err)
	}
	sr, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return fmt.Errorf("failed to build EPSG:4326: %w", err)
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		return fmt.Errorf("failed to set spatial ref: %w", err)
	}

	for i, band := range ds.Bands() {
		src := r.Bands[i]
		data := make([]float64, len(src.Data))
		for j, v := range src.Data {
			if src.IsNoData(v) {
				v = math.NaN()
			}
			data[j] = v
		}
		if err := band.SetNoData(math.NaN()); err != nil {
			return fmt.Errorf("failed to set nodata on %s: %w", src.Name, err)
		}
		if err := band.SetDescription(src.Name); err != nil {
			return fmt.Errorf("failed to set description on %s: %w", src.Name, err)
		}
		if err := band.Write(0, 0, data, r.Grid.Width, r.Grid.Height); err != nil {
			return fmt.Errorf("failed to write band %s: %w", src.Name, err)
		}
	}
	return nil
}

// ReadGeoTIFF loads a raster written by WriteGeoTIFF. Bands without a
// description are named band_<n>.
func ReadGeoTIFF(path string) (*Raster, error) {
	register()

	var out *Raster
	var opErr error
	utils.ExecuteWithMutex(func() {
		ds, err := godal.Open(path, godal.RasterOnly())
		if err != nil {
			opErr = fmt.Errorf("failed to open %s: %w", path, err)
			return
		}
		defer ds.Close()

		gt, err := ds.GeoTransform()
		if err != nil {
			opErr = fmt.Errorf("failed to get geotransform: %w", err)
			return
		}
		st := ds.Structure()
		grid, err := GridFromGeoTransform(gt, st.SizeX, st.SizeY)
		if err != nil {
			opErr = err
			return
		}

		data, err := readBands(ds, grid)
		if err != nil {
			opErr = err
			return
		}

		out = &Raster{Grid: grid}
		for i, band := range ds.Bands() {
			name := band.Description()
			if name == "" {
				name = fmt.Sprintf("band_%d", i+1)
			}
			if err := out.AddBand(Band{Name: name, Data: data[i], NoData: math.NaN()}); err != nil {
				opErr = err
				return
			}
		}
	})
	if opErr != nil {
		return nil, opErr
	}
	return out, nil
}
