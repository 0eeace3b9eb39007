package raster

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type Band struct {
	Name        string
	Data        []float64
	NoData      float64
	Categorical bool
}

// IsNoData treats NaN as nodata in addition to the band's NoData value.
func (b Band) IsNoData(v float64) bool {
	return math.IsNaN(v) || (!math.IsNaN(b.NoData) && v == b.NoData)
}

// Raster is a grid plus ordered, row-major bands.
type Raster struct {
	Grid  Grid
	Bands []Band
}

func New(grid Grid, bands ...Band) (*Raster, error) {
	r := &Raster{Grid: grid}
	for _, b := range bands {
		if err := r.AddBand(b); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewBand returns a band filled with NaN.
func NewBand(name string, grid Grid) Band {
	data := make([]float64, grid.Len())
	for i := range data {
		data[i] = math.NaN()
	}
	return Band{Name: name, Data: data, NoData: math.NaN()}
}

func (r *Raster) AddBand(b Band) error {
	if len(b.Data) != r.Grid.Len() {
		return fmt.Errorf("band %s has %d values, grid needs %d", b.Name, len(b.Data), r.Grid.Len())
	}
	if _, ok := r.bandIndex(b.Name); ok {
		return fmt.Errorf("duplicate band %q", b.Name)
	}
	r.Bands = append(r.Bands, b)
	return nil
}

func (r *Raster) bandIndex(name string) (int, bool) {
	for i, b := range r.Bands {
		if b.Name == name {
			return i, true
		}
	}
	return 0, false
}

func (r *Raster) Band(name string) (Band, error) {
	i, ok := r.bandIndex(name)
	if !ok {
		return Band{}, fmt.Errorf("band %q not found", name)
	}
	return r.Bands[i], nil
}

func (r *Raster) Names() []string {
	names := make([]string, len(r.Bands))
	for i, b := range r.Bands {
		names[i] = b.Name
	}
	return names
}

// At returns every band value at a pixel; nodata becomes NaN.
func (r *Raster) At(col, row int) []float64 {
	off := r.Grid.Offset(col, row)
	values := make([]float64, len(r.Bands))
	for i, b := range r.Bands {
		v := b.Data[off]
		if b.IsNoData(v) {
			v = math.NaN()
		}
		values[i] = v
	}
	return values
}

// Sample returns the band values of the pixel nearest to (lat, lon).
func (r *Raster) Sample(lat, lon float64) ([]float64, error) {
	col, row, err := r.Grid.Index(lat, lon)
	if err != nil {
		return nil, err
	}
	return r.At(col, row), nil
}

// Stack concatenates the bands of rasters sharing one grid.
func Stack(rasters ...*Raster) (*Raster, error) {
	if len(rasters) == 0 {
		return nil, fmt.Errorf("nothing to stack")
	}
	out := &Raster{Grid: rasters[0].Grid}
	for _, r := range rasters {
		if !r.Grid.Equal(out.Grid) {
			return nil, fmt.Errorf("%w: %+v vs %+v", ErrGridMismatch, r.Grid, out.Grid)
		}
		for _, b := range r.Bands {
			if err := out.AddBand(b); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

type Reducer string

const (
	ReduceMean   Reducer = "mean"
	ReduceMin    Reducer = "min"
	ReduceMax    Reducer = "max"
	ReduceSum    Reducer = "sum"
	ReduceMedian Reducer = "median"
)

func ParseReducer(s string) (Reducer, error) {
	switch r := Reducer(s); r {
	case ReduceMean, ReduceMin, ReduceMax, ReduceSum, ReduceMedian:
		return r, nil
	case "":
		return ReduceMean, nil
	default:
		return "", fmt.Errorf("unknown reducer %q", s)
	}
}

// ReduceBands collapses bands pixel by pixel, skipping NaN and noData.
// Pixels with no valid value become NaN.
func ReduceBands(bands [][]float64, noData float64, fn Reducer) ([]float64, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("no bands to reduce")
	}
	n := len(bands[0])
	for i, b := range bands {
		if len(b) != n {
			return nil, fmt.Errorf("band %d has %d values, expected %d", i, len(b), n)
		}
	}
	out := make([]float64, n)
	values := make([]float64, 0, len(bands))
	for px := 0; px < n; px++ {
		values = values[:0]
		for _, b := range bands {
			v := b[px]
			if math.IsNaN(v) || (!math.IsNaN(noData) && v == noData) {
				continue
			}
			values = append(values, v)
		}
		v, err := reduce(values, fn)
		if err != nil {
			return nil, err
		}
		out[px] = v
	}
	return out, nil
}

func reduce(values []float64, fn Reducer) (float64, error) {
	if len(values) == 0 {
		return math.NaN(), nil
	}
	switch fn {
	case ReduceMean:
		return stat.Mean(values, nil), nil
	case ReduceSum:
		return floats.Sum(values), nil
	case ReduceMin:
		return floats.Min(values), nil
	case ReduceMax:
		return floats.Max(values), nil
	case ReduceMedian:
		return Median(values), nil
	default:
		return 0, fmt.Errorf("unknown reducer %q", fn)
	}
}

// Median sorts values in place.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sort.Float64s(values)
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid]
	}
	return (values[mid-1] + values[mid]) / 2
}
