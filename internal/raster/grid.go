package raster

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

var (
	ErrOutOfBounds  = errors.New("coordinate outside raster grid")
	ErrGridMismatch = errors.New("raster grids do not match")
)

const gridTolerance = 1e-9

// Grid is a north-up lat/lon grid in EPSG:4326.
type Grid struct {
	West   float64 `json:"west"`
	North  float64 `json:"north"`
	ResX   float64 `json:"res_x"`
	ResY   float64 `json:"res_y"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
}

// NewGrid covers bound with square pixels of res degrees. The grid may
// extend past the east and south edges by less than one pixel.
func NewGrid(bound orb.Bound, res float64) (Grid, error) {
	if res <= 0 {
		return Grid{}, fmt.Errorf("resolution must be positive, got %f", res)
	}
	w := bound.Max.Lon() - bound.Min.Lon()
	h := bound.Max.Lat() - bound.Min.Lat()
	if w <= 0 || h <= 0 {
		return Grid{}, fmt.Errorf("empty bound %v", bound)
	}
	return Grid{
		West:   bound.Min.Lon(),
		North:  bound.Max.Lat(),
		ResX:   res,
		ResY:   res,
		Width:  int(math.Ceil(w/res - gridTolerance)),
		Height: int(math.Ceil(h/res - gridTolerance)),
	}, nil
}

// GridFromGeoTransform builds a grid from a GDAL geotransform. Rotated
// transforms are rejected.
func GridFromGeoTransform(gt [6]float64, width, height int) (Grid, error) {
	if gt[2] != 0 || gt[4] != 0 {
		return Grid{}, fmt.Errorf("rotated geotransform %v not supported", gt)
	}
	if gt[1] <= 0 || gt[5] >= 0 {
		return Grid{}, fmt.Errorf("geotransform %v is not north-up", gt)
	}
	return Grid{West: gt[0], North: gt[3], ResX: gt[1], ResY: -gt[5], Width: width, Height: height}, nil
}

func (g Grid) GeoTransform() [6]float64 {
	return [6]float64{g.West, g.ResX, 0, g.North, 0, -g.ResY}
}

func (g Grid) East() float64  { return g.West + float64(g.Width)*g.ResX }
func (g Grid) South() float64 { return g.North - float64(g.Height)*g.ResY }
func (g Grid) Len() int       { return g.Width * g.Height }

func (g Grid) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{g.West, g.South()}, Max: orb.Point{g.East(), g.North}}
}

// Index returns the pixel containing (lat, lon). Points exactly on the east
// or south edge belong to the last column or row.
func (g Grid) Index(lat, lon float64) (col, row int, err error) {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return 0, 0, fmt.Errorf("%w: NaN coordinate", ErrOutOfBounds)
	}
	fc := (lon - g.West) / g.ResX
	fr := (g.North - lat) / g.ResY
	if fc < -gridTolerance || fr < -gridTolerance || fc > float64(g.Width)+gridTolerance || fr > float64(g.Height)+gridTolerance {
		return 0, 0, fmt.Errorf("%w: (%f, %f)", ErrOutOfBounds, lat, lon)
	}
	col = clamp(int(math.Floor(fc)), g.Width-1)
	row = clamp(int(math.Floor(fr)), g.Height-1)
	return col, row, nil
}

// Center returns the lat/lon of a pixel centre.
func (g Grid) Center(col, row int) (lat, lon float64) {
	lon = g.West + (float64(col)+0.5)*g.ResX
	lat = g.North - (float64(row)+0.5)*g.ResY
	return lat, lon
}

func (g Grid) Offset(col, row int) int { return row*g.Width + col }

func (g Grid) Equal(o Grid) bool {
	return g.Width == o.Width && g.Height == o.Height &&
		almostEqual(g.West, o.West) && almostEqual(g.North, o.North) &&
		almostEqual(g.ResX, o.ResX) && almostEqual(g.ResY, o.ResY)
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) <= 1e-9 }

func clamp(v, hi int) int {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}
