package terrain

import (
	"fmt"
	"math"

	"github.com/alecsharpie/ey-frog-challenge/internal/raster"
)

const (
	metresPerDegreeLon = 111_320.0
	metresPerDegreeLat = 110_540.0
)

// Slope returns the terrain slope in degrees using Horn's 3x3 kernel.
// Cell sizes are converted from degrees to metres at each row's latitude,
// borders replicate the nearest edge cell and any nodata cell in the window
// makes the output NaN.
func Slope(elevation []float64, grid raster.Grid, noData float64) ([]float64, error) {
	if len(elevation) != grid.Len() {
		return nil, fmt.Errorf("elevation has %d values, grid needs %d", len(elevation), grid.Len())
	}

	isNoData := func(v float64) bool {
		return math.IsNaN(v) || (!math.IsNaN(noData) && v == noData)
	}
	at := func(col, row int) float64 {
		col = clamp(col, grid.Width-1)
		row = clamp(row, grid.Height-1)
		return elevation[grid.Offset(col, row)]
	}

	out := make([]float64, len(elevation))
	for row := 0; row < grid.Height; row++ {
		lat, _ := grid.Center(0, row)
		cellX := grid.ResX * metresPerDegreeLon * math.Cos(lat*math.Pi/180)
		cellY := grid.ResY * metresPerDegreeLat

		for col := 0; col < grid.Width; col++ {
			var w [3][3]float64
			missing := false
			for dy := -1; dy <= 1 && !missing; dy++ {
				for dx := -1; dx <= 1; dx++ {
					v := at(col+dx, row+dy)
					if isNoData(v) {
						missing = true
						break
					}
					w[dy+1][dx+1] = v
				}
			}
			if missing || cellX <= 0 {
				out[grid.Offset(col, row)] = math.NaN()
				continue
			}

			dzdx := ((w[0][2] + 2*w[1][2] + w[2][2]) - (w[0][0] + 2*w[1][0] + w[2][0])) / (8 * cellX)
			dzdy := ((w[2][0] + 2*w[2][1] + w[2][2]) - (w[0][0] + 2*w[0][1] + w[0][2])) / (8 * cellY)
			out[grid.Offset(col, row)] = math.Atan(math.Hypot(dzdx, dzdy)) * 180 / math.Pi
		}
	}
	return out, nil
}

func clamp(v, hi int) int {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}
