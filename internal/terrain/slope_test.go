package terrain

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alecsharpie/ey-frog-challenge/internal/raster"
)

func equatorGrid(t *testing.T, n int) raster.Grid {
	t.Helper()
	res := 0.001
	g, err := raster.NewGrid(orb.Bound{Min: orb.Point{0, -float64(n) * res / 2}, Max: orb.Point{float64(n) * res, float64(n) * res / 2}}, res)
	require.NoError(t, err)
	require.Equal(t, n, g.Width)
	require.Equal(t, n, g.Height)
	return g
}

func TestSlope_Flat(t *testing.T) {
	g := equatorGrid(t, 4)
	elev := make([]float64, g.Len())
	for i := range elev {
		elev[i] = 120
	}
	got, err := Slope(elev, g, -9999)
	require.NoError(t, err)
	for _, v := range got {
		assert.InDelta(t, 0, v, 1e-12)
	}
}

func TestSlope_NorthSouthRamp(t *testing.T) {
	g := equatorGrid(t, 5)
	cellY := g.ResY * metresPerDegreeLat
	elev := make([]float64, g.Len())
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			// rises one cell size per row, i.e. 45 degrees
			elev[g.Offset(col, row)] = float64(row) * cellY
		}
	}

	got, err := Slope(elev, g, math.NaN())
	require.NoError(t, err)
	for row := 1; row < g.Height-1; row++ {
		for col := 0; col < g.Width; col++ {
			assert.InDelta(t, 45, got[g.Offset(col, row)], 1e-6)
		}
	}
	// replicated edges halve the gradient on the first and last row
	assert.InDelta(t, math.Atan(0.5)*180/math.Pi, got[g.Offset(2, 0)], 1e-6)
}

func TestSlope_EastWestUsesLatitude(t *testing.T) {
	g, err := raster.NewGrid(orb.Bound{Min: orb.Point{0, 59.997}, Max: orb.Point{0.003, 60}}, 0.001)
	require.NoError(t, err)
	elev := make([]float64, g.Len())
	for row := 0; row < g.Height; row++ {
		lat, _ := g.Center(0, row)
		cellX := g.ResX * metresPerDegreeLon * math.Cos(lat*math.Pi/180)
		for col := 0; col < g.Width; col++ {
			elev[g.Offset(col, row)] = float64(col) * cellX
		}
	}
	got, err := Slope(elev, g, math.NaN())
	require.NoError(t, err)
	assert.InDelta(t, 45, got[g.Offset(1, 1)], 1e-6)
}

func TestSlope_NoDataPropagates(t *testing.T) {
	g := equatorGrid(t, 5)
	elev := make([]float64, g.Len())
	elev[g.Offset(2, 2)] = -9999

	got, err := Slope(elev, g, -9999)
	require.NoError(t, err)
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			v := got[g.Offset(col, row)]
			near := col >= 1 && col <= 3 && row >= 1 && row <= 3
			assert.Equal(t, near, math.IsNaN(v), "col %d row %d", col, row)
		}
	}

	_, err = Slope([]float64{1}, g, 0)
	assert.Error(t, err)
}
