package output

import (
	"math"

	"github.com/alecsharpie/ey-frog-challenge/internal/ml"
	"github.com/alecsharpie/ey-frog-challenge/internal/raster"
)

const ProbabilityBand = "probability"

// ProbabilityRaster scores every pixel of stack. Pixels with any nodata
// input are NaN.
func ProbabilityRaster(model *ml.Model, stack *raster.Raster) (*raster.Raster, error) {
	cols, err := model.Columns(stack.Names())
	if err != nil {
		return nil, err
	}

	band := raster.NewBand(ProbabilityBand, stack.Grid)
	band.NoData = math.NaN()
	inputs := make([]float64, len(cols))
	for row := 0; row < stack.Grid.Height; row++ {
		for col := 0; col < stack.Grid.Width; col++ {
			values := stack.At(col, row)
			for i, j := range cols {
				inputs[i] = values[j]
			}
			p, err := model.Probability(inputs)
			if err != nil {
				return nil, err
			}
			band.Data[stack.Grid.Offset(col, row)] = p
		}
	}
	return raster.New(stack.Grid, band)
}

func WriteProbabilityGeoTIFF(path string, model *ml.Model, stack *raster.Raster) (*raster.Raster, error) {
	out, err := ProbabilityRaster(model, stack)
	if err != nil {
		return nil, err
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	if err := raster.WriteGeoTIFF(path, out); err != nil {
		return nil, err
	}
	return out, nil
}
