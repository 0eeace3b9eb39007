package sentinel

import (
	"fmt"
	"math"

	"github.com/alecsharpie/ey-frog-challenge/internal/raster"
)

func checkScenes(scenes [][]float64) (int, error) {
	if len(scenes) == 0 {
		return 0, fmt.Errorf("no scenes to mosaic")
	}
	n := len(scenes[0])
	for i, s := range scenes {
		if len(s) != n {
			return 0, fmt.Errorf("scene %d has %d values, expected %d", i, len(s), n)
		}
	}
	return n, nil
}

// MedianMosaic takes the per-pixel median of valid observations across
// scenes. valid may be nil, otherwise valid[i] masks scenes[i]. Pixels
// without any valid observation are NaN.
func MedianMosaic(scenes [][]float64, valid [][]bool) ([]float64, error) {
	n, err := checkScenes(scenes)
	if err != nil {
		return nil, err
	}
	if valid != nil {
		if len(valid) != len(scenes) {
			return nil, fmt.Errorf("%d masks for %d scenes", len(valid), len(scenes))
		}
		for i, m := range valid {
			if len(m) != n {
				return nil, fmt.Errorf("mask %d has %d values, expected %d", i, len(m), n)
			}
		}
	}

	out := make([]float64, n)
	obs := make([]float64, 0, len(scenes))
	for px := 0; px < n; px++ {
		obs = obs[:0]
		for i, s := range scenes {
			if math.IsNaN(s[px]) || (valid != nil && !valid[i][px]) {
				continue
			}
			obs = append(obs, s[px])
		}
		out[px] = raster.Median(obs)
	}
	return out, nil
}

// FirstValidMosaic keeps, per pixel, the first non-NaN value in scene order.
func FirstValidMosaic(scenes [][]float64) ([]float64, error) {
	n, err := checkScenes(scenes)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for px := range out {
		out[px] = math.NaN()
		for _, s := range scenes {
			if !math.IsNaN(s[px]) {
				out[px] = s[px]
				break
			}
		}
	}
	return out, nil
}
