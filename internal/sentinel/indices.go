package sentinel

import (
	"fmt"
	"math"
)

// Sentinel-2 L2A asset keys.
const (
	BandBlue     = "B02"
	BandRed      = "B04"
	BandRedEdge  = "B05"
	BandNIR      = "B08"
	BandSWIR     = "B11"
	BandSCL      = "SCL"
	CollectionL2 = "sentinel-2-l2a"
)

// Scene classes treated as unusable: cloud shadow, medium and high
// probability cloud, thin cirrus.
var invalidSCL = map[int]bool{3: true, 8: true, 9: true, 10: true}

func safeDivide(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// NormalizedDifference computes (a-b)/(a+b). A zero denominator yields 0 and
// NaN inputs stay NaN.
func NormalizedDifference(a, b []float64) ([]float64, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("band length mismatch: %d vs %d", len(a), len(b))
	}
	out := make([]float64, len(a))
	for i := range a {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			out[i] = math.NaN()
			continue
		}
		out[i] = safeDivide(a[i]-b[i], a[i]+b[i])
	}
	return out, nil
}

func NDVI(nir, red []float64) ([]float64, error)     { return NormalizedDifference(nir, red) }
func NDMI(nir, swir []float64) ([]float64, error)    { return NormalizedDifference(nir, swir) }
func NDRE(nir, redEdge []float64) ([]float64, error) { return NormalizedDifference(nir, redEdge) }

// Index names the bands an index needs, nir first.
type Index struct {
	Name  string
	Bands [2]string
}

var Indices = map[string]Index{
	"ndvi": {Name: "ndvi", Bands: [2]string{BandNIR, BandRed}},
	"ndmi": {Name: "ndmi", Bands: [2]string{BandNIR, BandSWIR}},
	"ndre": {Name: "ndre", Bands: [2]string{BandNIR, BandRedEdge}},
}

// ValidMask flags pixels whose SCL class is usable and whose reflectances
// are present and non-zero. A nil scl skips the class check.
func ValidMask(scl []float64, reflectance ...[]float64) ([]bool, error) {
	n := len(scl)
	if scl == nil && len(reflectance) > 0 {
		n = len(reflectance[0])
	}
	for i, r := range reflectance {
		if len(r) != n {
			return nil, fmt.Errorf("reflectance band %d has %d values, expected %d", i, len(r), n)
		}
	}

	mask := make([]bool, n)
	for px := 0; px < n; px++ {
		mask[px] = isPixelValid(scl, reflectance, px)
	}
	return mask, nil
}

func isPixelValid(scl []float64, reflectance [][]float64, px int) bool {
	if scl != nil {
		class := scl[px]
		if math.IsNaN(class) || invalidSCL[int(class)] {
			return false
		}
	}
	for _, r := range reflectance {
		if math.IsNaN(r[px]) || r[px] == 0 {
			return false
		}
	}
	return true
}

// ValidFraction is the share of true values in mask.
func ValidFraction(mask []bool) float64 {
	if len(mask) == 0 {
		return 0
	}
	n := 0
	for _, ok := range mask {
		if ok {
			n++
		}
	}
	return float64(n) / float64(len(mask))
}
