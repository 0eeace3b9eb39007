package predictor

import (
	"fmt"

	"github.com/alecsharpie/ey-frog-challenge/internal/raster"
	"github.com/alecsharpie/ey-frog-challenge/internal/sentinel"
)

type Kind string

const (
	// KindNDVI is a median mosaic of cloud-masked Sentinel-2 NDVI.
	KindNDVI Kind = "ndvi"
	// KindAsset is a first-valid mosaic of a single asset.
	KindAsset Kind = "asset"
	// KindSlope derives slope from another predictor named by Source.
	KindSlope Kind = "slope"
	// KindClimate reduces a multi-band source (one band per time slice).
	KindClimate Kind = "climate"
)

type Spec struct {
	Name       string                            `json:"name"`
	Kind       Kind                              `json:"kind"`
	Collection string                            `json:"collection,omitempty"`
	Assets     []string                          `json:"assets,omitempty"`
	Query      map[string]map[string]interface{} `json:"query,omitempty"`
	Resampling raster.Resampling                 `json:"resampling,omitempty"`
	Reduce     raster.Reducer                    `json:"reduce,omitempty"`
	// Source is the elevation predictor for slopes, or a GDAL path for
	// climate layers that do not come from the catalog.
	Source string `json:"source,omitempty"`
	// BandFirst and BandLast select a 1-based inclusive band range of a
	// climate source; zero means the first/last band.
	BandFirst   int  `json:"band_first,omitempty"`
	BandLast    int  `json:"band_last,omitempty"`
	Categorical bool `json:"categorical,omitempty"`
	MaxItems    int  `json:"max_items,omitempty"`
}

// DefaultSpecs lists the predictor stack in output band order.
func DefaultSpecs() []Spec {
	return []Spec{
		{
			Name:       "ndvi",
			Kind:       KindNDVI,
			Collection: sentinel.CollectionL2,
			Assets:     []string{sentinel.BandNIR, sentinel.BandRed, sentinel.BandSCL},
			Query:      map[string]map[string]interface{}{"eo:cloud_cover": {"lt": 20}},
			Resampling: raster.Bilinear,
			MaxItems:   24,
		},
		{
			Name:       "elevation",
			Kind:       KindAsset,
			Collection: "cop-dem-glo-30",
			Assets:     []string{"data"},
			Resampling: raster.Bilinear,
		},
		{
			Name:   "slope",
			Kind:   KindSlope,
			Source: "elevation",
		},
		{
			Name:        "land_cover",
			Kind:        KindAsset,
			Collection:  "esa-worldcover",
			Assets:      []string{"map"},
			Resampling:  raster.Nearest,
			Categorical: true,
		},
		{
			Name:       "water_occurrence",
			Kind:       KindAsset,
			Collection: "jrc-gsw",
			Assets:     []string{"occurrence"},
			Resampling: raster.Nearest,
		},
	}
}

// Validate checks names are unique and every slope refers to an earlier
// predictor.
func Validate(specs []Spec) error {
	if len(specs) == 0 {
		return fmt.Errorf("no predictors requested")
	}
	seen := map[string]bool{}
	for _, s := range specs {
		if s.Name == "" {
			return fmt.Errorf("predictor without a name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate predictor %q", s.Name)
		}
		switch s.Kind {
		case KindNDVI:
			if s.Collection == "" || len(s.Assets) < 2 {
				return fmt.Errorf("predictor %q needs a collection and nir/red assets", s.Name)
			}
		case KindAsset:
			if s.Collection == "" || len(s.Assets) != 1 {
				return fmt.Errorf("predictor %q needs a collection and exactly one asset", s.Name)
			}
		case KindSlope:
			if !seen[s.Source] {
				return fmt.Errorf("slope %q refers to unknown or later predictor %q", s.Name, s.Source)
			}
		case KindClimate:
			if s.Source == "" && (s.Collection == "" || len(s.Assets) != 1) {
				return fmt.Errorf("climate %q needs a source path or a collection with one asset", s.Name)
			}
			if _, err := raster.ParseReducer(string(s.Reduce)); err != nil {
				return fmt.Errorf("climate %q: %w", s.Name, err)
			}
			if s.BandFirst < 0 || s.BandLast < 0 || (s.BandLast > 0 && s.BandFirst > s.BandLast) {
				return fmt.Errorf("climate %q has invalid band range %d-%d", s.Name, s.BandFirst, s.BandLast)
			}
		default:
			return fmt.Errorf("predictor %q has unknown kind %q", s.Name, s.Kind)
		}
		seen[s.Name] = true
	}
	return nil
}

func (s Spec) resampling() raster.Resampling {
	if s.Resampling == "" {
		if s.Categorical {
			return raster.Nearest
		}
		return raster.Bilinear
	}
	return s.Resampling
}
