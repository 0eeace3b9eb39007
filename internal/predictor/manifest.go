package predictor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alecsharpie/ey-frog-challenge/internal/raster"
)

// Manifest describes a saved predictor stack.
type Manifest struct {
	RunID      string      `json:"run_id"`
	CreatedAt  time.Time   `json:"created_at"`
	Bands      []string    `json:"bands"`
	Bound      [4]float64  `json:"bound"`
	Resolution float64     `json:"resolution"`
	Start      time.Time   `json:"start"`
	End        time.Time   `json:"end"`
	Grid       raster.Grid `json:"grid"`
	Specs      []Spec      `json:"specs"`
}

// ManifestPath is the JSON sidecar of a stack GeoTIFF.
func ManifestPath(tiffPath string) string {
	return strings.TrimSuffix(tiffPath, filepath.Ext(tiffPath)) + ".json"
}

// Save writes the stack GeoTIFF and its manifest next to it.
func (b *Builder) Save(path string, stack *raster.Raster, req Request) (Manifest, error) {
	if err := raster.WriteGeoTIFF(path, stack); err != nil {
		return Manifest{}, err
	}

	m := Manifest{
		RunID:      uuid.NewString(),
		CreatedAt:  b.clock.Now().UTC(),
		Bands:      stack.Names(),
		Bound:      [4]float64{req.Bound.Min.Lon(), req.Bound.Min.Lat(), req.Bound.Max.Lon(), req.Bound.Max.Lat()},
		Resolution: req.Resolution,
		Start:      req.Start,
		End:        req.End,
		Grid:       stack.Grid,
		Specs:      req.Specs,
	}
	if err := WriteManifest(ManifestPath(path), m); err != nil {
		return Manifest{}, err
	}
	b.log.WithField("run_id", m.RunID).Infof("predictor stack saved to %s", path)
	return m, nil
}

func WriteManifest(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return m, nil
}

// Load reads a saved stack and restores the categorical flags from its
// manifest.
func Load(path string) (*raster.Raster, Manifest, error) {
	m, err := ReadManifest(ManifestPath(path))
	if err != nil {
		return nil, Manifest{}, err
	}
	stack, err := raster.ReadGeoTIFF(path)
	if err != nil {
		return nil, Manifest{}, err
	}
	categorical := map[string]bool{}
	for _, s := range m.Specs {
		categorical[s.Name] = s.Categorical
	}
	for i := range stack.Bands {
		stack.Bands[i].Categorical = categorical[stack.Bands[i].Name]
	}
	return stack, m, nil
}
