package output

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/alecsharpie/ey-frog-challenge/internal/ml"
)

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}

// WritePredictionsGeoJSON writes one point feature per result with its label
// probabilities. Undefined probabilities are written as null.
func WritePredictionsGeoJSON(path string, results []ml.PixelResult) error {
	fc := geojson.NewFeatureCollection()
	for _, pixel := range results {
		probabilities := make([]map[string]interface{}, 0, len(pixel.Result))
		for _, r := range pixel.Result {
			var p interface{} = r.Probability
			if math.IsNaN(r.Probability) {
				p = nil
			}
			probabilities = append(probabilities, map[string]interface{}{
				"label":       r.Label,
				"probability": p,
			})
		}

		f := geojson.NewFeature(orb.Point{pixel.Longitude, pixel.Latitude})
		f.Properties["id"] = pixel.ID
		f.Properties["x"] = pixel.X
		f.Properties["y"] = pixel.Y
		f.Properties["results"] = probabilities
		fc.Append(f)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode GeoJSON: %w", err)
	}
	if err := ensureDir(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write GeoJSON: %w", err)
	}
	return nil
}

type submissionRow struct {
	ID               string  `csv:"id"`
	Longitude        float64 `csv:"decimalLongitude"`
	Latitude         float64 `csv:"decimalLatitude"`
	OccurrenceStatus int     `csv:"occurrenceStatus"`
}

// WriteSubmissionCSV writes 1 where the presence probability reaches
// threshold and 0 otherwise, including undefined probabilities. It returns
// how many points had no probability.
func WriteSubmissionCSV(path string, results []ml.PixelResult, threshold float64) (int, error) {
	rows := make([]submissionRow, len(results))
	undefined := 0
	for i, r := range results {
		p := r.Presence()
		status := 0
		switch {
		case math.IsNaN(p):
			undefined++
		case p >= threshold:
			status = 1
		}
		rows[i] = submissionRow{ID: r.ID, Longitude: r.Longitude, Latitude: r.Latitude, OccurrenceStatus: status}
	}

	if err := ensureDir(path); err != nil {
		return 0, err
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create submission file: %w", err)
	}
	defer file.Close()

	if err := gocsv.MarshalFile(&rows, file); err != nil {
		return 0, fmt.Errorf("failed to write submission: %w", err)
	}
	return undefined, nil
}
