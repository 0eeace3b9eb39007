package occurrence

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/paulmach/orb"

	"github.com/alecsharpie/ey-frog-challenge/internal/spatial"
)

type Record struct {
	Key              int64   `csv:"key" json:"key"`
	Species          string  `csv:"species" json:"species"`
	Latitude         float64 `csv:"decimalLatitude" json:"decimalLatitude"`
	Longitude        float64 `csv:"decimalLongitude" json:"decimalLongitude"`
	EventDate        string  `csv:"eventDate" json:"eventDate,omitempty"`
	CountryCode      string  `csv:"countryCode" json:"countryCode,omitempty"`
	BasisOfRecord    string  `csv:"basisOfRecord" json:"basisOfRecord,omitempty"`
	OccurrenceStatus string  `csv:"occurrenceStatus" json:"occurrenceStatus,omitempty"`
}

func (r Record) Point() orb.Point { return orb.Point{r.Longitude, r.Latitude} }

func ReadCSV(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open occurrences: %w", err)
	}
	defer file.Close()

	var records []Record
	if err := gocsv.UnmarshalFile(file, &records); err != nil {
		return nil, fmt.Errorf("failed to parse occurrences %s: %w", path, err)
	}
	return records, nil
}

func WriteCSV(path string, records []Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := gocsv.MarshalFile(&records, file); err != nil {
		return fmt.Errorf("failed to write occurrences: %w", err)
	}
	return nil
}

// FilterBound keeps records inside bound (edges included).
func FilterBound(records []Record, bound orb.Bound) []Record {
	kept := make([]Record, 0, len(records))
	for _, r := range records {
		if bound.Contains(r.Point()) {
			kept = append(kept, r)
		}
	}
	return kept
}

// Thin drops every record closer than minDistance metres to an already
// kept one. Input order decides which record survives.
func Thin(records []Record, minDistance float64) ([]Record, error) {
	if minDistance <= 0 {
		return records, nil
	}
	idx := spatial.NewIndex()
	kept := make([]Record, 0, len(records))
	for _, r := range records {
		near, err := idx.AnyWithin(r.Latitude, r.Longitude, minDistance)
		if err != nil {
			return nil, err
		}
		if near {
			continue
		}
		idx.Insert(spatial.Point{ID: fmt.Sprint(r.Key), Lat: r.Latitude, Lon: r.Longitude})
		kept = append(kept, r)
	}
	return kept, nil
}

// Species returns the distinct species names in first-seen order.
func Species(records []Record) []string {
	seen := map[string]bool{}
	var names []string
	for _, r := range records {
		if !seen[r.Species] {
			seen[r.Species] = true
			names = append(names, r.Species)
		}
	}
	return names
}
