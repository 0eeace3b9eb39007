package dataset

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/paulmach/orb"

	"github.com/alecsharpie/ey-frog-challenge/internal/occurrence"
	"github.com/alecsharpie/ey-frog-challenge/internal/spatial"
)

const BackgroundSpecies = "background"

// Sample is a labelled point waiting to be joined to the predictor stack.
type Sample struct {
	ID        string
	Species   string
	Latitude  float64
	Longitude float64
	EventDate string
	Label     int
}

func fromRecord(r occurrence.Record, label int) Sample {
	return Sample{
		ID:        strconv.FormatInt(r.Key, 10),
		Species:   r.Species,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		EventDate: r.EventDate,
		Label:     label,
	}
}

// Presences labels every record 1.
func Presences(records []occurrence.Record) []Sample {
	samples := make([]Sample, len(records))
	for i, r := range records {
		samples[i] = fromRecord(r, 1)
	}
	return samples
}

// TargetVersusOthers labels records of target 1 and every other species 0.
func TargetVersusOthers(records []occurrence.Record, target string) ([]Sample, error) {
	samples := make([]Sample, len(records))
	found := false
	for i, r := range records {
		label := 0
		if r.Species == target {
			label = 1
			found = true
		}
		samples[i] = fromRecord(r, label)
	}
	if !found {
		return nil, fmt.Errorf("species %q not among %d records", target, len(records))
	}
	return samples, nil
}

// PresenceIndex indexes the samples labelled 1.
func PresenceIndex(samples []Sample) *spatial.Index {
	idx := spatial.NewIndex()
	for _, s := range samples {
		if s.Label == 1 {
			idx.Insert(spatial.Point{ID: s.ID, Lat: s.Latitude, Lon: s.Longitude})
		}
	}
	return idx
}

// Background draws n uniform pseudo-absences inside bound. Points within
// radius metres of anything in exclusion are redrawn; exclusion may be nil.
// The same seed gives the same points.
func Background(bound orb.Bound, n int, seed int64, exclusion *spatial.Index, radius float64) ([]Sample, error) {
	if n <= 0 {
		return nil, nil
	}
	if bound.Max.Lon() <= bound.Min.Lon() || bound.Max.Lat() <= bound.Min.Lat() {
		return nil, fmt.Errorf("background bound %v has no area", bound)
	}

	rng := rand.New(rand.NewSource(seed))
	maxAttempts := n * 100
	samples := make([]Sample, 0, n)
	for attempt := 0; len(samples) < n && attempt < maxAttempts; attempt++ {
		lon := bound.Min.Lon() + rng.Float64()*(bound.Max.Lon()-bound.Min.Lon())
		lat := bound.Min.Lat() + rng.Float64()*(bound.Max.Lat()-bound.Min.Lat())
		if exclusion != nil && radius > 0 {
			near, err := exclusion.AnyWithin(lat, lon, radius)
			if err != nil {
				return nil, err
			}
			if near {
				continue
			}
		}
		samples = append(samples, Sample{
			ID:        fmt.Sprintf("bg-%d", len(samples)),
			Species:   BackgroundSpecies,
			Latitude:  lat,
			Longitude: lon,
			Label:     0,
		})
	}
	if len(samples) < n {
		return nil, fmt.Errorf("drew only %d of %d background points after %d attempts; exclusion radius too large", len(samples), n, maxAttempts)
	}
	return samples, nil
}
