package spatial

import (
	"fmt"
	"math"
	"sync"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

const (
	tolerance   = 1e-9
	minChildren = 25
	maxChildren = 50
	dimensions  = 2
	// metres per degree of latitude, used for the search box only
	metresPerDegree = 111_320.0
)

type Point struct {
	ID  string
	Lat float64
	Lon float64
}

type spatialItem struct {
	Point
	rect *rtreego.Rect
}

func (si *spatialItem) Bounds() *rtreego.Rect {
	return si.rect
}

// Index is a concurrency-safe R-tree over lat/lon points.
type Index struct {
	mu   sync.RWMutex
	tree *rtreego.Rtree
	size int
}

func NewIndex() *Index {
	return &Index{tree: rtreego.NewTree(dimensions, minChildren, maxChildren)}
}

func (idx *Index) Insert(p Point) {
	rect := rtreego.Point{p.Lat, p.Lon}.ToRect(tolerance)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.tree.Insert(&spatialItem{Point: p, rect: rect})
	idx.size++
}

func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.size
}

// Nearest returns up to k points ordered by planar lat/lon distance.
func (idx *Index) Nearest(lat, lon float64, k int) []Point {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.size == 0 || k <= 0 {
		return nil
	}
	results := idx.tree.NearestNeighbors(k, rtreego.Point{lat, lon})
	points := make([]Point, 0, len(results))
	for _, r := range results {
		if item, ok := r.(*spatialItem); ok && item != nil {
			points = append(points, item.Point)
		}
	}
	return points
}

// WithinRadius returns every point whose great-circle distance to (lat, lon)
// is at most meters.
func (idx *Index) WithinRadius(lat, lon, meters float64) ([]Point, error) {
	if meters < 0 {
		return nil, fmt.Errorf("negative radius %f", meters)
	}
	dLat := meters / metresPerDegree
	cos := math.Cos(lat * math.Pi / 180)
	dLon := 180.0
	if cos > 1e-6 {
		dLon = math.Min(180, dLat/cos)
	}
	box, err := rtreego.NewRect(
		rtreego.Point{lat - dLat, lon - dLon},
		[]float64{2*dLat + tolerance, 2*dLon + tolerance},
	)
	if err != nil {
		return nil, fmt.Errorf("invalid radius search: %w", err)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	center := orb.Point{lon, lat}
	var points []Point
	for _, r := range idx.tree.SearchIntersect(box) {
		item, ok := r.(*spatialItem)
		if !ok {
			continue
		}
		if geo.DistanceHaversine(center, orb.Point{item.Lon, item.Lat}) <= meters {
			points = append(points, item.Point)
		}
	}
	return points, nil
}

// AnyWithin reports whether at least one point lies within meters.
func (idx *Index) AnyWithin(lat, lon, meters float64) (bool, error) {
	points, err := idx.WithinRadius(lat, lon, meters)
	if err != nil {
		return false, err
	}
	return len(points) > 0, nil
}
