package utils

import "sync"

var gdalMu sync.Mutex

// ExecuteWithMutex serializes fn against every other caller. GDAL dataset
// handles are not safe for concurrent use, so all godal calls go through it.
func ExecuteWithMutex(fn func()) {
	gdalMu.Lock()
	defer gdalMu.Unlock()
	fn()
}
