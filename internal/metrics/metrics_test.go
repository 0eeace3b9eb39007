package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()

	a.RecordsFetched.Add(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(a.RecordsFetched))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.RecordsFetched))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.HTTPRequests.WithLabelValues("gbif", "success").Inc()
	m.RowsDropped.WithLabelValues("nodata").Add(2)

	path := filepath.Join(t.TempDir(), "frog.prom")
	require.NoError(t, m.WriteTextfile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `frog_sdm_http_requests_total{outcome="success",upstream="gbif"} 1`)
	assert.Contains(t, string(raw), `frog_sdm_rows_dropped_total{reason="nodata"} 2`)
}

func TestWriteTextfile_EmptyPath(t *testing.T) {
	assert.NoError(t, New().WriteTextfile(""))
}

func TestHTTPObserver(t *testing.T) {
	m := New()
	observe := m.HTTPObserver("stac")
	observe("retry", 2*time.Second)
	observe("success", 100*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("stac", "retry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("stac", "success")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPDuration))
}
