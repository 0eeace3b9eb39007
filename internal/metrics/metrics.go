package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters and histograms of one CLI run.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequests     *prometheus.CounterVec   // labels: upstream={stac,gbif,open_meteo}, outcome={success,retry,error}
	HTTPDuration     *prometheus.HistogramVec // labels: upstream
	RecordsFetched   prometheus.Counter
	AssetsWarped     *prometheus.CounterVec // labels: predictor
	RowsJoined       prometheus.Counter
	RowsDropped      *prometheus.CounterVec // labels: reason={out_of_bounds,nodata,duplicate}
	TrainingDuration prometheus.Histogram
}

// New creates metrics on a private registry so repeated runs and tests never
// collide on registration.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frog_sdm",
			Name:      "http_requests_total",
			Help:      "Upstream HTTP requests by upstream and outcome.",
		}, []string{"upstream", "outcome"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "frog_sdm",
			Name:      "http_request_duration_seconds",
			Help:      "Upstream HTTP request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"upstream"}),
		RecordsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "frog_sdm",
			Name:      "occurrence_records_fetched_total",
			Help:      "Occurrence records returned by the biodiversity API.",
		}),
		AssetsWarped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frog_sdm",
			Name:      "assets_warped_total",
			Help:      "Raster assets reprojected onto the target grid.",
		}, []string{"predictor"}),
		RowsJoined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "frog_sdm",
			Name:      "rows_joined_total",
			Help:      "Points joined to predictor pixels.",
		}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frog_sdm",
			Name:      "rows_dropped_total",
			Help:      "Points dropped during the spatial join by reason.",
		}, []string{"reason"}),
		TrainingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "frog_sdm",
			Name:      "training_duration_seconds",
			Help:      "Duration of a logistic regression fit.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
		}),
	}

	m.Registry.MustRegister(
		m.HTTPRequests,
		m.HTTPDuration,
		m.RecordsFetched,
		m.AssetsWarped,
		m.RowsJoined,
		m.RowsDropped,
		m.TrainingDuration,
	)
	return m
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
// An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// HTTPObserver records one upstream's request outcomes and latencies.
func (m *Metrics) HTTPObserver(upstream string) func(outcome string, elapsed time.Duration) {
	return func(outcome string, elapsed time.Duration) {
		m.HTTPRequests.WithLabelValues(upstream, outcome).Inc()
		m.HTTPDuration.WithLabelValues(upstream).Observe(elapsed.Seconds())
	}
}
