package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DatasetLoadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hotspotmap_dataset_loads_total",
		Help: "Total successful loads of the four source collections",
	})
	DatasetLoadFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hotspotmap_dataset_load_fail_total",
		Help: "Dataset load failures by collection",
	}, []string{"kind"})
	DatasetLoadDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hotspotmap_dataset_load_duration_ms",
		Help:    "Duration of a full dataset load in milliseconds",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})
	DatasetCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hotspotmap_dataset_cache_hits_total",
		Help: "Raw dataset payloads served from redis",
	})
	DatasetCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hotspotmap_dataset_cache_misses_total",
		Help: "Raw dataset payloads fetched from the origin",
	})
	RendersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hotspotmap_overlay_renders_total",
		Help: "Total overlay rebuilds",
	})
	RenderDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hotspotmap_overlay_render_duration_ms",
		Help:    "Overlay rebuild duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	})
	HandlesCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hotspotmap_overlay_handles_created_total",
		Help: "Surface handles created by kind (marker, polygon, clustered)",
	}, []string{"kind"})
	RecordsSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hotspotmap_overlay_records_skipped_total",
		Help: "Records skipped during a render by reason",
	}, []string{"reason"})
	RasterRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hotspotmap_raster_requests_total",
		Help: "WMS overlay URLs issued",
	})
	RasterUnsupportedYearTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hotspotmap_raster_unsupported_year_total",
		Help: "Raster refreshes withheld because the year has no provider code",
	})
	RasterImageEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hotspotmap_raster_image_events_total",
		Help: "Overlay image load results reported by the browser",
	}, []string{"result"})
	RasterProbeDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hotspotmap_raster_probe_duration_ms",
		Help:    "Diagnostic re-fetch duration in milliseconds",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000},
	})
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hotspotmap_sessions_active",
		Help: "Live map sessions",
	})
	SessionEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hotspotmap_session_events_total",
		Help: "Events dispatched on session loops by name",
	}, []string{"event"})
)

func init() {
	prometheus.MustRegister(DatasetLoadsTotal)
	prometheus.MustRegister(DatasetLoadFailTotal)
	prometheus.MustRegister(DatasetLoadDurationMs)
	prometheus.MustRegister(DatasetCacheHitsTotal)
	prometheus.MustRegister(DatasetCacheMissesTotal)
	prometheus.MustRegister(RendersTotal)
	prometheus.MustRegister(RenderDurationMs)
	prometheus.MustRegister(HandlesCreatedTotal)
	prometheus.MustRegister(RecordsSkippedTotal)
	prometheus.MustRegister(RasterRequestsTotal)
	prometheus.MustRegister(RasterUnsupportedYearTotal)
	prometheus.MustRegister(RasterImageEventsTotal)
	prometheus.MustRegister(RasterProbeDurationMs)
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(SessionEventsTotal)
}

// Handler exposes the registered collectors for Prometheus scraping.
func Handler() http.Handler { return promhttp.Handler() }
