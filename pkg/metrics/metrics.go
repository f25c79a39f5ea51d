package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ContentStoreHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestream_content_store_hits_total",
		Help: "Total number of content store hits",
	})

	ContentStoreMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestream_content_store_misses_total",
		Help: "Total number of content store misses",
	})

	ContentStoreWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestream_content_store_writes_total",
		Help: "Total number of content store write operations",
	})

	ContentStoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilestream_content_store_errors_total",
		Help: "Total number of content store errors",
	}, []string{"operation"})

	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilestream_upstream_requests_total",
		Help: "Total number of upstream content requests",
	}, []string{"result"})

	UpstreamLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tilestream_upstream_latency_seconds",
		Help:    "Latency of upstream content fetches in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// Tileset metrics
	TilesLoaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestream_tiles_loaded_total",
		Help: "Total number of tiles whose content became ready",
	})

	TilesUnloaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestream_tiles_unloaded_total",
		Help: "Total number of tiles whose content was evicted or expired",
	})

	TilesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestream_tiles_failed_total",
		Help: "Total number of tiles whose content failed to load",
	})

	ResidentBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tilestream_resident_bytes",
		Help: "Bytes held by loaded tile content",
	})

	PendingRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tilestream_pending_requests",
		Help: "Number of in-flight content requests",
	})

	TilesProcessing = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tilestream_tiles_processing",
		Help: "Number of tiles with content being processed",
	})

	TilesSelected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tilestream_tiles_selected",
		Help: "Number of tiles selected by the last render pass",
	})

	MemoryAdjustedScreenSpaceError = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tilestream_memory_adjusted_screen_space_error",
		Help: "Screen space error threshold after memory budget adjustment",
	})

	FrameDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tilestream_frame_duration_seconds",
		Help:    "Duration of one tileset frame update in seconds",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
	})

	// Redis metrics
	RedisPoolStats = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "redis_pool_stats",
		Help: "Redis connection pool statistics",
	}, []string{"stat"})
)
