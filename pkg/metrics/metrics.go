package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Discard reasons for TileBuildsDiscarded.
const (
	ReasonRemoved  = "removed"
	ReasonStale    = "stale_generation"
	ReasonCanceled = "canceled"
)

var (
	TilesLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tilestream_tiles_live",
		Help: "Number of tiles currently tracked by the tile manager",
	})

	TilesRenderable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tilestream_tiles_renderable",
		Help: "Number of visible and loaded tiles",
	})

	TileBuildsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tilestream_tile_builds_in_flight",
		Help: "Number of tile keys with a build in progress",
	})

	TileBuildsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestream_tile_builds_dispatched_total",
		Help: "Total number of tile build requests posted to workers",
	})

	TileBuildsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestream_tile_builds_completed_total",
		Help: "Total number of tile builds that reached the done marker",
	})

	TileBuildsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilestream_tile_builds_discarded_total",
		Help: "Total number of build responses dropped before being applied",
	}, []string{"reason"})

	TileBuildErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestream_tile_build_errors_total",
		Help: "Total number of tile builds failed by a worker",
	})

	TileBuildLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tilestream_tile_build_latency_seconds",
		Help:    "Time from queuing a tile build to its done marker",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	MeshesLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tilestream_meshes_live",
		Help: "Number of meshes currently owned by tiles",
	})

	TexturesLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tilestream_textures_live",
		Help: "Number of textures with a positive retain count",
	})

	SourceRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestream_source_requests_total",
		Help: "Total number of source tile data requests",
	})

	SourceCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestream_source_cache_hits_total",
		Help: "Total number of source data cache hits",
	})

	SourceCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestream_source_cache_misses_total",
		Help: "Total number of source data cache misses",
	})

	SourceUpstreamRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestream_source_upstream_requests_total",
		Help: "Total number of upstream source data requests",
	})

	SourceUpstreamLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tilestream_source_upstream_latency_seconds",
		Help:    "Latency of upstream source data fetches in seconds",
		Buckets: prometheus.DefBuckets,
	})

	SourceRequestsCanceled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestream_source_requests_canceled_total",
		Help: "Total number of source data requests canceled before completion",
	})
)
