package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncsTotal counts finished sync attempts by outcome.
	SyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weathersync_syncs_total",
			Help: "The total number of sync attempts, labelled by outcome.",
		},
		[]string{"outcome"},
	)

	// SyncDuration is a histogram of the time one sync attempt takes.
	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "weathersync_sync_duration_seconds",
			Help:    "A histogram of sync attempt duration.",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10), // 10 buckets, 0.1s width
		},
	)

	// FreshnessSkips counts syncs short-circuited by the freshness gate.
	FreshnessSkips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "weathersync_freshness_skips_total",
			Help: "The total number of syncs skipped because a fresh snapshot existed.",
		},
	)

	// SnapshotsInserted counts rows written to the cache.
	SnapshotsInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "weathersync_snapshots_inserted_total",
			Help: "The total number of snapshots written to the cache.",
		},
	)

	// SnapshotsEvicted counts rows removed by the retention sweep.
	SnapshotsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "weathersync_snapshots_evicted_total",
			Help: "The total number of snapshots removed by the retention sweep.",
		},
	)

	// SyncsInFlight is a gauge of currently running sync attempts.
	SyncsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "weathersync_syncs_in_flight",
			Help: "The number of sync attempts currently being executed.",
		},
	)
)
