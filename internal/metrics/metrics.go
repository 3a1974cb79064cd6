package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts sync runs by mode and terminal status
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convsync_runs_total",
			Help: "Total number of sync runs",
		},
		[]string{"mode", "status"},
	)

	// ItemsProcessed counts per-conversation outcomes
	ItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convsync_items_processed_total",
			Help: "Total number of conversations processed, by outcome",
		},
		[]string{"outcome"},
	)

	// PagesListed counts listing pages fetched
	PagesListed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "convsync_pages_listed_total",
			Help: "Total number of inventory pages listed",
		},
	)

	// FetchDuration tracks body fetch latency
	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "convsync_fetch_duration_seconds",
			Help:    "Conversation body fetch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// FetchesInFlight tracks concurrent body fetches
	FetchesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "convsync_fetches_in_flight",
			Help: "Number of conversation body fetches currently in flight",
		},
	)

	// ArtifactsDeleted counts removals performed by full passes
	ArtifactsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "convsync_artifacts_deleted_total",
			Help: "Total number of conversation artifacts deleted",
		},
	)

	// CheckpointsWritten counts persisted state checkpoints
	CheckpointsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "convsync_checkpoints_written_total",
			Help: "Total number of sync state checkpoints written",
		},
	)
)
