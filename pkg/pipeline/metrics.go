package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResourceRuns tracks finished resource runs by outcome
	ResourceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopify_resource_runs_total",
			Help: "Total number of resource runs by outcome",
		},
		[]string{"resource", "status"}, // "success", "failed"
	)

	// ResourceRows tracks rows written to the sink
	ResourceRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopify_resource_rows_total",
			Help: "Total number of rows written per resource",
		},
		[]string{"resource"},
	)

	// ResourceRunDuration tracks the wall time of resource runs
	ResourceRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shopify_resource_run_duration_seconds",
			Help:    "Duration of resource runs",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		},
		[]string{"resource"},
	)

	// CursorCommits tracks saved high-water marks
	CursorCommits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopify_cursor_commits_total",
			Help: "Total number of committed resource cursors",
		},
		[]string{"resource"},
	)
)
