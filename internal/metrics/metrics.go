package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Database metrics
var (
	// DBQueriesTotal tracks the total number of database queries
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_queries_total",
			Help: "Total number of database queries executed",
		},
		[]string{"query_type", "table", "status"},
	)

	// DBQueryDuration tracks the duration of database queries
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query_type", "table"},
	)

	// DBConnectionsOpen tracks the number of open database connections
	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_open",
			Help: "Number of established connections both in use and idle",
		},
	)
)

// Pipeline metrics
var (
	// RowsValidated counts rows that entered the validator
	RowsValidated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "validation_rows_total",
			Help: "Total number of observation rows processed by the validator",
		},
	)

	// RowsDropped counts rows removed by the validator, by step
	RowsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validation_rows_dropped_total",
			Help: "Observation rows removed during validation",
		},
		[]string{"step"},
	)

	// FeatureBuildDuration tracks how long one feature-table build takes
	FeatureBuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feature_build_duration_seconds",
			Help:    "Duration of feature table builds in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"mode"},
	)

	// FeatureDefaultsApplied counts defaulted feature values at reconciliation
	FeatureDefaultsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feature_defaults_applied_total",
			Help: "Feature values filled with schema defaults during reconciliation",
		},
		[]string{"feature"},
	)

	// PredictionsGenerated counts finished prediction points by horizon
	PredictionsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictions_generated_total",
			Help: "Total number of prediction points produced",
		},
		[]string{"horizon"},
	)

	// PredictionsFiltered counts points dropped by the schedule filter
	PredictionsFiltered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictions_filtered_total",
			Help: "Prediction points removed by the schedule filter",
		},
		[]string{"horizon", "reason"},
	)

	// ModelSwapsTotal counts atomic current-model replacements
	ModelSwapsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "model_swaps_total",
			Help: "Total number of current-model swaps",
		},
	)

	// ParkMetaCache tracks hits and misses of the park metadata cache
	ParkMetaCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "park_meta_cache_requests_total",
			Help: "Park metadata cache lookups",
		},
		[]string{"result"},
	)

	// AppInfo provides static information about the application
	AppInfo = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "parkfan_ml_app_info",
			Help: "Application information (always 1)",
		},
	)

	// AppStartTime records when the application started
	AppStartTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "parkfan_ml_app_start_time_seconds",
			Help: "Unix timestamp of when the application started",
		},
	)
)

func init() {
	// Set app info to 1 (always visible)
	AppInfo.Set(1)
	// Record app start time
	AppStartTime.SetToCurrentTime()
}

// RecordDBQuery records a database query execution
func RecordDBQuery(queryType, table string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DBQueriesTotal.WithLabelValues(queryType, table, status).Inc()
	DBQueryDuration.WithLabelValues(queryType, table).Observe(duration.Seconds())
}
