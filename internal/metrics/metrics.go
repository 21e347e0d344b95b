package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label value constants to prevent typos
const (
	// Job types
	JobTypeActivitySync = "activity_sync"
	JobTypeTrophyCalc   = "trophy_calc"

	// Job results
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"

	// HTTP endpoints
	EndpointHealth            = "health"
	EndpointTrophyLeaderboard = "trophy_leaderboard"
	EndpointRecentWinners     = "recent_winners"
	EndpointWeeklyKudos       = "weekly_kudos"
	EndpointAllTimeKudos      = "all_time_kudos"
	EndpointTopActivity       = "top_activity"
	EndpointSyncRuns          = "sync_runs"

	// Strava API operations
	OpRefreshToken      = "refresh_token"
	OpListActivities    = "list_activities"
	OpGetActivityZones  = "get_activity_zones"
	OpGetActivityDetail = "get_activity_detail"

	// Enrichment kinds
	EnrichmentZones    = "hr_zones"
	EnrichmentSegments = "segments"

	// Rate limit types
	RateLimit15Min = "15min"
	RateLimitDaily = "daily"

	// Rate limit buckets
	BucketLimit = "limit"
	BucketUsage = "usage"

	// Database operations
	DBOpSaveActivities  = "save_activities"
	DBOpStartSyncRun    = "start_sync_run"
	DBOpFinishSyncRun   = "finish_sync_run"
	DBOpInsertTrophy    = "insert_trophy"
	DBOpWeeklyTotals    = "weekly_totals"
	DBOpLeaderboardRead = "leaderboard_read"
)

// HTTP Metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint", "status_code"},
	)
)

// Strava API Metrics
var (
	StravaAPIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strava_api_requests_total",
			Help: "Total number of Strava API requests",
		},
		[]string{"operation", "status_code"},
	)

	StravaAPIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strava_api_request_duration_seconds",
			Help:    "Strava API request latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation", "status_code"},
	)

	StravaRateLimitUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strava_rate_limit_usage",
			Help: "Strava API rate limit usage as reported by response headers",
		},
		[]string{"limit_type", "bucket"},
	)
)

// Sync Metrics
var (
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Total number of background job runs by outcome",
		},
		[]string{"job_type", "result"},
	)

	SyncRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_run_duration_seconds",
			Help:    "Duration of background job runs",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"job_type"},
	)

	SyncUsersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_users_total",
			Help: "Total number of per-user sync attempts by outcome",
		},
		[]string{"result"},
	)

	NewActivitiesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "new_activities_total",
			Help: "Total number of new activities stored",
		},
	)

	EnrichmentFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_fetches_total",
			Help: "Total number of enrichment fetches by kind and outcome",
		},
		[]string{"kind", "result"},
	)

	TrophiesAwardedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trophies_awarded_total",
			Help: "Total number of weekly trophies awarded",
		},
	)
)

// Database Metrics
var (
	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Database operation latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	DBOperationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_operation_errors_total",
			Help: "Total number of database operation errors",
		},
		[]string{"operation"},
	)
)

// Store Gauges, refreshed by the stats collector
var (
	StoreActiveUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_active_users",
			Help: "Number of active users",
		},
	)

	StoreActivities = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_activities",
			Help: "Number of stored activities",
		},
	)

	StoreActivitiesAwaitingZones = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_activities_awaiting_zones",
			Help: "Number of activities awaiting a heart-rate zone fetch",
		},
	)

	StoreActivitiesAwaitingSegments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_activities_awaiting_segments",
			Help: "Number of activities awaiting segment processing",
		},
	)

	StoreTrophies = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_trophies",
			Help: "Number of awarded weekly trophies",
		},
	)
)
