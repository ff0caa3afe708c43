// Package metrics provides Prometheus metrics for the Atlas service.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResolutionsTotal tracks resolution outcomes by status
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atlas",
			Subsystem: "resolution",
			Name:      "outcomes_total",
			Help:      "Total number of resolution outcomes by status",
		},
		[]string{"tenant_id", "status"},
	)

	// ResolveDuration tracks resolve request duration in seconds
	ResolveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "atlas",
			Subsystem: "resolution",
			Name:      "resolve_duration_seconds",
			Help:      "Duration of resolve requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"tenant_id"},
	)

	// MatchesTotal tracks entity matches produced by strategy
	MatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atlas",
			Subsystem: "matching",
			Name:      "matches_total",
			Help:      "Total number of entity matches produced by match type",
		},
		[]string{"tenant_id", "match_type"},
	)

	// GeocodeRequestsTotal tracks forward geocode lookups by result
	GeocodeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atlas",
			Subsystem: "geocode",
			Name:      "requests_total",
			Help:      "Total number of geocode lookups by status",
		},
		[]string{"status"},
	)

	// GeocodeRequestDuration tracks geocode lookup duration
	GeocodeRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "atlas",
			Subsystem: "geocode",
			Name:      "request_duration_seconds",
			Help:      "Duration of geocode lookups in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	// GeocodeCacheHits tracks geocode cache hits and misses
	GeocodeCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atlas",
			Subsystem: "geocode",
			Name:      "cache_total",
			Help:      "Total number of geocode cache lookups by result",
		},
		[]string{"result"},
	)

	// CandidatesCaptured tracks persisted location candidates by source
	CandidatesCaptured = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atlas",
			Subsystem: "candidates",
			Name:      "captured_total",
			Help:      "Total number of location candidates captured by source",
		},
		[]string{"tenant_id", "source"},
	)

	// EntityProjectionEvents tracks entity projection intake events
	EntityProjectionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atlas",
			Subsystem: "projection",
			Name:      "events_total",
			Help:      "Total number of entity projection events processed",
		},
		[]string{"event_type", "status"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atlas",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "atlas",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	// HTTPErrorsTotal tracks error responses returned by the API
	HTTPErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atlas",
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "Total number of error responses by route and status code",
		},
		[]string{"route", "status"},
	)

	// DatabaseQueryDuration tracks database query duration
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "atlas",
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Duration of database queries in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)
)

// RecordResolution records a resolution outcome metric
func RecordResolution(tenantID, status string) {
	ResolutionsTotal.WithLabelValues(tenantID, status).Inc()
}

// RecordResolve records a resolve request metric
func RecordResolve(tenantID string, durationSeconds float64) {
	ResolveDuration.WithLabelValues(tenantID).Observe(durationSeconds)
}

// RecordMatch records an entity match metric
func RecordMatch(tenantID, matchType string) {
	MatchesTotal.WithLabelValues(tenantID, matchType).Inc()
}

// RecordGeocode records a geocode lookup metric
func RecordGeocode(status string, durationSeconds float64) {
	GeocodeRequestsTotal.WithLabelValues(status).Inc()
	GeocodeRequestDuration.Observe(durationSeconds)
}

// RecordGeocodeCache records a geocode cache lookup result
func RecordGeocodeCache(result string) {
	GeocodeCacheHits.WithLabelValues(result).Inc()
}

// RecordDatabaseQuery records a database query duration
func RecordDatabaseQuery(operation string, durationSeconds float64) {
	DatabaseQueryDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordHTTPError records an error response returned by the API
func RecordHTTPError(route string, status int) {
	HTTPErrorsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}
