// Package metrics provides Prometheus metrics for the Sage service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EntityOperationsTotal tracks entity operations by type and status
	EntityOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "entities",
			Name:      "operations_total",
			Help:      "Total number of entity operations by status",
		},
		[]string{"operation", "entity_type", "status"},
	)

	// EntitiesRead tracks entities returned from batch reads
	EntitiesRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "entities",
			Name:      "read_total",
			Help:      "Total number of entities returned from reads",
		},
	)

	// EntitiesDropped tracks entities dropped by validation during reads
	EntitiesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "entities",
			Name:      "dropped_total",
			Help:      "Total number of entities dropped by validation",
		},
		[]string{"entity_type"},
	)

	// RowsDecoded tracks data rows successfully decoded
	RowsDecoded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "codec",
			Name:      "rows_decoded_total",
			Help:      "Total number of data rows decoded into typed values",
		},
	)

	// ValuesDropped tracks values the codec dropped or skipped
	ValuesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "codec",
			Name:      "values_dropped_total",
			Help:      "Total number of values dropped during encode or decode",
		},
		[]string{"direction"},
	)

	// BatchReadDuration tracks paper batch read duration in seconds
	BatchReadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sage",
			Subsystem: "entities",
			Name:      "batch_read_duration_seconds",
			Help:      "Duration of paper batch reads in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"event_type", "status"},
	)
)

// RecordEntityOperation records an entity operation metric
func RecordEntityOperation(operation, entityType, status string) {
	EntityOperationsTotal.WithLabelValues(operation, entityType, status).Inc()
}

// RecordBatchRead records the outcome of a paper batch read
func RecordBatchRead(returned int, durationSeconds float64) {
	EntitiesRead.Add(float64(returned))
	BatchReadDuration.Observe(durationSeconds)
}

// RecordValueDrops records codec warnings for one direction (encode or decode)
func RecordValueDrops(direction string, count int) {
	if count > 0 {
		ValuesDropped.WithLabelValues(direction).Add(float64(count))
	}
}
