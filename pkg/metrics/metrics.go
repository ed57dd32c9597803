package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	IngestionEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestion_events_total",
			Help: "Total number of payment events processed by the ingestion service (count)",
		},
		[]string{"status"},
	)

	IngestionProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingestion_processing_duration_ms",
			Help:    "Processing duration for ingestion service in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"status"},
	)

	CartEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_events_total",
			Help: "Total number of cart events processed (count)",
		},
		[]string{"status"},
	)

	CartsCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "carts_completed_total",
			Help: "Total number of carts that collected every declared notice (count)",
		},
	)

	GenerationReceiptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_receipts_total",
			Help: "Total number of receipts processed by the generator service (count)",
		},
		[]string{"status"},
	)

	GenerationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "generation_duration_ms",
			Help:    "End-to-end PDF generation duration in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"status"},
	)

	GenerationRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "generation_retries_total",
			Help: "Total number of receipts requeued for another generation attempt (count)",
		},
	)

	TokenizerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenizer_requests_total",
			Help: "Total number of fiscal code tokenization requests (count)",
		},
		[]string{"status"},
	)

	TokenizerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tokenizer_duration_ms",
			Help:    "Duration of tokenizer requests in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"status"},
	)

	PoisonMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poison_messages_total",
			Help: "Total number of poison queue messages handled (count)",
		},
		[]string{"outcome"},
	)

	RecoveryReceiptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_receipts_total",
			Help: "Total number of receipts touched by helpdesk recovery operations (count)",
		},
		[]string{"operation", "status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	PoisonQueueMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poison_queue_messages_total",
			Help: "Total number of messages routed to the poison topic (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "topic", "direction"},
	)

	KafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag (difference between latest offset and committed offset) (count)",
		},
		[]string{"service", "topic", "partition"},
	)

	BlobUploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blob_uploads_total",
			Help: "Total number of receipt document uploads (count)",
		},
		[]string{"status"},
	)

	BlobUploadSizeBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blob_upload_size_bytes",
			Help:    "Size of uploaded receipt documents in bytes",
			Buckets: []float64{1000, 5000, 10000, 50000, 100000, 500000, 1000000, 5000000},
		},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "database", "operation"},
	)
)

func RegisterIngestionMetrics() {
	prometheus.MustRegister(IngestionEventsTotal)
	prometheus.MustRegister(IngestionProcessingDuration)
	prometheus.MustRegister(CartEventsTotal)
	prometheus.MustRegister(CartsCompletedTotal)
	prometheus.MustRegister(TokenizerRequestsTotal)
	prometheus.MustRegister(TokenizerDuration)
	prometheus.MustRegister(PoisonMessagesTotal)
}

func RegisterGeneratorMetrics() {
	prometheus.MustRegister(GenerationReceiptsTotal)
	prometheus.MustRegister(GenerationDuration)
	prometheus.MustRegister(GenerationRetriesTotal)
	prometheus.MustRegister(BlobUploadsTotal)
	prometheus.MustRegister(BlobUploadSizeBytes)
}

func RegisterHelpdeskMetrics() {
	prometheus.MustRegister(RecoveryReceiptsTotal)
	prometheus.MustRegister(RateLimitRequestsTotal)
	prometheus.MustRegister(DatabaseQueriesTotal)
	prometheus.MustRegister(DatabaseQueryDuration)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(PoisonQueueMessagesTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaMessageSizeBytes)
	prometheus.MustRegister(KafkaConsumerLag)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func ObserveIngestionDuration(duration time.Duration, status string) {
	IngestionProcessingDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func ObserveGenerationDuration(duration time.Duration, status string) {
	GenerationDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func ObserveTokenizerDuration(duration time.Duration, status string) {
	TokenizerDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaMessageSize(service, topic, direction string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(service, topic, direction).Observe(float64(sizeBytes))
}

func SetKafkaConsumerLag(service, topic string, partition int, lag int64) {
	KafkaConsumerLag.WithLabelValues(service, topic, fmt.Sprintf("%d", partition)).Set(float64(lag))
}

func IncDatabaseQuery(service, database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(service, database, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(service, database, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(service, database, operation).Observe(float64(duration.Milliseconds()))
}

func IncRecoveryReceipt(operation, status string) {
	RecoveryReceiptsTotal.WithLabelValues(operation, status).Inc()
}
