// Package ingestmetrics exposes the pipeline's Prometheus series. Collectors
// are registered on the default registry at init; the API server mounts
// promhttp on /metrics. Label cardinality is bounded: stream is one of
// meter|vehicle and reason is a small fixed set.
package ingestmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	samplesAccepted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "evtel_samples_accepted_total",
		Help: "Valid samples accepted by the intake and enqueued.",
	}, []string{"stream"})

	samplesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "evtel_samples_dropped_total",
		Help: "Samples dropped at the intake or writer boundary.",
	}, []string{"stream", "reason"})

	enqueueFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "evtel_enqueue_failures_total",
		Help: "Broker deliveries left unacked because the queue was unavailable.",
	}, []string{"stream"})

	batchesCommitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "evtel_batches_committed_total",
		Help: "Batches whose transaction committed.",
	}, []string{"stream"})

	batchRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "evtel_batch_retries_total",
		Help: "Failed flush attempts (each failure counts once).",
	}, []string{"stream"})

	samplesDeadLettered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "evtel_samples_dead_lettered_total",
		Help: "Samples parked on a dead-letter partition after exhausting retries.",
	}, []string{"stream"})

	batchSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "evtel_batch_size",
		Help:    "Committed batch sizes in samples.",
		Buckets: []float64{1, 5, 10, 50, 100, 250, 500, 1000, 2500},
	}, []string{"stream"})

	flushDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "evtel_flush_duration_seconds",
		Help:    "Wall time of a successful batch transaction.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stream"})

	queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "evtel_queue_depth",
		Help: "Jobs in the durable queue, including delivered-but-unacked.",
	}, []string{"stream"})
)

func init() {
	prometheus.MustRegister(
		samplesAccepted,
		samplesDropped,
		enqueueFailures,
		batchesCommitted,
		batchRetries,
		samplesDeadLettered,
		batchSize,
		flushDuration,
		queueDepth,
	)
}

// RecordAccepted counts one valid sample handed to the queue.
func RecordAccepted(stream string) {
	samplesAccepted.WithLabelValues(stream).Inc()
}

// RecordDropped counts one discarded sample. reason should be stable and
// low-cardinality ("invalid", "corrupt").
func RecordDropped(stream, reason string) {
	samplesDropped.WithLabelValues(stream, reason).Inc()
}

// RecordEnqueueFailure counts one delivery the intake could not queue.
func RecordEnqueueFailure(stream string) {
	enqueueFailures.WithLabelValues(stream).Inc()
}

// ObserveCommit records a committed batch and its transaction time.
func ObserveCommit(stream string, size int, d time.Duration) {
	batchesCommitted.WithLabelValues(stream).Inc()
	batchSize.WithLabelValues(stream).Observe(float64(size))
	flushDuration.WithLabelValues(stream).Observe(d.Seconds())
}

// RecordRetry counts one failed flush attempt.
func RecordRetry(stream string) {
	batchRetries.WithLabelValues(stream).Inc()
}

// RecordDeadLettered counts samples parked for inspection.
func RecordDeadLettered(stream string, n int) {
	samplesDeadLettered.WithLabelValues(stream).Add(float64(n))
}

// SetQueueDepth publishes the latest queue depth probe.
func SetQueueDepth(stream string, depth int64) {
	queueDepth.WithLabelValues(stream).Set(float64(depth))
}
