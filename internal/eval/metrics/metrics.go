package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsEnqueued tracks total jobs admitted to the queue
	JobsEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grader_jobs_enqueued_total",
			Help: "Total number of evaluation jobs enqueued",
		},
	)

	// JobsCompleted tracks terminal job outcomes
	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grader_jobs_completed_total",
			Help: "Total number of jobs reaching a terminal state",
		},
		[]string{"outcome"}, // completed, failed, fallback
	)

	// DuplicateShortCircuits tracks submissions answered from the ledger
	DuplicateShortCircuits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grader_duplicate_short_circuits_total",
			Help: "Total number of submissions short-circuited by the idempotency ledger",
		},
	)

	// ModelCallLatency tracks downstream model call latency
	ModelCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grader_model_call_latency_seconds",
			Help:    "Downstream model call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"}, // scoring, transcription
	)

	// BreakerState tracks the scoring circuit breaker state (0 closed, 1 half-open, 2 open)
	BreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "grader_breaker_state",
			Help: "Scoring circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// QueueDepth tracks jobs waiting in the queue
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "grader_queue_depth",
			Help: "Number of jobs waiting in the queue",
		},
	)
)
