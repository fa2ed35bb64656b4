package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Generators
	GeneratorFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_generator_failures_total",
			Help: "Candidate generator calls that failed or timed out",
		},
		[]string{"generator"},
	)

	GeneratorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommendation_generator_duration_seconds",
			Help:    "Duration of candidate generator calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"generator"},
	)

	ResultSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommendation_results_size",
			Help:    "Number of recommendations returned per request",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)

	// Interaction log
	InteractionsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_interactions_total",
			Help: "Recommendation interactions written to the log",
		},
		[]string{"action"},
	)

	InteractionWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommendation_interaction_write_errors_total",
			Help: "Interaction writes that failed",
		},
	)

	InteractionPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommendation_interaction_publish_errors_total",
			Help: "Interaction events that could not be published to Kafka",
		},
	)

	// Aggregate layer circuit breaker. 0 = closed, 1 = half-open, 2 = open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aggregate_circuit_breaker_state",
			Help: "Circuit breaker state for the aggregate query layer",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregate_circuit_breaker_requests_total",
			Help: "Aggregate queries by circuit breaker outcome",
		},
		[]string{"name", "result"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregate_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)
