package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the ingestion pipeline, grounded in the same
// promauto registration style used throughout the platform metrics.
var (
	JobsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_jobs_started_total",
		Help: "Total number of ingestion jobs started",
	})

	JobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_jobs_completed_total",
		Help: "Total number of ingestion jobs completed, by terminal status",
	}, []string{"status"})

	ProfessorsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_professors_processed_total",
		Help: "Total number of professors processed, by outcome",
	}, []string{"outcome"})

	HarvesterStrategyYield = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_harvester_strategy_yield_total",
		Help: "Number of profiles yielded per harvester strategy",
	}, []string{"strategy"})

	BiblioRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_biblio_retries_total",
		Help: "Total number of bibliographic API retry attempts",
	})

	EmbeddingRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_embedding_requests_total",
		Help: "Total number of embedding requests, by provider, model and status",
	}, []string{"provider", "model", "status"})

	EmbeddingTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_embedding_tokens_total",
		Help: "Estimated number of tokens submitted for embedding, by provider and model",
	}, []string{"provider", "model"})

	EmbeddingEstimatedCost = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_embedding_estimated_cost_millicents_total",
		Help: "Estimated embedding cost in millicents, by provider and model",
	}, []string{"provider", "model"})

	EmbeddingLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingest_embedding_request_duration_seconds",
		Help:    "Embedding request duration in seconds, by provider and model",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "model"})

	EmbeddingFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_embedding_fallbacks_total",
		Help: "Number of times a fallback embedding provider was used in place of the primary",
	}, []string{"from_provider", "to_provider"})

	EmbeddingProviderAvailable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ingest_embedding_provider_available",
		Help: "Whether an embedding provider is currently available (1) or not (0)",
	}, []string{"provider"})
)
