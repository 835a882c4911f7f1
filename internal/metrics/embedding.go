package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ragdesk"

const embeddingSubsystem = "embedding"

// Embedding provider, budget and cache metrics. Provider calls are labelled
// by provider and model; status is "success" or "error".
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: embeddingSubsystem,
		Name:      "requests_total",
		Help:      "Embedding API calls by outcome",
	}, []string{"provider", "model", "status"})

	EmbeddingRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: embeddingSubsystem,
		Name:      "request_duration_seconds",
		Help:      "Latency of successful embedding API calls",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2.5, 8),
	}, []string{"provider", "model"})

	// EmbeddingTokensTotal is split by type: "prompt" or "total".
	EmbeddingTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: embeddingSubsystem,
		Name:      "tokens_total",
		Help:      "Tokens reported by the embedding provider",
	}, []string{"provider", "model", "type"})

	EmbeddingErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: embeddingSubsystem,
		Name:      "errors_total",
		Help:      "Failed embedding API calls by error class",
	}, []string{"provider", "model", "error_type"})

	// EmbeddingBudgetTokensRemaining is -1 for an unlimited window.
	EmbeddingBudgetTokensRemaining = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: embeddingSubsystem,
		Name:      "budget_tokens_remaining",
		Help:      "Tokens left in the daily and monthly budget windows",
	}, []string{"provider", "period"})

	EmbeddingCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: embeddingSubsystem,
		Name:      "cache_lookups_total",
		Help:      "Vector cache lookups by result (hit, miss)",
	}, []string{"result"})

	EmbeddingItemsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: embeddingSubsystem,
		Name:      "items_dropped_total",
		Help:      "Texts left without a vector after the per-item retry",
	})

	EmbeddingBatchRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: embeddingSubsystem,
		Name:      "batch_retries_total",
		Help:      "Batches re-sent one text at a time",
	})
)

var registerEmbedding sync.Once

// RegisterEmbeddingMetrics registers the embedding collectors with the
// default registry. Repeated calls are no-ops.
func RegisterEmbeddingMetrics() {
	registerEmbedding.Do(func() {
		prometheus.MustRegister(
			EmbeddingRequestsTotal,
			EmbeddingRequestDuration,
			EmbeddingTokensTotal,
			EmbeddingErrorsTotal,
			EmbeddingBudgetTokensRemaining,
			EmbeddingCacheTotal,
			EmbeddingItemsDroppedTotal,
			EmbeddingBatchRetriesTotal,
		)
	})
}
