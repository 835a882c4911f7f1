package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Ingestion and answering metrics.
var (
	PagesExtractedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_extracted_total",
			Help:      "Pages produced by the text extractor",
		},
		[]string{"method"}, // digital, ocr, text, cache
	)

	OCRRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ocr_requests_total",
			Help:      "OCR requests by outcome",
		},
		[]string{"status"},
	)

	OCRRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ocr_request_duration_seconds",
			Help:      "OCR request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	ChunksCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_created_total",
			Help:      "Chunks produced by the chunker",
		},
	)

	IndexRecordsUpsertedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_records_upserted_total",
			Help:      "Records sent to the vector index",
		},
		[]string{"backend", "status"},
	)

	IngestedFilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_files_total",
			Help:      "Files processed by the ingestion pipeline",
		},
		[]string{"status"},
	)

	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_total",
			Help:      "Chat completion requests",
		},
		[]string{"provider", "model", "mode", "status"},
	)

	GenerationRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_request_duration_seconds",
			Help:      "Chat completion duration in seconds (full stream for streaming requests)",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "model", "mode"},
	)
)

var registerPipeline sync.Once

// RegisterPipelineMetrics registers ingestion and answering metrics. Repeated calls are no-ops.
func RegisterPipelineMetrics() {
	registerPipeline.Do(func() {
		prometheus.MustRegister(
			PagesExtractedTotal,
			OCRRequestsTotal,
			OCRRequestDuration,
			ChunksCreatedTotal,
			IndexRecordsUpsertedTotal,
			IngestedFilesTotal,
			GenerationRequestsTotal,
			GenerationRequestDuration,
		)
	})
}
