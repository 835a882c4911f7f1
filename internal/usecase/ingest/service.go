// Package ingest runs documents through extraction, chunking, embedding and indexing.
package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdesk/internal/domain"
	"github.com/kailas-cloud/ragdesk/internal/logger"
	"github.com/kailas-cloud/ragdesk/internal/metrics"
)

// File outcome labels for metrics.IngestedFilesTotal.
const (
	statusIndexed = "indexed"
	statusPartial = "partial"
	statusEmpty   = "empty"
	statusError   = "error"
)

// workerExpiry is how long an idle pool worker is kept.
const workerExpiry = 30 * time.Second

// FileResult is the outcome of ingesting one file.
type FileResult struct {
	Filename         string
	Path             string
	Pages            int
	Chunks           int
	Indexed          int
	FailedEmbeddings int
	Err              error
}

// Config holds ingestion dependencies.
type Config struct {
	Extractor extractor
	Chunker   chunker
	Embedder  batchEmbedder
	Index     upserter
	Workers   int
	Logger    *zap.Logger
}

// Service ingests files on a bounded worker pool shared by all callers.
type Service struct {
	extractor extractor
	chunker   chunker
	embedder  batchEmbedder
	index     upserter
	pool      *ants.Pool
	logger    *zap.Logger
}

// New creates a Service. Call Close to release the worker pool.
func New(cfg Config) (*Service, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	pool, err := ants.NewPool(workers, ants.WithExpiryDuration(workerExpiry))
	if err != nil {
		return nil, fmt.Errorf("create ingest pool: %w", err)
	}

	return &Service{
		extractor: cfg.Extractor,
		chunker:   cfg.Chunker,
		embedder:  cfg.Embedder,
		index:     cfg.Index,
		pool:      pool,
		logger:    log,
	}, nil
}

// Close releases the worker pool.
func (s *Service) Close() {
	s.pool.Release()
}

// IngestFiles processes every path and returns one result per path, in input order.
// Per-file failures are reported in FileResult.Err; the returned error is only
// set when the context ends before all files were processed.
func (s *Service) IngestFiles(ctx context.Context, paths []string) ([]FileResult, error) {
	results := make([]FileResult, len(paths))
	var wg sync.WaitGroup

	for i, path := range paths {
		results[i] = FileResult{Filename: filepath.Base(path), Path: path}

		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i].Err = fmt.Errorf("ingest %s: panic: %v", results[i].Filename, r)
				}
			}()
			s.ingestFile(ctx, &results[i])
		})
		if err != nil {
			wg.Done()
			results[i].Err = fmt.Errorf("schedule %s: %w", results[i].Filename, err)
			metrics.IngestedFilesTotal.WithLabelValues(statusError).Inc()
		}
	}

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return results, fmt.Errorf("ingest interrupted: %w", err)
	}
	return results, nil
}

func (s *Service) ingestFile(ctx context.Context, res *FileResult) {
	log := logger.FromContextOr(ctx, s.logger).With(zap.String("file", res.Filename))
	start := time.Now()

	status := statusError
	defer func() {
		metrics.IngestedFilesTotal.WithLabelValues(status).Inc()
		log.Info("File ingested",
			zap.String("status", status),
			zap.Int("pages", res.Pages),
			zap.Int("chunks", res.Chunks),
			zap.Int("indexed", res.Indexed),
			zap.Int("failed_embeddings", res.FailedEmbeddings),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(res.Err),
		)
	}()

	if err := ctx.Err(); err != nil {
		res.Err = err
		return
	}

	pages, err := s.extractor.Extract(ctx, res.Path)
	if err != nil {
		res.Err = fmt.Errorf("extract: %w", err)
		return
	}
	res.Pages = len(pages)

	chunks := s.chunker.Chunk(pages)
	res.Chunks = len(chunks)
	if len(chunks) == 0 {
		status = statusEmpty
		return
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		res.Err = fmt.Errorf("embed: %w", err)
		return
	}
	res.FailedEmbeddings = len(chunks) - len(vectors)
	if len(vectors) == 0 {
		res.Err = fmt.Errorf("embed: all %d chunks failed: %w", len(chunks), domain.ErrEmbeddingProviderError)
		return
	}

	records := buildRecords(chunks, vectors)
	if err := s.index.Upsert(ctx, records); err != nil {
		res.Err = fmt.Errorf("upsert: %w", err)
		return
	}
	res.Indexed = len(records)

	status = statusIndexed
	if res.FailedEmbeddings > 0 {
		status = statusPartial
	}
}

// buildRecords joins vectors back to their chunks by input index.
func buildRecords(chunks []domain.Chunk, vectors []domain.IndexedVector) []domain.IndexRecord {
	records := make([]domain.IndexRecord, 0, len(vectors))
	for _, v := range vectors {
		c := chunks[v.Index]
		records = append(records, domain.IndexRecord{
			ID:     c.ID,
			Vector: v.Vector,
			Metadata: domain.RecordMetadata{
				Source:   c.Source,
				Filename: filepath.Base(c.Source),
				Page:     c.Page,
				Text:     c.Text,
			},
		})
	}
	return records
}
