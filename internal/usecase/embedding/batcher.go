package embedding

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdesk/internal/domain"
	"github.com/kailas-cloud/ragdesk/internal/metrics"
)

// DefaultBatchSize is the number of texts per batch request.
const DefaultBatchSize = 50

// Batcher embeds document texts in batches. A batch that fails is retried one
// text at a time; texts that still fail are dropped, so the result may be
// shorter than the input and every vector carries the index of its text.
type Batcher struct {
	embedder  domain.Embedder
	batchSize int
	logger    *zap.Logger
}

// NewBatcher creates a Batcher. Embedders that also implement
// domain.BatchEmbedder get one request per batch.
func NewBatcher(embedder domain.Embedder, batchSize int, logger *zap.Logger) *Batcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Batcher{embedder: embedder, batchSize: batchSize, logger: logger}
}

// Embed returns the surviving vectors ordered by input index.
// Context cancellation and an exhausted token budget are returned as errors.
func (b *Batcher) Embed(ctx context.Context, texts []string) ([]domain.IndexedVector, error) {
	out := make([]domain.IndexedVector, 0, len(texts))

	for batch, start := 0, 0; start < len(texts); batch, start = batch+1, start+b.batchSize {
		end := min(start+b.batchSize, len(texts))

		vectors, err := b.embedBatch(ctx, texts[start:end])
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("embed batch %d: %w", batch, ctxErr)
		}
		if errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
			return nil, fmt.Errorf("embed batch %d: %w", batch, err)
		}
		if err == nil {
			for i, v := range vectors {
				out = append(out, domain.IndexedVector{Index: start + i, Vector: v})
			}
			continue
		}

		b.logger.Warn("Embedding batch failed, retrying items individually",
			zap.Int("batch", batch),
			zap.Int("size", end-start),
			zap.Error(err),
		)
		metrics.EmbeddingBatchRetriesTotal.Inc()

		for i := start; i < end; i++ {
			res, err := b.embedder.Embed(ctx, texts[i])
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("embed item %d: %w", i, ctxErr)
			}
			if errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
				return nil, fmt.Errorf("embed item %d: %w", i, err)
			}
			if err == nil && len(res.Embedding) == 0 {
				err = fmt.Errorf("empty vector: %w", domain.ErrEmbeddingProviderError)
			}
			if err != nil {
				b.logger.Error("Dropping text after single-item retry failed",
					zap.Int("batch", batch),
					zap.Int("position", i),
					zap.Error(err),
				)
				metrics.EmbeddingItemsDroppedTotal.Inc()
				continue
			}
			out = append(out, domain.IndexedVector{Index: i, Vector: res.Embedding})
		}
	}

	return out, nil
}

// embedBatch embeds one batch, failing on a count mismatch or an empty vector.
func (b *Batcher) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	res, err := domain.EmbedAll(ctx, b.embedder, texts)
	if err != nil {
		return nil, err
	}

	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("got %d vectors for %d texts: %w",
			len(res.Embeddings), len(texts), domain.ErrEmbeddingProviderError)
	}
	for i, v := range res.Embeddings {
		if len(v) == 0 {
			return nil, fmt.Errorf("empty vector at position %d: %w", i, domain.ErrEmbeddingProviderError)
		}
	}
	return res.Embeddings, nil
}
